package version

import (
	"strings"
	"testing"
)

func TestUserAgentCarriesVersion(t *testing.T) {
	old := Version
	Version = "1.2.3"
	t.Cleanup(func() { Version = old })

	if got := UserAgent(); got != "kaspawatch/1.2.3" {
		t.Fatalf("UserAgent() = %q", got)
	}
	if !strings.HasPrefix(String(), "kaspawatch 1.2.3\n") {
		t.Fatalf("String() = %q", String())
	}
}
