package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent identifies the bot to upstream HTTP APIs.
func UserAgent() string {
	return fmt.Sprintf("kaspawatch/%s", Version)
}

// String renders build information for the version command.
func String() string {
	return fmt.Sprintf("kaspawatch %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}
