package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []map[string]string
	updates  []map[string]any
	forbid   bool
	polls    int
	pollDone chan struct{}
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")

		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]any{"id": 1, "is_bot": true, "first_name": "Kaspa", "username": "kaspa_bot"},
			})
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.forbid {
				_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 403, "description": "Forbidden: bot was blocked by the user"})
				return
			}
			f.sent = append(f.sent, map[string]string{"chat_id": r.FormValue("chat_id"), "text": r.FormValue("text")})
			_ = json.NewEncoder(w).Encode(map[string]any{
				"ok":     true,
				"result": map[string]any{"message_id": len(f.sent), "date": 0, "chat": map[string]any{"id": 42, "type": "private"}},
			})
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			f.mu.Lock()
			f.polls++
			updates := f.updates
			f.updates = nil
			if f.polls == 2 && f.pollDone != nil {
				close(f.pollDone)
			}
			f.mu.Unlock()
			if updates == nil {
				updates = []map[string]any{}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": updates})
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestTelegram(t *testing.T, api *fakeBotAPI) *Telegram {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	tg, err := NewTelegram(TelegramOptions{Token: "token", APIBase: srv.URL, PollTimeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return tg
}

func TestNewTelegramRequiresToken(t *testing.T) {
	_, err := NewTelegram(TelegramOptions{}, zerolog.Nop())
	require.Error(t, err)
}

func TestTelegramSend(t *testing.T) {
	api := &fakeBotAPI{}
	tg := newTestTelegram(t, api)
	require.Equal(t, "kaspa_bot", tg.Name())

	require.NoError(t, tg.Send(context.Background(), 42, "hello"))
	require.Equal(t, []map[string]string{{"chat_id": "42", "text": "hello"}}, api.sent)
}

func TestTelegramSendForbidden(t *testing.T) {
	api := &fakeBotAPI{forbid: true}
	tg := newTestTelegram(t, api)

	err := tg.Send(context.Background(), 42, "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "lacks permission")
}

func TestTelegramRunDispatchesCommands(t *testing.T) {
	api := &fakeBotAPI{
		pollDone: make(chan struct{}),
		updates: []map[string]any{
			{
				"update_id": 7,
				"message": map[string]any{
					"message_id": 1,
					"date":       0,
					"text":       "/price",
					"chat":       map[string]any{"id": 42, "type": "private"},
					"from":       map[string]any{"id": 5, "is_bot": false, "first_name": "A", "username": "alice"},
					"entities":   []map[string]any{{"type": "bot_command", "offset": 0, "length": 6}},
				},
			},
		},
	}
	tg := newTestTelegram(t, api)

	ready := make(chan struct{})
	tg.OnReady(func(ctx context.Context) { close(ready) })

	var got Command
	tg.Handle("price", func(ctx context.Context, cmd Command) (string, error) {
		got = cmd
		return "The current price of KAS is $0.1", nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.Run(ctx) }()

	<-ready
	select {
	case <-api.pollDone:
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not poll twice")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Equal(t, int64(42), got.ChannelID)
	require.Equal(t, "alice", got.User)
	require.Equal(t, []map[string]string{{"chat_id": "42", "text": "The current price of KAS is $0.1"}}, api.sent)
}
