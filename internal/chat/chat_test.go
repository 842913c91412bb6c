package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text string
		name string
		args string
		ok   bool
	}{
		{text: "/price", name: "price", ok: true},
		{text: "!register-channel", name: "register-channel", ok: true},
		{text: "/register@kaspa_bot", name: "register", ok: true},
		{text: "  /PRICE  now please ", name: "price", args: "now please", ok: true},
		{text: "price", ok: false},
		{text: "/", ok: false},
		{text: "", ok: false},
	}
	for _, tc := range cases {
		name, args, ok := ParseCommand(tc.text)
		require.Equal(t, tc.ok, ok, tc.text)
		require.Equal(t, tc.name, name, tc.text)
		require.Equal(t, tc.args, args, tc.text)
	}
}

func TestRouterDispatchReplies(t *testing.T) {
	var r Router
	r.Handle("/price", func(ctx context.Context, cmd Command) (string, error) {
		return "price is 1", nil
	})

	var sent []string
	handled := r.Dispatch(context.Background(), Command{Name: "price", ChannelID: 1}, func(text string) error {
		sent = append(sent, text)
		return nil
	})
	require.True(t, handled)
	require.Equal(t, []string{"price is 1"}, sent)
}

func TestRouterDispatchIgnoresUnknownCommands(t *testing.T) {
	var r Router
	handled := r.Dispatch(context.Background(), Command{Name: "nope"}, func(string) error {
		t.Fatal("unknown command should not reply")
		return nil
	})
	require.False(t, handled)
}

func TestRouterDispatchSurfacesGenericFailure(t *testing.T) {
	var r Router
	boom := errors.New("boom")
	r.Handle("fail", func(ctx context.Context, cmd Command) (string, error) {
		return "", boom
	})
	r.Handle("panic", func(ctx context.Context, cmd Command) (string, error) {
		panic("unexpected")
	})

	var reported []error
	r.OnCommandError(func(ctx context.Context, cmd Command, err error) {
		reported = append(reported, err)
	})

	for _, name := range []string{"fail", "panic"} {
		var sent string
		r.Dispatch(context.Background(), Command{Name: name}, func(text string) error {
			sent = text
			return nil
		})
		require.Equal(t, GenericFailureReply, sent)
	}
	require.Len(t, reported, 2)
	require.ErrorIs(t, reported[0], boom)
}

func TestRouterDispatchReportsReplyFailure(t *testing.T) {
	var r Router
	r.Handle("price", func(ctx context.Context, cmd Command) (string, error) {
		return "1", nil
	})
	var reported error
	r.OnError(func(ctx context.Context, err error) { reported = err })

	r.Dispatch(context.Background(), Command{Name: "price", ChannelID: 9}, func(string) error {
		return errors.New("network down")
	})
	require.Error(t, reported)
}

func TestRouterFireReady(t *testing.T) {
	var r Router
	calls := 0
	r.OnReady(func(ctx context.Context) { calls++ })
	r.OnReady(func(ctx context.Context) { calls++ })
	r.FireReady(context.Background())
	require.Equal(t, 2, calls)
}
