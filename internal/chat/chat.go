// Package chat abstracts the messaging platform the bot talks to: outbound
// text delivery plus inbound commands and lifecycle events.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// GenericFailureReply is sent when a command handler fails.
const GenericFailureReply = "Something went wrong while handling your command, please try again later."

// Command is a user-issued chat command.
type Command struct {
	Name      string
	Args      string
	ChannelID int64
	User      string
}

// CommandFunc handles a command and returns the reply text.
type CommandFunc func(ctx context.Context, cmd Command) (string, error)

// Sender delivers a text message to one channel.
type Sender interface {
	Send(ctx context.Context, channelID int64, text string) error
}

// Client is a connected chat bot.
type Client interface {
	Sender
	Handle(name string, fn CommandFunc)
	OnReady(fn func(ctx context.Context))
	OnError(fn func(ctx context.Context, err error))
	OnCommandError(fn func(ctx context.Context, cmd Command, err error))
	// Run receives events until ctx is cancelled.
	Run(ctx context.Context) error
}

// Router holds command handlers and event callbacks and dispatches to them.
// Platform clients embed it.
type Router struct {
	mu             sync.RWMutex
	handlers       map[string]CommandFunc
	onReady        []func(ctx context.Context)
	onError        []func(ctx context.Context, err error)
	onCommandError []func(ctx context.Context, cmd Command, err error)
}

// Handle registers fn for the named command (without prefix).
func (r *Router) Handle(name string, fn CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]CommandFunc)
	}
	r.handlers[normalizeName(name)] = fn
}

// OnReady registers a callback fired once the client is connected.
func (r *Router) OnReady(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReady = append(r.onReady, fn)
}

// OnError registers a callback for platform-level errors.
func (r *Router) OnError(fn func(ctx context.Context, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onError = append(r.onError, fn)
}

// OnCommandError registers a callback for failed command handlers.
func (r *Router) OnCommandError(fn func(ctx context.Context, cmd Command, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCommandError = append(r.onCommandError, fn)
}

// FireReady notifies ready callbacks.
func (r *Router) FireReady(ctx context.Context) {
	r.mu.RLock()
	callbacks := append([]func(context.Context){}, r.onReady...)
	r.mu.RUnlock()
	for _, fn := range callbacks {
		fn(ctx)
	}
}

// FireError notifies error callbacks.
func (r *Router) FireError(ctx context.Context, err error) {
	r.mu.RLock()
	callbacks := append([]func(context.Context, error){}, r.onError...)
	r.mu.RUnlock()
	for _, fn := range callbacks {
		fn(ctx, err)
	}
}

func (r *Router) fireCommandError(ctx context.Context, cmd Command, err error) {
	r.mu.RLock()
	callbacks := append([]func(context.Context, Command, error){}, r.onCommandError...)
	r.mu.RUnlock()
	for _, fn := range callbacks {
		fn(ctx, cmd, err)
	}
}

// Dispatch runs the handler for cmd and sends its reply. A failing or
// panicking handler yields GenericFailureReply. Unknown commands are ignored
// and reported as not handled.
func (r *Router) Dispatch(ctx context.Context, cmd Command, reply func(text string) error) bool {
	r.mu.RLock()
	fn, ok := r.handlers[normalizeName(cmd.Name)]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	text, err := call(ctx, fn, cmd)
	if err != nil {
		r.fireCommandError(ctx, cmd, err)
		text = GenericFailureReply
	}
	if text == "" {
		return true
	}
	if err := reply(text); err != nil {
		r.FireError(ctx, fmt.Errorf("reply to %s in %d: %w", cmd.Name, cmd.ChannelID, err))
	}
	return true
}

func call(ctx context.Context, fn CommandFunc, cmd Command) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.Name, rec)
		}
	}()
	return fn(ctx, cmd)
}

// ParseCommand extracts a command from message text. Both "/name" and
// "!name" prefixes are accepted; a trailing "@botname" is dropped.
func ParseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || (text[0] != '/' && text[0] != '!') {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return normalizeName(head), strings.TrimSpace(rest), true
}

func normalizeName(name string) string {
	name = strings.TrimLeft(strings.TrimSpace(name), "/!")
	return strings.ToLower(name)
}
