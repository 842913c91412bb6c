package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const pollRetryDelay = 3 * time.Second

// TelegramOptions configure the Telegram client.
type TelegramOptions struct {
	Token       string
	APIBase     string
	PollTimeout time.Duration
}

// Telegram is a Client backed by the Telegram Bot API long-polling interface.
type Telegram struct {
	Router

	bot         *tgbotapi.BotAPI
	pollTimeout time.Duration
	logger      zerolog.Logger
}

type pollResult struct {
	updates []tgbotapi.Update
	err     error
}

// NewTelegram authenticates against the Bot API.
func NewTelegram(opts TelegramOptions, logger zerolog.Logger) (*Telegram, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	apiBase := strings.TrimRight(opts.APIBase, "/")
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, apiBase+"/bot%s/%s", &http.Client{Timeout: pollTimeout + 10*time.Second})
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}

	return &Telegram{
		bot:         bot,
		pollTimeout: pollTimeout,
		logger:      logger.With().Str("component", "chat_telegram").Logger(),
	}, nil
}

// Name returns the bot's user name.
func (t *Telegram) Name() string {
	return t.bot.Self.UserName
}

// Send posts a plain text message to a chat.
func (t *Telegram) Send(_ context.Context, channelID int64, text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(channelID, text)); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("bot blocked or lacks permission in chat %d: %w", channelID, err)
		}
		return fmt.Errorf("send to chat %d: %w", channelID, err)
	}
	return nil
}

// Run fires the ready event then long-polls for updates until ctx is done.
func (t *Telegram) Run(ctx context.Context) error {
	t.logger.Info().Str("bot", t.Name()).Msg("logged in")
	t.FireReady(ctx)

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(t.pollTimeout / time.Second)
	cfg.AllowedUpdates = []string{"message", "channel_post"}

	for {
		results := make(chan pollResult, 1)
		go func(cfg tgbotapi.UpdateConfig) {
			updates, err := t.bot.GetUpdates(cfg)
			results <- pollResult{updates: updates, err: err}
		}(cfg)

		var res pollResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-results:
		}

		if res.err != nil {
			t.FireError(ctx, fmt.Errorf("get updates: %w", res.err))
			timer := time.NewTimer(pollRetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		for _, update := range res.updates {
			if update.UpdateID >= cfg.Offset {
				cfg.Offset = update.UpdateID + 1
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return
	}

	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}

	cmd := Command{Name: name, Args: args, ChannelID: msg.Chat.ID}
	if msg.From != nil {
		cmd.User = msg.From.UserName
	}

	t.logger.Debug().Str("command", cmd.Name).Int64("channel_id", cmd.ChannelID).Msg("command received")
	t.Dispatch(ctx, cmd, func(text string) error {
		return t.Send(ctx, cmd.ChannelID, text)
	})
}

var _ Client = (*Telegram)(nil)
