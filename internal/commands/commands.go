// Package commands implements the chat commands users can issue to the bot.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"kaspa-price-alerts/internal/chat"
	"kaspa-price-alerts/internal/detector"
	"kaspa-price-alerts/internal/fetcher"
	"kaspa-price-alerts/internal/storage"
)

// Command names and their aliases.
var (
	RegisterNames = []string{"register", "register_channel", "registerchannel"}
	PriceNames    = []string{"price", "kas", "query_price"}
	ATHNames      = []string{"ath"}
)

// Handler answers chat commands from stored data, falling back to a live
// fetch for the price query.
type Handler struct {
	registry storage.ChannelRegistry
	samples  storage.SampleStore
	fetcher  fetcher.PriceFetcher
	state    *detector.State
	symbol   string
	logger   zerolog.Logger

	live singleflight.Group
}

// New constructs a Handler. state may be nil, in which case the ath command
// reports it as unknown.
func New(registry storage.ChannelRegistry, samples storage.SampleStore, price fetcher.PriceFetcher, state *detector.State, symbol string, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		samples:  samples,
		fetcher:  price,
		state:    state,
		symbol:   symbol,
		logger:   logger.With().Str("component", "commands").Logger(),
	}
}

// Bind registers every command on the client.
func (h *Handler) Bind(client chat.Client) {
	for _, name := range RegisterNames {
		client.Handle(name, h.RegisterChannel)
	}
	for _, name := range PriceNames {
		client.Handle(name, h.QueryPrice)
	}
	for _, name := range ATHNames {
		client.Handle(name, h.QueryATH)
	}
}

// RegisterChannel adds the issuing channel to the alert registry.
func (h *Handler) RegisterChannel(ctx context.Context, cmd chat.Command) (string, error) {
	added, err := h.registry.AddChannel(ctx, cmd.ChannelID)
	if err != nil {
		return "", fmt.Errorf("register channel %d: %w", cmd.ChannelID, err)
	}
	if !added {
		return "This channel is already registered for price alerts.", nil
	}
	h.logger.Info().Int64("channel_id", cmd.ChannelID).Str("user", cmd.User).Msg("channel registered")
	return fmt.Sprintf("This channel is now registered for %s price alerts.", h.symbol), nil
}

// QueryPrice replies with the most recent stored price, or a live quote when
// the latest sample has none. Unregistered channels get guidance instead.
func (h *Handler) QueryPrice(ctx context.Context, cmd chat.Command) (string, error) {
	if reply, ok, err := h.requireRegistered(ctx, cmd); !ok || err != nil {
		return reply, err
	}

	if price, ok := h.storedPrice(ctx); ok {
		return h.priceReply(price), nil
	}

	price, err := h.livePrice(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Int64("channel_id", cmd.ChannelID).Msg("live price unavailable")
		return fmt.Sprintf("The current price of %s is unavailable right now, please try again later.", h.symbol), nil
	}
	return h.priceReply(price), nil
}

// QueryATH replies with the all-time-high currently tracked by the detector.
func (h *Handler) QueryATH(ctx context.Context, cmd chat.Command) (string, error) {
	if reply, ok, err := h.requireRegistered(ctx, cmd); !ok || err != nil {
		return reply, err
	}
	if h.state == nil {
		return fmt.Sprintf("The all-time-high of %s is not known yet.", h.symbol), nil
	}
	return fmt.Sprintf("The all-time-high of %s is $%s", h.symbol, h.state.ATH().String()), nil
}

func (h *Handler) requireRegistered(ctx context.Context, cmd chat.Command) (string, bool, error) {
	registered, err := h.registry.HasChannel(ctx, cmd.ChannelID)
	if err != nil {
		return "", false, fmt.Errorf("check channel %d: %w", cmd.ChannelID, err)
	}
	if !registered {
		return "This channel is not registered. Use /register first to enable price commands and alerts.", false, nil
	}
	return "", true, nil
}

func (h *Handler) storedPrice(ctx context.Context) (decimal.Decimal, bool) {
	samples, err := h.samples.ReadSamples(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("failed to read stored samples; falling back to live price")
		return decimal.Decimal{}, false
	}
	return storage.LatestPrice(samples)
}

func (h *Handler) livePrice(ctx context.Context) (decimal.Decimal, error) {
	v, err, _ := h.live.Do("price", func() (interface{}, error) {
		return h.fetcher.FetchPrice(ctx)
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return v.(decimal.Decimal), nil
}

func (h *Handler) priceReply(price decimal.Decimal) string {
	return fmt.Sprintf("The current price of %s is $%s", h.symbol, price.String())
}
