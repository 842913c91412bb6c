package alerting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kaspa-price-alerts/internal/chat"
	"kaspa-price-alerts/internal/detector"
)

// Delivery summarises one broadcast.
type Delivery struct {
	Delivered int
	Failed    int
}

// Notifier pushes a text alert to a set of channels.
type Notifier interface {
	Notify(ctx context.Context, message string, channelIDs []int64) Delivery
}

// Broadcaster sends alerts one channel at a time through a chat.Sender.
type Broadcaster struct {
	sender chat.Sender
	logger zerolog.Logger
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(sender chat.Sender, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		sender: sender,
		logger: logger.With().Str("component", "alert_broadcaster").Logger(),
	}
}

// Notify attempts every channel independently. Failures are logged and
// counted, never returned.
func (b *Broadcaster) Notify(ctx context.Context, message string, channelIDs []int64) Delivery {
	var out Delivery
	for _, id := range channelIDs {
		if err := b.sender.Send(ctx, id, message); err != nil {
			out.Failed++
			b.logger.Warn().Err(err).Int64("channel_id", id).Msg("alert delivery failed")
			continue
		}
		out.Delivered++
	}

	b.logger.Info().
		Int("delivered", out.Delivered).
		Int("failed", out.Failed).
		Msg("alert broadcast finished")
	return out
}

// RenderATH formats the new all-time-high announcement.
func RenderATH(symbol string, price decimal.Decimal) string {
	return fmt.Sprintf("🚀 New ATH for %s! Current price: $%s 🚀", symbol, price.String())
}

// RenderMove formats a threshold-crossing move.
func RenderMove(symbol string, move detector.Move) string {
	return fmt.Sprintf("%s: Price change of %s%% over %d min. New price: $%s, Old price: $%s",
		symbol,
		move.ChangePct.StringFixed(2),
		move.ElapsedMinutes,
		move.NewPrice.String(),
		move.OldPrice.String(),
	)
}

var _ Notifier = (*Broadcaster)(nil)
