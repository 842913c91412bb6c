package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
)

// SampleStore is the rolling price time series. Insertion order is
// chronological order.
type SampleStore interface {
	AppendSample(ctx context.Context, sample Sample) error
	ReadSamples(ctx context.Context) ([]Sample, error)
	// CollapseSamples discards every stored sample and keeps only the given one.
	CollapseSamples(ctx context.Context, sample Sample) error
}

// AthStore is the append-only all-time-high log; the latest entry wins.
type AthStore interface {
	AppendATH(ctx context.Context, record AthRecord) error
	LatestATH(ctx context.Context) (decimal.Decimal, bool, error)
}

// ChannelRegistry tracks the chat channels that receive alerts.
type ChannelRegistry interface {
	// AddChannel registers id and reports whether it was newly added.
	AddChannel(ctx context.Context, id int64) (bool, error)
	HasChannel(ctx context.Context, id int64) (bool, error)
	ListChannels(ctx context.Context) ([]int64, error)
}

// Store aggregates every persistence concern of the bot.
type Store interface {
	SampleStore
	AthStore
	ChannelRegistry
	Close() error
}
