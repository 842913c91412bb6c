package storage

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFileStoreWritesSemicolonCommaFormat(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	require.NoError(t, store.AppendSample(ctx, NewSample(base, decimal.RequireFromString("0.1543"))))
	require.NoError(t, store.AppendSample(ctx, Sample{Time: base.Add(time.Minute)}))

	raw, err := os.ReadFile(store.opts.SamplesPath)
	require.NoError(t, err)
	require.Equal(t, "time;price\n2024-03-01 12:00:00;0,1543\n2024-03-01 12:01:00;\n", string(raw))

	require.NoError(t, store.AppendATH(ctx, AthRecord{Time: base, Price: decimal.RequireFromString("0.19")}))
	raw, err = os.ReadFile(store.opts.ATHPath)
	require.NoError(t, err)
	require.Equal(t, "time;ath_price\n2024-03-01 12:00:00;0,19\n", string(raw))
}

func TestFileStoreDropsBlankColumnsOnAppend(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	legacy := "time;price;Unnamed: 0\n2024-03-01 12:00:00;0,15;\n2024-03-01 12:01:00;;\n"
	require.NoError(t, os.WriteFile(store.opts.SamplesPath, []byte(legacy), 0o644))

	require.NoError(t, store.AppendSample(ctx, NewSample(base.Add(2*time.Minute), decimal.RequireFromString("0.16"))))

	raw, err := os.ReadFile(store.opts.SamplesPath)
	require.NoError(t, err)
	require.Equal(t, "time;price\n2024-03-01 12:00:00;0,15\n2024-03-01 12:01:00;\n2024-03-01 12:02:00;0,16\n", string(raw))
}

func TestFileStoreAllBlankPriceColumnIsTolerated(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	require.NoError(t, os.WriteFile(store.opts.SamplesPath, []byte("time;price\n2024-03-01 12:00:00;\n"), 0o644))
	require.NoError(t, store.AppendSample(ctx, NewSample(base.Add(time.Minute), decimal.RequireFromString("0.2"))))

	samples, err := store.ReadSamples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.False(t, samples[0].HasPrice())
	require.True(t, samples[1].Price.Decimal.Equal(decimal.RequireFromString("0.2")))
}

func TestFileStoreEmptyFileIsNoData(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, os.WriteFile(store.opts.SamplesPath, nil, 0o644))

	samples, err := store.ReadSamples(ctx)
	require.NoError(t, err)
	require.Empty(t, samples)
}

func TestFileStoreCreatesRegistryLazily(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)

	ids, err := store.ListChannels(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)

	raw, err := os.ReadFile(store.opts.ChannelsPath)
	require.NoError(t, err)
	require.JSONEq(t, "[]", string(raw))

	_, err = store.AddChannel(ctx, 123456789012345)
	require.NoError(t, err)
	raw, err = os.ReadFile(store.opts.ChannelsPath)
	require.NoError(t, err)
	require.JSONEq(t, "[123456789012345]", string(raw))
}

func TestFileStoreSkipsMalformedSampleRows(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	store := newFileStore(t)
	store.opts.Logger = zerolog.New(&logs)
	require.NoError(t, os.WriteFile(store.opts.SamplesPath, []byte("time;price\n2024-03-01 12:00:00;0,1\nyesterday;0,1\n2024-03-01 12:01:00;abc\n"), 0o644))

	require.NoError(t, store.AppendSample(ctx, NewSample(base.Add(2*time.Minute), decimal.RequireFromString("0.12"))))

	samples, err := store.ReadSamples(ctx)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, base, samples[0].Time)
	require.Equal(t, base.Add(2*time.Minute), samples[1].Time)

	price, ok := LatestPrice(samples)
	require.True(t, ok)
	require.Equal(t, "0.12", price.String())
	require.Equal(t, 2, strings.Count(logs.String(), "skipping malformed row"))
}

func TestFileStoreSkipsMalformedATHRows(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, os.WriteFile(store.opts.ATHPath, []byte("time;ath_price\n2024-03-01 12:00:00;0,19\n2024-03-01 12:01:00;abc\n"), 0o644))

	ath, found, err := store.LatestATH(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "0.19", ath.String())
}
