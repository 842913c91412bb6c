package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kaspa-price-alerts/internal/config"
	"kaspa-price-alerts/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Asset: config.AssetConfig{ID: "kaspa", Symbol: "KAS", VsCurrency: "usd", ATHSeed: 1},
		Storage: config.StorageConfig{
			Driver:       config.DriverFile,
			SamplesPath:  filepath.Join(dir, "kas_data.csv"),
			ATHPath:      filepath.Join(dir, "kas_ath.csv"),
			ChannelsPath: filepath.Join(dir, "chat_ids.json"),
		},
		Scheduler: config.SchedulerConfig{Interval: time.Minute},
		Alerting:  config.AlertingConfig{ThresholdPct: 5, Window: 2 * time.Hour},
		Export:    config.ExportConfig{MaxDataPoints: 100},
	}
	return NewApp(cfg, zerolog.Nop())
}

func registerChannel(t *testing.T, a *App, id int64) {
	t.Helper()
	store, closeStore, err := a.openStore(context.Background())
	require.NoError(t, err)
	defer closeStore()
	_, err = store.AddChannel(context.Background(), id)
	require.NoError(t, err)
}

func simulate(t *testing.T, a *App, price string, at time.Time) string {
	t.Helper()
	var out bytes.Buffer
	err := a.SimulateAlert(context.Background(), &out, SimulateOptions{
		Price:  decimal.RequireFromString(price),
		At:     at,
		DryRun: true,
	})
	require.NoError(t, err)
	return out.String()
}

func seedSamples(t *testing.T, a *App, prices ...string) {
	t.Helper()
	store, closeStore, err := a.openStore(context.Background())
	require.NoError(t, err)
	defer closeStore()
	for i, p := range prices {
		sample := storage.NewSample(t0.Add(time.Duration(i)*time.Minute), decimal.RequireFromString(p))
		require.NoError(t, store.AppendSample(context.Background(), sample))
	}
}

func TestSimulateAlertDryRunPrintsMove(t *testing.T) {
	a := newTestApp(t)
	registerChannel(t, a, 42)
	seedSamples(t, a, "0.104")

	out := simulate(t, a, "0.096", t0.Add(20*time.Minute))
	require.Equal(t, "[42] KAS: Price change of -7.69% over 20 min. New price: $0.096, Old price: $0.104\n", out)
}

func TestSimulateAlertDryRunLeavesStoreUntouched(t *testing.T) {
	a := newTestApp(t)
	registerChannel(t, a, 42)
	seedSamples(t, a, "0.1")

	out := simulate(t, a, "50", t0.Add(time.Minute))
	require.Contains(t, out, "New ATH for KAS")
	require.Contains(t, out, "Price change of")

	store, closeStore, err := a.openStore(context.Background())
	require.NoError(t, err)
	defer closeStore()

	_, found, err := store.LatestATH(context.Background())
	require.NoError(t, err)
	require.False(t, found)

	samples, err := store.ReadSamples(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, t0, samples[0].Time)
	require.Equal(t, "0.1", samples[0].Price.Decimal.String())
}

func TestSimulateAlertRejectsNonPositivePrice(t *testing.T) {
	a := newTestApp(t)
	err := a.SimulateAlert(context.Background(), &bytes.Buffer{}, SimulateOptions{DryRun: true})
	require.Error(t, err)
}

func TestSimulateAlertRequiresTokenWhenLive(t *testing.T) {
	a := newTestApp(t)
	err := a.SimulateAlert(context.Background(), &bytes.Buffer{}, SimulateOptions{Price: decimal.NewFromInt(1), At: t0})
	require.ErrorIs(t, err, config.ErrMissingToken)
}

func TestShowPrintsSamplesAndSummary(t *testing.T) {
	a := newTestApp(t)
	registerChannel(t, a, 42)
	seedSamples(t, a, "0.1", "0.101")

	var out bytes.Buffer
	require.NoError(t, a.Show(context.Background(), &out, ShowOptions{Limit: 1}))

	text := out.String()
	require.Contains(t, text, "2024-03-01T12:01:00Z")
	require.NotContains(t, text, "2024-03-01T12:00:00Z")
	require.Contains(t, text, "$0.101")
	require.Contains(t, text, "none recorded (seed $1)")
	require.Regexp(t, `Channels\s+1`, text)
}

func TestExportWritesCSVAndPNG(t *testing.T) {
	a := newTestApp(t)
	seedSamples(t, a, "0.1", "0.101", "0.102")

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "kas.csv")
	pngPath := filepath.Join(dir, "out", "kas.png")
	from := t0.Add(time.Minute)
	require.NoError(t, a.Export(context.Background(), ExportOptions{From: &from, CSVPath: csvPath, PNGPath: pngPath}))

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	require.Equal(t, "time,price\n2024-03-01T12:01:00Z,0.101\n2024-03-01T12:02:00Z,0.102\n", string(data))

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}

func TestExportRequiresOutput(t *testing.T) {
	a := newTestApp(t)
	require.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestDownsampleSamplesKeepsEnds(t *testing.T) {
	samples := make([]storage.Sample, 10)
	for i := range samples {
		samples[i] = storage.NewSample(t0.Add(time.Duration(i)*time.Minute), decimal.NewFromInt(int64(i)))
	}
	got := downsampleSamples(samples, 4)
	require.Len(t, got, 4)
	require.Equal(t, samples[0], got[0])
	require.Equal(t, samples[9], got[3])
}

func TestFilterWindowRejectsInvertedRange(t *testing.T) {
	from, to := t0.Add(time.Hour), t0
	_, err := filterWindow(nil, &from, &to)
	require.Error(t, err)
}
