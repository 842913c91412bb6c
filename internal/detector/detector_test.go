package detector

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"kaspa-price-alerts/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sample(offset time.Duration, price string) storage.Sample {
	return storage.NewSample(t0.Add(offset), decimal.RequireFromString(price))
}

func newDetector(ath string) (*Detector, *State) {
	state := NewState(decimal.RequireFromString(ath))
	return New(Options{ThresholdPct: decimal.NewFromInt(5), Window: 2 * time.Hour}, state), state
}

func TestEvaluateSkipsWithFewerThanTwoSamples(t *testing.T) {
	d, state := newDetector("1000")

	out := d.Evaluate(nil)
	require.Equal(t, SkipNotEnoughData, out.Skipped)

	out = d.Evaluate([]storage.Sample{sample(0, "2000")})
	require.Equal(t, SkipNotEnoughData, out.Skipped)
	require.False(t, out.NewATH)
	require.True(t, state.ATH().Equal(decimal.NewFromInt(1000)))
}

func TestEvaluatePicksFirstQualifyingCandidateOldestFirst(t *testing.T) {
	d, _ := newDetector("1000")
	samples := []storage.Sample{
		sample(0, "100"),
		sample(10*time.Minute, "104"),
		sample(20*time.Minute, "96"),
		sample(30*time.Minute, "96"),
	}

	out := d.Evaluate(samples)
	require.Empty(t, out.Skipped)
	require.NotNil(t, out.Move)
	require.True(t, out.Move.OldPrice.Equal(decimal.NewFromInt(104)))
	require.True(t, out.Move.OldTime.Equal(t0.Add(10*time.Minute)))
	require.True(t, out.Move.NewTime.Equal(t0.Add(30*time.Minute)))
	require.Equal(t, int64(20), out.Move.ElapsedMinutes)
	require.Equal(t, "-7.69", out.Move.ChangePct.StringFixed(2))
}

func TestEvaluatePrefersOlderMatchOverLargerLaterSwing(t *testing.T) {
	d, _ := newDetector("1000")
	samples := []storage.Sample{
		sample(0, "100"),
		sample(10*time.Minute, "80"),
		sample(20*time.Minute, "106"),
	}

	out := d.Evaluate(samples)
	require.NotNil(t, out.Move)
	require.True(t, out.Move.OldPrice.Equal(decimal.NewFromInt(100)))
	require.Equal(t, "6.00", out.Move.ChangePct.StringFixed(2))
}

func TestEvaluateNoAlertBelowThreshold(t *testing.T) {
	d, _ := newDetector("1000")
	samples := []storage.Sample{
		sample(0, "100"),
		sample(time.Minute, "103"),
		sample(2*time.Minute, "98"),
		sample(3*time.Minute, "100"),
	}

	out := d.Evaluate(samples)
	require.Nil(t, out.Move)
	require.False(t, out.NewATH)
}

func TestEvaluateExactThresholdFires(t *testing.T) {
	d, _ := newDetector("1000")
	out := d.Evaluate([]storage.Sample{sample(0, "100"), sample(time.Minute, "105")})
	require.NotNil(t, out.Move)
	require.Equal(t, "5.00", out.Move.ChangePct.StringFixed(2))
}

func TestEvaluateEqualPricesNeverFire(t *testing.T) {
	d, _ := newDetector("1000")
	out := d.Evaluate([]storage.Sample{sample(0, "100"), sample(time.Minute, "100")})
	require.Nil(t, out.Move)
}

func TestEvaluateSkipsZeroAndAbsentCandidates(t *testing.T) {
	d, _ := newDetector("1000")
	samples := []storage.Sample{
		sample(0, "0"),
		{Time: t0.Add(time.Minute)},
		sample(2*time.Minute, "90"),
		sample(3*time.Minute, "100"),
	}

	var out Outcome
	require.NotPanics(t, func() { out = d.Evaluate(samples) })
	require.NotNil(t, out.Move)
	require.True(t, out.Move.OldPrice.Equal(decimal.NewFromInt(90)))
}

func TestEvaluateIgnoresSamplesOutsideWindow(t *testing.T) {
	d, _ := newDetector("1000")
	samples := []storage.Sample{
		sample(0, "50"),
		sample(2*time.Hour, "99"),
		sample(2*time.Hour+30*time.Minute, "100"),
	}

	out := d.Evaluate(samples)
	require.Nil(t, out.Move)
}

func TestEvaluateWindowBoundaryIsInclusive(t *testing.T) {
	d, _ := newDetector("1000")
	samples := []storage.Sample{
		sample(0, "50"),
		sample(2*time.Hour, "100"),
	}

	out := d.Evaluate(samples)
	require.NotNil(t, out.Move)
	require.Equal(t, int64(120), out.Move.ElapsedMinutes)
}

func TestEvaluateAbsentLatestPriceDisablesChecks(t *testing.T) {
	d, state := newDetector("1")
	samples := []storage.Sample{
		sample(0, "100"),
		{Time: t0.Add(time.Minute)},
	}

	out := d.Evaluate(samples)
	require.Equal(t, SkipNoLatestPrice, out.Skipped)
	require.Nil(t, out.Move)
	require.False(t, out.NewATH)
	require.True(t, state.ATH().Equal(decimal.NewFromInt(1)))
}

func TestEvaluateRaisesATHOncePerStrictIncrease(t *testing.T) {
	d, state := newDetector("0.154")
	prices := []string{"0.15", "0.16", "0.16", "0.155", "0.17", "0.17", "0.18", "0.14"}

	samples := []storage.Sample{sample(0, "0.15")}
	fired := 0
	maxSeen := decimal.RequireFromString("0.154")
	for i, p := range prices {
		samples = append(samples, sample(time.Duration(i+1)*time.Minute, p))
		out := d.Evaluate(samples)
		price := decimal.RequireFromString(p)
		if price.GreaterThan(maxSeen) {
			maxSeen = price
			require.True(t, out.NewATH, "price %s should be a new ATH", p)
			require.True(t, out.ATH.Equal(price))
			fired++
		} else {
			require.False(t, out.NewATH, "price %s should not be a new ATH", p)
		}
		require.True(t, state.ATH().Equal(maxSeen))
	}
	require.Equal(t, 3, fired)
}

func TestLoadStateFallsBackToSeed(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewBuntStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	state, err := LoadState(ctx, store, decimal.RequireFromString("0.154"))
	require.NoError(t, err)
	require.True(t, state.ATH().Equal(decimal.RequireFromString("0.154")))

	require.NoError(t, store.AppendATH(ctx, storage.AthRecord{Time: t0, Price: decimal.RequireFromString("0.2")}))
	state, err = LoadState(ctx, store, decimal.RequireFromString("0.154"))
	require.NoError(t, err)
	require.True(t, state.ATH().Equal(decimal.RequireFromString("0.2")))
}
