// Package detector decides, on every tick, whether the latest sample is a new
// all-time-high and whether it moved far enough from a recent sample to alert.
package detector

import (
	"math"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"kaspa-price-alerts/internal/storage"
)

// Skip reasons reported by Evaluate.
const (
	SkipNotEnoughData = "not enough data to compare"
	SkipNoLatestPrice = "latest sample has no price"
)

var hundred = decimal.NewFromInt(100)

// Options tune detection.
type Options struct {
	// ThresholdPct is the absolute relative change, in percent, that fires an alert.
	ThresholdPct decimal.Decimal
	// Window bounds how far back candidates are taken from the latest sample.
	Window time.Duration
}

// Move describes a threshold-crossing price change.
type Move struct {
	OldPrice       decimal.Decimal
	NewPrice       decimal.Decimal
	OldTime        time.Time
	NewTime        time.Time
	ElapsedMinutes int64
	ChangePct      decimal.Decimal
}

// Outcome is the result of one evaluation.
type Outcome struct {
	Latest  storage.Sample
	Skipped string
	NewATH  bool
	ATH     decimal.Decimal
	Move    *Move
}

// Detector evaluates the time series against the shared State.
type Detector struct {
	opts      Options
	threshold decimal.Decimal
	state     *State
}

// New constructs a Detector. The state's ATH is raised by Evaluate.
func New(opts Options, state *State) *Detector {
	if opts.Window <= 0 {
		opts.Window = 2 * time.Hour
	}
	if !opts.ThresholdPct.IsPositive() {
		opts.ThresholdPct = decimal.NewFromInt(5)
	}
	return &Detector{
		opts:      opts,
		threshold: opts.ThresholdPct.Div(hundred),
		state:     state,
	}
}

// Evaluate inspects samples (oldest first) after the newest one was appended.
func (d *Detector) Evaluate(samples []storage.Sample) Outcome {
	if len(samples) < 2 {
		return Outcome{Skipped: SkipNotEnoughData}
	}

	latest := samples[len(samples)-1]
	out := Outcome{Latest: latest, ATH: d.state.ATH()}
	if !latest.HasPrice() {
		out.Skipped = SkipNoLatestPrice
		return out
	}

	price := latest.Price.Decimal
	if d.state.raise(price) {
		out.NewATH = true
		out.ATH = price
	}

	out.Move = d.firstMove(d.window(samples, latest), latest)
	return out
}

// window returns the samples no older than Window before latest, falling back
// to the last two samples when none qualify.
func (d *Detector) window(samples []storage.Sample, latest storage.Sample) []storage.Sample {
	cutoff := latest.Time.Add(-d.opts.Window)
	inWindow := lo.Filter(samples, func(s storage.Sample, _ int) bool {
		return !s.Time.Before(cutoff)
	})
	if len(inWindow) == 0 {
		return samples[len(samples)-2:]
	}
	return inWindow
}

// firstMove scans oldest-first and stops at the first candidate crossing the
// threshold. Candidates without a price or priced at zero are skipped.
func (d *Detector) firstMove(candidates []storage.Sample, latest storage.Sample) *Move {
	price := latest.Price.Decimal
	for _, candidate := range candidates {
		if !candidate.HasPrice() || candidate.Price.Decimal.IsZero() {
			continue
		}
		old := candidate.Price.Decimal
		change := price.Sub(old).Div(old)
		if change.Abs().LessThan(d.threshold) {
			continue
		}

		elapsed := latest.Time.Sub(candidate.Time)
		return &Move{
			OldPrice:       old,
			NewPrice:       price,
			OldTime:        candidate.Time,
			NewTime:        latest.Time,
			ElapsedMinutes: int64(math.Floor(elapsed.Seconds() / 60)),
			ChangePct:      change.Mul(hundred).Round(2),
		}
	}
	return nil
}
