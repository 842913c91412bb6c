package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	chart "github.com/wcharczuk/go-chart/v2"

	"kaspa-price-alerts/internal/storage"
)

// Export renders the stored price series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	samples, err := store.ReadSamples(ctx)
	if err != nil {
		return err
	}

	samples, err = filterWindow(samples, opts.From, opts.To)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		ath, found, err := store.LatestATH(ctx)
		if err != nil {
			return err
		}
		var athLine *float64
		if found {
			v := ath.InexactFloat64()
			athLine = &v
		}
		if err := writeSamplesPNG(opts.PNGPath, a.Config.Asset.Symbol, downsampled, athLine); err != nil {
			return err
		}
	}

	return nil
}

func filterWindow(samples []storage.Sample, from, to *time.Time) ([]storage.Sample, error) {
	if from != nil && to != nil && !from.Before(*to) {
		return nil, errors.New("from must be before to")
	}
	return lo.Filter(samples, func(s storage.Sample, _ int) bool {
		if from != nil && s.Time.Before(*from) {
			return false
		}
		if to != nil && !s.Time.Before(*to) {
			return false
		}
		return true
	}), nil
}

func downsampleSamples(samples []storage.Sample, max int) []storage.Sample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.Sample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.Sample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"time", "price"}); err != nil {
		return err
	}

	for _, sample := range samples {
		price := ""
		if sample.HasPrice() {
			price = sample.Price.Decimal.String()
		}
		if err := writer.Write([]string{sample.Time.UTC().Format(time.RFC3339), price}); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSamplesPNG(path, symbol string, samples []storage.Sample, ath *float64) error {
	priced := lo.Filter(samples, func(s storage.Sample, _ int) bool { return s.HasPrice() })
	if len(priced) < 2 {
		return errors.New("need at least two priced samples to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := lo.Map(priced, func(s storage.Sample, _ int) time.Time { return s.Time })
	y := lo.Map(priced, func(s storage.Sample, _ int) float64 { return s.Price.Decimal.InexactFloat64() })

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.5f")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    symbol,
			XValues: x,
			YValues: y,
		},
	}
	if ath != nil {
		series = append(series, chart.TimeSeries{
			Name:    "ATH",
			XValues: []time.Time{x[0], x[len(x)-1]},
			YValues: []float64{*ath, *ath},
			Style:   chart.Style{StrokeDashArray: []float64{5, 5}},
		})
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
