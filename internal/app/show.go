package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"kaspa-price-alerts/internal/storage"
)

// Show prints the most recent samples followed by the tracked ATH and the
// number of registered channels.
func (a *App) Show(ctx context.Context, out io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	samples, err := store.ReadSamples(ctx)
	if err != nil {
		return err
	}
	ath, found, err := store.LatestATH(ctx)
	if err != nil {
		return err
	}
	channels, err := store.ListChannels(ctx)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if len(samples) == 0 {
		fmt.Fprintln(writer, "no samples found")
	} else {
		fmt.Fprintln(writer, "Time (UTC)\tPrice")
		for _, sample := range tail(samples, opts.Limit) {
			fmt.Fprintf(writer, "%s\t%s\n", sample.Time.UTC().Format(time.RFC3339), formatSamplePrice(sample))
		}
	}

	fmt.Fprintln(writer)
	if found {
		fmt.Fprintf(writer, "ATH\t$%s\n", ath.String())
	} else {
		fmt.Fprintf(writer, "ATH\tnone recorded (seed $%s)\n", formatSeed(a.Config.Asset.ATHSeed))
	}
	fmt.Fprintf(writer, "Channels\t%d\n", len(channels))

	return writer.Flush()
}

func tail(samples []storage.Sample, limit int) []storage.Sample {
	if limit <= 0 || len(samples) <= limit {
		return samples
	}
	return samples[len(samples)-limit:]
}

func formatSamplePrice(sample storage.Sample) string {
	if !sample.HasPrice() {
		return "-"
	}
	return "$" + sample.Price.Decimal.String()
}

func formatSeed(seed float64) string {
	return fmt.Sprintf("%g", seed)
}
