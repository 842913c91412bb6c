package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kaspa-price-alerts/internal/app"
	"kaspa-price-alerts/internal/storage"
)

var (
	exportFrom      string
	exportTo        string
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

// timeFlagLayouts are tried in order; all are read as UTC.
var timeFlagLayouts = []string{time.RFC3339, storage.TimeLayout, "2006-01-02"}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored price samples as CSV and/or PNG chart",
	Example: "  kaspawatch export --csv out/kas.csv --png out/kas.png --from 2024-03-01\n" +
		"  kaspawatch export --png kas.png --from \"2024-03-01 12:00:00\" --max-points 500",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		var err error
		if opts.From, err = parseTimeFlag("from", exportFrom); err != nil {
			return err
		}
		if opts.To, err = parseTimeFlag("to", exportTo); err != nil {
			return err
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func parseTimeFlag(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timeFlagLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s value %q: want RFC3339, %q or YYYY-MM-DD", name, raw, storage.TimeLayout)
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start time, inclusive (UTC)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End time, exclusive (UTC)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
