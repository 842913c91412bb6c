package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"kaspa-price-alerts/internal/alerting"
	"kaspa-price-alerts/internal/chat"
	"kaspa-price-alerts/internal/fetcher"
	"kaspa-price-alerts/internal/service"
	"kaspa-price-alerts/internal/storage"
)

// SimulateAlert runs one sampling cycle with a fixed price. Normally the cycle
// records into the configured store and alerts the registered channels. With
// DryRun it runs on an in-memory copy of the store and prints alerts to out,
// leaving stored data untouched.
func (a *App) SimulateAlert(ctx context.Context, out io.Writer, opts SimulateOptions) error {
	if !opts.Price.IsPositive() {
		return errors.New("price must be greater than zero")
	}

	var sender chat.Sender = &writerSender{out: out}
	if !opts.DryRun {
		client, err := a.newTelegram()
		if err != nil {
			return err
		}
		sender = client
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	target := store
	if opts.DryRun {
		snapshot, err := storage.Snapshot(ctx, store)
		if err != nil {
			return err
		}
		defer snapshot.Close()
		target = snapshot
	}

	state := a.loadState(ctx, target)
	notifier := alerting.NewBroadcaster(sender, a.Logger)
	svc := service.New(nil, fetcher.Static{Price: opts.Price}, target, a.newDetector(state), notifier, a.Config.Asset.Symbol, a.Logger)

	return svc.ProcessTick(ctx, opts.At)
}

// writerSender prints alerts instead of delivering them.
type writerSender struct {
	out io.Writer
}

func (w *writerSender) Send(_ context.Context, channelID int64, text string) error {
	_, err := fmt.Fprintf(w.out, "[%d] %s\n", channelID, text)
	return err
}
