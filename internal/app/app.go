package app

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"kaspa-price-alerts/internal/alerting"
	"kaspa-price-alerts/internal/chat"
	"kaspa-price-alerts/internal/commands"
	"kaspa-price-alerts/internal/config"
	"kaspa-price-alerts/internal/detector"
	"kaspa-price-alerts/internal/fetcher"
	"kaspa-price-alerts/internal/scheduler"
	"kaspa-price-alerts/internal/service"
	"kaspa-price-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.PriceFetcher {
	return fetcher.NewCoingecko(fetcher.CoingeckoOptions{
		BaseURL:    a.Config.PriceAPI.BaseURL,
		AssetID:    a.Config.Asset.ID,
		VsCurrency: a.Config.Asset.VsCurrency,
		Timeout:    a.Config.PriceAPI.RequestTimeout,
		UserAgent:  a.Config.PriceAPI.UserAgent,
	}, a.Logger)
}

func (a *App) newTelegram() (*chat.Telegram, error) {
	if err := a.Config.ValidateBot(); err != nil {
		return nil, err
	}
	return chat.NewTelegram(chat.TelegramOptions{
		Token:       a.Config.Telegram.BotToken,
		APIBase:     a.Config.Telegram.APIBase,
		PollTimeout: a.Config.Telegram.PollTimeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.Store, func(), error) {
	store, err := storage.Open(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("failed to close store")
		}
	}
	return store, closer, nil
}

// loadState seeds the detector from the persisted ATH history. A failed read
// falls back to the configured seed.
func (a *App) loadState(ctx context.Context, store storage.AthStore) *detector.State {
	seed := decimal.NewFromFloat(a.Config.Asset.ATHSeed)
	state, err := detector.LoadState(ctx, store, seed)
	if err != nil {
		a.Logger.Warn().Err(err).Str("seed", seed.String()).Msg("ath history unreadable; using seed")
	}
	a.Logger.Info().Str("ath", state.ATH().String()).Msg("all-time-high loaded")
	return state
}

func (a *App) newDetector(state *detector.State) *detector.Detector {
	return detector.New(detector.Options{
		ThresholdPct: decimal.NewFromFloat(a.Config.Alerting.ThresholdPct),
		Window:       a.Config.Alerting.Window,
	}, state)
}

func (a *App) newScheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    true,
	}, a.Logger)
}

// Run connects the bot and, once it is ready, starts the sampling loop. It
// blocks until SIGINT/SIGTERM or a fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := a.newTelegram()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	state := a.loadState(ctx, store)
	price := a.newFetcher()
	notifier := alerting.NewBroadcaster(client, a.Logger)
	svc := service.New(a.newScheduler(), price, store, a.newDetector(state), notifier, a.Config.Asset.Symbol, a.Logger)

	commands.New(store, store, price, state, a.Config.Asset.Symbol, a.Logger).Bind(client)

	client.OnError(func(ctx context.Context, err error) {
		a.Logger.Error().Err(err).Msg("chat platform error")
	})
	client.OnCommandError(func(ctx context.Context, cmd chat.Command, err error) {
		a.Logger.Error().Err(err).
			Str("command", cmd.Name).
			Int64("channel_id", cmd.ChannelID).
			Str("user", cmd.User).
			Msg("command failed")
	})

	group, groupCtx := errgroup.WithContext(ctx)
	var startOnce sync.Once
	client.OnReady(func(context.Context) {
		startOnce.Do(func() {
			a.Logger.Info().Str("bot", client.Name()).Msg("bot ready; starting price monitor")
			group.Go(func() error {
				return svc.Run(groupCtx)
			})
		})
	})

	a.Logger.Info().Msg("connecting chat bot")
	group.Go(func() error {
		return client.Run(groupCtx)
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("price monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SimulateOptions configure a one-off simulated tick.
type SimulateOptions struct {
	Price  decimal.Decimal
	At     time.Time
	DryRun bool
}
