package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/semaphore"

	"kaspa-price-alerts/internal/alerting"
	"kaspa-price-alerts/internal/detector"
	"kaspa-price-alerts/internal/fetcher"
	"kaspa-price-alerts/internal/scheduler"
	"kaspa-price-alerts/internal/storage"
)

// Service runs the sampling cycle: fetch, persist, detect, alert.
type Service struct {
	scheduler *scheduler.Scheduler
	fetcher   fetcher.PriceFetcher
	store     storage.Store
	detector  *detector.Detector
	notifier  alerting.Notifier
	symbol    string
	logger    zerolog.Logger

	busy *semaphore.Weighted
}

// New constructs the monitoring service. sched may be nil when the caller
// drives ticks itself.
func New(sched *scheduler.Scheduler, price fetcher.PriceFetcher, store storage.Store, det *detector.Detector, notifier alerting.Notifier, symbol string, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		fetcher:   price,
		store:     store,
		detector:  det,
		notifier:  notifier,
		symbol:    symbol,
		logger:    logger.With().Str("component", "service").Logger(),
		busy:      semaphore.NewWeighted(1),
	}
}

// Run begins the sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick executes one sampling cycle for the tick at at. A tick that
// arrives while another is still running is skipped.
func (s *Service) ProcessTick(ctx context.Context, at time.Time) error {
	if !s.busy.TryAcquire(1) {
		s.logger.Debug().Time("at", at).Msg("skip tick because previous cycle still running")
		return nil
	}
	defer s.busy.Release(1)

	return s.executeTick(ctx, at)
}

func (s *Service) executeTick(ctx context.Context, at time.Time) error {
	sample := storage.Sample{Time: at.UTC()}
	price, err := s.fetcher.FetchPrice(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Time("at", at).Msg("price unavailable; recording absent sample")
	} else {
		sample.Price = decimal.NewNullDecimal(price)
	}

	if err := s.store.AppendSample(ctx, sample); err != nil {
		return fmt.Errorf("append sample: %w", err)
	}

	samples, err := s.store.ReadSamples(ctx)
	if err != nil {
		return fmt.Errorf("read samples: %w", err)
	}

	out := s.detector.Evaluate(samples)
	if out.Skipped != "" {
		s.logger.Info().Time("at", at).Int("samples", len(samples)).Msg(out.Skipped)
		return nil
	}

	s.logger.Info().Time("at", at).
		Str("price", out.Latest.Price.Decimal.String()).
		Str("ath", out.ATH.String()).
		Msg("sample recorded")

	if out.NewATH {
		s.announceATH(ctx, out)
	}
	if out.Move != nil {
		return s.announceMove(ctx, out)
	}
	return nil
}

func (s *Service) announceATH(ctx context.Context, out detector.Outcome) {
	record := storage.AthRecord{Time: out.Latest.Time, Price: out.ATH}
	if err := s.store.AppendATH(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("ath", out.ATH.String()).Msg("failed to persist ath record")
	}

	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read channel registry for ath alert")
		return
	}
	s.notifier.Notify(ctx, alerting.RenderATH(s.symbol, out.ATH), channels)
}

func (s *Service) announceMove(ctx context.Context, out detector.Outcome) error {
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return fmt.Errorf("read channel registry: %w", err)
	}

	move := *out.Move
	s.logger.Info().
		Str("change_pct", move.ChangePct.StringFixed(2)).
		Int64("elapsed_min", move.ElapsedMinutes).
		Str("old_price", move.OldPrice.String()).
		Str("new_price", move.NewPrice.String()).
		Msg("price move crossed threshold")

	s.notifier.Notify(ctx, alerting.RenderMove(s.symbol, move), channels)

	if err := s.store.CollapseSamples(ctx, out.Latest); err != nil {
		return fmt.Errorf("collapse samples: %w", err)
	}
	return nil
}
