package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"kaspa-price-alerts/internal/config"
)

const (
	createSchemaSQL = `CREATE TABLE IF NOT EXISTS price_samples (
        id         BIGSERIAL PRIMARY KEY,
        sampled_at TIMESTAMPTZ NOT NULL,
        price      NUMERIC
    );
    CREATE TABLE IF NOT EXISTS ath_records (
        id          BIGSERIAL PRIMARY KEY,
        recorded_at TIMESTAMPTZ NOT NULL,
        ath_price   NUMERIC NOT NULL
    );
    CREATE TABLE IF NOT EXISTS channels (
        channel_id    BIGINT PRIMARY KEY,
        registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	insertSampleSQL = `INSERT INTO price_samples (sampled_at, price) VALUES ($1, $2::numeric);`

	listSamplesSQL = `SELECT sampled_at, price::text
    FROM price_samples
    ORDER BY id;`

	deleteSamplesSQL = `DELETE FROM price_samples;`

	insertATHSQL = `INSERT INTO ath_records (recorded_at, ath_price) VALUES ($1, $2::numeric);`

	latestATHSQL = `SELECT ath_price::text
    FROM ath_records
    ORDER BY id DESC
    LIMIT 1;`

	insertChannelSQL = `INSERT INTO channels (channel_id) VALUES ($1)
    ON CONFLICT (channel_id) DO NOTHING;`

	hasChannelSQL = `SELECT EXISTS (SELECT 1 FROM channels WHERE channel_id = $1);`

	listChannelsSQL = `SELECT channel_id FROM channels ORDER BY registered_at, channel_id;`
)

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the bot tables when they do not exist yet.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createSchemaSQL); execErr != nil {
		return fmt.Errorf("ensure schema: %w", execErr)
	}
	return nil
}

// AppendSample persists a sample.
func (s *PGStore) AppendSample(ctx context.Context, sample Sample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertSampleSQL, sample.Time.UTC(), nullablePrice(sample)); execErr != nil {
		return fmt.Errorf("append sample: %w", execErr)
	}
	return nil
}

// ReadSamples lists samples in insertion order.
func (s *PGStore) ReadSamples(ctx context.Context) ([]Sample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSamplesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list samples: %w", queryErr)
	}
	defer rows.Close()

	samples := make([]Sample, 0)
	for rows.Next() {
		sample, scanErr := scanSample(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		samples = append(samples, sample)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return samples, nil
}

// CollapseSamples truncates the series to one sample inside a transaction.
func (s *PGStore) CollapseSamples(ctx context.Context, sample Sample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	txErr := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteSamplesSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, insertSampleSQL, sample.Time.UTC(), nullablePrice(sample))
		return err
	})
	if txErr != nil {
		return fmt.Errorf("collapse samples: %w", txErr)
	}
	return nil
}

// AppendATH records a new all-time-high.
func (s *PGStore) AppendATH(ctx context.Context, record AthRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertATHSQL, record.Time.UTC(), record.Price.String()); execErr != nil {
		return fmt.Errorf("append ath: %w", execErr)
	}
	return nil
}

// LatestATH returns the last recorded all-time-high.
func (s *PGStore) LatestATH(ctx context.Context) (decimal.Decimal, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.Decimal{}, false, err
	}

	var priceStr string
	if scanErr := pool.QueryRow(ctx, latestATHSQL).Scan(&priceStr); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return decimal.Decimal{}, false, nil
		}
		return decimal.Decimal{}, false, fmt.Errorf("latest ath: %w", scanErr)
	}

	price, convErr := decimal.NewFromString(priceStr)
	if convErr != nil {
		return decimal.Decimal{}, false, fmt.Errorf("parse ath price: %w", convErr)
	}
	return price, true, nil
}

// AddChannel registers a channel id if it is not already present.
func (s *PGStore) AddChannel(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, insertChannelSQL, id)
	if execErr != nil {
		return false, fmt.Errorf("add channel: %w", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// HasChannel reports whether the channel id is registered.
func (s *PGStore) HasChannel(ctx context.Context, id int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var exists bool
	if scanErr := pool.QueryRow(ctx, hasChannelSQL, id).Scan(&exists); scanErr != nil {
		return false, fmt.Errorf("has channel: %w", scanErr)
	}
	return exists, nil
}

// ListChannels returns registered ids in registration order.
func (s *PGStore) ListChannels(ctx context.Context) ([]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listChannelsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list channels: %w", queryErr)
	}
	ids, collectErr := pgx.CollectRows(rows, pgx.RowTo[int64])
	if collectErr != nil {
		return nil, fmt.Errorf("list channels: %w", collectErr)
	}
	return ids, nil
}

func nullablePrice(sample Sample) interface{} {
	if !sample.HasPrice() {
		return nil
	}
	return sample.Price.Decimal.String()
}

func scanSample(rows pgx.Rows) (Sample, error) {
	var (
		sampledAt time.Time
		priceStr  sql.NullString
	)
	if err := rows.Scan(&sampledAt, &priceStr); err != nil {
		return Sample{}, err
	}

	sample := Sample{Time: sampledAt.UTC()}
	if priceStr.Valid {
		price, err := decimal.NewFromString(priceStr.String)
		if err != nil {
			return Sample{}, fmt.Errorf("parse sample price: %w", err)
		}
		sample.Price = decimal.NewNullDecimal(price)
	}
	return sample, nil
}

var _ Store = (*PGStore)(nil)
