package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"graduationScope/internal/model"
	"graduationScope/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const defaultScope = "default"

// Store provides Postgres persistence for thresholds, graduation records and metric samples.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema files in name order. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) LoadDefaults(ctx context.Context) (model.ThresholdConfig, bool, error) {
	return s.loadThresholds(ctx, defaultScope)
}

func (s *Store) SaveDefaults(ctx context.Context, cfg model.ThresholdConfig) (model.ThresholdConfig, error) {
	return s.saveThresholds(ctx, defaultScope, cfg)
}

func (s *Store) LoadOverride(ctx context.Context, token common.Address) (model.ThresholdConfig, bool, error) {
	return s.loadThresholds(ctx, token.Hex())
}

func (s *Store) SaveOverride(ctx context.Context, token common.Address, cfg model.ThresholdConfig) (model.ThresholdConfig, error) {
	return s.saveThresholds(ctx, token.Hex(), cfg)
}

func (s *Store) DeleteOverride(ctx context.Context, token common.Address) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM graduation_thresholds WHERE scope=$1`, token.Hex())
	return err
}

func (s *Store) loadThresholds(ctx context.Context, scope string) (model.ThresholdConfig, bool, error) {
	var (
		cfg                             model.ThresholdConfig
		marketCap, volume, holders, ver int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT market_cap_usd, volume_usd, holders, version, updated_by, updated_at
		FROM graduation_thresholds WHERE scope=$1
	`, scope)
	if err := row.Scan(&marketCap, &volume, &holders, &ver, &cfg.UpdatedBy, &cfg.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ThresholdConfig{}, false, nil
		}
		return model.ThresholdConfig{}, false, err
	}
	cfg.MarketCapUSD = uint64(marketCap)
	cfg.VolumeUSD = uint64(volume)
	cfg.Holders = uint64(holders)
	cfg.Version = uint64(ver)
	cfg.UpdatedAt = cfg.UpdatedAt.UTC()
	return cfg, true, nil
}

// saveThresholds upserts a record. The version is bumped by the row lock of the upsert,
// so concurrent writers from several processes never reuse a version.
func (s *Store) saveThresholds(ctx context.Context, scope string, cfg model.ThresholdConfig) (model.ThresholdConfig, error) {
	var ver int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO graduation_thresholds (
			scope, market_cap_usd, volume_usd, holders, version, updated_by, updated_at
		) VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (scope) DO UPDATE SET
			market_cap_usd = EXCLUDED.market_cap_usd,
			volume_usd = EXCLUDED.volume_usd,
			holders = EXCLUDED.holders,
			version = graduation_thresholds.version + 1,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
		RETURNING version
	`,
		scope,
		int64(cfg.MarketCapUSD),
		int64(cfg.VolumeUSD),
		int64(cfg.Holders),
		cfg.UpdatedBy,
		cfg.UpdatedAt,
	).Scan(&ver)
	if err != nil {
		return model.ThresholdConfig{}, err
	}
	cfg.Version = uint64(ver)
	return cfg, nil
}

// PutRecords inserts graduation records. A token graduates once, so duplicates are ignored.
func (s *Store) PutRecords(ctx context.Context, records []model.GraduationRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		graduatedAt, err := time.Parse(time.RFC3339Nano, r.GraduatedAt)
		if err != nil {
			return fmt.Errorf("parse graduated_at for %s: %w", r.Token, err)
		}
		batch.Queue(`
			INSERT INTO graduation_records (
				chain_id, token, pair, token0, token1, reserve_native, reserve_token,
				tx_hash, threshold_version, graduated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (chain_id, token) DO NOTHING
		`,
			int64(r.ChainID),
			r.Token,
			r.Pair,
			r.Token0,
			r.Token1,
			r.ReserveNative,
			r.ReserveToken,
			r.TxHash,
			int64(r.ThresholdVersion),
			graduatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetRecord returns the stored graduation of token, or storage.ErrNotFound.
func (s *Store) GetRecord(ctx context.Context, chainID uint64, token common.Address) (model.GraduationRecord, error) {
	var (
		r            model.GraduationRecord
		cid, version int64
		graduatedAt  time.Time
	)
	row := s.pool.QueryRow(ctx, `
		SELECT chain_id, token, pair, token0, token1, reserve_native::text, reserve_token::text,
			tx_hash, threshold_version, graduated_at
		FROM graduation_records WHERE chain_id=$1 AND token=$2
	`, int64(chainID), token.Hex())
	err := row.Scan(&cid, &r.Token, &r.Pair, &r.Token0, &r.Token1, &r.ReserveNative, &r.ReserveToken,
		&r.TxHash, &version, &graduatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.GraduationRecord{}, storage.ErrNotFound
		}
		return model.GraduationRecord{}, err
	}
	r.ChainID = uint64(cid)
	r.ThresholdVersion = uint64(version)
	r.GraduatedAt = graduatedAt.UTC().Format(time.RFC3339Nano)
	return r, nil
}

// PutSamples inserts or replaces metric samples.
func (s *Store) PutSamples(ctx context.Context, samples []model.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range samples {
		batch.Queue(`
			INSERT INTO metric_samples (token, sampled_at, market_cap, volume_24h, holder_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (token, sampled_at) DO UPDATE SET
				market_cap = EXCLUDED.market_cap,
				volume_24h = EXCLUDED.volume_24h,
				holder_count = EXCLUDED.holder_count
		`,
			m.Token.Hex(),
			m.Timestamp.UTC(),
			numeric(m.MarketCap),
			numeric(m.Volume24h),
			int64(m.HolderCount),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range samples {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// RecentSamples returns up to limit of the newest samples taken at or after since, oldest first.
func (s *Store) RecentSamples(ctx context.Context, token common.Address, since time.Time, limit int) ([]model.MetricSample, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.pool.Query(ctx, `
		SELECT sampled_at, market_cap::text, volume_24h::text, holder_count FROM (
			SELECT sampled_at, market_cap, volume_24h, holder_count
			FROM metric_samples
			WHERE token=$1 AND sampled_at >= $2
			ORDER BY sampled_at DESC
			LIMIT $3
		) recent ORDER BY sampled_at ASC
	`, token.Hex(), since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MetricSample
	for rows.Next() {
		var (
			ts                time.Time
			marketCap, volume string
			holders           int64
		)
		if err := rows.Scan(&ts, &marketCap, &volume, &holders); err != nil {
			return nil, err
		}
		mc, ok := new(big.Int).SetString(marketCap, 10)
		if !ok {
			return nil, fmt.Errorf("decode market_cap %q", marketCap)
		}
		vol, ok := new(big.Int).SetString(volume, 10)
		if !ok {
			return nil, fmt.Errorf("decode volume_24h %q", volume)
		}
		out = append(out, model.MetricSample{
			Token:       token,
			Timestamp:   ts.UTC(),
			MarketCap:   mc,
			Volume24h:   vol,
			HolderCount: uint64(holders),
		})
	}
	return out, rows.Err()
}

// PruneSamples deletes samples older than before.
func (s *Store) PruneSamples(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM metric_samples WHERE sampled_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LoadState returns last_processed_ts for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_ts FROM sampler_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(ts), true, nil
}

// SaveState upserts last_processed_ts for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sampler_state (name, last_processed_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_ts = EXCLUDED.last_processed_ts, updated_at = now()
	`, name, int64(ts))
	return err
}

func numeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
