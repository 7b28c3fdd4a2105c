// Package postgres provides the optional Postgres sink for dealer records.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DealerStoreConfig controls the Postgres connection pool.
type DealerStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// DealerStore writes accepted dealer records into Postgres.
type DealerStore struct {
	pool  execCloser
	table string
}

// NewDealerStore creates a Postgres-backed DealerStore.
func NewDealerStore(ctx context.Context, cfg DealerStoreConfig) (*DealerStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "dealers"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DealerStore{pool: pool, table: table}, nil
}

// NewDealerStoreWithPool constructs a store from an existing pool,
// primarily for testing.
func NewDealerStoreWithPool(pool execCloser, table string) (*DealerStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "dealers"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &DealerStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *DealerStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StoreRun inserts every record with the run it came from. Conflicting
// rows (same run, same identity) are skipped rather than duplicated.
func (s *DealerStore) StoreRun(ctx context.Context, runID string, records []crawl.DealerRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("dealer store is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	identity_key,
	name,
	address,
	phone,
	email,
	city,
	state,
	pincode,
	vehicle_type,
	brand,
	location,
	source_url,
	captured_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (run_id, identity_key) DO NOTHING`, s.table)

	for _, r := range records {
		args := []any{
			runID,
			r.IdentityKey(),
			r.Name,
			r.Address,
			r.Phone,
			r.Email,
			r.City,
			r.State,
			r.Pincode,
			r.VehicleType,
			r.Brand,
			r.Location,
			r.SourceURL,
			r.CapturedAt,
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert dealer %q: %w", r.Name, err)
		}
	}
	return nil
}
