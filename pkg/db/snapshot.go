package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// DefaultTable is the table holding one row per counter.
const DefaultTable = "counters"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ErrStoreClosed is returned by operations on a closed SnapshotStore.
var ErrStoreClosed = &Error{Code: "CLOSED", Message: "snapshot store is closed"}

// StoreConfig configures a SnapshotStore.
type StoreConfig struct {
	// Driver is one of DriverSQLite, DriverPostgres, DriverPgx.
	Driver string
	// Location is a file path (sqlite3) or a connection string.
	Location string
	// Table defaults to DefaultTable.
	Table string
	// Pool overrides the pool defaults for Driver when non-nil.
	Pool *PoolConfig
}

// SnapshotStore keeps the last flushed value of each counter, one row per
// counter name.
type SnapshotStore struct {
	mu      sync.Mutex
	pool    *Pool
	dialect dialect
	table   string
	closed  bool
}

// OpenSnapshotStore opens the pool and creates the table if it is absent.
func OpenSnapshotStore(ctx context.Context, cfg StoreConfig) (*SnapshotStore, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverSQLite
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "invalid table name: " + cfg.Table}
	}
	if cfg.Location == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "store location cannot be empty"}
	}
	d, err := dialectFor(cfg.Driver, cfg.Table)
	if err != nil {
		return nil, err
	}

	dsn := cfg.Location
	if cfg.Driver == DriverSQLite {
		if dir := filepath.Dir(cfg.Location); cfg.Location != ":memory:" && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		dsn = SQLiteDSN(cfg.Location)
	}

	poolCfg := DefaultPoolConfig(dsn, cfg.Driver)
	if cfg.Pool != nil {
		poolCfg = *cfg.Pool
		poolCfg.DSN = dsn
		poolCfg.DriverName = cfg.Driver
	}
	pool, err := NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	if _, err := pool.Exec(ctx, d.createTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table %s: %w", cfg.Table, err)
	}

	return &SnapshotStore{
		pool:    pool,
		dialect: d,
		table:   cfg.Table,
	}, nil
}

// Load returns the stored value for name. ok is false when no row exists.
func (s *SnapshotStore) Load(ctx context.Context, name string) (value int64, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, ErrStoreClosed
	}
	err = s.pool.QueryRow(ctx, s.dialect.selectValue, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return value, true, nil
}

// Save upserts value under name.
func (s *SnapshotStore) Save(ctx context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := s.pool.Exec(ctx, s.dialect.upsertValue, name, value)
	return err
}

// Stats returns the pool statistics, or zero stats once closed.
func (s *SnapshotStore) Stats() sql.DBStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return sql.DBStats{}
	}
	return s.pool.Stats()
}

// Close releases the pool. Closing twice is a no-op.
func (s *SnapshotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.pool.Close()
}
