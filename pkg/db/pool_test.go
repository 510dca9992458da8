package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig("test-dsn", DriverPostgres)

	if config.DSN != "test-dsn" {
		t.Errorf("DSN = %v, want test-dsn", config.DSN)
	}
	if config.DriverName != DriverPostgres {
		t.Errorf("DriverName = %v, want postgres", config.DriverName)
	}
	if config.MaxOpenConns != 4 {
		t.Errorf("MaxOpenConns = %v, want 4", config.MaxOpenConns)
	}
	if config.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("ConnMaxLifetime = %v, want 5m", config.ConnMaxLifetime)
	}
}

func TestDefaultPoolConfig_SQLiteSingleConnection(t *testing.T) {
	config := DefaultPoolConfig(":memory:", DriverSQLite)
	if config.MaxOpenConns != 1 || config.MaxIdleConns != 1 {
		t.Errorf("sqlite pool = %d open / %d idle, want 1/1", config.MaxOpenConns, config.MaxIdleConns)
	}
	if config.ConnMaxLifetime != 0 {
		t.Errorf("sqlite ConnMaxLifetime = %v, want 0", config.ConnMaxLifetime)
	}
}

func TestNewPool_FailFast(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		config  PoolConfig
		message string
	}{
		{"empty DSN", PoolConfig{DriverName: DriverSQLite, MaxOpenConns: 1}, "DSN cannot be empty"},
		{"empty driver", PoolConfig{DSN: ":memory:", MaxOpenConns: 1}, "DriverName cannot be empty"},
		{"zero max open", PoolConfig{DSN: ":memory:", DriverName: DriverSQLite}, "MaxOpenConns must be positive"},
		{"negative idle", PoolConfig{DSN: ":memory:", DriverName: DriverSQLite, MaxOpenConns: 1, MaxIdleConns: -1}, "MaxIdleConns cannot be negative"},
		{"idle exceeds open", PoolConfig{DSN: ":memory:", DriverName: DriverSQLite, MaxOpenConns: 1, MaxIdleConns: 2}, "MaxIdleConns cannot exceed MaxOpenConns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPool(ctx, tt.config)
			if err == nil {
				t.Fatal("NewPool() should fail-fast")
			}
			if err.Error() != tt.message {
				t.Errorf("Error message = %v, want %q", err, tt.message)
			}
		})
	}
}

func TestNewPool_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := SQLiteDSN(filepath.Join(t.TempDir(), "pool.db"))
	pool, err := NewPool(ctx, DefaultPoolConfig(dsn, DriverSQLite))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := pool.Exec(ctx, "CREATE TABLE t (x INTEGER)"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if pool.Stats().MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", pool.Stats().MaxOpenConnections)
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := pool.Close(); err == nil {
		t.Error("second Close() should report already closed")
	}
	if err := pool.Ping(ctx); err == nil {
		t.Error("Ping() after Close should fail")
	}
	if pool.Stats().OpenConnections != 0 {
		t.Error("Stats() after Close should be empty")
	}
}

func TestPool_FailFast_NilPool(t *testing.T) {
	var pool *Pool

	ctx := context.Background()
	if _, err := pool.Exec(ctx, "SELECT 1"); err == nil {
		t.Error("Exec() on nil pool should fail")
	}
	if err := pool.Ping(ctx); err == nil {
		t.Error("Ping() on nil pool should fail")
	}
	if err := pool.Close(); err == nil {
		t.Error("Close() on nil pool should fail")
	}
	if stats := pool.Stats(); stats.OpenConnections != 0 {
		t.Error("Stats() on nil pool should be empty")
	}
}
