package counter

import (
	"context"
	"database/sql"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/counterlog/pkg/db"
	"github.com/fluxorio/counterlog/pkg/oplog"
)

// SnapshotStore is the durable store a Counter flushes to.
type SnapshotStore interface {
	Load(ctx context.Context, name string) (int64, bool, error)
	Save(ctx context.Context, name string, value int64) error
	Close() error
}

// poolStatser is implemented by SQL-backed stores; Stats reports their
// connection pool when present.
type poolStatser interface {
	Stats() sql.DBStats
}

// OperationLog is the append-only delta log a Counter replays at Init.
type OperationLog interface {
	AppendDeltas(deltas ...int64) error
	Replay() (oplog.Replay, error)
	Truncate() error
	Close() error
}

// StoreOpener opens (creating if needed) the durable store at location.
type StoreOpener func(ctx context.Context, driver, location string) (SnapshotStore, error)

// LogOpener opens (creating if needed) the operation log at location.
type LogOpener func(location string, durability oplog.Durability) (OperationLog, error)

// OpenSQLStore is the default StoreOpener, backed by pkg/db.
func OpenSQLStore(ctx context.Context, driver, location string) (SnapshotStore, error) {
	s, err := db.OpenSnapshotStore(ctx, db.StoreConfig{Driver: driver, Location: location})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// OpenFileLog is the default LogOpener, backed by pkg/oplog.
func OpenFileLog(location string, durability oplog.Durability) (OperationLog, error) {
	l, err := oplog.Open(oplog.Config{Path: location, Durability: durability})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Option customizes a Counter.
type Option func(*Counter)

// WithLogger sets the structured logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(c *Counter) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers engine event hooks.
func WithObserver(o Observer) Option {
	return func(c *Counter) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithTracer sets the tracer used for Init/Flush/Reset/Close spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Counter) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithStoreOpener replaces the durable store factory.
func WithStoreOpener(open StoreOpener) Option {
	return func(c *Counter) {
		if open != nil {
			c.openStore = open
		}
	}
}

// WithLogOpener replaces the operation log factory.
func WithLogOpener(open LogOpener) Option {
	return func(c *Counter) {
		if open != nil {
			c.openLog = open
		}
	}
}
