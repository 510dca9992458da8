// Package registry owns a set of named counters for a long-running process.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fluxorio/counterlog/pkg/counter"
	"github.com/fluxorio/counterlog/pkg/db"
	"github.com/fluxorio/counterlog/pkg/oplog"
)

// ErrClosed is returned by Open after Close.
var ErrClosed = errors.New("registry closed")

// Defaults is the template every counter opened by a Manager is built from.
type Defaults struct {
	// StoreDriver is the database/sql driver (default sqlite3).
	StoreDriver string
	// StoreDir holds one sqlite file per counter. Used with sqlite3.
	StoreDir string
	// StoreDSN is the shared database for postgres/pgx; rows are keyed by name.
	StoreDSN string
	// LogDir holds one operation log per counter.
	LogDir string

	Mode           counter.Mode
	FlushThreshold int
	DrainDelay     time.Duration
	LogDurability  oplog.Durability
}

// ConfigFor derives the counter config for name.
func (d Defaults) ConfigFor(name string) counter.Config {
	driver := d.StoreDriver
	if driver == "" {
		driver = db.DriverSQLite
	}
	store := d.StoreDSN
	if driver == db.DriverSQLite {
		store = filepath.Join(d.StoreDir, name+".db")
	}
	return counter.Config{
		Name:           name,
		StoreDriver:    driver,
		StoreLocation:  store,
		LogLocation:    filepath.Join(d.LogDir, name+".log"),
		FlushThreshold: d.FlushThreshold,
		Mode:           d.Mode,
		DrainDelay:     d.DrainDelay,
		LogDurability:  d.LogDurability,
	}
}

func (d Defaults) validate() error {
	driver := d.StoreDriver
	if driver == "" {
		driver = db.DriverSQLite
	}
	if driver == db.DriverSQLite && d.StoreDir == "" {
		return fmt.Errorf("store dir is required for %s", driver)
	}
	if driver != db.DriverSQLite && d.StoreDSN == "" {
		return fmt.Errorf("store dsn is required for %s", driver)
	}
	if d.LogDir == "" {
		return fmt.Errorf("log dir is required")
	}
	return nil
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the Manager's logger; counters get it too unless
// WithCounterOptions overrides it.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithCounterOptions appends options applied to every counter the Manager opens.
func WithCounterOptions(opts ...counter.Option) Option {
	return func(m *Manager) {
		m.counterOpts = append(m.counterOpts, opts...)
	}
}

// Manager maps names to initialized counters. Each name has at most one
// live Counter per Manager.
type Manager struct {
	defaults    Defaults
	logger      *slog.Logger
	counterOpts []counter.Option

	// openMu serializes Open, Remove and Close so two callers never build
	// the same counter twice.
	openMu sync.Mutex

	mu       sync.RWMutex
	counters map[string]*counter.Counter
	closed   bool
}

// New returns an empty Manager.
func New(defaults Defaults, opts ...Option) (*Manager, error) {
	if err := defaults.validate(); err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	m := &Manager{
		defaults: defaults,
		logger:   slog.Default(),
		counters: make(map[string]*counter.Counter),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Open returns the counter called name, creating and initializing it on
// first use.
func (m *Manager) Open(ctx context.Context, name string) (*counter.Counter, error) {
	if !counter.ValidName(name) {
		return nil, fmt.Errorf("registry: invalid counter name %q", name)
	}
	if c, ok := m.Get(name); ok {
		return c, nil
	}

	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.RLock()
	c, ok := m.counters[name]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return c, nil
	}

	opts := append([]counter.Option{counter.WithLogger(m.logger)}, m.counterOpts...)
	c, err := counter.New(m.defaults.ConfigFor(name), opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.counters[name] = c
	m.mu.Unlock()
	m.logger.Debug("counter opened", "counter", name)
	return c, nil
}

// Get returns an already open counter.
func (m *Manager) Get(name string) (*counter.Counter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.counters[name]
	return c, ok
}

// Names lists open counters in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Remove closes the counter and forgets it. Removing an unknown name is a
// no-op. If Close fails the counter stays registered.
func (m *Manager) Remove(ctx context.Context, name string) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	c, ok := m.Get(name)
	if !ok {
		return nil
	}
	if err := c.Close(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.counters, name)
	m.mu.Unlock()
	return nil
}

// FlushAll flushes every open counter and joins the failures.
func (m *Manager) FlushAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.Names() {
		c, ok := m.Get(name)
		if !ok {
			continue
		}
		if err := c.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every counter. Counters that fail to close stay registered
// and a later Close retries them.
func (m *Manager) Close(ctx context.Context) error {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for _, name := range m.Names() {
		c, _ := m.Get(name)
		if err := c.Close(ctx); err != nil {
			m.logger.Error("closing counter", "counter", name, "error", err)
			errs = append(errs, err)
			continue
		}
		m.mu.Lock()
		delete(m.counters, name)
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}
