// Package counter implements a durable integer counter that keeps its value
// in memory, records every mutation in an append-only operation log, and
// periodically flushes the value to a durable snapshot store.
//
// Recovery is snapshot + replay: Init loads the last flushed value and adds
// every delta still in the log. In ModeSync each Increment returns only after
// its delta is in the log. In ModeAsync deltas are buffered in memory and
// appended on a short debounce timer, trading a bounded loss window on crash
// for throughput. Flush and Close always drain the buffer first.
package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fluxorio/counterlog/pkg/counter"

// State is the lifecycle state of a Counter.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of a Counter.
type Stats struct {
	Name     string `json:"name"`
	Session  string `json:"session"`
	Mode     Mode   `json:"mode"`
	State    string `json:"state"`
	Value    int64  `json:"value"`
	Pending  int64  `json:"pending"`
	Buffered int    `json:"buffered"`

	// Store is set for SQL-backed stores.
	Store *StoreStats `json:"store,omitempty"`
}

// StoreStats summarizes the snapshot store's connection pool.
type StoreStats struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// Counter is a durable counter. It is safe for concurrent use; exactly one
// Counter may own a given (store row, log file) pair.
type Counter struct {
	cfg       Config
	session   string
	logger    *slog.Logger
	observer  Observer
	tracer    trace.Tracer
	openStore StoreOpener
	openLog   LogOpener

	// ioMu serializes log appends, flushes and close. Held across I/O.
	ioMu  sync.Mutex
	store SnapshotStore
	log   OperationLog

	// mu guards the fields below. Never held across I/O.
	mu            sync.Mutex
	state         State
	value         int64
	pending       int64
	buf           writeBuffer
	drainTimer    *time.Timer
	drainFailures int
	closing       bool
	flushing      bool
	poolStats     func() sql.DBStats

	// background threshold flushes (async mode)
	bg sync.WaitGroup
}

// New validates cfg and returns an uninitialized Counter. Call Init before use.
func New(cfg Config, opts ...Option) (*Counter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Counter{
		cfg:       cfg,
		session:   uuid.NewString(),
		logger:    slog.Default(),
		observer:  nopObserver{},
		tracer:    otel.Tracer(tracerName),
		openStore: OpenSQLStore,
		openLog:   OpenFileLog,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("counter", cfg.Name, "session", c.session, "mode", string(cfg.Mode))
	return c, nil
}

// Name returns the counter's store key.
func (c *Counter) Name() string { return c.cfg.Name }

// Mode returns the durability mode fixed at construction.
func (c *Counter) Mode() Mode { return c.cfg.Mode }

// Config returns the normalized configuration.
func (c *Counter) Config() Config { return c.cfg }

// Init opens the durable store and the operation log, loads the last
// flushed value, replays the log on top of it and truncates the log.
//
// Records that do not parse are skipped; a torn final record is ignored.
// When the log held any deltas, the folded value is written to the store
// before the log is truncated, so a crash right after Init loses nothing.
func (c *Counter) Init(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "counter.Init")
	defer func() { endSpan(span, err) }()

	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	switch st {
	case StateReady:
		return nil
	case StateClosed:
		return c.fail(CodeClosed, "init", nil)
	}

	start := time.Now()
	store, err := c.openStore(ctx, c.cfg.StoreDriver, c.cfg.StoreLocation)
	if err != nil {
		return c.fail(CodeStoreUnavailable, "init", err)
	}
	stored, found, err := store.Load(ctx, c.cfg.Name)
	if err != nil {
		_ = store.Close()
		return c.fail(CodeStoreUnavailable, "init", fmt.Errorf("load snapshot: %w", err))
	}

	lg, err := c.openLog(c.cfg.LogLocation, c.cfg.LogDurability)
	if err != nil {
		_ = store.Close()
		return c.fail(CodeStoreUnavailable, "init", fmt.Errorf("open operation log: %w", err))
	}
	abort := func(stage string, cause error) error {
		_ = lg.Close()
		_ = store.Close()
		return c.fail(CodeStoreUnavailable, "init", fmt.Errorf("%s: %w", stage, cause))
	}

	replay, err := lg.Replay()
	if err != nil {
		return abort("read operation log", err)
	}
	value := stored + replay.Sum
	if replay.Applied > 0 {
		if err := store.Save(ctx, c.cfg.Name, value); err != nil {
			return abort("checkpoint replayed value", err)
		}
	}
	if err := lg.Truncate(); err != nil {
		return abort("truncate operation log", err)
	}

	c.mu.Lock()
	c.store = store
	c.log = lg
	if ps, ok := store.(poolStatser); ok {
		c.poolStats = ps.Stats
	}
	c.value = value
	c.pending = 0
	c.state = StateReady
	c.mu.Unlock()

	if replay.Skipped > 0 || replay.Torn {
		c.logger.Warn("operation log had unreadable records",
			"skipped", replay.Skipped, "torn_tail", replay.Torn)
	}
	c.logger.Info("counter recovered",
		"stored", stored, "found", found, "replayed", replay.Applied, "value", value)
	span.SetAttributes(
		attribute.Int("counter.replayed", replay.Applied),
		attribute.Int64("counter.value", value),
	)
	c.observer.OnRecover(RecoverInfo{
		Counter:     c.cfg.Name,
		StoredValue: stored,
		Found:       found,
		Replayed:    replay.Applied,
		Skipped:     replay.Skipped,
		Torn:        replay.Torn,
		Value:       value,
		Duration:    time.Since(start),
	})
	return nil
}

// Inc adds one.
func (c *Counter) Inc(ctx context.Context) (int64, error) {
	return c.Increment(ctx, 1)
}

// Decrement subtracts delta. math.MinInt64 has no negation and is rejected
// with INVALID_DELTA.
func (c *Counter) Decrement(ctx context.Context, delta int64) (int64, error) {
	if delta == math.MinInt64 {
		return c.Value(), c.fail(CodeInvalidDelta, "decrement", fmt.Errorf("cannot negate %d", delta))
	}
	return c.Increment(ctx, -delta)
}

// Increment adds delta (which may be negative) and returns the new value.
//
// The in-memory value moves first. In ModeSync the delta is appended to the
// log before Increment returns and an append failure is reported as
// LOG_WRITE_FAILED with the value already advanced. In ModeAsync the delta
// is buffered and Increment never waits on I/O.
func (c *Counter) Increment(ctx context.Context, delta int64) (int64, error) {
	if c.cfg.Mode == ModeSync {
		return c.incrementSync(ctx, delta)
	}
	return c.incrementAsync(delta)
}

func (c *Counter) incrementSync(ctx context.Context, delta int64) (int64, error) {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	if err := c.readyLocked("increment"); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.value += delta
	c.pending++
	value, pending := c.value, c.pending
	c.mu.Unlock()

	start := time.Now()
	err := c.log.AppendDeltas(delta)
	c.observer.OnLogAppend(AppendInfo{
		Counter:  c.cfg.Name,
		Mode:     ModeSync,
		Records:  1,
		Duration: time.Since(start),
		Err:      err,
	})
	c.observer.OnOperation(OperationInfo{Counter: c.cfg.Name, Mode: ModeSync, Delta: delta, Value: value, Pending: pending})
	if err != nil {
		c.logger.Error("operation log append failed", "delta", delta, "value", value, "error", err)
		return value, c.fail(CodeLogWriteFailed, "increment", err)
	}

	if c.thresholdReached(pending) {
		if err := c.flushLocked(ctx, "threshold"); err != nil {
			return value, err
		}
	}
	return value, nil
}

func (c *Counter) incrementAsync(delta int64) (int64, error) {
	c.mu.Lock()
	if err := c.readyLocked("increment"); err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.value += delta
	c.pending++
	c.buf.push(delta)
	c.scheduleDrainLocked()
	value, pending := c.value, c.pending
	trigger := c.thresholdReached(pending) && !c.flushing
	if trigger {
		c.flushing = true
		c.bg.Add(1)
	}
	c.mu.Unlock()

	c.observer.OnOperation(OperationInfo{Counter: c.cfg.Name, Mode: ModeAsync, Delta: delta, Value: value, Pending: pending})
	if trigger {
		go c.backgroundFlush()
	}
	return value, nil
}

// backgroundFlush runs threshold flushes off the caller's goroutine until
// pending drops below the threshold or a flush fails.
func (c *Counter) backgroundFlush() {
	defer c.bg.Done()
	for {
		err := c.flush(context.Background(), "threshold")

		c.mu.Lock()
		again := err == nil && c.state == StateReady && !c.closing && c.thresholdReached(c.pending)
		if !again {
			c.flushing = false
		}
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("threshold flush failed, will retry at next boundary", "error", err)
		}
		if !again {
			return
		}
	}
}

// Flush drains the write buffer, writes the current value to the durable
// store and truncates the operation log. After Close it is a no-op.
func (c *Counter) Flush(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "counter.Flush")
	defer func() { endSpan(span, err) }()
	return c.flush(ctx, "manual")
}

func (c *Counter) flush(ctx context.Context, reason string) error {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	switch st {
	case StateClosed:
		return nil
	case StateUninitialized:
		return c.fail(CodeNotReady, "flush", nil)
	}
	return c.flushLocked(ctx, reason)
}

// flushLocked performs drain, snapshot write and truncate. Caller holds
// c.ioMu and has checked the state.
//
// The value and the buffer are captured under one c.mu critical section, so
// the snapshot never includes a delta that is neither in the log nor about
// to be appended by this flush. Deltas arriving afterwards stay buffered and
// keep counting as pending.
func (c *Counter) flushLocked(ctx context.Context, reason string) error {
	start := time.Now()

	c.mu.Lock()
	batch := c.buf.take()
	value, pending := c.value, c.pending
	c.mu.Unlock()

	info := FlushInfo{Counter: c.cfg.Name, Reason: reason, Value: value, Ops: pending}
	report := func(err error) {
		info.Duration = time.Since(start)
		info.Err = err
		c.observer.OnFlush(info)
	}

	if err := c.appendBatchLocked(batch); err != nil {
		report(err)
		return c.fail(CodeLogWriteFailed, reason, err)
	}
	if err := c.store.Save(ctx, c.cfg.Name, value); err != nil {
		report(err)
		c.logger.Error("snapshot write failed, operation log kept", "value", value, "pending", pending, "error", err)
		return c.fail(CodeFlushFailed, reason, err)
	}
	if err := c.log.Truncate(); err != nil {
		// The store already holds value; the log still holds deltas it
		// includes. A retry rewrites the same value and truncates again.
		report(err)
		c.logger.Error("operation log truncate failed after snapshot write", "value", value, "error", err)
		return c.fail(CodeFlushFailed, reason, fmt.Errorf("truncate operation log: %w", err))
	}

	c.mu.Lock()
	c.pending -= pending
	c.mu.Unlock()

	report(nil)
	c.logger.Debug("counter flushed", "reason", reason, "value", value, "ops", pending)
	return nil
}

// Reset makes newValue authoritative and flushes it immediately. The reset
// itself is not written to the operation log.
func (c *Counter) Reset(ctx context.Context, newValue int64) (err error) {
	ctx, span := c.startSpan(ctx, "counter.Reset", attribute.Int64("counter.new_value", newValue))
	defer func() { endSpan(span, err) }()

	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	if err := c.readyLocked("reset"); err != nil {
		c.mu.Unlock()
		return err
	}
	c.value = newValue
	c.mu.Unlock()

	c.logger.Info("counter reset", "value", newValue)
	return c.flushLocked(ctx, "reset")
}

// Close cancels the drain timer, waits for background flushes, flushes one
// last time and releases the store and the log. Closing a closed Counter is
// a no-op. If the final flush fails the Counter stays usable and Close may
// be retried.
func (c *Counter) Close(ctx context.Context) (err error) {
	ctx, span := c.startSpan(ctx, "counter.Close")
	defer func() { endSpan(span, err) }()

	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return nil
	case StateUninitialized:
		c.state = StateClosed
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
	c.mu.Unlock()

	c.bg.Wait()

	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	if st == StateClosed {
		return nil
	}

	if err := c.flushLocked(ctx, "close"); err != nil {
		c.mu.Lock()
		c.closing = false
		c.scheduleDrainLocked()
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateClosed
	c.closing = false
	value := c.value
	c.mu.Unlock()

	if cerr := errors.Join(c.log.Close(), c.store.Close()); cerr != nil {
		c.logger.Warn("releasing counter resources", "error", cerr)
		return fmt.Errorf("counter %q: release resources: %w", c.cfg.Name, cerr)
	}
	c.logger.Info("counter closed", "value", value)
	return nil
}

// Value returns the in-memory value. It never touches storage.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Pending returns the number of operations applied since the last flush.
func (c *Counter) Pending() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// State returns the lifecycle state.
func (c *Counter) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the counter's in-memory state.
func (c *Counter) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Stats{
		Name:     c.cfg.Name,
		Session:  c.session,
		Mode:     c.cfg.Mode,
		State:    c.state.String(),
		Value:    c.value,
		Pending:  c.pending,
		Buffered: c.buf.len(),
	}
	if c.poolStats != nil {
		ps := c.poolStats()
		st.Store = &StoreStats{
			OpenConnections: ps.OpenConnections,
			InUse:           ps.InUse,
			Idle:            ps.Idle,
			WaitCount:       ps.WaitCount,
		}
	}
	return st
}

// readyLocked rejects mutations outside StateReady. Caller holds c.mu.
func (c *Counter) readyLocked(op string) error {
	switch {
	case c.state == StateUninitialized:
		return c.fail(CodeNotReady, op, nil)
	case c.state == StateClosed || c.closing:
		return c.fail(CodeClosed, op, nil)
	}
	return nil
}

func (c *Counter) thresholdReached(pending int64) bool {
	return c.cfg.FlushThreshold > 0 && pending >= int64(c.cfg.FlushThreshold)
}

func (c *Counter) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	attrs = append(attrs,
		attribute.String("counter.name", c.cfg.Name),
		attribute.String("counter.mode", string(c.cfg.Mode)),
		attribute.String("counter.session", c.session),
	)
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
