package counter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxorio/counterlog/pkg/db"
	"github.com/fluxorio/counterlog/pkg/oplog"
)

var errDisk = errors.New("disk on fire")

// memStore is an in-memory SnapshotStore with failure injection.
type memStore struct {
	mu       sync.Mutex
	values   map[string]int64
	failOpen bool
	failSave bool
	closed   bool
	saves    int
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]int64)}
}

func (s *memStore) opener() StoreOpener {
	return func(ctx context.Context, driver, location string) (SnapshotStore, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failOpen {
			return nil, errDisk
		}
		s.closed = false
		return s, nil
	}
}

func (s *memStore) Load(ctx context.Context, name string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok, nil
}

func (s *memStore) Save(ctx context.Context, name string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return db.ErrStoreClosed
	}
	if s.failSave {
		return errDisk
	}
	s.values[name] = value
	s.saves++
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) get(name string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *memStore) setFailSave(fail bool) {
	s.mu.Lock()
	s.failSave = fail
	s.mu.Unlock()
}

// memLog is an in-memory OperationLog with failure injection.
type memLog struct {
	mu                sync.Mutex
	records           []int64
	failAppends       int
	closed            bool
	appendCalls       int
	appendsAfterClose int
}

func (l *memLog) opener() LogOpener {
	return func(location string, durability oplog.Durability) (OperationLog, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.closed = false
		return l, nil
	}
}

func (l *memLog) AppendDeltas(deltas ...int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendCalls++
	if l.closed {
		l.appendsAfterClose++
		return oplog.ErrClosed
	}
	if l.failAppends > 0 {
		l.failAppends--
		return errDisk
	}
	l.records = append(l.records, deltas...)
	return nil
}

func (l *memLog) Replay() (oplog.Replay, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return oplog.ParseDeltas(oplog.EncodeDeltas(l.records...)), nil
}

func (l *memLog) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	return nil
}

func (l *memLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *memLog) snapshot() []int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.records...)
}

func (l *memLog) failNext(n int) {
	l.mu.Lock()
	l.failAppends = n
	l.mu.Unlock()
}

// recordingObserver counts engine events.
type recordingObserver struct {
	mu       sync.Mutex
	recovers []RecoverInfo
	ops      int
	appends  []AppendInfo
	flushes  []FlushInfo
}

func (o *recordingObserver) OnRecover(i RecoverInfo) {
	o.mu.Lock()
	o.recovers = append(o.recovers, i)
	o.mu.Unlock()
}

func (o *recordingObserver) OnOperation(OperationInfo) {
	o.mu.Lock()
	o.ops++
	o.mu.Unlock()
}

func (o *recordingObserver) OnLogAppend(i AppendInfo) {
	o.mu.Lock()
	o.appends = append(o.appends, i)
	o.mu.Unlock()
}

func (o *recordingObserver) OnFlush(i FlushInfo) {
	o.mu.Lock()
	o.flushes = append(o.flushes, i)
	o.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig points a counter at files in dir.
func testConfig(dir string, mode Mode, threshold int) Config {
	return Config{
		Name:           "hits",
		StoreLocation:  filepath.Join(dir, "store.db"),
		LogLocation:    filepath.Join(dir, "ops.log"),
		FlushThreshold: threshold,
		Mode:           mode,
		DrainDelay:     5 * time.Millisecond,
	}
}

func newReadyCounter(t *testing.T, cfg Config, opts ...Option) *Counter {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	return c
}

// crash drops the counter without draining or flushing, as if the process
// died. Buffered async deltas are lost, exactly like a real crash.
func (c *Counter) crash() {
	c.mu.Lock()
	if c.drainTimer != nil {
		c.drainTimer.Stop()
		c.drainTimer = nil
	}
	c.closing = true
	c.mu.Unlock()
	c.bg.Wait()

	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	_ = c.log.Close()
	_ = c.store.Close()
}

// storedValue reads the snapshot row straight from the sqlite file.
func storedValue(t *testing.T, cfg Config) (int64, bool) {
	t.Helper()
	s, err := db.OpenSnapshotStore(context.Background(), db.StoreConfig{Location: cfg.StoreLocation})
	require.NoError(t, err)
	defer s.Close()
	v, ok, err := s.Load(context.Background(), cfg.Name)
	require.NoError(t, err)
	return v, ok
}
