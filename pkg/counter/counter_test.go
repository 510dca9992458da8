package counter

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/counterlog/pkg/oplog"
)

func TestNew_RejectsUnknownMode(t *testing.T) {
	cfg := testConfig(t.TempDir(), "eventual", 0)
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigInvalid))

	var cerr *Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, CodeConfigInvalid, cerr.Code)
}

func TestNew_ConfigValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative threshold", func(c *Config) { c.FlushThreshold = -1 }},
		{"missing store", func(c *Config) { c.StoreLocation = "" }},
		{"missing log", func(c *Config) { c.LogLocation = " " }},
		{"bad name", func(c *Config) { c.Name = "hits/../../etc" }},
		{"bad driver", func(c *Config) { c.StoreDriver = "mysql" }},
		{"negative drain delay", func(c *Config) { c.DrainDelay = -time.Second }},
		{"bad durability", func(c *Config) { c.LogDurability = oplog.Durability(9) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(dir, ModeSync, 0)
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.True(t, errors.Is(err, ErrConfigInvalid), "got %v", err)
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{StoreLocation: "s.db", LogLocation: "o.log", Mode: ModeAsync})
	require.NoError(t, err)
	assert.Equal(t, DefaultName, c.Name())
	assert.Equal(t, DefaultDrainDelay, c.Config().DrainDelay)
	assert.Equal(t, "sqlite3", c.Config().StoreDriver)
	assert.Equal(t, ModeAsync, c.Mode())
	assert.Equal(t, StateUninitialized, c.State())
}

func TestCounter_StateMachine(t *testing.T) {
	ctx := context.Background()
	c, err := New(testConfig(t.TempDir(), ModeSync, 0), WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = c.Inc(ctx)
	assert.True(t, errors.Is(err, ErrNotReady))
	assert.True(t, errors.Is(c.Flush(ctx), ErrNotReady))
	assert.True(t, errors.Is(c.Reset(ctx, 1), ErrNotReady))

	require.NoError(t, c.Init(ctx))
	require.NoError(t, c.Init(ctx), "Init on a ready counter is a no-op")
	assert.Equal(t, StateReady, c.State())

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, StateClosed, c.State())

	_, err = c.Increment(ctx, 1)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(c.Reset(ctx, 1), ErrClosed))
	assert.True(t, errors.Is(c.Init(ctx), ErrClosed))
	assert.NoError(t, c.Flush(ctx), "flush after close is a no-op")
	assert.NoError(t, c.Close(ctx), "close is idempotent")
}

func TestCounter_CloseBeforeInit(t *testing.T) {
	c, err := New(testConfig(t.TempDir(), ModeAsync, 0))
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, StateClosed, c.State())
}

func TestCounter_SignHandling(t *testing.T) {
	for _, mode := range []Mode{ModeSync, ModeAsync} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			c := newReadyCounter(t, testConfig(t.TempDir(), mode, 0))
			defer c.Close(ctx)

			_, err := c.Increment(ctx, -100)
			require.NoError(t, err)
			v, err := c.Increment(ctx, -50)
			require.NoError(t, err)
			assert.Equal(t, int64(-150), v)
			assert.Equal(t, int64(-150), c.Value())

			v, err = c.Decrement(ctx, -10)
			require.NoError(t, err)
			assert.Equal(t, int64(-140), v)
		})
	}
}

func TestCounter_DecrementMinInt64Rejected(t *testing.T) {
	for _, mode := range []Mode{ModeSync, ModeAsync} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store := newMemStore()
			c := newReadyCounter(t, testConfig(t.TempDir(), mode, 0), WithStoreOpener(store.opener()), WithLogOpener((&memLog{}).opener()))
			defer c.Close(ctx)

			_, err := c.Increment(ctx, 3)
			require.NoError(t, err)

			v, err := c.Decrement(ctx, math.MinInt64)
			assert.ErrorIs(t, err, ErrInvalidDelta)
			assert.Equal(t, int64(3), v)
			assert.Equal(t, int64(3), c.Value())
			assert.Equal(t, int64(1), c.Pending())

			require.NoError(t, c.Flush(ctx))
			stored, ok := store.get("hits")
			require.True(t, ok)
			assert.Equal(t, int64(3), stored)
		})
	}
}

func TestCounter_StatsReportsStorePool(t *testing.T) {
	ctx := context.Background()
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeSync, 0))
	defer c.Close(ctx)
	st := c.Stats()
	require.NotNil(t, st.Store, "sqlite store exposes its pool")
	assert.GreaterOrEqual(t, st.Store.OpenConnections, 0)

	fake := newReadyCounter(t, testConfig(t.TempDir(), ModeSync, 0),
		WithStoreOpener(newMemStore().opener()), WithLogOpener((&memLog{}).opener()))
	defer fake.Close(ctx)
	assert.Nil(t, fake.Stats().Store)
}

func TestCounter_SyncAppendIsVisibleOnReturn(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), ModeSync, 0)
	c := newReadyCounter(t, cfg)
	defer c.Close(ctx)

	_, err := c.Increment(ctx, 5)
	require.NoError(t, err)
	data, err := os.ReadFile(cfg.LogLocation)
	require.NoError(t, err)
	assert.Equal(t, "5\n", string(data))

	_, err = c.Decrement(ctx, 2)
	require.NoError(t, err)
	data, err = os.ReadFile(cfg.LogLocation)
	require.NoError(t, err)
	assert.Equal(t, "5\n-2\n", string(data))
	assert.Equal(t, int64(2), c.Pending())
}

func TestCounter_ReplayAfterCrash(t *testing.T) {
	for _, mode := range []Mode{ModeSync, ModeAsync} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t.TempDir(), mode, 0)

			c1 := newReadyCounter(t, cfg)
			_, err := c1.Increment(ctx, 10)
			require.NoError(t, err)
			require.NoError(t, c1.Flush(ctx))

			deltas := []int64{3, -7, 12, 1, -4}
			for _, d := range deltas {
				_, err := c1.Increment(ctx, d)
				require.NoError(t, err)
			}
			if mode == ModeAsync {
				// Wait for the debounce drain; a crash before it loses the buffer.
				require.Eventually(t, func() bool {
					data, _ := os.ReadFile(cfg.LogLocation)
					return oplog.ParseDeltas(data).Applied == len(deltas)
				}, 2*time.Second, 5*time.Millisecond)
			}
			c1.crash()

			stored, _ := storedValue(t, cfg)
			assert.Equal(t, int64(10), stored, "nothing flushed after the first flush")

			c2 := newReadyCounter(t, cfg)
			defer c2.Close(ctx)
			assert.Equal(t, int64(10+3-7+12+1-4), c2.Value())
			assert.Equal(t, int64(0), c2.Pending())

			data, err := os.ReadFile(cfg.LogLocation)
			require.NoError(t, err)
			assert.Empty(t, data, "log is truncated after replay")
			stored, _ = storedValue(t, cfg)
			assert.Equal(t, c2.Value(), stored, "replayed value is checkpointed before truncation")
		})
	}
}

func TestCounter_CorruptedLogTolerance(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), ModeSync, 0)

	seed := newReadyCounter(t, cfg)
	require.NoError(t, seed.Reset(ctx, 100))
	require.NoError(t, seed.Close(ctx))

	require.NoError(t, os.WriteFile(cfg.LogLocation, []byte("1\n2\ninvalid\n3\n"), 0o644))

	obs := &recordingObserver{}
	c := newReadyCounter(t, cfg, WithObserver(obs))
	defer c.Close(ctx)

	assert.Equal(t, int64(106), c.Value())
	require.Len(t, obs.recovers, 1)
	assert.Equal(t, 3, obs.recovers[0].Replayed)
	assert.Equal(t, 1, obs.recovers[0].Skipped)
	assert.Equal(t, int64(100), obs.recovers[0].StoredValue)
}

func TestCounter_TornTailIgnored(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), ModeSync, 0)
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.LogLocation), 0o755))
	require.NoError(t, os.WriteFile(cfg.LogLocation, []byte("4\n5\n12"), 0o644))

	c := newReadyCounter(t, cfg)
	defer c.Close(ctx)
	assert.Equal(t, int64(9), c.Value())
}

func TestCounter_IdempotentFlush(t *testing.T) {
	for _, mode := range []Mode{ModeSync, ModeAsync} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store, log := newMemStore(), &memLog{}
			c := newReadyCounter(t, testConfig(t.TempDir(), mode, 0),
				WithStoreOpener(store.opener()), WithLogOpener(log.opener()))
			defer c.Close(ctx)

			for i := 0; i < 4; i++ {
				_, err := c.Increment(ctx, 2)
				require.NoError(t, err)
			}
			require.NoError(t, c.Flush(ctx))
			v1, _ := store.get("hits")
			require.NoError(t, c.Flush(ctx))
			v2, _ := store.get("hits")

			assert.Equal(t, int64(8), c.Value())
			assert.Equal(t, v1, v2)
			assert.Equal(t, c.Value(), v2)
			assert.Equal(t, int64(0), c.Pending())
			assert.Empty(t, log.snapshot())
		})
	}
}

func TestCounter_ThresholdFlush_Sync(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeSync, 3),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()))
	defer c.Close(ctx)

	for i := 0; i < 2; i++ {
		_, err := c.Inc(ctx)
		require.NoError(t, err)
	}
	_, found := store.get("hits")
	assert.False(t, found, "no flush before the threshold")
	assert.Equal(t, int64(2), c.Pending())

	_, err := c.Inc(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Pending())
	v, found := store.get("hits")
	assert.True(t, found)
	assert.Equal(t, int64(3), v)
	assert.Empty(t, log.snapshot())
}

func TestCounter_ThresholdFlush_Async(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeAsync, 3),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()))
	defer c.Close(ctx)

	for i := 0; i < 3; i++ {
		_, err := c.Inc(ctx)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool {
		v, found := store.get("hits")
		return found && v == 3 && c.Pending() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, log.snapshot())
}

func TestCounter_ThresholdFlush_SyncFailureSurfaced(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeSync, 1),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()))

	store.setFailSave(true)
	v, err := c.Inc(ctx)
	assert.True(t, errors.Is(err, ErrFlushFailed))
	assert.Equal(t, int64(1), v, "the increment itself stands")
	assert.Equal(t, []int64{1}, log.snapshot())

	store.setFailSave(false)
	require.NoError(t, c.Close(ctx))
	stored, _ := store.get("hits")
	assert.Equal(t, int64(1), stored)
}

func TestCounter_FlushFailedKeepsPendingAndLog(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	obs := &recordingObserver{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeSync, 0),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()), WithObserver(obs))

	for _, d := range []int64{4, 5, 6} {
		_, err := c.Increment(ctx, d)
		require.NoError(t, err)
	}
	store.setFailSave(true)

	err := c.Flush(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFlushFailed))
	assert.True(t, errors.Is(err, errDisk))
	assert.Equal(t, int64(3), c.Pending())
	assert.Equal(t, []int64{4, 5, 6}, log.snapshot())

	store.setFailSave(false)
	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, int64(0), c.Pending())
	assert.Empty(t, log.snapshot())
	v, _ := store.get("hits")
	assert.Equal(t, int64(15), v)

	require.Len(t, obs.flushes, 2)
	assert.Error(t, obs.flushes[0].Err)
	assert.NoError(t, obs.flushes[1].Err)
	assert.Equal(t, "manual", obs.flushes[1].Reason)
	require.NoError(t, c.Close(ctx))
}

func TestCounter_SyncLogWriteFailed(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeSync, 0),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()))
	defer c.Close(ctx)

	log.failNext(1)
	v, err := c.Increment(ctx, 7)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLogWriteFailed))
	assert.Equal(t, int64(7), v, "value advanced before the append")
	assert.Equal(t, int64(7), c.Value())
	assert.Empty(t, log.snapshot())

	// The next flush persists the value and closes the durability gap.
	require.NoError(t, c.Flush(ctx))
	stored, _ := store.get("hits")
	assert.Equal(t, int64(7), stored)
}

func TestCounter_AsyncDrainFailureRequeuesInOrder(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeAsync, 0),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()))
	defer c.Close(ctx)

	log.failNext(1)
	for _, d := range []int64{1, 2, 3} {
		_, err := c.Increment(ctx, d)
		require.NoError(t, err, "async callers never see drain failures")
	}
	require.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return log.appendCalls >= 1
	}, 2*time.Second, time.Millisecond)

	_, err := c.Increment(ctx, 4)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(log.snapshot()) == 4
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3, 4}, log.snapshot())
	assert.Equal(t, 0, c.Stats().Buffered)
}

func TestCounter_AsyncFlushSurfacesDrainFailure(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	cfg := testConfig(t.TempDir(), ModeAsync, 0)
	cfg.DrainDelay = time.Hour
	c := newReadyCounter(t, cfg, WithStoreOpener(store.opener()), WithLogOpener(log.opener()))

	_, err := c.Increment(ctx, 9)
	require.NoError(t, err)
	log.failNext(1)

	err = c.Flush(ctx)
	assert.True(t, errors.Is(err, ErrLogWriteFailed))
	assert.Equal(t, 1, c.Stats().Buffered, "failed batch is back in the buffer")

	require.NoError(t, c.Close(ctx))
	v, _ := store.get("hits")
	assert.Equal(t, int64(9), v)
}

func TestCounter_AsyncIsFasterThanSync(t *testing.T) {
	ctx := context.Background()
	const n = 200

	run := func(mode Mode) (time.Duration, Config, *Counter) {
		cfg := testConfig(t.TempDir(), mode, 0)
		c := newReadyCounter(t, cfg)
		start := time.Now()
		for i := 0; i < n; i++ {
			_, err := c.Inc(ctx)
			require.NoError(t, err)
		}
		return time.Since(start), cfg, c
	}

	syncDur, _, syncCounter := run(ModeSync)
	defer syncCounter.Close(ctx)
	asyncDur, asyncCfg, asyncCounter := run(ModeAsync)
	defer asyncCounter.Close(ctx)

	assert.Less(t, asyncDur, syncDur)
	assert.Equal(t, int64(n), asyncCounter.Value())

	// The log catches up within the debounce window.
	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(asyncCfg.LogLocation)
		return oplog.ParseDeltas(data).Sum == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCounter_CloseDrainsBuffer(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), ModeAsync, 0)
	cfg.DrainDelay = time.Hour
	c := newReadyCounter(t, cfg)

	for i := 0; i < 25; i++ {
		_, err := c.Increment(ctx, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, 25, c.Stats().Buffered)
	require.NoError(t, c.Close(ctx))

	v, found := storedValue(t, cfg)
	assert.True(t, found)
	assert.Equal(t, int64(50), v)

	data, err := os.ReadFile(cfg.LogLocation)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestCounter_DrainTimerCannotFireAfterClose(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	cfg := testConfig(t.TempDir(), ModeAsync, 0)
	cfg.DrainDelay = time.Millisecond
	c := newReadyCounter(t, cfg, WithStoreOpener(store.opener()), WithLogOpener(log.opener()))

	for i := 0; i < 10; i++ {
		_, err := c.Inc(ctx)
		require.NoError(t, err)
		require.NoError(t, c.Close(ctx))
		// Reopen the same fakes for the next round.
		c = newReadyCounter(t, cfg, WithStoreOpener(store.opener()), WithLogOpener(log.opener()))
	}
	require.NoError(t, c.Close(ctx))
	time.Sleep(20 * time.Millisecond)

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Equal(t, 0, log.appendsAfterClose)
	v, _ := store.get("hits")
	assert.Equal(t, int64(10), v)
}

func TestCounter_CloseFailureKeepsCounterUsable(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeAsync, 0),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()))

	_, err := c.Increment(ctx, 3)
	require.NoError(t, err)
	store.setFailSave(true)

	err = c.Close(ctx)
	assert.True(t, errors.Is(err, ErrFlushFailed))
	assert.Equal(t, StateReady, c.State())

	_, err = c.Increment(ctx, 1)
	require.NoError(t, err)

	store.setFailSave(false)
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, StateClosed, c.State())
	v, _ := store.get("hits")
	assert.Equal(t, int64(4), v)
}

func TestCounter_Reset(t *testing.T) {
	for _, mode := range []Mode{ModeSync, ModeAsync} {
		t.Run(string(mode), func(t *testing.T) {
			ctx := context.Background()
			store, log := newMemStore(), &memLog{}
			c := newReadyCounter(t, testConfig(t.TempDir(), mode, 0),
				WithStoreOpener(store.opener()), WithLogOpener(log.opener()))
			defer c.Close(ctx)

			_, err := c.Increment(ctx, 40)
			require.NoError(t, err)
			require.NoError(t, c.Reset(ctx, -3))

			assert.Equal(t, int64(-3), c.Value())
			assert.Equal(t, int64(0), c.Pending())
			v, _ := store.get("hits")
			assert.Equal(t, int64(-3), v)
			assert.Empty(t, log.snapshot())
		})
	}
}

func TestCounter_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failOpen = true
	c, err := New(testConfig(t.TempDir(), ModeSync, 0), WithLogger(quietLogger()), WithStoreOpener(store.opener()))
	require.NoError(t, err)

	err = c.Init(ctx)
	assert.True(t, errors.Is(err, ErrStoreUnavailable))
	assert.True(t, errors.Is(err, errDisk))
	assert.Equal(t, StateUninitialized, c.State())

	_, err = c.Inc(ctx)
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestCounter_StoreUnavailable_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir, ModeSync, 0)
	cfg.StoreLocation = dir // a directory is not a database file
	c, err := New(cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.True(t, errors.Is(c.Init(context.Background()), ErrStoreUnavailable))
}

func TestCounter_ConcurrentAsyncIncrements(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t.TempDir(), ModeAsync, 10)
	c := newReadyCounter(t, cfg)

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				d := int64(1)
				if w%2 == 1 {
					d = 2
				}
				_, err := c.Increment(ctx, d)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	want := int64(workers/2*perWorker*1 + workers/2*perWorker*2)
	assert.Equal(t, want, c.Value())
	require.NoError(t, c.Close(ctx))

	v, _ := storedValue(t, cfg)
	assert.Equal(t, want, v)

	c2 := newReadyCounter(t, cfg)
	defer c2.Close(ctx)
	assert.Equal(t, want, c2.Value())
}

func TestCounter_ConcurrentSyncIncrementsKeepLogOrder(t *testing.T) {
	ctx := context.Background()
	store, log := newMemStore(), &memLog{}
	obs := &recordingObserver{}
	c := newReadyCounter(t, testConfig(t.TempDir(), ModeSync, 7),
		WithStoreOpener(store.opener()), WithLogOpener(log.opener()), WithObserver(obs))

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, err := c.Inc(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Store + unflushed log always equals the in-memory value.
	stored, _ := store.get("hits")
	var logged int64
	for _, d := range log.snapshot() {
		logged += d
	}
	assert.Equal(t, c.Value(), stored+logged)
	assert.Equal(t, int64(len(log.snapshot())), c.Pending())
	assert.Equal(t, 100, obs.ops)
	require.NoError(t, c.Close(ctx))
}

func TestError_Format(t *testing.T) {
	err := &Error{Code: CodeFlushFailed, Op: "flush", Counter: "hits", Err: errDisk}
	assert.Equal(t, `counter "hits": flush: FLUSH_FAILED: disk on fire`, err.Error())
	assert.True(t, errors.Is(err, ErrFlushFailed))
	assert.False(t, errors.Is(err, ErrClosed))
}
