package counter

import (
	"time"
)

// maxDrainBackoff caps the retry delay after consecutive failed drains.
const maxDrainBackoff = 2 * time.Second

// writeBuffer is the async-mode FIFO of deltas whose in-memory update has
// happened but whose log append has not. Guarded by Counter.mu.
type writeBuffer struct {
	items []int64
}

func (b *writeBuffer) push(delta int64) {
	b.items = append(b.items, delta)
}

// take hands the whole queue to the caller.
func (b *writeBuffer) take() []int64 {
	batch := b.items
	b.items = nil
	return batch
}

// requeue puts a failed batch back in front of anything queued since.
func (b *writeBuffer) requeue(batch []int64) {
	if len(batch) == 0 {
		return
	}
	b.items = append(batch[:len(batch):len(batch)], b.items...)
}

func (b *writeBuffer) len() int {
	return len(b.items)
}

// scheduleDrainLocked arms the debounce timer unless one is already armed.
// Caller holds c.mu.
func (c *Counter) scheduleDrainLocked() {
	if c.drainTimer != nil || c.closing || c.state != StateReady || c.buf.len() == 0 {
		return
	}
	delay := c.cfg.DrainDelay
	for i := 0; i < c.drainFailures && delay < maxDrainBackoff; i++ {
		delay *= 2
	}
	if delay > maxDrainBackoff {
		delay = maxDrainBackoff
	}
	c.drainTimer = time.AfterFunc(delay, c.drainTick)
}

// drainTick runs on the timer goroutine. It takes the I/O lock before
// looking at state, so a tick racing Close sees StateClosed and never
// touches the released log.
func (c *Counter) drainTick() {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()

	c.mu.Lock()
	c.drainTimer = nil
	ready := c.state == StateReady
	c.mu.Unlock()
	if !ready {
		return
	}

	if err := c.drainLocked(); err != nil {
		c.logger.Warn("operation log drain failed, batch requeued", "error", err)
		c.mu.Lock()
		c.scheduleDrainLocked()
		c.mu.Unlock()
	}
}

// drainLocked appends everything buffered. Caller holds c.ioMu.
func (c *Counter) drainLocked() error {
	c.mu.Lock()
	batch := c.buf.take()
	c.mu.Unlock()
	return c.appendBatchLocked(batch)
}

// appendBatchLocked writes batch to the log as one append and requeues it on
// failure. Caller holds c.ioMu.
func (c *Counter) appendBatchLocked(batch []int64) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	err := c.log.AppendDeltas(batch...)
	c.observer.OnLogAppend(AppendInfo{
		Counter:  c.cfg.Name,
		Mode:     c.cfg.Mode,
		Records:  len(batch),
		Duration: time.Since(start),
		Err:      err,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.buf.requeue(batch)
		c.drainFailures++
		return err
	}
	c.drainFailures = 0
	return nil
}
