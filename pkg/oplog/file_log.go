package oplog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

// Config configures the file-backed operation log.
type Config struct {
	Path string

	// Durability controls when Append is acknowledged.
	Durability Durability
}

// Open opens (creating if needed) the log file at cfg.Path.
func Open(cfg Config) (*FileLog, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLog{cfg: cfg, file: f}, nil
}

// FileLog implements Log on a single flat text file.
//
// Writes go straight to the file (no bufio) so that a successful Append is
// visible to ReadAll immediately; batching is the caller's job.
type FileLog struct {
	cfg Config

	mu     sync.Mutex
	closed bool
	file   *os.File

	// stats
	appendedRecords int64
	writtenBytes    int64
	truncations     int64
}

func (l *FileLog) Append(p []byte) error {
	if len(p) == 0 {
		return ErrInvalidData
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	st, err := l.file.Stat()
	if err != nil {
		return err
	}
	n, err := l.file.Write(p)
	if err == nil && l.cfg.Durability == DurabilityFsync {
		err = l.file.Sync()
	}
	if err != nil {
		// Callers retry failed batches, so a partial or unsynced write
		// must not stay behind to be replayed twice.
		if n > 0 {
			if rerr := l.file.Truncate(st.Size()); rerr != nil {
				return &RollbackError{AppendErr: err, RollbackErr: rerr}
			}
		}
		return err
	}
	atomic.AddInt64(&l.writtenBytes, int64(n))
	atomic.AddInt64(&l.appendedRecords, int64(countRecords(p)))
	return nil
}

// RollbackError means an append failed and removing its partial bytes
// failed too. The log may now hold records the caller will retry.
type RollbackError struct {
	AppendErr   error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("append: %v (rollback: %v)", e.AppendErr, e.RollbackErr)
}

func (e *RollbackError) Unwrap() []error { return []error{e.AppendErr, e.RollbackErr} }

func (l *FileLog) AppendDeltas(deltas ...int64) error {
	if len(deltas) == 0 {
		return nil
	}
	return l.Append(EncodeDeltas(deltas...))
}

// ReadAll returns the whole log. A missing file reads as nil.
func (l *FileLog) ReadAll() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrClosed
	}
	// #nosec G304 -- path comes from the counter's own configuration.
	data, err := os.ReadFile(l.cfg.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (l *FileLog) Replay() (Replay, error) {
	data, err := l.ReadAll()
	if err != nil {
		return Replay{}, err
	}
	return ParseDeltas(data), nil
}

// Truncate empties the log and syncs the new length.
func (l *FileLog) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.file.Truncate(0); err != nil {
		return err
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	atomic.AddInt64(&l.truncations, 1)
	return nil
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.cfg.Durability == DurabilityFsync {
		_ = l.file.Sync()
	}
	return l.file.Close()
}

func (l *FileLog) Stats() Stats {
	return Stats{
		AppendedRecords: atomic.LoadInt64(&l.appendedRecords),
		WrittenBytes:    atomic.LoadInt64(&l.writtenBytes),
		Truncations:     atomic.LoadInt64(&l.truncations),
	}
}

func countRecords(p []byte) int {
	n := 0
	for _, b := range p {
		if b == '\n' {
			n++
		}
	}
	return n
}

// Compile-time interface assertion.
var _ Log = (*FileLog)(nil)
