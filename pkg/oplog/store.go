package oplog

import (
	"errors"
	"io"
)

// Durability specifies when Append is acknowledged.
type Durability int

const (
	// DurabilityFsync acknowledges after the log file is fsync'd.
	DurabilityFsync Durability = iota
	// DurabilityOS acknowledges once the write reached the OS page cache.
	// (Faster, loses the tail on power failure.)
	DurabilityOS
)

// String returns the config spelling of d.
func (d Durability) String() string {
	switch d {
	case DurabilityFsync:
		return "fsync"
	case DurabilityOS:
		return "os"
	default:
		return "unknown"
	}
}

// ParseDurability maps "fsync" / "os" (or "") to a Durability.
func ParseDurability(s string) (Durability, error) {
	switch s {
	case "", "fsync":
		return DurabilityFsync, nil
	case "os":
		return DurabilityOS, nil
	default:
		return 0, errors.New("unknown durability " + s)
	}
}

// Log is an append-only log of signed integer deltas.
//
// Contract summary:
// - Append-only: records are never rewritten, only truncated as a whole.
// - One record per line, base-10 signed integer, no header, no checksum.
// - Truncate leaves an empty file; a torn truncate is tolerated by Replay.
type Log interface {
	Append(p []byte) error
	AppendDeltas(deltas ...int64) error
	ReadAll() ([]byte, error)
	Replay() (Replay, error)
	Truncate() error
	Close() error
	Stats() Stats
}

// Stats exposes basic operational counters.
type Stats struct {
	// Total number of records appended.
	AppendedRecords int64
	// Total bytes written (best-effort).
	WrittenBytes int64
	// Number of successful truncations.
	Truncations int64
}

// Errors.
var (
	ErrClosed      = io.ErrClosedPipe
	ErrInvalidData = io.ErrUnexpectedEOF
)
