package counter

import (
	"fmt"
)

// Code classifies counter failures.
type Code string

const (
	// CodeConfigInvalid: bad constructor arguments. Fatal.
	CodeConfigInvalid Code = "CONFIG_INVALID"
	// CodeStoreUnavailable: the durable store could not be opened or read during Init. Fatal.
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	// CodeLogWriteFailed: a delta could not be appended to the operation log.
	// The in-memory value has already moved.
	CodeLogWriteFailed Code = "LOG_WRITE_FAILED"
	// CodeFlushFailed: the snapshot write failed. Log and pending are intact; retry is safe.
	CodeFlushFailed Code = "FLUSH_FAILED"
	// CodeInvalidDelta: the delta cannot be applied. The value is unchanged.
	CodeInvalidDelta Code = "INVALID_DELTA"
	// CodeNotReady: operation before a successful Init.
	CodeNotReady Code = "NOT_READY"
	// CodeClosed: operation after Close.
	CodeClosed Code = "CLOSED"
)

// Error is returned by every Counter operation that fails.
type Error struct {
	Code    Code
	Op      string
	Counter string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Counter != "" {
		msg = fmt.Sprintf("counter %q: %s", e.Counter, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so errors.Is(err, ErrFlushFailed)
// works regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrConfigInvalid    = &Error{Code: CodeConfigInvalid}
	ErrStoreUnavailable = &Error{Code: CodeStoreUnavailable}
	ErrLogWriteFailed   = &Error{Code: CodeLogWriteFailed}
	ErrFlushFailed      = &Error{Code: CodeFlushFailed}
	ErrInvalidDelta     = &Error{Code: CodeInvalidDelta}
	ErrNotReady         = &Error{Code: CodeNotReady}
	ErrClosed           = &Error{Code: CodeClosed}
)

func configError(format string, args ...interface{}) error {
	return &Error{Code: CodeConfigInvalid, Op: "new", Err: fmt.Errorf(format, args...)}
}

func (c *Counter) fail(code Code, op string, err error) error {
	return &Error{Code: code, Op: op, Counter: c.cfg.Name, Err: err}
}
