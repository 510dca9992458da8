package counter

import "time"

// Observer receives engine events. Implementations must be safe for
// concurrent use and must not call back into the Counter.
type Observer interface {
	OnRecover(RecoverInfo)
	OnOperation(OperationInfo)
	OnLogAppend(AppendInfo)
	OnFlush(FlushInfo)
}

// RecoverInfo describes a completed Init.
type RecoverInfo struct {
	Counter     string
	StoredValue int64
	Found       bool
	Replayed    int
	Skipped     int
	Torn        bool
	Value       int64
	Duration    time.Duration
}

// OperationInfo describes an applied increment.
type OperationInfo struct {
	Counter string
	Mode    Mode
	Delta   int64
	Value   int64
	Pending int64
}

// AppendInfo describes one physical append to the operation log.
type AppendInfo struct {
	Counter  string
	Mode     Mode
	Records  int
	Duration time.Duration
	Err      error
}

// FlushInfo describes a flush attempt.
type FlushInfo struct {
	Counter  string
	Reason   string
	Value    int64
	Ops      int64
	Duration time.Duration
	Err      error
}

type nopObserver struct{}

func (nopObserver) OnRecover(RecoverInfo)     {}
func (nopObserver) OnOperation(OperationInfo) {}
func (nopObserver) OnLogAppend(AppendInfo)    {}
func (nopObserver) OnFlush(FlushInfo)         {}
