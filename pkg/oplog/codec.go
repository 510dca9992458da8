package oplog

import (
	"bytes"
	"strconv"
)

// Replay is the result of folding a log's records.
type Replay struct {
	// Sum of every record that parsed.
	Sum int64
	// Applied is the number of records folded into Sum.
	Applied int
	// Skipped counts terminated records that were not integers.
	Skipped int
	// Torn is true when the log ended in an unterminated fragment.
	Torn bool
}

// EncodeDeltas renders deltas as newline-terminated records.
func EncodeDeltas(deltas ...int64) []byte {
	buf := make([]byte, 0, len(deltas)*4)
	for _, d := range deltas {
		buf = strconv.AppendInt(buf, d, 10)
		buf = append(buf, '\n')
	}
	return buf
}

// ParseDeltas folds the records in data.
//
// Records that fail to parse are dropped and counted in Skipped. Blank
// lines are ignored. Bytes after the last newline are a torn write from a
// crash mid-append and are never applied, even if they look numeric.
func ParseDeltas(data []byte) Replay {
	var r Replay
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			r.Torn = len(bytes.TrimSpace(data)) > 0
			break
		}
		line := bytes.TrimSpace(data[:i])
		data = data[i+1:]
		if len(line) == 0 {
			continue
		}
		d, err := strconv.ParseInt(string(line), 10, 64)
		if err != nil {
			r.Skipped++
			continue
		}
		r.Sum += d
		r.Applied++
	}
	return r
}
