package domain

import "time"

var processEpoch = time.Now()

// Clock returns a monotonic timestamp in nanoseconds.
type Clock func() int64

// MonotonicNow reads the process monotonic clock. Readings are only
// comparable within one process.
func MonotonicNow() int64 {
	return int64(time.Since(processEpoch))
}
