//go:build !linux

package slot

import "time"

var clockStart = time.Now()

// MonotonicClock counts from process start on platforms without GPIO edge
// timestamps.
type MonotonicClock struct{}

func (MonotonicClock) NowMs() int64 {
	return time.Since(clockStart).Milliseconds() + 1
}
