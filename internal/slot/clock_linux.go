//go:build linux

package slot

import "golang.org/x/sys/unix"

// MonotonicClock reads CLOCK_MONOTONIC, the same clock GPIO edge events are
// stamped with.
type MonotonicClock struct{}

func (MonotonicClock) NowMs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano() / 1e6
}
