//go:build !linux

package gpio

import (
	"fmt"
	"time"
)

// Stub implementation for non-Linux platforms.

type ResetLine struct{}

func OpenReset(pin int, consumer string) (*ResetLine, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

func (r *ResetLine) Pulse(low, settle time.Duration) error { return fmt.Errorf("gpio: unsupported") }
func (r *ResetLine) Close() error                          { return nil }

type PPSWatcher struct{}

func WatchPPS(pin int, consumer string, latch func(ms int64)) (*PPSWatcher, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

func (w *PPSWatcher) Edges() uint64 { return 0 }
func (w *PPSWatcher) Close() error  { return nil }

type InputLine struct{}

func OpenInput(pin int, consumer string) (*InputLine, error) {
	return nil, fmt.Errorf("gpio: unsupported on this platform")
}

func (in *InputLine) High() bool   { return false }
func (in *InputLine) Close() error { return nil }
