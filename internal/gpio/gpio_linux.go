//go:build linux

package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// findLine locates a BCM-numbered header pin. On Pi, line names are commonly
// "GPIO18", etc.; Pi 5 kernels expose the header on gpiochip4 or gpiochip0.
func findLine(pin int) (*gpiocdev.Chip, int, error) {
	if pin <= 0 {
		return nil, 0, fmt.Errorf("gpio: invalid pin %d", pin)
	}
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return chip, offset, nil
	}
	return nil, 0, fmt.Errorf("gpio: line %q not found", lineName)
}

// ResetLine drives the radio's active-low reset pin.
type ResetLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func OpenReset(pin int, consumer string) (*ResetLine, error) {
	chip, offset, err := findLine(pin)
	if err != nil {
		return nil, err
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithConsumer(consumer))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpio: request reset line: %w", err)
	}
	return &ResetLine{chip: chip, line: line}, nil
}

// Pulse holds reset low for low, releases the pin and waits settle for the
// chip to boot.
func (r *ResetLine) Pulse(low, settle time.Duration) error {
	if r == nil || r.line == nil {
		return fmt.Errorf("gpio: reset line not initialized")
	}
	if err := r.line.Reconfigure(gpiocdev.AsOutput(0)); err != nil {
		return err
	}
	time.Sleep(low)
	if err := r.line.Reconfigure(gpiocdev.AsInput); err != nil {
		return err
	}
	time.Sleep(settle)
	return nil
}

func (r *ResetLine) Close() error {
	if r == nil || r.line == nil {
		return nil
	}
	err := r.line.Close()
	r.line = nil
	if r.chip != nil {
		_ = r.chip.Close()
		r.chip = nil
	}
	return err
}

// PPSWatcher reports rising edges on the GNSS PPS pin. Edge timestamps come
// from the kernel in CLOCK_MONOTONIC.
type PPSWatcher struct {
	chip  *gpiocdev.Chip
	line  *gpiocdev.Line
	edges atomic.Uint64
}

// WatchPPS calls latch with the millisecond timestamp of every rising edge.
// latch runs on the gpiocdev event goroutine and must not block.
func WatchPPS(pin int, consumer string, latch func(ms int64)) (*PPSWatcher, error) {
	chip, offset, err := findLine(pin)
	if err != nil {
		return nil, err
	}
	w := &PPSWatcher{chip: chip}
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventRisingEdge {
			return
		}
		w.edges.Add(1)
		latch(evt.Timestamp.Milliseconds())
	}
	line, err := chip.RequestLine(offset,
		gpiocdev.AsInput,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler),
		gpiocdev.WithConsumer(consumer),
	)
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpio: request pps line: %w", err)
	}
	w.line = line
	return w, nil
}

func (w *PPSWatcher) Edges() uint64 {
	if w == nil {
		return 0
	}
	return w.edges.Load()
}

func (w *PPSWatcher) Close() error {
	if w == nil || w.line == nil {
		return nil
	}
	err := w.line.Close()
	w.line = nil
	if w.chip != nil {
		_ = w.chip.Close()
		w.chip = nil
	}
	return err
}

// InputLine samples a plain input such as the SX1262 BUSY pin.
type InputLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func OpenInput(pin int, consumer string) (*InputLine, error) {
	chip, offset, err := findLine(pin)
	if err != nil {
		return nil, err
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithConsumer(consumer))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("gpio: request input line: %w", err)
	}
	return &InputLine{chip: chip, line: line}, nil
}

// High reports whether the line reads 1. Read errors report low.
func (in *InputLine) High() bool {
	if in == nil || in.line == nil {
		return false
	}
	v, err := in.line.Value()
	return err == nil && v == 1
}

func (in *InputLine) Close() error {
	if in == nil || in.line == nil {
		return nil
	}
	err := in.line.Close()
	in.line = nil
	if in.chip != nil {
		_ = in.chip.Close()
		in.chip = nil
	}
	return err
}
