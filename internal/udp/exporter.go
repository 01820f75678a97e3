package udp

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"ognbase/internal/protocol"
)

// sender is the part of Broadcaster the exporter needs.
type sender interface {
	Send(payload []byte) error
}

// Exporter drains accepted states and forwards them as JSON.
type Exporter struct {
	out    sender
	logger *log.Logger

	sent   atomic.Uint64
	errors atomic.Uint64
}

func NewExporter(out sender, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.Default()
	}
	return &Exporter{out: out, logger: logger}
}

// Run forwards states until ctx is done or states is closed. Send errors are
// counted and logged at debug; a missing listener must not stall the radio.
func (e *Exporter) Run(ctx context.Context, states <-chan protocol.AircraftState) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if err := e.Export(st); err != nil {
				e.errors.Add(1)
				e.logger.Debug("udp export failed", "addr", st.Addr, "err", err)
			}
		}
	}
}

// Export sends one state.
func (e *Exporter) Export(st protocol.AircraftState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := e.out.Send(b); err != nil {
		return err
	}
	e.sent.Add(1)
	return nil
}

func (e *Exporter) Sent() uint64 { return e.sent.Load() }

func (e *Exporter) Errors() uint64 { return e.errors.Load() }
