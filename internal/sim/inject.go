package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"ognbase/internal/protocol"
)

// Sink takes on-air frames, after line coding. radio.Loopback is one.
type Sink interface {
	Inject(frame []byte, rssi int)
}

// Source produces the targets that are on the air at now.
type Source interface {
	States(now time.Time) []protocol.AircraftState
}

// Injector encodes aircraft states the way a remote transmitter would and
// hands the result to a Sink.
type Injector struct {
	table *protocol.Table
	sink  Sink
	rssi  int

	frame []byte
	air   []byte
}

func NewInjector(table *protocol.Table, sink Sink, rssi int) *Injector {
	if table == nil {
		table = protocol.NewTable()
	}
	n := table.MaxFrameSize()
	return &Injector{
		table: table,
		sink:  sink,
		rssi:  rssi,
		frame: make([]byte, n),
		air:   make([]byte, 2*n),
	}
}

// Inject encodes s with its own protocol.
func (in *Injector) Inject(s protocol.AircraftState) error {
	desc, ok := protocol.Lookup(s.Protocol)
	if !ok {
		return fmt.Errorf("sim: unknown protocol %d", s.Protocol)
	}
	n := in.table.Encode(s.Protocol, in.frame, &s)
	if n == 0 {
		return fmt.Errorf("sim: %s encode produced no frame", s.Protocol)
	}
	out := in.frame[:n]
	if desc.Whitening == protocol.WhiteManchester {
		m := protocol.ManchesterEncode(in.air, out)
		out = in.air[:m]
	}
	in.sink.Inject(out, in.rssi)
	return nil
}

// Run injects every target of src once per interval until ctx is done.
func Run(ctx context.Context, src Source, in *Injector, interval time.Duration, logger *log.Logger) error {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, s := range src.States(now) {
				if err := in.Inject(s); err != nil {
					logger.Warn("sim inject failed", "addr", fmt.Sprintf("%06X", s.Addr), "err", err)
				}
			}
		}
	}
}
