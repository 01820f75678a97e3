package rf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"ognbase/internal/plausibility"
	"ognbase/internal/protocol"
	"ognbase/internal/traffic"
)

// Recorder receives every frame handed to the decoder. replay.Writer is one.
type Recorder interface {
	WriteFrame(now time.Time, id protocol.ID, frame []byte) error
}

// Pipeline is the receive half of the station: decode, plausibility check,
// tracking and hand-off to exporters. It is owned by one goroutine.
type Pipeline struct {
	table    *protocol.Table
	filter   *plausibility.Filter
	store    *traffic.Store
	out      chan protocol.AircraftState
	rec      Recorder
	logger   *log.Logger
	counters *Counters

	// ignore is the station's own address, dropped on receive.
	ignore    uint32
	hasIgnore bool
}

// NewPipeline builds a pipeline delivering accepted states to a channel of
// queueSize entries. When the channel is full, states are dropped and counted.
func NewPipeline(table *protocol.Table, filter *plausibility.Filter, store *traffic.Store, queueSize int, logger *log.Logger) *Pipeline {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		table:    table,
		filter:   filter,
		store:    store,
		out:      make(chan protocol.AircraftState, queueSize),
		logger:   logger,
		counters: &Counters{},
	}
}

// SetRecorder records raw frames ahead of decode; nil stops recording.
func (p *Pipeline) SetRecorder(r Recorder) { p.rec = r }

// IgnoreAddr drops frames carrying addr, the station's own beacon.
func (p *Pipeline) IgnoreAddr(addr uint32) {
	p.ignore, p.hasIgnore = addr, true
}

// Accepted is the stream of validated aircraft states.
func (p *Pipeline) Accepted() <-chan protocol.AircraftState { return p.out }

func (p *Pipeline) Counters() *Counters { return p.counters }

func (p *Pipeline) Store() *traffic.Store { return p.store }

// Ingest runs one received frame through decode and the plausibility filter.
// It reports the decoded state and whether it was accepted. frame is only
// read during the call.
func (p *Pipeline) Ingest(id protocol.ID, frame []byte, rssi int, at time.Time) (protocol.AircraftState, bool) {
	p.counters.Rx.Add(1)
	if p.rec != nil {
		if err := p.rec.WriteFrame(at, id, frame); err != nil {
			p.logger.Warn("frame record failed", "err", err)
		}
	}

	s, err := p.table.Decode(id, frame)
	if err != nil {
		reason := p.counters.countReject(err)
		p.logger.Debug("decode reject", "protocol", id, "reason", reason, "err", err)
		return protocol.AircraftState{}, false
	}
	s.Timestamp = at
	s.RSSI = rssi
	s.Raw = bytes.Clone(s.Raw)

	if p.hasIgnore && s.Addr == p.ignore {
		return s, false
	}

	v := p.filter.Check(s.Addr, s.LatDeg, s.LonDeg, s.SpeedMS(), at)
	switch v {
	case plausibility.Rejected:
		p.counters.Spoofed.Add(1)
		p.logger.Debug("implausible position", "addr", hexAddr(s.Addr), "lat", s.LatDeg, "lon", s.LonDeg, "speed_kt", s.SpeedKt)
	case plausibility.FirstSighting:
		p.counters.FirstSightings.Add(1)
	}
	if !p.filter.Pass(v) {
		return s, false
	}

	p.counters.Accepted.Add(1)
	p.store.Upsert(at, s)
	select {
	case p.out <- s:
	default:
		p.counters.QueueDrops.Add(1)
	}
	return s, true
}

func hexAddr(a uint32) string {
	return fmt.Sprintf("%06X", a)
}
