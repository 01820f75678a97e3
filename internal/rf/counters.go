package rf

import (
	"errors"
	"sync/atomic"

	"ognbase/internal/protocol"
)

// Counters are written by the radio loop and read by telemetry.
type Counters struct {
	Tx             atomic.Uint64
	TxErrors       atomic.Uint64
	Rx             atomic.Uint64
	Accepted       atomic.Uint64
	Checksum       atomic.Uint64
	ChipCRC        atomic.Uint64
	LineErrors     atomic.Uint64
	FEC            atomic.Uint64
	Empty          atomic.Uint64
	Malformed      atomic.Uint64
	Spoofed        atomic.Uint64
	FirstSightings atomic.Uint64
	SlotMisses     atomic.Uint64
	QueueDrops     atomic.Uint64
}

// CounterSnapshot is a point-in-time copy of Counters.
type CounterSnapshot struct {
	Tx             uint64 `json:"tx"`
	TxErrors       uint64 `json:"tx_errors"`
	Rx             uint64 `json:"rx"`
	Accepted       uint64 `json:"accepted"`
	Checksum       uint64 `json:"reject_checksum"`
	ChipCRC        uint64 `json:"reject_chip_crc"`
	LineErrors     uint64 `json:"line_errors"`
	FEC            uint64 `json:"reject_fec"`
	Empty          uint64 `json:"reject_empty"`
	Malformed      uint64 `json:"reject_malformed"`
	Spoofed        uint64 `json:"reject_spoof"`
	FirstSightings uint64 `json:"first_sightings"`
	SlotMisses     uint64 `json:"slot_misses"`
	QueueDrops     uint64 `json:"queue_drops"`
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Tx:             c.Tx.Load(),
		TxErrors:       c.TxErrors.Load(),
		Rx:             c.Rx.Load(),
		Accepted:       c.Accepted.Load(),
		Checksum:       c.Checksum.Load(),
		ChipCRC:        c.ChipCRC.Load(),
		LineErrors:     c.LineErrors.Load(),
		FEC:            c.FEC.Load(),
		Empty:          c.Empty.Load(),
		Malformed:      c.Malformed.Load(),
		Spoofed:        c.Spoofed.Load(),
		FirstSightings: c.FirstSightings.Load(),
		SlotMisses:     c.SlotMisses.Load(),
		QueueDrops:     c.QueueDrops.Load(),
	}
}

// countReject files a decode error under its reason and returns the reason.
func (c *Counters) countReject(err error) string {
	switch {
	case errors.Is(err, protocol.ErrChecksum):
		c.Checksum.Add(1)
		return "checksum"
	case errors.Is(err, protocol.ErrFEC):
		c.FEC.Add(1)
		return "fec"
	case errors.Is(err, protocol.ErrEmptyFrame):
		c.Empty.Add(1)
		return "empty"
	default:
		c.Malformed.Add(1)
		return "malformed"
	}
}
