// Package radio drives the sub-GHz transceiver: chip detection, per-protocol
// modem setup and a polled Tx/Rx state machine.
package radio

import (
	"errors"
	"fmt"

	"ognbase/internal/protocol"
)

var (
	ErrRadioAbsent = errors.New("radio: no supported transceiver found")
	ErrTxTimeout   = errors.New("radio: transmit timed out")
	ErrTxDisabled  = errors.New("radio: transmit disabled")
	ErrUnsupported = errors.New("radio: protocol not supported by chip")
	ErrBusy        = errors.New("radio: operation in progress")
)

// Bus is a full-duplex register transport. spi.Device implements it.
type Bus interface {
	Transfer(tx, rx []byte) error
}

type Chip uint8

const (
	ChipNone Chip = iota
	ChipSX1276
	ChipSX1262
	ChipLoopback
)

func (c Chip) String() string {
	switch c {
	case ChipSX1276:
		return "sx1276"
	case ChipSX1262:
		return "sx1262"
	case ChipLoopback:
		return "loopback"
	default:
		return "none"
	}
}

// Event is an interrupt condition reported by Poll.
type Event uint8

const (
	EventNone Event = iota
	EventTxDone
	EventRxDone
	EventRxCRCError
)

// ModemConfig is everything Configure programs into the chip.
type ModemConfig struct {
	Desc        protocol.Descriptor
	FrequencyHz uint32
	TxPowerDBm  int
}

// Modem is the per-chip capability set. Implementations are not safe for
// concurrent use; the Driver serializes access.
type Modem interface {
	Chip() Chip
	// Probe reads the chip's identification and reports a match.
	Probe() bool
	Supports(id protocol.ID) bool
	MaxTxPowerDBm() int
	MaxFreqCorrKHz() int

	Configure(cfg ModemConfig) error
	SetFrequency(hz uint32) error
	StartRx() error
	StartTx(frame []byte) error
	Poll() (Event, error)
	// ReadFrame copies a received frame into buf and returns its length and
	// RSSI in dBm.
	ReadFrame(buf []byte) (n int, rssi int, err error)
	Standby() error
	Sleep() error
}

// Select returns the first candidate whose identification matches. If none
// does, reset is called once and the candidates are probed again.
func Select(candidates []Modem, reset func() error) (Modem, error) {
	if m := probeAll(candidates); m != nil {
		return m, nil
	}
	if reset != nil {
		if err := reset(); err != nil {
			return nil, fmt.Errorf("%w: reset: %v", ErrRadioAbsent, err)
		}
		if m := probeAll(candidates); m != nil {
			return m, nil
		}
	}
	return nil, ErrRadioAbsent
}

func probeAll(candidates []Modem) Modem {
	for _, m := range candidates {
		if m != nil && m.Probe() {
			return m
		}
	}
	return nil
}

type TxPower uint8

const (
	TxPowerFull TxPower = iota
	TxPowerLow
	TxPowerOff
)

func ParseTxPower(s string) (TxPower, error) {
	switch s {
	case "", "full":
		return TxPowerFull, nil
	case "low":
		return TxPowerLow, nil
	case "off":
		return TxPowerOff, nil
	default:
		return TxPowerFull, fmt.Errorf("unknown tx power %q", s)
	}
}

func (p TxPower) String() string {
	switch p {
	case TxPowerLow:
		return "low"
	case TxPowerOff:
		return "off"
	default:
		return "full"
	}
}

const (
	txPowerCapDBm = 17
	txPowerLowDBm = 2
)

// TxPowerDBm resolves the configured level against the regional and chip
// limits.
func TxPowerDBm(p TxPower, regionMaxDBm, chipMaxDBm int) int {
	if p != TxPowerFull {
		return txPowerLowDBm
	}
	dbm := min(regionMaxDBm, chipMaxDBm, txPowerCapDBm)
	if dbm < txPowerLowDBm {
		dbm = txPowerLowDBm
	}
	return dbm
}
