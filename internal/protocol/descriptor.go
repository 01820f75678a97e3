package protocol

import (
	"fmt"
	"strings"
	"time"
)

// ID is the closed set of supported air protocols.
type ID uint8

const (
	Legacy ID = iota
	OGNTP
	P3I
	FANET
	UAT

	numIDs
)

var idNames = [numIDs]string{
	Legacy: "legacy",
	OGNTP:  "ogntp",
	P3I:    "p3i",
	FANET:  "fanet",
	UAT:    "uat",
}

func (id ID) String() string {
	if id < numIDs {
		return idNames[id]
	}
	return fmt.Sprintf("protocol(%d)", uint8(id))
}

func (id ID) Valid() bool { return id < numIDs }

func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// ParseID maps a configuration name to a protocol ID.
func ParseID(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range idNames {
		if name == s {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown protocol %q", s)
}

// IDs lists every protocol in table order.
func IDs() []ID {
	out := make([]ID, 0, numIDs)
	for id := ID(0); id < numIDs; id++ {
		out = append(out, id)
	}
	return out
}

type Modulation uint8

const (
	ModFSK Modulation = iota
	ModLoRa
)

type CRCType uint8

const (
	CRCNone CRCType = iota
	CRCGallager
	CRC8
	CRC16CCITT0000
	CRC16CCITTFFFF
)

type Whitening uint8

const (
	WhiteNone Whitening = iota
	WhiteManchester
	WhiteNiceRF
)

// Timing selects between the two-slot GNSS-anchored schedule and free-running
// transmission.
type Timing uint8

const (
	TimingSlotted Timing = iota
	TimingContinuous
)

// LoRa holds the modem parameters for LoRa-modulated protocols.
type LoRa struct {
	SpreadingFactor uint8
	BandwidthHz     uint32
	CodingRate      uint8 // 4/(4+CodingRate)
}

// Descriptor is the static radio and framing profile of one protocol.
type Descriptor struct {
	ID         ID
	Modulation Modulation

	BitrateBps  uint32
	DeviationHz uint32
	LoRa        LoRa

	Preamble    byte
	PreambleLen int
	SyncWord    []byte

	// PayloadOffset bytes of network prefix precede the payload.
	PayloadOffset int
	PayloadSize   int
	CRCType       CRCType
	CRCSize       int
	// CRCPreamble is folded into the checksum ahead of the payload.
	CRCPreamble []byte

	Whitening Whitening
	NetID     uint32

	TxIntervalMin time.Duration
	TxIntervalMax time.Duration
	Timing        Timing
}

// FrameSize is the on-air length before line coding.
func (d Descriptor) FrameSize() int {
	return d.PayloadOffset + d.PayloadSize + d.CRCSize
}

// AirSize is the number of bytes handed to the radio after line coding.
func (d Descriptor) AirSize() int {
	if d.Whitening == WhiteManchester {
		return 2 * d.FrameSize()
	}
	return d.FrameSize()
}

const p3iCRCSeed = 0x71

var descriptors = [numIDs]Descriptor{
	Legacy: {
		ID:            Legacy,
		Modulation:    ModFSK,
		BitrateBps:    100000,
		DeviationHz:   50000,
		Preamble:      0x55,
		PreambleLen:   1,
		SyncWord:      []byte{0x99, 0xA5, 0xA9, 0x55, 0x66, 0x65, 0x96},
		PayloadSize:   24,
		CRCType:       CRC16CCITTFFFF,
		CRCSize:       2,
		CRCPreamble:   []byte{0x31, 0xFA, 0xB6},
		Whitening:     WhiteManchester,
		TxIntervalMin: 600 * time.Millisecond,
		TxIntervalMax: 1400 * time.Millisecond,
		Timing:        TimingSlotted,
	},
	OGNTP: {
		ID:            OGNTP,
		Modulation:    ModFSK,
		BitrateBps:    100000,
		DeviationHz:   50000,
		Preamble:      0xAA,
		PreambleLen:   1,
		SyncWord:      []byte{0xAA, 0x66, 0x55, 0xA5, 0x96, 0x99, 0x96, 0x5A},
		PayloadSize:   20,
		CRCType:       CRCGallager,
		CRCSize:       6,
		Whitening:     WhiteManchester,
		TxIntervalMin: 600 * time.Millisecond,
		TxIntervalMax: 1400 * time.Millisecond,
		Timing:        TimingSlotted,
	},
	P3I: {
		ID:            P3I,
		Modulation:    ModFSK,
		BitrateBps:    38400,
		DeviationHz:   9600,
		Preamble:      0xAA,
		PreambleLen:   10,
		SyncWord:      []byte{0x2D, 0xD4},
		PayloadOffset: 6,
		PayloadSize:   24,
		CRCType:       CRC8,
		CRCSize:       1,
		Whitening:     WhiteNiceRF,
		NetID:         0x00000000,
		TxIntervalMin: 1400 * time.Millisecond,
		TxIntervalMax: 1600 * time.Millisecond,
		Timing:        TimingContinuous,
	},
	FANET: {
		ID:            FANET,
		Modulation:    ModLoRa,
		LoRa:          LoRa{SpreadingFactor: 7, BandwidthHz: 250000, CodingRate: 1},
		PreambleLen:   8,
		SyncWord:      []byte{0xF1},
		PayloadSize:   15,
		CRCType:       CRCNone,
		Whitening:     WhiteNone,
		TxIntervalMin: 4000 * time.Millisecond,
		TxIntervalMax: 5000 * time.Millisecond,
		Timing:        TimingContinuous,
	},
	UAT: {
		ID:            UAT,
		Modulation:    ModFSK,
		BitrateBps:    1041667,
		DeviationHz:   312500,
		SyncWord:      []byte{0xEA, 0xCD, 0xDA, 0x4E},
		PayloadSize:   34,
		CRCType:       CRCNone,
		Whitening:     WhiteNone,
		TxIntervalMin: 900 * time.Millisecond,
		TxIntervalMax: 1100 * time.Millisecond,
		Timing:        TimingContinuous,
	},
}

// Lookup returns a copy of the descriptor for id.
func Lookup(id ID) (Descriptor, bool) {
	if !id.Valid() {
		return Descriptor{}, false
	}
	d := descriptors[id]
	d.SyncWord = append([]byte(nil), d.SyncWord...)
	d.CRCPreamble = append([]byte(nil), d.CRCPreamble...)
	return d, true
}

// MustLookup is Lookup for IDs known to be valid.
func MustLookup(id ID) Descriptor {
	d, ok := Lookup(id)
	if !ok {
		panic(fmt.Sprintf("protocol: no descriptor for %v", id))
	}
	return d
}
