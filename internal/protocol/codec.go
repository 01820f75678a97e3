package protocol

import (
	"fmt"
	"sync/atomic"
)

type payloadCodec struct {
	// prefix writes the network header ahead of the payload; checkPrefix
	// validates it on receive. Both are optional.
	prefix      func(d *Descriptor, hdr []byte)
	checkPrefix func(d *Descriptor, hdr []byte) error

	encode func(p []byte, s *AircraftState)
	decode func(p []byte) (AircraftState, error)
}

var payloadCodecs = [numIDs]payloadCodec{
	Legacy: {encode: encodeLegacy, decode: decodeLegacy},
	OGNTP:  {encode: encodeOGNTP, decode: decodeOGNTP},
	P3I:    {prefix: p3iPrefix, checkPrefix: p3iCheckPrefix, encode: encodeP3I, decode: decodeP3I},
	FANET:  {encode: encodeFANET, decode: decodeFANET},
	UAT:    {encode: encodeUAT, decode: decodeUAT},
}

// Table dispatches encode and decode by protocol ID.
type Table struct {
	txDisabled atomic.Bool
	pnet       atomic.Pointer[PrivateNetwork]
}

func NewTable() *Table {
	return &Table{}
}

// SetTxDisabled gates Encode: while set, Encode produces nothing.
func (t *Table) SetTxDisabled(disabled bool) { t.txDisabled.Store(disabled) }

func (t *Table) TxDisabled() bool { return t.txDisabled.Load() }

// SetPrivateNetwork enables FANET payload encryption; nil disables it.
func (t *Table) SetPrivateNetwork(p *PrivateNetwork) { t.pnet.Store(p) }

// MaxFrameSize is a buffer size sufficient for any frame Encode produces.
func (t *Table) MaxFrameSize() int {
	n := 0
	for _, d := range descriptors {
		if d.FrameSize() > n {
			n = d.FrameSize()
		}
	}
	return n + 16
}

// Encode serializes s for protocol id into buf and returns the frame length.
// It returns 0 when transmission is disabled or buf is too small.
func (t *Table) Encode(id ID, buf []byte, s *AircraftState) int {
	if t.TxDisabled() || !id.Valid() || s == nil {
		return 0
	}
	d := &descriptors[id]
	size := d.FrameSize()
	if len(buf) < size {
		return 0
	}
	frame := buf[:size]
	clear(frame)

	c := payloadCodecs[id]
	if c.prefix != nil {
		c.prefix(d, frame[:d.PayloadOffset])
	}
	c.encode(frame[d.PayloadOffset:d.PayloadOffset+d.PayloadSize], s)
	seal(d, frame)

	if id == FANET {
		if p := t.pnet.Load(); p != nil {
			plain := append([]byte(nil), frame...)
			return p.Seal(buf, plain)
		}
	}
	return size
}

// Decode verifies and parses a received frame. Errors wrap ErrEmptyFrame,
// ErrShortFrame, ErrChecksum, ErrFEC or ErrMalformed.
func (t *Table) Decode(id ID, frame []byte) (AircraftState, error) {
	if !id.Valid() {
		return AircraftState{}, fmt.Errorf("%w: unknown protocol %d", ErrMalformed, id)
	}
	if len(frame) == 0 {
		return AircraftState{}, ErrEmptyFrame
	}
	d := &descriptors[id]

	if id == FANET && len(frame) > d.FrameSize() {
		p := t.pnet.Load()
		if p == nil {
			return AircraftState{}, fmt.Errorf("%w: encrypted frame without private network key", ErrMalformed)
		}
		plain, err := p.Open(frame)
		if err != nil {
			return AircraftState{}, err
		}
		frame = plain
	}

	c := payloadCodecs[id]
	if c.checkPrefix != nil && len(frame) >= d.PayloadOffset {
		if err := c.checkPrefix(d, frame[:d.PayloadOffset]); err != nil {
			return AircraftState{}, err
		}
	}
	payload, err := open(d, frame)
	if err != nil {
		return AircraftState{}, err
	}
	s, err := c.decode(payload)
	if err != nil {
		return AircraftState{}, err
	}
	s.Protocol = id
	s.Raw = payload
	return s, nil
}
