package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFrame = errors.New("protocol: empty frame")
	ErrChecksum   = errors.New("protocol: checksum mismatch")
	ErrFEC        = errors.New("protocol: uncorrectable FEC error")
	ErrMalformed  = errors.New("protocol: malformed frame")
	ErrShortFrame = errors.New("protocol: short frame")
)

// seal finishes a frame whose prefix and payload are already in place:
// the payload is whitened and the integrity trailer appended. The checksum
// covers the payload as transmitted, after whitening.
func seal(d *Descriptor, frame []byte) {
	payload := frame[d.PayloadOffset : d.PayloadOffset+d.PayloadSize]
	trailer := frame[d.PayloadOffset+d.PayloadSize : d.FrameSize()]

	if d.Whitening == WhiteNiceRF {
		whiten(payload)
	}

	switch d.CRCType {
	case CRCGallager:
		ldpcEncode(trailer, payload)
	case CRC8:
		trailer[0] = crc8(p3iCRCSeed, payload)
	case CRC16CCITT0000, CRC16CCITTFFFF:
		crc := checksum16(d, payload)
		trailer[0] = byte(crc >> 8)
		trailer[1] = byte(crc)
	}
}

func checksum16(d *Descriptor, payload []byte) uint16 {
	var crc uint16
	if d.CRCType == CRC16CCITTFFFF {
		crc = 0xFFFF
	}
	crc = crc16CCITT(crc, d.CRCPreamble)
	return crc16CCITT(crc, payload)
}

// open verifies the trailer of a received frame and returns a fresh,
// dewhitened copy of its payload. The input is not modified.
func open(d *Descriptor, frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(frame) < d.FrameSize() {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrShortFrame, len(frame), d.FrameSize())
	}

	body := append([]byte(nil), frame[d.PayloadOffset:d.FrameSize()]...)
	payload := body[:d.PayloadSize]
	trailer := body[d.PayloadSize:]

	switch d.CRCType {
	case CRCGallager:
		if _, ok := ldpcDecode(body); !ok {
			return nil, ErrFEC
		}
	case CRC8:
		if crc8(p3iCRCSeed, payload) != trailer[0] {
			return nil, ErrChecksum
		}
	case CRC16CCITT0000, CRC16CCITTFFFF:
		crc := checksum16(d, payload)
		if byte(crc>>8) != trailer[0] || byte(crc) != trailer[1] {
			return nil, ErrChecksum
		}
	}

	if d.Whitening == WhiteNiceRF {
		whiten(payload)
	}
	return payload[:d.PayloadSize:d.PayloadSize], nil
}
