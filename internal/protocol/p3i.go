package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

const p3iMagic = 0x24

// The P3I network header is the 32-bit network id, the payload size and the
// CRC seed.
func p3iPrefix(d *Descriptor, hdr []byte) {
	binary.BigEndian.PutUint32(hdr[0:4], d.NetID)
	hdr[4] = byte(d.PayloadSize)
	hdr[5] = p3iCRCSeed
}

func p3iCheckPrefix(d *Descriptor, hdr []byte) error {
	if id := binary.BigEndian.Uint32(hdr[0:4]); id != d.NetID {
		return fmt.Errorf("%w: network id %#08x", ErrMalformed, id)
	}
	if int(hdr[4]) != d.PayloadSize {
		return fmt.Errorf("%w: payload size %d", ErrMalformed, hdr[4])
	}
	return nil
}

// P3I payload, little endian, positions as IEEE-754 float32.
func encodeP3I(p []byte, s *AircraftState) {
	le := binary.LittleEndian
	p[0] = p3iMagic
	putUint24LE(p[1:4], s.Addr)
	p[4] = stateFlags(s)
	p[5] = s.AircraftType
	le.PutUint32(p[6:10], math.Float32bits(float32(s.LatDeg)))
	le.PutUint32(p[10:14], math.Float32bits(float32(s.LonDeg)))
	le.PutUint16(p[14:16], uint16(int16(roundClamp(s.AltM, math.MinInt16, math.MaxInt16))))
	le.PutUint16(p[16:18], uint16(roundClamp(s.SpeedKt*10, 0, math.MaxUint16)))
	le.PutUint16(p[18:20], courseTenths(s.CourseDeg))
	le.PutUint16(p[20:22], uint16(int16(roundClamp(s.VSFpm, math.MinInt16, math.MaxInt16))))
}

func decodeP3I(p []byte) (AircraftState, error) {
	if p[0] != p3iMagic {
		return AircraftState{}, fmt.Errorf("%w: p3i magic %#02x", ErrMalformed, p[0])
	}
	le := binary.LittleEndian
	s := AircraftState{
		Addr:         uint24LE(p[1:4]),
		AircraftType: p[5],
		LatDeg:       float64(math.Float32frombits(le.Uint32(p[6:10]))),
		LonDeg:       float64(math.Float32frombits(le.Uint32(p[10:14]))),
		AltM:         float64(int16(le.Uint16(p[14:16]))),
		SpeedKt:      float64(le.Uint16(p[16:18])) / 10,
		VSFpm:        float64(int16(le.Uint16(p[20:22]))),
	}
	if err := applyStateFlags(&s, p[4]); err != nil {
		return AircraftState{}, err
	}
	course := le.Uint16(p[18:20])
	if course >= 3600 {
		return AircraftState{}, fmt.Errorf("%w: course %d", ErrMalformed, course)
	}
	s.CourseDeg = float64(course) / 10
	if !validLatLon(s.LatDeg, s.LonDeg) {
		return AircraftState{}, fmt.Errorf("%w: position %v,%v", ErrMalformed, s.LatDeg, s.LonDeg)
	}
	return s, nil
}
