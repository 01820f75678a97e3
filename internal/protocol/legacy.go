package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Legacy payload, little endian:
//
//	0..2   address
//	3      address type (bits 0-2), stealth (3), no-track (4)
//	4      aircraft type (bits 0-3)
//	5..12  latitude, longitude in 1e-7 degrees
//	13..14 altitude, meters
//	15..16 ground speed, 0.1 kt
//	17..18 course, 0.1 degree
//	19..20 vertical speed, ft/min
func encodeLegacy(p []byte, s *AircraftState) {
	le := binary.LittleEndian
	putUint24LE(p[0:3], s.Addr)
	p[3] = stateFlags(s)
	p[4] = s.AircraftType & 0x0f
	le.PutUint32(p[5:9], uint32(degE7(s.LatDeg)))
	le.PutUint32(p[9:13], uint32(degE7(s.LonDeg)))
	le.PutUint16(p[13:15], uint16(int16(roundClamp(s.AltM, math.MinInt16, math.MaxInt16))))
	le.PutUint16(p[15:17], uint16(roundClamp(s.SpeedKt*10, 0, math.MaxUint16)))
	le.PutUint16(p[17:19], courseTenths(s.CourseDeg))
	le.PutUint16(p[19:21], uint16(int16(roundClamp(s.VSFpm, math.MinInt16, math.MaxInt16))))
}

func decodeLegacy(p []byte) (AircraftState, error) {
	le := binary.LittleEndian
	s := AircraftState{
		Addr:         uint24LE(p[0:3]),
		AircraftType: p[4] & 0x0f,
		LatDeg:       float64(int32(le.Uint32(p[5:9]))) / 1e7,
		LonDeg:       float64(int32(le.Uint32(p[9:13]))) / 1e7,
		AltM:         float64(int16(le.Uint16(p[13:15]))),
		SpeedKt:      float64(le.Uint16(p[15:17])) / 10,
		VSFpm:        float64(int16(le.Uint16(p[19:21]))),
	}
	if err := applyStateFlags(&s, p[3]); err != nil {
		return AircraftState{}, err
	}
	course := le.Uint16(p[17:19])
	if course >= 3600 {
		return AircraftState{}, fmt.Errorf("%w: course %d", ErrMalformed, course)
	}
	s.CourseDeg = float64(course) / 10
	if !validLatLon(s.LatDeg, s.LonDeg) {
		return AircraftState{}, fmt.Errorf("%w: position %.7f,%.7f", ErrMalformed, s.LatDeg, s.LonDeg)
	}
	return s, nil
}

func stateFlags(s *AircraftState) byte {
	f := byte(s.AddrType) & 0x07
	if s.Stealth {
		f |= 1 << 3
	}
	if s.NoTrack {
		f |= 1 << 4
	}
	return f
}

func applyStateFlags(s *AircraftState, f byte) error {
	at := AddrType(f & 0x07)
	if at > AddrFANET {
		return fmt.Errorf("%w: address type %d", ErrMalformed, at)
	}
	s.AddrType = at
	s.Stealth = f&(1<<3) != 0
	s.NoTrack = f&(1<<4) != 0
	return nil
}
