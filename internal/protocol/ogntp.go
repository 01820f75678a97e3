package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// OGNTP payload, big endian. The 32-bit header carries the address (bits
// 0-23), address type (24-25), stealth (26), no-track (27) and aircraft type
// (28-31). Vertical speed is one signed byte in 50 ft/min steps.
func encodeOGNTP(p []byte, s *AircraftState) {
	be := binary.BigEndian
	hdr := s.Addr & 0xFFFFFF
	hdr |= uint32(s.AddrType&0x03) << 24
	if s.Stealth {
		hdr |= 1 << 26
	}
	if s.NoTrack {
		hdr |= 1 << 27
	}
	hdr |= uint32(s.AircraftType&0x0f) << 28
	be.PutUint32(p[0:4], hdr)
	be.PutUint32(p[4:8], uint32(degE7(s.LatDeg)))
	be.PutUint32(p[8:12], uint32(degE7(s.LonDeg)))
	be.PutUint16(p[12:14], uint16(int16(roundClamp(s.AltM, math.MinInt16, math.MaxInt16))))
	be.PutUint16(p[14:16], uint16(roundClamp(s.SpeedKt*10, 0, math.MaxUint16)))
	be.PutUint16(p[16:18], courseTenths(s.CourseDeg))
	p[18] = byte(int8(roundClamp(s.VSFpm/50, math.MinInt8, math.MaxInt8)))
}

func decodeOGNTP(p []byte) (AircraftState, error) {
	be := binary.BigEndian
	hdr := be.Uint32(p[0:4])
	s := AircraftState{
		Addr:         hdr & 0xFFFFFF,
		AddrType:     AddrType((hdr >> 24) & 0x03),
		Stealth:      hdr&(1<<26) != 0,
		NoTrack:      hdr&(1<<27) != 0,
		AircraftType: uint8(hdr >> 28),
		LatDeg:       float64(int32(be.Uint32(p[4:8]))) / 1e7,
		LonDeg:       float64(int32(be.Uint32(p[8:12]))) / 1e7,
		AltM:         float64(int16(be.Uint16(p[12:14]))),
		SpeedKt:      float64(be.Uint16(p[14:16])) / 10,
		VSFpm:        float64(int8(p[18])) * 50,
	}
	course := be.Uint16(p[16:18])
	if course >= 3600 {
		return AircraftState{}, fmt.Errorf("%w: course %d", ErrMalformed, course)
	}
	s.CourseDeg = float64(course) / 10
	if !validLatLon(s.LatDeg, s.LonDeg) {
		return AircraftState{}, fmt.Errorf("%w: position %.7f,%.7f", ErrMalformed, s.LatDeg, s.LonDeg)
	}
	return s, nil
}
