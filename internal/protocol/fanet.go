package protocol

import (
	"encoding/binary"
	"fmt"
)

const fanetTypeTracking = 1

// FANET aircraft types mapped onto the FLARM set.
var fanetToFLARM = [8]uint8{
	0: AircraftUnknown,
	1: AircraftParaglider,
	2: AircraftHangglider,
	3: AircraftBalloon,
	4: AircraftGlider,
	5: AircraftPowered,
	6: AircraftHelicopter,
	7: AircraftUAV,
}

func flarmToFANET(t uint8) uint8 {
	for i, v := range fanetToFLARM {
		if v == t {
			return uint8(i)
		}
	}
	return 0
}

// FANET type 1 (tracking) frame:
//
//	0      header, message type in bits 0-5
//	1..3   manufacturer, unique id (little endian)
//	4..6   latitude * 93206, signed
//	7..9   longitude * 46603, signed
//	10..11 online-tracking (15), aircraft type (12-14), alt scale (11), alt m (0-10)
//	12     speed scale (7), 0.5 km/h units (0-6)
//	13     climb scale (7), 0.1 m/s units, signed 7 bit
//	14     heading, 360/256 degrees
func encodeFANET(p []byte, s *AircraftState) {
	p[0] = fanetTypeTracking
	p[1] = byte(s.Addr >> 16)
	p[2] = byte(s.Addr)
	p[3] = byte(s.Addr >> 8)
	putUint24LE(p[4:7], uint32(roundClamp(s.LatDeg*93206, -(1<<23), 1<<23-1)))
	putUint24LE(p[7:10], uint32(roundClamp(s.LonDeg*46603, -(1<<23), 1<<23-1)))

	alt := roundClamp(s.AltM, 0, 2047*4)
	ta := uint16(flarmToFANET(s.AircraftType)&0x07) << 12
	if !s.NoTrack {
		ta |= 1 << 15
	}
	if alt > 2047 {
		ta |= 1<<11 | uint16(roundClamp(float64(alt)/4, 0, 2047))
	} else {
		ta |= uint16(alt)
	}
	binary.LittleEndian.PutUint16(p[10:12], ta)

	p[12] = fanetScaled7(roundClamp(s.SpeedKt*kmhPerKt*2, 0, 127*5), false)
	p[13] = fanetScaled7(roundClamp(s.VSFpm/fpmPerMS*10, -63*5, 63*5), true)
	p[14] = byte(roundClamp(normCourse(s.CourseDeg)*256/360, 0, 256))
}

// fanetScaled7 stores v in 7 bits, switching to 5x units when it does not fit.
func fanetScaled7(v int64, signed bool) byte {
	limit := int64(127)
	if signed {
		limit = 63
	}
	var scale byte
	if v > limit || v < -limit {
		scale = 0x80
		v = roundClamp(float64(v)/5, -limit, limit)
	}
	return scale | byte(v)&0x7f
}

func fanetUnscale7(b byte, signed bool) int64 {
	v := int64(b & 0x7f)
	if signed && v&0x40 != 0 {
		v -= 0x80
	}
	if b&0x80 != 0 {
		v *= 5
	}
	return v
}

func fanetSpeedKt(b byte) float64 { return float64(fanetUnscale7(b, false)) * 0.5 / kmhPerKt }

func fanetClimbFpm(b byte) float64 { return float64(fanetUnscale7(b, true)) / 10 * fpmPerMS }

func fanetAltM(ta uint16) float64 {
	alt := float64(ta & 0x07ff)
	if ta&(1<<11) != 0 {
		alt *= 4
	}
	return alt
}

func decodeFANET(p []byte) (AircraftState, error) {
	if t := p[0] & 0x3f; t != fanetTypeTracking {
		return AircraftState{}, fmt.Errorf("%w: fanet message type %d", ErrMalformed, t)
	}
	ta := binary.LittleEndian.Uint16(p[10:12])
	s := AircraftState{
		Addr:         uint32(p[1])<<16 | uint32(p[3])<<8 | uint32(p[2]),
		AddrType:     AddrFANET,
		AircraftType: fanetToFLARM[(ta>>12)&0x07],
		LatDeg:       float64(int24LE(p[4:7])) / 93206,
		LonDeg:       float64(int24LE(p[7:10])) / 46603,
		AltM:         fanetAltM(ta),
		SpeedKt:      fanetSpeedKt(p[12]),
		VSFpm:        fanetClimbFpm(p[13]),
		CourseDeg:    float64(p[14]) * 360 / 256,
		NoTrack:      ta&(1<<15) == 0,
	}
	if !validLatLon(s.LatDeg, s.LonDeg) {
		return AircraftState{}, fmt.Errorf("%w: position %.5f,%.5f", ErrMalformed, s.LatDeg, s.LonDeg)
	}
	return s, nil
}
