package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	uatPayloadLong = 1

	uatQualifierICAO      = 0
	uatQualifierAnonymous = 1
)

// UAT emitter categories for the aircraft types that have one.
var uatEmitter = map[uint8]byte{
	AircraftUnknown:    0,
	AircraftPowered:    1,
	AircraftJet:        3,
	AircraftHelicopter: 7,
	AircraftGlider:     9,
	AircraftBalloon:    10,
	AircraftParachute:  11,
	AircraftParaglider: 12,
	AircraftUAV:        14,
}

func uatAircraftType(emitter byte) uint8 {
	for t, e := range uatEmitter {
		if e == emitter {
			return t
		}
	}
	return AircraftUnknown
}

// uatLatLon converts the 23-bit latitude and 24-bit longitude fields.
func uatLatLon(rawLat, rawLon uint32) (lat, lon float64) {
	lat = float64(rawLat) * 360.0 / 16777216.0
	lon = float64(rawLon) * 360.0 / 16777216.0
	if lat > 90 {
		lat -= 180
	}
	if lon > 180 {
		lon -= 360
	}
	return lat, lon
}

func uatAltM(raw uint32) float64 {
	return float64(int64(raw)*25-1025) / feetPerMeter
}

// uatVelocity turns north and east velocity components (kt) into ground speed
// and true course.
func uatVelocity(ns, ew int64) (speedKt, courseDeg float64) {
	speedKt = math.Hypot(float64(ns), float64(ew))
	if ns == 0 && ew == 0 {
		return 0, 0
	}
	courseDeg = normCourse(math.Atan2(float64(ew), float64(ns)) * 180 / math.Pi)
	return speedKt, courseDeg
}

// UAT long ADS-B payload: header, state vector and mode status category.
//
//	0      payload type (bits 3-7), address qualifier (0-2)
//	1..3   address
//	4..9   latitude (23 bits), longitude (24 bits), altitude type (1 bit)
//	10..11 pressure altitude in 25 ft steps (12 bits), NIC (4 bits)
//	12..16 N/S velocity, E/W velocity (sign + 10 bits each), vertical rate (source, sign, 9 bits)
//	17     emitter category
func encodeUAT(p []byte, s *AircraftState) {
	q := byte(uatQualifierAnonymous)
	if s.AddrType == AddrICAO {
		q = uatQualifierICAO
	}
	p[0] = uatPayloadLong<<3 | q
	p[1] = byte(s.Addr >> 16)
	p[2] = byte(s.Addr >> 8)
	p[3] = byte(s.Addr)

	lat, lon := s.LatDeg, s.LonDeg
	if lat < 0 {
		lat += 180
	}
	if lon < 0 {
		lon += 360
	}
	rawLat := uint32(roundClamp(lat*16777216.0/360.0, 0, 1<<23-1))
	rawLon := uint32(roundClamp(lon*16777216.0/360.0, 0, 1<<24-1))
	p[4] = byte(rawLat >> 15)
	p[5] = byte(rawLat >> 7)
	p[6] = byte(rawLat<<1) | byte(rawLon>>23)&0x01
	p[7] = byte(rawLon >> 15)
	p[8] = byte(rawLon >> 7)
	p[9] = byte(rawLon << 1)

	alt := uint16(roundClamp((s.AltM*feetPerMeter+1025)/25, 1, 4095))
	binary.BigEndian.PutUint16(p[10:12], alt<<4|0x8)

	rad := normCourse(s.CourseDeg) * math.Pi / 180
	ns := roundClamp(s.SpeedKt*math.Cos(rad), -1021, 1021)
	ew := roundClamp(s.SpeedKt*math.Sin(rad), -1021, 1021)
	vv := roundClamp(s.VSFpm/64, -510, 510)

	w := bitWriter{p: p[12:17]}
	putSignMag(&w, ns, 10)
	putSignMag(&w, ew, 10)
	w.put(0, 1) // vertical rate source: barometric
	putSignMag(&w, vv, 9)

	p[17] = uatEmitter[s.AircraftType]
}

// putSignMag writes a sign bit and magnitude+1, leaving 0 for "no data".
func putSignMag(w *bitWriter, v int64, bits int) {
	var sign uint32
	if v < 0 {
		sign = 1
		v = -v
	}
	w.put(sign, 1)
	w.put(uint32(v+1), bits)
}

func getSignMag(r *bitReader, bits int) int64 {
	sign := r.get(1)
	mag := int64(r.get(bits))
	if mag == 0 {
		return 0
	}
	v := mag - 1
	if sign != 0 {
		v = -v
	}
	return v
}

func decodeUAT(p []byte) (AircraftState, error) {
	if t := p[0] >> 3; t != uatPayloadLong {
		return AircraftState{}, fmt.Errorf("%w: uat payload type %d", ErrMalformed, t)
	}
	var s AircraftState
	switch p[0] & 0x07 {
	case uatQualifierICAO:
		s.AddrType = AddrICAO
	case uatQualifierAnonymous:
		s.AddrType = AddrRandom
	default:
		return AircraftState{}, fmt.Errorf("%w: uat address qualifier %d", ErrMalformed, p[0]&0x07)
	}
	s.Addr = uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])

	rawLat := (uint32(p[4]) << 15) | (uint32(p[5]) << 7) | (uint32(p[6]) >> 1)
	rawLon := ((uint32(p[6]) & 0x01) << 23) | (uint32(p[7]) << 15) | (uint32(p[8]) << 7) | (uint32(p[9]) >> 1)
	s.LatDeg, s.LonDeg = uatLatLon(rawLat, rawLon)

	rawAlt := uint32(binary.BigEndian.Uint16(p[10:12]) >> 4)
	if rawAlt == 0 {
		return AircraftState{}, fmt.Errorf("%w: uat altitude unavailable", ErrMalformed)
	}
	s.AltM = uatAltM(rawAlt)

	r := bitReader{p: p[12:17]}
	ns := getSignMag(&r, 10)
	ew := getSignMag(&r, 10)
	r.get(1)
	vv := getSignMag(&r, 9)
	s.SpeedKt, s.CourseDeg = uatVelocity(ns, ew)
	s.VSFpm = float64(vv * 64)

	s.AircraftType = uatAircraftType(p[17])
	return s, nil
}
