package sim

import (
	"math"
	"time"

	"ognbase/internal/protocol"
)

// nmPerDeg is the length of one degree of latitude in nautical miles.
const nmPerDeg = 60.0

// TrafficSim flies Count targets on one circle around a center point. The
// angular rate follows from GroundKt and RadiusNm, so consecutive reports
// stay within what the reported speed allows.
type TrafficSim struct {
	CenterLatDeg float64
	CenterLonDeg float64
	BaseAltM     float64
	GroundKt     float64
	RadiusNm     float64

	Protocol     protocol.ID
	BaseAddr     uint32
	AircraftType uint8
	Count        int
}

func (s TrafficSim) withDefaults() TrafficSim {
	if s.RadiusNm <= 0 {
		s.RadiusNm = 1.0
	}
	if s.GroundKt <= 0 {
		s.GroundKt = 60
	}
	if s.BaseAltM == 0 {
		s.BaseAltM = 900
	}
	if s.BaseAddr == 0 {
		s.BaseAddr = 0xDD0000
	}
	if s.AircraftType == 0 {
		s.AircraftType = protocol.AircraftGlider
	}
	if !s.Protocol.Valid() {
		s.Protocol = protocol.Legacy
	}
	return s
}

// Period is the time one orbit takes.
func (s TrafficSim) Period() time.Duration {
	s = s.withDefaults()
	hours := 2 * math.Pi * s.RadiusNm / s.GroundKt
	return time.Duration(hours * float64(time.Hour))
}

// States returns Count targets at now.
func (s TrafficSim) States(now time.Time) []protocol.AircraftState {
	return s.Targets(now, s.Count)
}

// Targets returns count targets evenly spaced around the orbit.
func (s TrafficSim) Targets(now time.Time, count int) []protocol.AircraftState {
	if count <= 0 {
		return nil
	}
	s = s.withDefaults()

	period := s.Period()
	radiusDeg := s.RadiusNm / nmPerDeg
	cosLat := math.Cos(s.CenterLatDeg * math.Pi / 180.0)

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	baseTheta := 2 * math.Pi * phase

	addrType := addrTypeFor(s.Protocol)
	out := make([]protocol.AircraftState, 0, count)
	for i := 0; i < count; i++ {
		theta := baseTheta + 2*math.Pi*(float64(i)/float64(count))

		out = append(out, protocol.AircraftState{
			Addr:         (s.BaseAddr + uint32(i)) & 0xFFFFFF,
			AddrType:     addrType,
			AircraftType: s.AircraftType,
			LatDeg:       s.CenterLatDeg + radiusDeg*math.Cos(theta),
			LonDeg:       s.CenterLonDeg + radiusDeg*math.Sin(theta)/cosLat,
			// Stagger altitudes so targets are easy to tell apart.
			AltM:      s.BaseAltM + float64(i)*100,
			SpeedKt:   s.GroundKt,
			CourseDeg: math.Mod(theta*180/math.Pi+90, 360),
			Timestamp: now,
			Protocol:  s.Protocol,
		})
	}
	return out
}

func addrTypeFor(id protocol.ID) protocol.AddrType {
	switch id {
	case protocol.OGNTP:
		return protocol.AddrOGN
	case protocol.P3I:
		return protocol.AddrP3I
	case protocol.FANET:
		return protocol.AddrFANET
	case protocol.UAT:
		return protocol.AddrICAO
	default:
		return protocol.AddrFLARM
	}
}
