package protocol

import "time"

// AddrType identifies the address space an aircraft address belongs to.
type AddrType uint8

const (
	AddrRandom AddrType = iota
	AddrICAO
	AddrFLARM
	AddrOGN
	AddrP3I
	AddrFANET
)

func (a AddrType) String() string {
	switch a {
	case AddrRandom:
		return "random"
	case AddrICAO:
		return "icao"
	case AddrFLARM:
		return "flarm"
	case AddrOGN:
		return "ogn"
	case AddrP3I:
		return "p3i"
	case AddrFANET:
		return "fanet"
	default:
		return "unknown"
	}
}

// Aircraft types as carried by FLARM-family protocols.
const (
	AircraftUnknown    uint8 = 0
	AircraftGlider     uint8 = 1
	AircraftTowplane   uint8 = 2
	AircraftHelicopter uint8 = 3
	AircraftParachute  uint8 = 4
	AircraftDropplane  uint8 = 5
	AircraftHangglider uint8 = 6
	AircraftParaglider uint8 = 7
	AircraftPowered    uint8 = 8
	AircraftJet        uint8 = 9
	AircraftUFO        uint8 = 10
	AircraftBalloon    uint8 = 11
	AircraftAirship    uint8 = 12
	AircraftUAV        uint8 = 13
	AircraftStatic     uint8 = 15
)

// AircraftState is one decoded position report.
//
// Timestamp and RSSI are filled in by the receive path; codecs never put them
// on the wire.
type AircraftState struct {
	Addr         uint32   `json:"addr"`
	AddrType     AddrType `json:"addr_type"`
	AircraftType uint8    `json:"aircraft_type"`

	LatDeg    float64 `json:"lat"`
	LonDeg    float64 `json:"lon"`
	AltM      float64 `json:"alt_m"`
	SpeedKt   float64 `json:"speed_kt"`
	CourseDeg float64 `json:"course_deg"`
	VSFpm     float64 `json:"vs_fpm"`

	Timestamp time.Time `json:"timestamp"`
	RSSI      int       `json:"rssi"`
	Protocol  ID        `json:"protocol"`

	Stealth bool `json:"stealth,omitempty"`
	NoTrack bool `json:"no_track,omitempty"`

	Raw []byte `json:"-"`
}

// SpeedMS returns the ground speed in meters per second.
func (s AircraftState) SpeedMS() float64 {
	return s.SpeedKt * 1852.0 / 3600.0
}
