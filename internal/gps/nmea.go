package gps

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

type nmeaSentence struct {
	Type string
	// Fields is the comma-split NMEA payload (excluding $ and checksum).
	Fields []string
}

func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum")
	}
	got := byte(0)
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != want[0] {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	parts := strings.Split(payload, ",")
	typeField := parts[0]
	if len(typeField) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	// Accept GNxxx/GPxxx, etc; normalize to last 3 chars.
	t := typeField
	if len(t) > 3 {
		t = t[len(t)-3:]
	}
	return nmeaSentence{Type: strings.ToUpper(t), Fields: parts}, nil
}

type nmeaState struct {
	device string
	baud   int

	latDeg float64
	lonDeg float64
	latOK  bool
	lonOK  bool

	altM  float64
	altOK bool

	groundKt float64
	gsOK     bool

	trackDeg float64
	trkOK    bool

	fixQuality int
	satellites int
	hdop       float64

	// date is midnight UTC of the last RMC date field.
	date     time.Time
	utc      time.Time
	commitMs int64

	rmcValid bool
	ggaValid bool

	lastFix time.Time
	lastErr string
}

// apply folds one sentence into the state. nowMs is the monotonic time the
// sentence finished arriving.
func (s *nmeaState) apply(nowUTC time.Time, nowMs int64, sent nmeaSentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, nowMs, sent.Fields)
	case "GGA":
		return s.applyGGA(nowUTC, nowMs, sent.Fields)
	default:
		return false
	}
}

func (s *nmeaState) valid() bool {
	return s.rmcValid && s.latOK && s.lonOK
}

func (s *nmeaState) snapshot() Snapshot {
	out := Snapshot{
		Enabled:    true,
		Valid:      s.valid(),
		Source:     "nmea",
		Device:     s.device,
		Baud:       s.baud,
		LatDeg:     s.latDeg,
		LonDeg:     s.lonDeg,
		UTC:        s.utc,
		CommitMs:   s.commitMs,
		FixQuality: s.fixQuality,
		Satellites: s.satellites,
		HDOP:       s.hdop,
	}
	if s.altOK {
		v := s.altM
		out.AltM = &v
	}
	if s.gsOK {
		v := s.groundKt
		out.GroundKt = &v
	}
	if s.trkOK {
		v := s.trackDeg
		out.TrackDeg = &v
	}
	if !s.lastFix.IsZero() {
		out.LastFixUTC = s.lastFix.UTC().Format(time.RFC3339Nano)
	}
	out.LastError = s.lastErr
	return out
}

// commitTime records the sentence's UTC time of day against the last known
// date.
func (s *nmeaState) commitTime(field string, nowMs int64) bool {
	tod, ok := parseNMEATime(field)
	if !ok || s.date.IsZero() {
		return false
	}
	s.utc = s.date.Add(tod)
	s.commitMs = nowMs
	return true
}

// RMC: Recommended Minimum Specific GNSS Data
// Fields (NMEA 0183 v2.3):
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//	9: date (ddmmyy)
func (s *nmeaState) applyRMC(nowUTC time.Time, nowMs int64, f []string) bool {
	if len(f) < 10 {
		return false
	}
	if d, ok := parseNMEADate(f[9]); ok {
		s.date = d
	}
	updated := s.commitTime(f[1], nowMs)

	if strings.TrimSpace(f[2]) != "A" {
		// Receivers keep sending time on a void fix.
		s.rmcValid = false
		return updated
	}
	s.rmcValid = true

	lat, latOK := parseNMEALatLon(f[3], f[4])
	lon, lonOK := parseNMEALatLon(f[5], f[6])
	if latOK {
		s.latDeg = lat
		s.latOK = true
	}
	if lonOK {
		s.lonDeg = lon
		s.lonOK = true
	}

	if gs, ok := parseFloat(f[7]); ok {
		s.groundKt = gs
		s.gsOK = true
	}
	if trk, ok := parseFloat(f[8]); ok {
		s.trackDeg = math.Mod(trk+360.0, 360.0)
		s.trkOK = true
	}

	if s.latOK && s.lonOK {
		s.lastFix = nowUTC
		return true
	}
	return updated
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type
//	1: time
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
//	6: fix quality (0=invalid)
//	7: number of satellites
//	8: HDOP
//	9: altitude (meters)
//
// 10: units (M)
func (s *nmeaState) applyGGA(nowUTC time.Time, nowMs int64, f []string) bool {
	if len(f) < 11 {
		return false
	}
	updated := s.commitTime(f[1], nowMs)

	q, err := strconv.Atoi(strings.TrimSpace(f[6]))
	if err != nil || q == 0 {
		s.fixQuality = 0
		s.ggaValid = false
		return updated
	}
	s.fixQuality = q
	s.ggaValid = true
	if sats, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.satellites = sats
	}
	if hdop, ok := parseFloat(f[8]); ok {
		s.hdop = hdop
	}

	lat, latOK := parseNMEALatLon(f[2], f[3])
	lon, lonOK := parseNMEALatLon(f[4], f[5])
	if latOK {
		s.latDeg = lat
		s.latOK = true
		updated = true
	}
	if lonOK {
		s.lonDeg = lon
		s.lonOK = true
		updated = true
	}
	if altM, ok := parseFloat(f[9]); ok {
		s.altM = altM
		s.altOK = true
		updated = true
	}
	if s.latOK && s.lonOK {
		s.lastFix = nowUTC
	}
	return updated
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEATime parses hhmmss[.sss] into a time of day.
func parseNMEATime(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if len(v) < 6 {
		return 0, false
	}
	h, err1 := strconv.Atoi(v[0:2])
	m, err2 := strconv.Atoi(v[2:4])
	sec, err3 := strconv.ParseFloat(v[4:], 64)
	if err1 != nil || err2 != nil || err3 != nil || h > 23 || m > 59 || sec >= 61 {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return d + time.Duration(math.Round(sec*1000))*time.Millisecond, true
}

// parseNMEADate parses ddmmyy. Two-digit years are taken as 20yy.
func parseNMEADate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if len(v) != 6 {
		return time.Time{}, false
	}
	t, err := time.Parse("020106", v)
	if err != nil {
		return time.Time{}, false
	}
	if t.Year() < 2000 {
		t = t.AddDate(100, 0, 0)
	}
	return t.UTC(), true
}

// parseNMEALatLon parses NMEA lat/lon in ddmm.mmmm or dddmm.mmmm plus hemisphere.
//
// For latitude (N/S): ddmm.mmmm
// For longitude (E/W): dddmm.mmmm
func parseNMEALatLon(v string, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" || (hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W") {
		return 0, false
	}

	// Split degrees/minutes at the decimal point by taking the last two digits of the integer part as minutes.
	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, false
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil {
		return 0, false
	}

	dec := float64(deg) + (mins / 60.0)
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, true
}
