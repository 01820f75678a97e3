// Package plausibility rejects position reports that imply an aircraft moved
// further than its own reported speed allows.
package plausibility

import (
	"time"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusM is the mean Earth radius used for great-circle distance.
	EarthRadiusM = 6371000.0
	// Slack multiplies the speed-derived bound.
	Slack = 1.2
	// MinBoundM absorbs GNSS jitter for stationary targets.
	MinBoundM = 10.0
)

type Verdict uint8

const (
	// FirstSighting: no prior report of this address was remembered.
	FirstSighting Verdict = iota
	Accepted
	Rejected
)

func (v Verdict) String() string {
	switch v {
	case FirstSighting:
		return "first_sighting"
	case Accepted:
		return "accepted"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Config struct {
	// HistorySize is the number of remembered sightings.
	HistorySize int
	// TestMode bypasses the filter; every report is accepted.
	TestMode bool
	// AcceptFirstSighting passes reports with no prior history.
	AcceptFirstSighting bool
}

// Filter is owned by the radio loop and not safe for concurrent use.
type Filter struct {
	cfg  Config
	hist *History
}

func New(cfg Config) *Filter {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	return &Filter{cfg: cfg, hist: NewHistory(cfg.HistorySize)}
}

func (f *Filter) History() *History { return f.hist }

// Check judges a fresh report and updates the history.
func (f *Filter) Check(addr uint32, latDeg, lonDeg, speedMS float64, ts time.Time) Verdict {
	if f.cfg.TestMode {
		return Accepted
	}

	i, ok := f.hist.Find(addr)
	if !ok {
		f.hist.Push(Entry{Addr: addr, LatDeg: latDeg, LonDeg: lonDeg, Timestamp: ts, Hits: 1})
		return FirstSighting
	}

	prev := f.hist.At(i)
	dist := DistanceM(prev.LatDeg, prev.LonDeg, latDeg, lonDeg)
	bound := MaxDistanceM(speedMS, ts.Sub(prev.Timestamp))

	f.hist.Clear(i)
	if dist > bound {
		return Rejected
	}
	f.hist.Push(Entry{Addr: addr, LatDeg: latDeg, LonDeg: lonDeg, Timestamp: ts, Hits: prev.Hits + 1})
	return Accepted
}

// Pass maps a verdict to accept or drop under the filter's policy.
func (f *Filter) Pass(v Verdict) bool {
	switch v {
	case Accepted:
		return true
	case FirstSighting:
		return f.cfg.AcceptFirstSighting
	default:
		return false
	}
}

// DistanceM is the haversine great-circle distance in meters.
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadiusM
}

// MaxDistanceM is the furthest a target at speedMS can plausibly move in dt.
func MaxDistanceM(speedMS float64, dt time.Duration) float64 {
	if dt < 0 {
		dt = 0
	}
	d := speedMS * dt.Seconds() * Slack
	if d < MinBoundM {
		return MinBoundM
	}
	return d
}
