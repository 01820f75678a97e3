package sim

import (
	"time"

	"ognbase/internal/gps"
)

// OwnshipSim stands in for the GNSS receiver of a station without one: a
// fixed position whose sentence commits land CommitDelay into every UTC
// second.
type OwnshipSim struct {
	LatDeg float64
	LonDeg float64
	AltM   float64

	CommitDelay time.Duration

	// Now and NowMs default to the wall clock and a monotonic count from
	// the first call.
	Now   func() time.Time
	NowMs func() int64
}

// Snapshot reports the fix the receiver would have published by now.
func (s *OwnshipSim) Snapshot() gps.Snapshot {
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.NowMs == nil {
		start := time.Now()
		s.NowMs = func() int64 { return time.Since(start).Milliseconds() + 1 }
	}
	delay := s.CommitDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	now := s.Now().UTC()
	nowMs := s.NowMs()
	sec := now.Truncate(time.Second)
	into := now.Sub(sec)
	if into < delay {
		// This second's sentence has not arrived yet.
		sec = sec.Add(-time.Second)
		into += time.Second
	}
	commitMs := nowMs - (into - delay).Milliseconds()

	alt := s.AltM
	zero := 0.0
	return gps.Snapshot{
		Enabled:    true,
		Valid:      true,
		Source:     "sim",
		UTC:        sec,
		CommitMs:   commitMs,
		LatDeg:     s.LatDeg,
		LonDeg:     s.LonDeg,
		AltM:       &alt,
		GroundKt:   &zero,
		TrackDeg:   &zero,
		FixQuality: 1,
		Satellites: 8,
		LastFixUTC: sec.Format(time.RFC3339),
	}
}
