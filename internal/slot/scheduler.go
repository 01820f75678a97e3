// Package slot derives the FLARM/OGN two-slot transmit schedule from GNSS time
// and the PPS edge.
package slot

import (
	"math/rand/v2"
	"time"

	"ognbase/internal/protocol"
)

// Slot timing in milliseconds relative to the PPS edge.
const (
	DelayPPSToSentence = 200 // typical PPS to NMEA commit latency
	Slot0Start         = 400
	Slot1Start         = 800
	SlotAdvance        = 100 // windows open early, centered in the dead time
	SlotDuration       = 400
	CommitCoalesce     = 500

	// Jitter bounds inside a slot window.
	JitterMin = 10
	JitterMax = SlotDuration - 10

	staleAfter = 1000
)

// Fix is the scheduler's view of the GNSS receiver.
type Fix struct {
	Valid bool
	// UTC is the time carried by the last committed sentence.
	UTC time.Time
	// CommitMs is the monotonic time at which that sentence was committed.
	CommitMs int64
}

// Input is everything one scheduling step looks at.
type Input struct {
	NowMs int64
	// PPSMs is the last latched PPS edge, 0 if none was ever seen.
	PPSMs int64
	Fix   Fix
}

// Decision is the outcome of one step.
type Decision struct {
	Slot uint8
	// Time is the UTC second used for channel selection.
	Time uint32
	// Changed is set when a new slot window opened on this step.
	Changed bool
	// Hold is set while the timing reference is stale: the caller keeps the
	// current channel and does not transmit.
	Hold bool
	// Missed is set on the step that dropped a second's Tx opportunity.
	Missed bool
}

// State is the scheduler's rolling state, exposed for telemetry.
type State struct {
	Slot     uint8  `json:"slot"`
	Anchor0  int64  `json:"anchor0_ms"`
	Anchor1  int64  `json:"anchor1_ms"`
	TxMarker int64  `json:"tx_marker_ms"`
	TxDelay  int64  `json:"tx_delay_ms"`
	Jitter   int64  `json:"jitter_ms"`
	Time     uint32 `json:"time"`
	TxBlock  bool   `json:"tx_blocked"`
	Misses   uint64 `json:"misses"`
}

// TxEarliest is the first instant a transmission is permitted.
func (s State) TxEarliest() int64 { return s.TxMarker + s.TxDelay }

// RandRange returns a uniform value in [lo, hi).
type RandRange func(lo, hi int64) int64

func defaultRand(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Int64N(hi-lo)
}

// Scheduler is not safe for concurrent use; it belongs to the radio loop.
type Scheduler struct {
	timing       protocol.Timing
	txMin, txMax int64
	rnd          RandRange

	st State

	haveCommit bool
	prevCommit int64
	lastMiss   int64
	haveMiss   bool
}

func New(desc protocol.Descriptor, rnd RandRange) *Scheduler {
	if rnd == nil {
		rnd = defaultRand
	}
	s := &Scheduler{rnd: rnd}
	s.SetProtocol(desc)
	return s
}

// SetProtocol switches timing class and retransmission interval.
func (s *Scheduler) SetProtocol(desc protocol.Descriptor) {
	s.timing = desc.Timing
	s.txMin = desc.TxIntervalMin.Milliseconds()
	s.txMax = desc.TxIntervalMax.Milliseconds()
	s.st.Anchor0, s.st.Anchor1 = 0, 0
}

func (s *Scheduler) State() State { return s.st }

// Step computes the slot and channel time for in.NowMs. It never blocks.
func (s *Scheduler) Step(in Input) Decision {
	commit := in.Fix.CommitMs
	if s.haveCommit && commit-s.prevCommit < CommitCoalesce && commit >= s.prevCommit {
		// GGA and RMC for the same second commit a few hundred ms apart.
		commit = s.prevCommit
	} else {
		s.prevCommit = commit
		s.haveCommit = true
	}

	var corr int64 = DelayPPSToSentence
	if in.PPSMs != 0 {
		corr = mod(commit-in.PPSMs, 1000)
	}
	// secondStart is the local time the sentence's UTC second began.
	secondStart := commit - corr
	utcAt := func(ms int64) uint32 {
		if in.Fix.UTC.IsZero() {
			return 0
		}
		return uint32(in.Fix.UTC.Unix() + floorDiv(ms-secondStart, 1000))
	}

	if !in.Fix.Valid || s.timing == protocol.TimingContinuous {
		s.st.Slot = 0
		s.st.Time = utcAt(in.NowMs)
		s.st.TxBlock = false
		return Decision{Slot: 0, Time: s.st.Time}
	}

	ref := secondStart
	if in.PPSMs != 0 {
		ref = in.PPSMs
	}
	elapsed := in.NowMs - ref

	if elapsed >= Slot0Start-SlotAdvance+staleAfter {
		// The reference stopped advancing: drop this second.
		d := Decision{Slot: s.st.Slot, Time: s.st.Time, Hold: true}
		s.st.TxBlock = true
		if !s.haveMiss || in.NowMs-s.lastMiss >= staleAfter {
			s.st.Misses++
			s.lastMiss = in.NowMs
			s.haveMiss = true
			d.Missed = true
		}
		return d
	}

	var slot uint8
	var anchor, second int64
	switch {
	case elapsed >= Slot1Start-SlotAdvance:
		slot, anchor, second = 1, ref+Slot1Start-SlotAdvance, ref
	case elapsed >= Slot0Start-SlotAdvance:
		slot, anchor, second = 0, ref+Slot0Start-SlotAdvance, ref
	default:
		// Before slot 0 opens we are still in slot 1 of the previous second.
		slot, anchor, second = 1, ref-staleAfter+Slot1Start-SlotAdvance, ref-staleAfter
	}

	d := Decision{Slot: slot, Time: utcAt(second)}
	current := s.st.Anchor0
	if slot == 1 {
		current = s.st.Anchor1
	}
	if anchor != current {
		if slot == 0 {
			s.st.Anchor0 = anchor
		} else {
			s.st.Anchor1 = anchor
		}
		s.st.Jitter = s.rnd(JitterMin, JitterMax)
		s.st.TxMarker = anchor
		s.st.TxDelay = SlotAdvance + s.st.Jitter
		s.st.TxBlock = false
		d.Changed = true
	}
	s.st.Slot = slot
	s.st.Time = d.Time
	return d
}

// TxPermitted reports whether the jitter or retransmission delay has elapsed.
func (s *Scheduler) TxPermitted(nowMs int64) bool {
	if s.st.TxBlock {
		return false
	}
	return nowMs >= s.st.TxEarliest()
}

// MarkTransmitted defers the next transmission by a random retransmission
// interval.
func (s *Scheduler) MarkTransmitted(nowMs int64) {
	s.st.TxMarker = nowMs
	s.st.TxDelay = s.rnd(s.txMin, s.txMax+1)
}

func mod(a, m int64) int64 {
	r := a % m
	if r < 0 {
		r += m
	}
	return r
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
