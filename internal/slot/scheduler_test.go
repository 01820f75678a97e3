package slot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"ognbase/internal/protocol"
)

var utc0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func fixAt(commitMs int64) Fix {
	return Fix{Valid: true, UTC: utc0, CommitMs: commitMs}
}

func TestStep_AnchorsFollowPPS(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		t0 := rapid.Int64Range(10_000, 1_000_000_000).Draw(t, "t0")
		commit := t0 + rapid.Int64Range(50, 900).Draw(t, "latency")
		elapsed := rapid.Int64Range(0, 1299).Draw(t, "elapsed")

		s := New(protocol.MustLookup(protocol.Legacy), nil)
		d := s.Step(Input{NowMs: t0 + elapsed, PPSMs: t0, Fix: fixAt(commit)})
		require.False(t, d.Hold)
		require.True(t, d.Changed)
		st := s.State()

		switch {
		case elapsed >= 700:
			require.Equal(t, uint8(1), d.Slot)
			require.GreaterOrEqual(t, st.Anchor1, t0+700)
			require.Less(t, st.Anchor1, t0+800)
			require.Equal(t, uint32(utc0.Unix()), d.Time)
		case elapsed >= 300:
			require.Equal(t, uint8(0), d.Slot)
			require.GreaterOrEqual(t, st.Anchor0, t0+300)
			require.Less(t, st.Anchor0, t0+400)
			require.Equal(t, uint32(utc0.Unix()), d.Time)
		default:
			require.Equal(t, uint8(1), d.Slot)
			require.Equal(t, t0-300, st.Anchor1)
			require.Equal(t, uint32(utc0.Unix()-1), d.Time)
		}
	})
}

func TestStep_TxInsideSlotWindow(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		t0 := rapid.Int64Range(10_000, 1_000_000_000).Draw(t, "t0")
		slotStart := int64(Slot0Start)
		now := t0 + 300
		if rapid.Bool().Draw(t, "slot1") {
			slotStart = Slot1Start
			now = t0 + 700
		}

		s := New(protocol.MustLookup(protocol.OGNTP), nil)
		s.Step(Input{NowMs: now, PPSMs: t0, Fix: fixAt(t0 + 300)})
		earliest := s.State().TxEarliest()

		require.GreaterOrEqual(t, earliest, t0+slotStart)
		require.Less(t, earliest, t0+slotStart+SlotDuration)
		require.False(t, s.TxPermitted(earliest-1))
		require.True(t, s.TxPermitted(earliest))
	})
}

func TestStep_ChangedOncePerSlot(t *testing.T) {
	s := New(protocol.MustLookup(protocol.Legacy), nil)
	t0 := int64(50_000)
	var changes int
	for now := t0 + 300; now < t0+1000; now += 10 {
		if s.Step(Input{NowMs: now, PPSMs: t0, Fix: fixAt(t0 + 250)}).Changed {
			changes++
		}
	}
	assert.Equal(t, 2, changes)
}

func TestStep_StalePPSDropsSecond(t *testing.T) {
	s := New(protocol.MustLookup(protocol.Legacy), nil)
	t0 := int64(100_000)
	s.Step(Input{NowMs: t0 + 400, PPSMs: t0, Fix: fixAt(t0 + 300)})
	require.False(t, s.State().TxBlock)

	d := s.Step(Input{NowMs: t0 + 1300, PPSMs: t0, Fix: fixAt(t0 + 300)})
	require.True(t, d.Hold)
	require.True(t, d.Missed)
	require.Equal(t, uint8(0), d.Slot, "channel must not move while holding")
	require.False(t, s.TxPermitted(t0+1300))
	require.Equal(t, uint64(1), s.State().Misses)

	d = s.Step(Input{NowMs: t0 + 1500, PPSMs: t0, Fix: fixAt(t0 + 300)})
	require.True(t, d.Hold)
	require.False(t, d.Missed)
	require.Equal(t, uint64(1), s.State().Misses)

	d = s.Step(Input{NowMs: t0 + 2300, PPSMs: t0, Fix: fixAt(t0 + 300)})
	require.True(t, d.Missed)
	require.Equal(t, uint64(2), s.State().Misses)

	// PPS resumes.
	t1 := t0 + 3000
	d = s.Step(Input{NowMs: t1 + 320, PPSMs: t1, Fix: fixAt(t1 + 300)})
	require.False(t, d.Hold)
	require.True(t, d.Changed)
	require.False(t, s.State().TxBlock)
}

func TestStep_WithoutPPSUsesSentenceLatency(t *testing.T) {
	s := New(protocol.MustLookup(protocol.Legacy), nil)
	commit := int64(70_000)
	// The second began DelayPPSToSentence before the commit.
	d := s.Step(Input{NowMs: commit + 150, Fix: fixAt(commit)})
	require.Equal(t, uint8(0), d.Slot)
	require.Equal(t, commit-DelayPPSToSentence+Slot0Start-SlotAdvance, s.State().Anchor0)
	require.Equal(t, uint32(utc0.Unix()), d.Time)
}

func TestStep_CommitsCoalesced(t *testing.T) {
	s := New(protocol.MustLookup(protocol.Legacy), nil)
	s.Step(Input{NowMs: 80_300, Fix: fixAt(80_000)})
	a0 := s.State().Anchor0

	// GGA for the same second lands 450 ms after RMC.
	s.Step(Input{NowMs: 80_460, Fix: fixAt(80_450)})
	require.Equal(t, a0, s.State().Anchor0)
	require.Equal(t, uint8(0), s.State().Slot)
}

func TestStep_TimeAdvancesWithPPS(t *testing.T) {
	s := New(protocol.MustLookup(protocol.Legacy), nil)
	pps := int64(200_000)
	fix := fixAt(pps + 350)

	d := s.Step(Input{NowMs: pps + 800, PPSMs: pps, Fix: fix})
	require.Equal(t, uint32(utc0.Unix()), d.Time)

	// Next PPS arrives before the next sentence.
	d = s.Step(Input{NowMs: pps + 1310, PPSMs: pps + 1000, Fix: fix})
	require.Equal(t, uint8(0), d.Slot)
	require.Equal(t, uint32(utc0.Unix()+1), d.Time)
}

func TestStep_InvalidFixPinsSlotZero(t *testing.T) {
	s := New(protocol.MustLookup(protocol.Legacy), nil)
	t0 := int64(40_000)
	for _, e := range []int64{0, 350, 750, 1200, 5000} {
		d := s.Step(Input{NowMs: t0 + e, PPSMs: t0, Fix: Fix{UTC: utc0, CommitMs: t0 + 300}})
		require.Equal(t, uint8(0), d.Slot)
		require.False(t, d.Hold)
	}
}

func TestStep_ContinuousProtocolsUseSlotZero(t *testing.T) {
	for _, id := range []protocol.ID{protocol.FANET, protocol.P3I, protocol.UAT} {
		s := New(protocol.MustLookup(id), nil)
		d := s.Step(Input{NowMs: 90_800, PPSMs: 90_000, Fix: fixAt(90_300)})
		assert.Equal(t, uint8(0), d.Slot, id.String())
		assert.False(t, d.Changed, id.String())
	}
}

func TestMarkTransmitted_UsesProtocolInterval(t *testing.T) {
	var gotLo, gotHi int64
	rnd := func(lo, hi int64) int64 {
		gotLo, gotHi = lo, hi
		return lo
	}
	s := New(protocol.MustLookup(protocol.FANET), rnd)
	s.MarkTransmitted(10_000)
	assert.Equal(t, int64(4000), gotLo)
	assert.Equal(t, int64(5001), gotHi)
	assert.False(t, s.TxPermitted(13_999))
	assert.True(t, s.TxPermitted(14_000))
}

func TestPPS_Snapshot(t *testing.T) {
	var p PPS
	require.Zero(t, p.Snapshot())
	p.Latch(1234)
	require.Equal(t, int64(1234), p.Snapshot())
}
