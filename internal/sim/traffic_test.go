package sim

import (
	"math"
	"testing"
	"time"

	"ognbase/internal/plausibility"
	"ognbase/internal/protocol"
)

func TestTrafficSim_Targets_CountAndInvariants(t *testing.T) {
	s := TrafficSim{
		CenterLatDeg: 45.0,
		CenterLonDeg: -122.0,
		BaseAltM:     1200,
		GroundKt:     80,
		RadiusNm:     2.0,
		Protocol:     protocol.OGNTP,
		BaseAddr:     0x123400,
	}

	now := time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)
	tgts := s.Targets(now, 5)
	if len(tgts) != 5 {
		t.Fatalf("expected 5 targets, got %d", len(tgts))
	}

	radiusDeg := s.RadiusNm / 60.0
	maxLonDeg := radiusDeg / math.Cos(s.CenterLatDeg*math.Pi/180.0)

	seen := map[uint32]bool{}
	for i, tgt := range tgts {
		if math.IsNaN(tgt.LatDeg) || math.IsNaN(tgt.LonDeg) {
			t.Fatalf("tgt[%d] position invalid: %v,%v", i, tgt.LatDeg, tgt.LonDeg)
		}
		if tgt.CourseDeg < 0 || tgt.CourseDeg >= 360 {
			t.Fatalf("tgt[%d] course out of range: %v", i, tgt.CourseDeg)
		}
		if math.Abs(tgt.LatDeg-s.CenterLatDeg) > radiusDeg*1.01 {
			t.Fatalf("tgt[%d] lat offset too large", i)
		}
		if math.Abs(tgt.LonDeg-s.CenterLonDeg) > maxLonDeg*1.01 {
			t.Fatalf("tgt[%d] lon offset too large", i)
		}
		if tgt.Protocol != protocol.OGNTP || tgt.AddrType != protocol.AddrOGN {
			t.Fatalf("tgt[%d] protocol/addr type: %v/%v", i, tgt.Protocol, tgt.AddrType)
		}
		if !tgt.Timestamp.Equal(now) {
			t.Fatalf("tgt[%d] timestamp: %v", i, tgt.Timestamp)
		}
		if seen[tgt.Addr] {
			t.Fatalf("duplicate addr %06X", tgt.Addr)
		}
		seen[tgt.Addr] = true
	}
	if tgts[0].Addr != 0x123400 || tgts[4].Addr != 0x123404 {
		t.Fatalf("addresses: %06X..%06X", tgts[0].Addr, tgts[4].Addr)
	}
}

func TestTrafficSim_Targets_ZeroCount(t *testing.T) {
	if got := (TrafficSim{}).Targets(time.Now(), 0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := (TrafficSim{}).States(time.Now()); got != nil {
		t.Fatalf("expected nil for zero Count, got %v", got)
	}
}

func TestTrafficSim_Period(t *testing.T) {
	// 1 NM radius at 60 kt: 2*pi NM take 2*pi minutes.
	s := TrafficSim{RadiusNm: 1, GroundKt: 60}
	turns := 2 * math.Pi
	want := time.Duration(turns * float64(time.Minute))
	if d := s.Period() - want; d < -time.Millisecond || d > time.Millisecond {
		t.Fatalf("period: got %s want %s", s.Period(), want)
	}
}

func TestTrafficSim_MovementIsPlausible(t *testing.T) {
	s := TrafficSim{CenterLatDeg: 47, CenterLonDeg: 8, GroundKt: 60, RadiusNm: 1, Count: 3}
	f := plausibility.New(plausibility.Config{HistorySize: 16})

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		now := start.Add(time.Duration(i) * 2 * time.Second)
		for _, tgt := range s.States(now) {
			v := f.Check(tgt.Addr, tgt.LatDeg, tgt.LonDeg, tgt.SpeedMS(), now)
			if i > 0 && v != plausibility.Accepted {
				t.Fatalf("step %d addr %06X: verdict %v", i, tgt.Addr, v)
			}
		}
	}
}
