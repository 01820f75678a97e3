package sim

import (
	"testing"
	"time"
)

func TestOwnshipSim_CommitAfterDelay(t *testing.T) {
	wall := time.Date(2025, 12, 20, 19, 0, 5, 450*int(time.Millisecond), time.UTC)
	s := &OwnshipSim{
		LatDeg: 47.1,
		LonDeg: 8.2,
		AltM:   430,
		Now:    func() time.Time { return wall },
		NowMs:  func() int64 { return 10_450 },
	}

	snap := s.Snapshot()
	if !snap.Valid || snap.Source != "sim" {
		t.Fatalf("snapshot not a valid sim fix: %+v", snap)
	}
	if want := time.Date(2025, 12, 20, 19, 0, 5, 0, time.UTC); !snap.UTC.Equal(want) {
		t.Fatalf("utc: got %v want %v", snap.UTC, want)
	}
	// The sentence committed 200 ms into the second, 250 ms ago.
	if snap.CommitMs != 10_200 {
		t.Fatalf("commit: got %d want 10200", snap.CommitMs)
	}
	if snap.AltM == nil || *snap.AltM != 430 {
		t.Fatalf("alt: %v", snap.AltM)
	}
	lat, lon := snap.LatLonE6()
	if lat != 47_100_000 || lon != 8_200_000 {
		t.Fatalf("e6: %d,%d", lat, lon)
	}
}

func TestOwnshipSim_BeforeCommitUsesPreviousSecond(t *testing.T) {
	wall := time.Date(2025, 12, 20, 19, 0, 5, 100*int(time.Millisecond), time.UTC)
	s := &OwnshipSim{
		Now:   func() time.Time { return wall },
		NowMs: func() int64 { return 20_100 },
	}

	snap := s.Snapshot()
	if want := time.Date(2025, 12, 20, 19, 0, 4, 0, time.UTC); !snap.UTC.Equal(want) {
		t.Fatalf("utc: got %v want %v", snap.UTC, want)
	}
	if snap.CommitMs != 19_200 {
		t.Fatalf("commit: got %d want 19200", snap.CommitMs)
	}
	if snap.CommitMs > 20_100 {
		t.Fatalf("commit in the future")
	}
}
