package plausibility

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2024, 7, 14, 10, 0, 0, 0, time.UTC)

// northOf returns the latitude d meters north of the equator on the prime
// meridian.
func northOf(d float64) float64 {
	return d / EarthRadiusM * 180 / math.Pi
}

func TestCheck_StationaryJitterAccepted(t *testing.T) {
	f := New(Config{HistorySize: 8})
	require.Equal(t, FirstSighting, f.Check(0xABCDEF, 0, 0, 0, t0))
	require.Equal(t, Accepted, f.Check(0xABCDEF, northOf(5), 0, 0, t0.Add(5*time.Second)))
}

func TestCheck_TeleportRejected(t *testing.T) {
	f := New(Config{HistorySize: 8})
	f.Check(0xABCDEF, 0, 0, 0, t0)
	require.Equal(t, Rejected, f.Check(0xABCDEF, northOf(50), 0, 0, t0.Add(5*time.Second)))

	// The stale entry is dropped, so the next report starts over.
	_, ok := f.History().Find(0xABCDEF)
	require.False(t, ok)
	require.Equal(t, FirstSighting, f.Check(0xABCDEF, northOf(50), 0, 0, t0.Add(6*time.Second)))
}

func TestCheck_SpeedBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		speed := rapid.Float64Range(0, 300).Draw(t, "speed")
		dt := time.Duration(rapid.IntRange(1, 60).Draw(t, "dt")) * time.Second
		frac := rapid.Float64Range(0, 2).Draw(t, "frac")

		bound := MaxDistanceM(speed, dt)
		moved := bound * frac
		f := New(Config{HistorySize: 4})
		f.Check(1, 0, 0, speed, t0)
		v := f.Check(1, northOf(moved), 0, speed, t0.Add(dt))

		// Stay clear of the boundary where float rounding decides.
		switch {
		case frac < 0.999:
			require.Equal(t, Accepted, v)
		case frac > 1.001:
			require.Equal(t, Rejected, v)
		}
	})
}

func TestCheck_AcceptRefreshesToNewest(t *testing.T) {
	f := New(Config{HistorySize: 3})
	f.Check(1, 0, 0, 0, t0)
	f.Check(2, 0, 0, 0, t0)
	f.Check(3, 0, 0, 0, t0)

	require.Equal(t, Accepted, f.Check(1, 0, 0, 0, t0.Add(time.Second)))
	i, ok := f.History().Find(1)
	require.True(t, ok)
	require.Equal(t, f.History().Cap()-1, i)
	require.Equal(t, uint32(2), f.History().At(i).Hits)

	// Address 2 is now the oldest and goes first.
	f.Check(4, 0, 0, 0, t0)
	_, ok = f.History().Find(2)
	require.False(t, ok)
}

func TestHistory_FIFOEviction(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "capacity")
		f := New(Config{HistorySize: n})
		for addr := uint32(0); addr <= uint32(n); addr++ {
			f.Check(addr, 1, 1, 0, t0)
		}
		_, ok := f.History().Find(0)
		require.False(t, ok, "first address must be evicted")
		for addr := uint32(1); addr <= uint32(n); addr++ {
			_, ok := f.History().Find(addr)
			require.True(t, ok, "address %d", addr)
		}
		require.LessOrEqual(t, f.History().Len(), n)
	})
}

func TestCheck_TestModeBypasses(t *testing.T) {
	f := New(Config{HistorySize: 4, TestMode: true})
	require.Equal(t, Accepted, f.Check(9, 0, 0, 0, t0))
	require.Equal(t, Accepted, f.Check(9, 10, 10, 0, t0))
	require.Zero(t, f.History().Len())
}

func TestPass_Policy(t *testing.T) {
	strict := New(Config{})
	assert.True(t, strict.Pass(Accepted))
	assert.False(t, strict.Pass(FirstSighting))
	assert.False(t, strict.Pass(Rejected))

	lenient := New(Config{AcceptFirstSighting: true})
	assert.True(t, lenient.Pass(FirstSighting))
	assert.False(t, lenient.Pass(Rejected))
}

func TestDistanceM_KnownPair(t *testing.T) {
	// One degree of latitude on a 6371 km sphere.
	assert.InDelta(t, 111194.93, DistanceM(0, 0, 1, 0), 0.1)
	assert.Zero(t, DistanceM(47.1, 8.2, 47.1, 8.2))
}

func TestMaxDistanceM_Floor(t *testing.T) {
	assert.Equal(t, MinBoundM, MaxDistanceM(0, time.Minute))
	assert.Equal(t, MinBoundM, MaxDistanceM(50, -time.Second))
	assert.InDelta(t, 600.0, MaxDistanceM(50, 10*time.Second), 1e-9)
}
