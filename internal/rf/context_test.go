package rf

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ognbase/internal/freqplan"
	"ognbase/internal/gps"
	"ognbase/internal/plausibility"
	"ognbase/internal/protocol"
	"ognbase/internal/radio"
	"ognbase/internal/sim"
	"ognbase/internal/slot"
	"ognbase/internal/traffic"
)

var utc0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type staticFix struct{ snap gps.Snapshot }

func (f *staticFix) Snapshot() gps.Snapshot { return f.snap }

type memRecorder struct{ frames [][]byte }

func (m *memRecorder) WriteFrame(_ time.Time, _ protocol.ID, frame []byte) error {
	m.frames = append(m.frames, append([]byte(nil), frame...))
	return nil
}

type rig struct {
	ctx   *Context
	lb    *radio.Loopback
	fix   *staticFix
	pps   *slot.PPS
	nowMs int64
	plan  *freqplan.Plan
}

func newRig(t *testing.T, region freqplan.Region, id protocol.ID, pcfg plausibility.Config, beacon *Beacon) *rig {
	t.Helper()
	logger := log.New(io.Discard)
	plan, err := freqplan.New(region)
	require.NoError(t, err)
	lb := radio.NewLoopback()
	drv, err := radio.NewDriver(lb, plan, radio.Config{Protocol: id}, logger)
	require.NoError(t, err)

	r := &rig{lb: lb, fix: &staticFix{}, pps: &slot.PPS{}, nowMs: 100_000, plan: plan}
	pipe := NewPipeline(protocol.NewTable(), plausibility.New(pcfg), traffic.NewStore(traffic.StoreConfig{}), 4, logger)
	r.ctx = New(Config{Beacon: beacon}, plan, drv, pipe, r.fix, r.pps, func() int64 { return r.nowMs }, logger)
	r.ctx.now = func() time.Time { return utc0.Add(time.Duration(r.nowMs) * time.Millisecond) }
	return r
}

func (r *rig) validFix(commitMs int64) {
	alt, kt, trk := 450.0, 0.0, 0.0
	r.fix.snap = gps.Snapshot{
		Valid:    true,
		UTC:      utc0,
		CommitMs: commitMs,
		LatDeg:   47.1,
		LonDeg:   8.2,
		AltM:     &alt,
		GroundKt: &kt,
		TrackDeg: &trk,
	}
}

func target(id protocol.ID) protocol.AircraftState {
	return protocol.AircraftState{
		Addr:         0xDD1234,
		AddrType:     protocol.AddrFLARM,
		AircraftType: protocol.AircraftGlider,
		LatDeg:       47.2,
		LonDeg:       8.3,
		AltM:         1200,
		SpeedKt:      40,
		CourseDeg:    90,
		Protocol:     id,
	}
}

func TestStep_AutoPlanWaitsForFix(t *testing.T) {
	r := newRig(t, freqplan.Auto, protocol.Legacy, plausibility.Config{}, nil)

	require.NoError(t, r.ctx.Step())
	st := r.ctx.Status()
	assert.False(t, st.PlanReady)
	assert.True(t, st.PlanAuto)
	assert.Equal(t, "idle", st.Radio)
	assert.Zero(t, r.lb.FrequencyHz())

	r.validFix(r.nowMs - 100)
	r.nowMs += 10
	require.NoError(t, r.ctx.Step())
	st = r.ctx.Status()
	assert.True(t, st.PlanReady)
	assert.Equal(t, "eu", st.Region)
	assert.Equal(t, "receiving", st.Radio)
	assert.True(t, st.PlanAuto)
	assert.NotZero(t, r.lb.FrequencyHz())

	fixed := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{}, nil)
	require.NoError(t, fixed.ctx.Step())
	assert.False(t, fixed.ctx.Status().PlanAuto)
}

func TestStep_ChipCRCErrorsReachCounters(t *testing.T) {
	r := newRig(t, freqplan.EU, protocol.FANET, plausibility.Config{}, nil)
	require.NoError(t, r.ctx.Step())

	r.lb.InjectCRCError()
	r.nowMs += 10
	require.NoError(t, r.ctx.Step())
	r.lb.InjectCRCError()
	r.nowMs += 10
	require.NoError(t, r.ctx.Step())
	r.nowMs += 10
	require.NoError(t, r.ctx.Step())

	c := r.ctx.Status().Counters
	assert.Equal(t, uint64(2), c.ChipCRC)
	assert.Zero(t, c.Rx)
}

func TestStep_ManchesterLineErrorsCounted(t *testing.T) {
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{}, nil)
	table := protocol.NewTable()
	buf := make([]byte, table.MaxFrameSize())
	s := target(protocol.Legacy)
	n := table.Encode(protocol.Legacy, buf, &s)
	air := make([]byte, 2*n)
	protocol.ManchesterEncode(air, buf[:n])
	// 11 chip pairs are not valid Manchester symbols.
	air[10] = 0xFF

	r.lb.Inject(air, -75)
	require.NoError(t, r.ctx.Step())
	c := r.ctx.Status().Counters
	assert.Equal(t, uint64(4), c.LineErrors)
	assert.Equal(t, uint64(1), c.Rx)
}

func TestStep_SecondSightingAccepted(t *testing.T) {
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{}, nil)
	inj := sim.NewInjector(nil, r.lb, -90)

	require.NoError(t, inj.Inject(target(protocol.Legacy)))
	require.NoError(t, r.ctx.Step())
	c := r.ctx.Counters().Snapshot()
	require.Equal(t, uint64(1), c.Rx)
	require.Equal(t, uint64(1), c.FirstSightings)
	require.Zero(t, c.Accepted)

	r.nowMs += 1000
	require.NoError(t, inj.Inject(target(protocol.Legacy)))
	require.NoError(t, r.ctx.Step())
	c = r.ctx.Counters().Snapshot()
	require.Equal(t, uint64(1), c.Accepted)

	select {
	case s := <-r.ctx.Accepted():
		assert.Equal(t, uint32(0xDD1234), s.Addr)
		assert.Equal(t, -90, s.RSSI)
		assert.Equal(t, protocol.Legacy, s.Protocol)
		assert.NotEmpty(t, s.Raw)
	default:
		t.Fatal("no accepted state delivered")
	}
	tgt, ok := r.ctx.Store().Get(0xDD1234)
	require.True(t, ok)
	assert.InDelta(t, 47.2, tgt.LatDeg, 1e-6)
}

func TestIngest_RejectsCountedByReason(t *testing.T) {
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{}, nil)
	rec := &memRecorder{}
	r.ctx.SetRecorder(rec)

	table := protocol.NewTable()
	buf := make([]byte, table.MaxFrameSize())
	s := target(protocol.Legacy)
	n := table.Encode(protocol.Legacy, buf, &s)
	frame := append([]byte(nil), buf[:n]...)
	frame[5] ^= 0x01

	_, ok := r.ctx.Ingest(protocol.Legacy, frame, 0, utc0)
	assert.False(t, ok)
	_, ok = r.ctx.Ingest(protocol.Legacy, nil, 0, utc0)
	assert.False(t, ok)
	_, ok = r.ctx.Ingest(protocol.Legacy, frame[:4], 0, utc0)
	assert.False(t, ok)

	c := r.ctx.Counters().Snapshot()
	assert.Equal(t, uint64(1), c.Checksum)
	assert.Equal(t, uint64(1), c.Empty)
	assert.Equal(t, uint64(1), c.Malformed)
	assert.Equal(t, uint64(3), c.Rx)
	assert.Len(t, rec.frames, 3)
}

func TestIngest_TeleportCountedAsSpoof(t *testing.T) {
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{AcceptFirstSighting: true}, nil)
	table := protocol.NewTable()
	buf := make([]byte, table.MaxFrameSize())

	s := target(protocol.Legacy)
	n := table.Encode(protocol.Legacy, buf, &s)
	_, ok := r.ctx.Ingest(protocol.Legacy, buf[:n], 0, utc0)
	require.True(t, ok, "first sighting passes when allowed")

	s.LatDeg += 1
	n = table.Encode(protocol.Legacy, buf, &s)
	_, ok = r.ctx.Ingest(protocol.Legacy, buf[:n], 0, utc0.Add(time.Second))
	require.False(t, ok)
	assert.Equal(t, uint64(1), r.ctx.Counters().Spoofed.Load())
}

func TestIngest_QueueFullDrops(t *testing.T) {
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{TestMode: true}, nil)
	table := protocol.NewTable()
	buf := make([]byte, table.MaxFrameSize())
	s := target(protocol.Legacy)
	n := table.Encode(protocol.Legacy, buf, &s)

	for i := 0; i < 6; i++ {
		_, ok := r.ctx.Ingest(protocol.Legacy, buf[:n], 0, utc0.Add(time.Duration(i)*time.Second))
		require.True(t, ok)
	}
	c := r.ctx.Counters().Snapshot()
	assert.Equal(t, uint64(6), c.Accepted)
	assert.Equal(t, uint64(2), c.QueueDrops)
}

func TestStep_BeaconTransmittedInSlot(t *testing.T) {
	beacon := &Beacon{Addr: 0xABC123, AddrType: protocol.AddrOGN, AircraftType: protocol.AircraftStatic}
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{}, beacon)

	t0 := int64(200_000)
	r.pps.Latch(t0)
	r.validFix(t0 + 200)
	var txAt []int64
	for r.nowMs = t0 + 300; r.nowMs < t0+1290; r.nowMs += 5 {
		before := r.ctx.Counters().Tx.Load()
		require.NoError(t, r.ctx.Step())
		if r.ctx.Counters().Tx.Load() > before {
			txAt = append(txAt, r.nowMs-t0)
		}
	}
	require.NotEmpty(t, txAt)
	for _, at := range txAt {
		inSlot0 := at >= slot.Slot0Start && at < slot.Slot0Start+slot.SlotDuration
		inSlot1 := at >= slot.Slot1Start && at < slot.Slot1Start+slot.SlotDuration
		assert.True(t, inSlot0 || inSlot1, "tx at +%d ms", at)
	}

	sent := r.lb.Sent()
	require.Len(t, sent, len(txAt))
	frame := make([]byte, len(sent[0])/2)
	n, errs := protocol.ManchesterDecode(frame, sent[0])
	require.Zero(t, errs)
	got, err := protocol.NewTable().Decode(protocol.Legacy, frame[:n])
	require.NoError(t, err)
	assert.Equal(t, uint32(0xABC123), got.Addr)
	assert.InDelta(t, 47.1, got.LatDeg, 1e-6)
	assert.Equal(t, "receiving", r.ctx.Status().Radio)
}

func TestStep_OwnBeaconIgnoredOnReceive(t *testing.T) {
	beacon := &Beacon{Addr: 0xDD1234}
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{TestMode: true}, beacon)
	inj := sim.NewInjector(nil, r.lb, -60)

	require.NoError(t, inj.Inject(target(protocol.Legacy)))
	require.NoError(t, r.ctx.Step())
	c := r.ctx.Counters().Snapshot()
	assert.Equal(t, uint64(1), c.Rx)
	assert.Zero(t, c.Accepted)
}

func TestStep_StalePPSCountsMissAndHolds(t *testing.T) {
	beacon := &Beacon{Addr: 0xABC123}
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{}, beacon)

	t0 := int64(300_000)
	r.pps.Latch(t0)
	r.validFix(t0 + 200)
	r.nowMs = t0 + 300
	require.NoError(t, r.ctx.Step())
	tx := r.ctx.Counters().Tx.Load()

	r.nowMs = t0 + 1300
	require.NoError(t, r.ctx.Step())
	r.nowMs = t0 + 1400
	require.NoError(t, r.ctx.Step())

	c := r.ctx.Counters().Snapshot()
	assert.Equal(t, uint64(1), c.SlotMisses)
	assert.Equal(t, tx, c.Tx, "no transmission while holding")
	assert.True(t, r.ctx.Status().Slot.TxBlock)
}

func TestStep_PowerOffNeverTransmits(t *testing.T) {
	logger := log.New(io.Discard)
	plan, err := freqplan.New(freqplan.EU)
	require.NoError(t, err)
	lb := radio.NewLoopback()
	drv, err := radio.NewDriver(lb, plan, radio.Config{Protocol: protocol.FANET, TxPower: radio.TxPowerOff}, logger)
	require.NoError(t, err)
	fix := &staticFix{}
	alt := 400.0
	fix.snap = gps.Snapshot{Valid: true, UTC: utc0, CommitMs: 1000, LatDeg: 47, LonDeg: 8, AltM: &alt}

	pipe := NewPipeline(protocol.NewTable(), plausibility.New(plausibility.Config{}), traffic.NewStore(traffic.StoreConfig{}), 4, logger)
	now := int64(1200)
	c := New(Config{Beacon: &Beacon{Addr: 1}}, plan, drv, pipe, fix, nil, func() int64 { return now }, logger)
	for i := 0; i < 10; i++ {
		require.NoError(t, c.Step())
		now += 2000
	}
	assert.Empty(t, lb.Sent())
	assert.Zero(t, c.Counters().TxErrors.Load())
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	r := newRig(t, freqplan.EU, protocol.Legacy, plausibility.Config{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.ctx.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "idle", r.ctx.Status().Radio)
}
