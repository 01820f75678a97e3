// Package rf runs the station's radio loop: slot scheduling, channel hopping,
// reception through the decode pipeline and the station's own beacon.
package rf

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"ognbase/internal/freqplan"
	"ognbase/internal/gps"
	"ognbase/internal/protocol"
	"ognbase/internal/radio"
	"ognbase/internal/slot"
)

// FixSource publishes the latest GNSS state. gps.Service and sim.OwnshipSim
// are both sources.
type FixSource interface {
	Snapshot() gps.Snapshot
}

// Beacon is the identity the station transmits its own position under.
type Beacon struct {
	Addr         uint32
	AddrType     protocol.AddrType
	AircraftType uint8
}

type Config struct {
	// Beacon is nil for a receive-only station.
	Beacon *Beacon
	// PollInterval paces the loop; zero means 2 ms.
	PollInterval time.Duration
}

// Status is the loop's state as shown by telemetry.
type Status struct {
	Chip       string          `json:"chip"`
	Protocol   string          `json:"protocol"`
	Radio      string          `json:"radio_state"`
	Region     string          `json:"region"`
	PlanReady  bool            `json:"plan_ready"`
	PlanAuto   bool            `json:"plan_auto"`
	Channel    uint8           `json:"channel"`
	Tuned      bool            `json:"tuned"`
	TxPowerDBm int             `json:"tx_power_dbm"`
	PPSMs      int64           `json:"pps_ms"`
	NowMs      int64           `json:"now_ms"`
	Slot       slot.State      `json:"slot"`
	Counters   CounterSnapshot `json:"counters"`
}

// Context owns everything the radio loop touches. Step and Run must be
// called from a single goroutine; Status is safe from any.
type Context struct {
	*Pipeline

	plan   *freqplan.Plan
	sched  *slot.Scheduler
	driver *radio.Driver
	pps    *slot.PPS
	fix    FixSource
	nowMs  func() int64
	now    func() time.Time
	logger *log.Logger

	beacon *Beacon
	poll   time.Duration
	txBuf  []byte

	lastExpire time.Time
	chipCRC    uint64

	mu     sync.Mutex
	status Status
}

// New wires a started or unstarted driver to the pipeline. pps may be nil when
// no PPS line is wired; nowMs must be the clock PPS edges are stamped with.
func New(cfg Config, plan *freqplan.Plan, driver *radio.Driver, pipe *Pipeline, fix FixSource, pps *slot.PPS, nowMs func() int64, logger *log.Logger) *Context {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Millisecond
	}
	if pps == nil {
		pps = &slot.PPS{}
	}
	c := &Context{
		Pipeline: pipe,
		plan:     plan,
		sched:    slot.New(driver.Descriptor(), nil),
		driver:   driver,
		pps:      pps,
		fix:      fix,
		nowMs:    nowMs,
		now:      time.Now,
		logger:   logger,
		beacon:   cfg.Beacon,
		poll:     cfg.PollInterval,
		txBuf:    make([]byte, pipe.table.MaxFrameSize()),
	}
	if c.beacon != nil {
		pipe.IgnoreAddr(c.beacon.Addr)
	}
	return c
}

// Scheduler exposes the slot scheduler for inspection.
func (c *Context) Scheduler() *slot.Scheduler { return c.sched }

// Run steps the loop until ctx is done, then puts the radio to sleep.
func (c *Context) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.driver.Shutdown(); err != nil {
				c.logger.Warn("radio shutdown failed", "err", err)
			}
			c.publish(c.nowMs())
			return ctx.Err()
		case <-ticker.C:
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
}

// Step runs one loop iteration. It returns only errors that stop the station.
func (c *Context) Step() error {
	nowMs := c.nowMs()
	now := c.now()
	snap := c.fix.Snapshot()

	if snap.Valid {
		lat, lon := snap.LatLonE6()
		if c.plan.SetPosition(lat, lon) {
			c.logger.Info("frequency plan selected", "region", c.plan.Band().Region)
			if err := c.driver.Start(); err != nil {
				return err
			}
		}
	}
	if !c.plan.Ready() {
		// Auto plan waiting for a position.
		c.publish(nowMs)
		return nil
	}
	if c.driver.State() == radio.StateIdle {
		if err := c.driver.Start(); err != nil {
			return err
		}
	}

	d := c.sched.Step(slot.Input{
		NowMs: nowMs,
		PPSMs: c.pps.Snapshot(),
		Fix:   slot.Fix{Valid: snap.Valid, UTC: snap.UTC, CommitMs: snap.CommitMs},
	})
	if d.Missed {
		c.counters.SlotMisses.Add(1)
		c.logger.Debug("timing reference stale, dropping second", "misses", c.sched.State().Misses)
	}
	if !d.Hold {
		ch := c.plan.Channel(d.Time, d.Slot, c.driver.Protocol() == protocol.OGNTP)
		if err := c.driver.SetChannel(ch); err != nil && !errors.Is(err, radio.ErrBusy) {
			c.logger.Warn("set channel failed", "channel", ch, "err", err)
		}
	}

	f, ok, err := c.driver.Receive()
	if err != nil {
		c.logger.Warn("receive failed", "err", err)
	}
	if n := c.driver.CRCErrors(); n > c.chipCRC {
		c.counters.ChipCRC.Add(n - c.chipCRC)
		c.chipCRC = n
	}
	if ok {
		if f.LineErrors > 0 {
			c.counters.LineErrors.Add(uint64(f.LineErrors))
			c.logger.Debug("manchester line errors", "symbols", f.LineErrors)
		}
		c.Ingest(c.driver.Protocol(), f.Data, f.RSSI, now)
	}

	if !d.Hold && c.beacon != nil && snap.Valid && c.sched.TxPermitted(nowMs) {
		c.transmit(snap, nowMs)
	}

	if now.Sub(c.lastExpire) >= time.Second {
		c.store.Expire(now)
		c.lastExpire = now
	}
	c.publish(nowMs)
	return nil
}

func (c *Context) transmit(snap gps.Snapshot, nowMs int64) {
	id := c.driver.Protocol()
	s := protocol.AircraftState{
		Addr:         c.beacon.Addr,
		AddrType:     c.beacon.AddrType,
		AircraftType: c.beacon.AircraftType,
		LatDeg:       snap.LatDeg,
		LonDeg:       snap.LonDeg,
		Timestamp:    snap.UTC,
		Protocol:     id,
	}
	if snap.AltM != nil {
		s.AltM = *snap.AltM
	}
	if snap.GroundKt != nil {
		s.SpeedKt = *snap.GroundKt
	}
	if snap.TrackDeg != nil {
		s.CourseDeg = *snap.TrackDeg
	}

	// The next opportunity is deferred whether or not this one goes out.
	defer c.sched.MarkTransmitted(nowMs)

	n := c.table.Encode(id, c.txBuf, &s)
	if n == 0 {
		return
	}
	switch err := c.driver.Transmit(c.txBuf[:n]); {
	case err == nil:
		c.counters.Tx.Add(1)
	case errors.Is(err, radio.ErrTxDisabled):
	default:
		c.counters.TxErrors.Add(1)
		c.logger.Warn("transmit failed", "protocol", id, "err", err)
	}
}

func (c *Context) publish(nowMs int64) {
	ch, tuned := c.driver.Channel()
	c.mu.Lock()
	c.status.Chip = c.driver.Chip().String()
	c.status.Protocol = c.driver.Protocol().String()
	c.status.Radio = c.driver.State().String()
	c.status.Region = c.plan.Band().Region.String()
	c.status.PlanReady = c.plan.Ready()
	c.status.PlanAuto = c.plan.Auto()
	c.status.Channel = ch
	c.status.Tuned = tuned
	c.status.TxPowerDBm = c.driver.TxPowerDBm()
	c.status.PPSMs = c.pps.Snapshot()
	c.status.NowMs = nowMs
	c.status.Slot = c.sched.State()
	c.mu.Unlock()
}

// Status returns the state published by the last step.
func (c *Context) Status() Status {
	c.mu.Lock()
	st := c.status
	c.mu.Unlock()
	st.Counters = c.counters.Snapshot()
	return st
}
