package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"ognbase/internal/config"
	"ognbase/internal/freqplan"
	"ognbase/internal/gpio"
	"ognbase/internal/gps"
	"ognbase/internal/plausibility"
	"ognbase/internal/protocol"
	"ognbase/internal/radio"
	"ognbase/internal/replay"
	"ognbase/internal/rf"
	"ognbase/internal/sim"
	"ognbase/internal/slot"
	"ognbase/internal/spi"
	"ognbase/internal/traffic"
	"ognbase/internal/udp"
	"ognbase/internal/web"
)

const (
	resetLow    = 10 * time.Millisecond
	resetSettle = 10 * time.Millisecond
)

// station owns every component of one running ground station. Fields for
// disabled features stay nil.
type station struct {
	cfg    config.Config
	logger *log.Logger
	clock  slot.MonotonicClock

	table *protocol.Table
	pnet  *protocol.PrivateNetwork
	store *traffic.Store
	pipe  *rf.Pipeline

	plan   *freqplan.Plan
	loop   *radio.Loopback
	driver *radio.Driver
	radio  *rf.Context

	spiDev *spi.Device
	reset  *gpio.ResetLine
	busy   *gpio.InputLine

	fix    rf.FixSource
	gpsSvc *gps.Service
	pps    *slot.PPS
	ppsW   *gpio.PPSWatcher

	rec      *replay.Writer
	bcast    *udp.Broadcaster
	exporter *udp.Exporter

	status *web.Status
}

func (s *station) mode() string {
	switch {
	case s.cfg.Replay.Enable:
		return "replay"
	case s.cfg.Sim.Traffic.Enable || s.cfg.Sim.Scenario.Enable:
		return "sim"
	default:
		return "radio"
	}
}

// newStation builds the station from a validated config. Optional hardware
// that fails to come up is logged and left out; a missing transceiver is
// fatal and reported as radio.ErrRadioAbsent.
func newStation(ctx context.Context, cfg config.Config, logger *log.Logger) (*station, error) {
	s := &station{cfg: cfg, logger: logger, pps: &slot.PPS{}}

	s.table = protocol.NewTable()
	if cfg.PNET.Enable {
		p, defKey, defIV, err := protocol.LoadPrivateNetwork(cfg.PNET.KeyFile, cfg.PNET.IVFile)
		if err != nil {
			return nil, fmt.Errorf("pnet: %w", err)
		}
		if defKey || defIV {
			logger.Warn("pnet using built-in key material", "default_key", defKey, "default_iv", defIV)
		}
		s.pnet = p
		s.table.SetPrivateNetwork(p)
	}
	if cfg.Radio.TxPowerSet == radio.TxPowerOff {
		s.table.SetTxDisabled(true)
	}

	s.store = traffic.NewStore(traffic.StoreConfig{MaxTargets: cfg.Traffic.MaxTargets, TTL: cfg.Traffic.TTL})
	filter := plausibility.New(plausibility.Config{
		HistorySize:         cfg.Plausibility.HistorySize,
		TestMode:            cfg.Plausibility.TestMode,
		AcceptFirstSighting: cfg.Plausibility.AcceptFirstSighting,
	})
	s.pipe = rf.NewPipeline(s.table, filter, s.store, cfg.Traffic.QueueSize, logger.WithPrefix("rf"))

	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("record: %w", err)
		}
		s.rec = w
		s.pipe.SetRecorder(w)
		logger.Info("recording frames", "path", cfg.Record.Path)
	}

	if cfg.UDP.Enable {
		b, err := udp.NewBroadcaster(cfg.UDP.Dest)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("udp broadcaster init failed: %w", err)
		}
		s.bcast = b
		s.exporter = udp.NewExporter(b, logger.WithPrefix("udp"))
	}

	s.initFix(ctx)

	if !cfg.Replay.Enable {
		if err := s.initRadio(); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.initStatus()
	return s, nil
}

func (s *station) initFix(ctx context.Context) {
	cfg := s.cfg
	switch {
	case cfg.Sim.Ownship.Enable:
		s.fix = &sim.OwnshipSim{
			LatDeg: cfg.Sim.Ownship.LatDeg,
			LonDeg: cfg.Sim.Ownship.LonDeg,
			AltM:   cfg.Sim.Ownship.AltM,
			Now:    time.Now,
			NowMs:  s.clock.NowMs,
		}
	default:
		svc := gps.New(gps.Config{Enable: cfg.GPS.Enable, Device: cfg.GPS.Device, Baud: cfg.GPS.Baud}, s.clock.NowMs, s.logger.WithPrefix("gps"))
		if err := svc.Start(ctx); err != nil {
			// Keep the station running; the snapshot carries the error.
			s.logger.Error("gps init failed", "err", err)
		}
		s.gpsSvc = svc
		s.fix = svc
	}

	if cfg.GPS.PPSPin > 0 {
		w, err := gpio.WatchPPS(cfg.GPS.PPSPin, "ognbase-pps", s.pps.Latch)
		if err != nil {
			s.logger.Warn("pps unavailable, timing from sentences", "pin", cfg.GPS.PPSPin, "err", err)
		} else {
			s.ppsW = w
		}
	}
}

func (s *station) initRadio() error {
	cfg := s.cfg.Radio
	plan, err := freqplan.New(cfg.Region)
	if err != nil {
		return err
	}
	s.plan = plan

	modem, err := s.selectModem()
	if err != nil {
		return err
	}

	drv, err := radio.NewDriver(modem, plan, radio.Config{
		Protocol:    cfg.ProtocolID,
		TxPower:     cfg.TxPowerSet,
		FreqCorrKHz: cfg.FreqCorrKHz,
		TxTimeout:   cfg.TxTimeout,
	}, s.logger.WithPrefix("radio"))
	if err != nil {
		return err
	}
	s.driver = drv
	s.logger.Info("radio selected", "chip", drv.Chip(), "protocol", drv.Protocol(), "band", plan.Band().Region)

	var beacon *rf.Beacon
	if b := s.cfg.Beacon; b.Enable {
		beacon = &rf.Beacon{Addr: b.AddrValue, AddrType: b.AddrTypeEnum, AircraftType: b.AircraftType}
	}
	s.radio = rf.New(rf.Config{Beacon: beacon}, plan, drv, s.pipe, s.fix, s.pps, s.clock.NowMs, s.logger.WithPrefix("rf"))
	return nil
}

// selectModem opens the bus and probes the configured chip, or both chips in
// auto mode.
func (s *station) selectModem() (radio.Modem, error) {
	cfg := s.cfg.Radio
	if cfg.Chip == "loopback" {
		s.loop = radio.NewLoopback()
		return s.loop, nil
	}

	dev, err := spi.Open(cfg.SPIDevice, cfg.SPISpeedHz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", radio.ErrRadioAbsent, err)
	}
	s.spiDev = dev

	var reset func() error
	if cfg.ResetPin > 0 {
		line, err := gpio.OpenReset(cfg.ResetPin, "ognbase-reset")
		if err != nil {
			s.logger.Warn("radio reset line unavailable", "pin", cfg.ResetPin, "err", err)
		} else {
			s.reset = line
			reset = func() error { return line.Pulse(resetLow, resetSettle) }
		}
	}

	sx1262 := radio.NewSX1262(dev)
	if cfg.BusyPin > 0 {
		line, err := gpio.OpenInput(cfg.BusyPin, "ognbase-busy")
		if err != nil {
			s.logger.Warn("radio busy line unavailable", "pin", cfg.BusyPin, "err", err)
		} else {
			s.busy = line
			sx1262.Busy = line.High
		}
	}

	var candidates []radio.Modem
	switch cfg.Chip {
	case "sx1276":
		candidates = []radio.Modem{radio.NewSX1276(dev)}
	case "sx1262":
		candidates = []radio.Modem{sx1262}
	default:
		candidates = []radio.Modem{radio.NewSX1276(dev), sx1262}
	}
	return radio.Select(candidates, reset)
}

func (s *station) initStatus() {
	src := web.Sources{GPS: s.fix.Snapshot, Traffic: s.store}
	if s.radio != nil {
		src.Radio = s.radio.Status
	}
	if s.exporter != nil {
		e := s.exporter
		src.Export = func() (uint64, uint64) { return e.Sent(), e.Errors() }
	}
	s.status = web.NewStatus(src)

	station := map[string]any{
		"protocol": s.cfg.Radio.Protocol,
		"band":     s.cfg.Radio.Band,
		"chip":     s.cfg.Radio.Chip,
		"tx_power": s.cfg.Radio.TxPowerSet.String(),
	}
	if s.cfg.Beacon.Enable {
		station["beacon_addr"] = fmt.Sprintf("%06X", s.cfg.Beacon.AddrValue)
	}
	s.status.SetStatic(s.mode(), station)
}

// Run starts the auxiliary goroutines and blocks in the radio loop, or in
// replay, until ctx is done.
func (s *station) Run(ctx context.Context, logs *web.LogBuffer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	if s.cfg.Web.Enable {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.logger.Info("web listening", "addr", s.cfg.Web.Listen)
			if err := web.Serve(ctx, s.cfg.Web.Listen, s.status, logs); err != nil && ctx.Err() == nil {
				s.logger.Error("web server stopped", "err", err)
				cancel()
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.consume(ctx)
	}()

	if src := s.simSource(); src != nil && s.loop != nil {
		// Remote transmitters use a table of their own so a disabled
		// station transmitter does not silence them.
		tbl := protocol.NewTable()
		if s.pnet != nil {
			tbl.SetPrivateNetwork(s.pnet)
		}
		in := sim.NewInjector(tbl, s.loop, s.cfg.Sim.Traffic.RSSI)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sim.Run(ctx, src, in, s.cfg.Sim.Traffic.Interval, s.logger.WithPrefix("sim"))
		}()
	}

	var err error
	if s.cfg.Replay.Enable {
		err = s.runReplay(ctx)
	} else {
		err = s.radio.Run(ctx)
	}
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}
	cancel()
	return err
}

// consume forwards accepted targets to the exporter, or logs them when no
// exporter is configured.
func (s *station) consume(ctx context.Context) {
	if s.exporter != nil {
		s.exporter.Run(ctx, s.pipe.Accepted())
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-s.pipe.Accepted():
			s.logger.Debug("target", "addr", fmt.Sprintf("%06X", st.Addr), "protocol", st.Protocol,
				"lat", st.LatDeg, "lon", st.LonDeg, "alt_m", st.AltM, "rssi", st.RSSI)
		}
	}
}

// simSource returns the configured traffic generator, if any. A scenario
// takes precedence over the orbit generator.
func (s *station) simSource() sim.Source {
	cfg := s.cfg.Sim
	if cfg.Scenario.Enable {
		script, err := sim.LoadScenarioScript(cfg.Scenario.Path)
		if err != nil {
			s.logger.Error("scenario load failed", "path", cfg.Scenario.Path, "err", err)
			return nil
		}
		sc, err := sim.NewScenario(script)
		if err != nil {
			s.logger.Error("scenario invalid", "path", cfg.Scenario.Path, "err", err)
			return nil
		}
		s.logger.Info("scenario loaded", "path", cfg.Scenario.Path, "targets", len(script.Traffic))
		return sim.Player{Scenario: sc, Start: time.Now(), Loop: cfg.Scenario.Loop}
	}
	if cfg.Traffic.Enable {
		return sim.TrafficSim{
			CenterLatDeg: cfg.Ownship.LatDeg,
			CenterLonDeg: cfg.Ownship.LonDeg,
			BaseAltM:     cfg.Ownship.AltM + 300,
			GroundKt:     cfg.Traffic.GroundKt,
			RadiusNm:     cfg.Traffic.RadiusNm,
			Protocol:     s.driver.Protocol(),
			Count:        cfg.Traffic.Count,
		}
	}
	return nil
}

// ctxSleeper cuts replay waits short once ctx is done.
type ctxSleeper struct{ ctx context.Context }

func (c ctxSleeper) Sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
	case <-t.C:
	}
}

func (s *station) runReplay(ctx context.Context) error {
	path := s.cfg.Replay.Path
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay open: %w", err)
	}
	recs, err := replay.NewReader(f).ReadAll()
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("replay read: %w", err)
	}
	s.logger.Info("replaying frames", "path", path, "records", len(recs), "speed", s.cfg.Replay.Speed, "loop", s.cfg.Replay.Loop)

	err = replay.Play(recs, s.cfg.Replay.Speed, s.cfg.Replay.Loop, ctxSleeper{ctx}, func(rec replay.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.pipe.Ingest(rec.Protocol, rec.Frame, 0, time.Now().UTC())
		return nil
	})
	if err != nil {
		return err
	}
	c := s.pipe.Counters().Snapshot()
	s.logger.Info("replay finished", "rx", c.Rx, "accepted", c.Accepted, "checksum", c.Checksum, "spoofed", c.Spoofed)
	return nil
}

// Close releases hardware and files. It is safe on a partly built station.
func (s *station) Close() {
	if s == nil {
		return
	}
	if s.gpsSvc != nil {
		s.gpsSvc.Close()
		s.gpsSvc = nil
	}
	if s.ppsW != nil {
		_ = s.ppsW.Close()
		s.ppsW = nil
	}
	if s.busy != nil {
		_ = s.busy.Close()
		s.busy = nil
	}
	if s.reset != nil {
		_ = s.reset.Close()
		s.reset = nil
	}
	if s.spiDev != nil {
		_ = s.spiDev.Close()
		s.spiDev = nil
	}
	if s.rec != nil {
		if err := s.rec.Close(); err != nil {
			s.logger.Warn("frame log close failed", "err", err)
		}
		s.rec = nil
	}
	if s.bcast != nil {
		_ = s.bcast.Close()
		s.bcast = nil
	}
}
