package radio

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"ognbase/internal/freqplan"
	"ognbase/internal/protocol"
)

// State is the driver's position in the Tx/Rx cycle.
type State uint8

const (
	StateIdle State = iota
	StateConfiguring
	StateTransmitting
	StateReceiving
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfiguring:
		return "configuring"
	case StateTransmitting:
		return "transmitting"
	case StateReceiving:
		return "receiving"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// DefaultTxTimeout bounds a blocking Transmit.
const DefaultTxTimeout = 500 * time.Millisecond

const airBufSize = 128

type Config struct {
	Protocol    protocol.ID
	TxPower     TxPower
	FreqCorrKHz int
	TxTimeout   time.Duration
}

// Frame is a received frame after line decoding. Data is owned by the driver
// and valid until the next Receive.
type Frame struct {
	Data []byte
	RSSI int
	// LineErrors counts invalid Manchester symbols.
	LineErrors int
}

// Driver is the chip-independent half of the radio. It is owned by the radio
// loop and not safe for concurrent use.
type Driver struct {
	modem  Modem
	plan   *freqplan.Plan
	logger *log.Logger

	desc      protocol.Descriptor
	power     TxPower
	dbm       int
	corrKHz   int
	txTimeout time.Duration

	state   State
	channel uint8
	tuned   bool

	air   [airBufSize]byte
	rxBuf [airBufSize]byte
	rx    Frame
	hasRx bool

	crcErrors uint64

	now   func() time.Time
	sleep func(time.Duration)
}

type Option func(*Driver)

// WithClock replaces the wall clock used to bound Transmit.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(d *Driver) {
		d.now = now
		d.sleep = sleep
	}
}

// NewDriver binds a probed modem to the frequency plan. A protocol the chip
// cannot carry is replaced by Legacy.
func NewDriver(m Modem, plan *freqplan.Plan, cfg Config, logger *log.Logger, opts ...Option) (*Driver, error) {
	if m == nil || plan == nil {
		return nil, fmt.Errorf("radio: modem and plan are required")
	}
	if logger == nil {
		logger = log.Default()
	}
	id := cfg.Protocol
	if !m.Supports(id) {
		logger.Warn("protocol not supported by chip, falling back", "protocol", id, "chip", m.Chip(), "fallback", protocol.Legacy)
		id = protocol.Legacy
		if !m.Supports(id) {
			return nil, fmt.Errorf("%w: %v on %v", ErrUnsupported, id, m.Chip())
		}
	}

	corr := freqplan.ClampCorrection(cfg.FreqCorrKHz, m.MaxFreqCorrKHz())
	if corr != cfg.FreqCorrKHz {
		logger.Info("frequency correction clamped", "requested_khz", cfg.FreqCorrKHz, "applied_khz", corr, "chip", m.Chip())
	}

	d := &Driver{
		modem:     m,
		plan:      plan,
		logger:    logger,
		desc:      protocol.MustLookup(id),
		power:     cfg.TxPower,
		corrKHz:   corr,
		txTimeout: cfg.TxTimeout,
		now:       time.Now,
		sleep:     time.Sleep,
	}
	if d.txTimeout <= 0 {
		d.txTimeout = DefaultTxTimeout
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Driver) Protocol() protocol.ID { return d.desc.ID }

func (d *Driver) Descriptor() protocol.Descriptor { return d.desc }

func (d *Driver) Chip() Chip { return d.modem.Chip() }

func (d *Driver) State() State { return d.state }

func (d *Driver) TxPowerDBm() int { return d.dbm }

func (d *Driver) FreqCorrKHz() int { return d.corrKHz }

// Channel returns the tuned channel, if any.
func (d *Driver) Channel() (uint8, bool) { return d.channel, d.tuned }

func (d *Driver) CRCErrors() uint64 { return d.crcErrors }

// Start programs the modem for the active protocol on channel 0 and begins
// receiving. The plan must be ready.
func (d *Driver) Start() error {
	if !d.plan.Ready() {
		return fmt.Errorf("radio: frequency plan not ready")
	}
	d.state = StateConfiguring
	d.dbm = TxPowerDBm(d.power, d.plan.MaxTxPowerDBm(), d.modem.MaxTxPowerDBm())
	cfg := ModemConfig{
		Desc:        d.desc,
		FrequencyHz: d.frequency(0),
		TxPowerDBm:  d.dbm,
	}
	if err := d.modem.Configure(cfg); err != nil {
		d.state = StateIdle
		return fmt.Errorf("radio: configure %v: %w", d.modem.Chip(), err)
	}
	d.channel, d.tuned = 0, true
	d.logger.Info("radio configured",
		"chip", d.modem.Chip(),
		"protocol", d.desc.ID,
		"region", d.plan.Band().Region,
		"freq_hz", cfg.FrequencyHz,
		"tx_dbm", d.dbm,
	)
	return d.rearm()
}

func (d *Driver) frequency(ch uint8) uint32 {
	return d.plan.CorrectedFrequency(ch, d.corrKHz, d.modem.MaxFreqCorrKHz())
}

// SetChannel retunes the radio. Tuning to the current channel does nothing.
func (d *Driver) SetChannel(ch uint8) error {
	if d.tuned && ch == d.channel {
		return nil
	}
	if d.state == StateTransmitting {
		return ErrBusy
	}
	receiving := d.state == StateReceiving
	if receiving {
		if err := d.modem.Standby(); err != nil {
			return err
		}
	}
	if err := d.modem.SetFrequency(d.frequency(ch)); err != nil {
		return fmt.Errorf("radio: set channel %d: %w", ch, err)
	}
	d.channel, d.tuned = ch, true
	if receiving {
		return d.modem.StartRx()
	}
	return nil
}

// Poll advances the state machine by one step without blocking.
func (d *Driver) Poll() error {
	switch d.state {
	case StateReceiving:
		ev, err := d.modem.Poll()
		if err != nil {
			return err
		}
		switch ev {
		case EventRxDone:
			if err := d.latch(); err != nil {
				return err
			}
			d.state = StateDone
		case EventRxCRCError:
			d.crcErrors++
			return d.modem.StartRx()
		}
	case StateTransmitting:
		ev, err := d.modem.Poll()
		if err != nil {
			return err
		}
		if ev == EventTxDone {
			d.state = StateDone
		}
	case StateDone:
		return d.rearm()
	}
	return nil
}

func (d *Driver) rearm() error {
	if err := d.modem.StartRx(); err != nil {
		return err
	}
	d.state = StateReceiving
	return nil
}

func (d *Driver) latch() error {
	n, rssi, err := d.modem.ReadFrame(d.air[:])
	if err != nil {
		return err
	}
	raw := d.air[:n]
	d.rx = Frame{RSSI: rssi}
	if d.desc.Whitening == protocol.WhiteManchester {
		m, errs := protocol.ManchesterDecode(d.rxBuf[:], raw)
		d.rx.Data = d.rxBuf[:m]
		d.rx.LineErrors = errs
	} else {
		m := copy(d.rxBuf[:], raw)
		d.rx.Data = d.rxBuf[:m]
	}
	d.hasRx = true
	return nil
}

// Receive polls once and returns a frame if one has arrived.
func (d *Driver) Receive() (Frame, bool, error) {
	if err := d.Poll(); err != nil {
		return Frame{}, false, err
	}
	if !d.hasRx {
		return Frame{}, false, nil
	}
	f := d.rx
	d.hasRx = false
	if d.state == StateDone {
		if err := d.rearm(); err != nil {
			return f, true, err
		}
	}
	return f, true, nil
}

// Transmit sends one frame and blocks until the chip reports completion or
// the Tx timeout expires. Reception resumes either way.
func (d *Driver) Transmit(frame []byte) error {
	if d.power == TxPowerOff {
		return ErrTxDisabled
	}
	switch d.state {
	case StateIdle, StateConfiguring:
		return fmt.Errorf("radio: not started")
	case StateTransmitting:
		return ErrBusy
	}

	air := frame
	if d.desc.Whitening == protocol.WhiteManchester {
		n := protocol.ManchesterEncode(d.air[:], frame)
		if n == 0 {
			return fmt.Errorf("radio: frame of %d bytes too long", len(frame))
		}
		air = d.air[:n]
	}

	if err := d.modem.StartTx(air); err != nil {
		_ = d.rearm()
		return fmt.Errorf("radio: start tx: %w", err)
	}
	d.state = StateTransmitting

	deadline := d.now().Add(d.txTimeout)
	for d.state == StateTransmitting {
		if err := d.Poll(); err != nil {
			_ = d.modem.Standby()
			_ = d.rearm()
			return err
		}
		if d.state != StateTransmitting {
			break
		}
		if !d.now().Before(deadline) {
			_ = d.modem.Standby()
			_ = d.rearm()
			return ErrTxTimeout
		}
		d.sleep(time.Millisecond)
	}
	return d.rearm()
}

// Shutdown puts the chip to sleep.
func (d *Driver) Shutdown() error {
	d.state = StateIdle
	d.tuned = false
	return d.modem.Sleep()
}
