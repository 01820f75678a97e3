package radio

import (
	"fmt"

	"ognbase/internal/protocol"
)

// SX1276 registers. FSK and LoRa modes share the address space; several
// addresses mean different things in each.
const (
	sx1276RegFifo       = 0x00
	sx1276RegOpMode     = 0x01
	sx1276RegBitrateMsb = 0x02
	sx1276RegBitrateLsb = 0x03
	sx1276RegFdevMsb    = 0x04
	sx1276RegFdevLsb    = 0x05
	sx1276RegFrfMsb     = 0x06
	sx1276RegPaConfig   = 0x09
	sx1276RegRxBw       = 0x12
	sx1276RegRssiValue  = 0x11
	sx1276RegPreamble   = 0x25
	sx1276RegSyncConfig = 0x27
	sx1276RegSyncValue1 = 0x28
	sx1276RegPktConfig1 = 0x30
	sx1276RegPktConfig2 = 0x31
	sx1276RegPayloadLen = 0x32
	sx1276RegFifoThresh = 0x35
	sx1276RegIrqFlags2  = 0x3F
	sx1276RegVersion    = 0x42
	sx1276RegPaDac      = 0x4D

	sx1276LoRaFifoAddrPtr   = 0x0D
	sx1276LoRaFifoTxBase    = 0x0E
	sx1276LoRaFifoRxBase    = 0x0F
	sx1276LoRaFifoRxCurrent = 0x10
	sx1276LoRaIrqFlags      = 0x12
	sx1276LoRaRxNbBytes     = 0x13
	sx1276LoRaPktRssi       = 0x1A
	sx1276LoRaModemConfig1  = 0x1D
	sx1276LoRaModemConfig2  = 0x1E
	sx1276LoRaPreamble      = 0x20
	sx1276LoRaPayloadLen    = 0x22
	sx1276LoRaModemConfig3  = 0x26
	sx1276LoRaSyncWord      = 0x39

	sx1276Version = 0x12

	sx1276ModeLoRa    = 0x80
	sx1276ModeSleep   = 0x00
	sx1276ModeStandby = 0x01
	sx1276ModeTx      = 0x03
	sx1276ModeRx      = 0x05

	sx1276IrqPacketSent   = 0x08
	sx1276IrqPayloadReady = 0x04

	sx1276LoRaIrqRxDone   = 0x40
	sx1276LoRaIrqCRCError = 0x20
	sx1276LoRaIrqTxDone   = 0x08

	sx1276FXtal = 32000000
)

// bandwidth (Hz) -> ModemConfig1 BW field.
var sx1276LoRaBandwidths = map[uint32]byte{
	62500:  0x6,
	125000: 0x7,
	250000: 0x8,
	500000: 0x9,
}

// SX1276 drives a Semtech SX1276/RFM95W over SPI. FSK protocols use the
// fixed-length packet engine with CRC and whitening done in software; FANET
// uses LoRa mode.
type SX1276 struct {
	bus   Bus
	lora  bool
	rxLen int
	buf   [airBufSize + 1]byte
	rbuf  [airBufSize + 1]byte
}

func NewSX1276(bus Bus) *SX1276 {
	return &SX1276{bus: bus}
}

func (c *SX1276) Chip() Chip { return ChipSX1276 }

func (c *SX1276) MaxTxPowerDBm() int { return 20 }

func (c *SX1276) MaxFreqCorrKHz() int { return 30 }

// Supports reports false for UAT: 1 Mbps is beyond the FSK engine.
func (c *SX1276) Supports(id protocol.ID) bool {
	switch id {
	case protocol.Legacy, protocol.OGNTP, protocol.P3I, protocol.FANET:
		return true
	default:
		return false
	}
}

func (c *SX1276) readReg(reg byte) (byte, error) {
	tx := []byte{reg & 0x7F, 0}
	rx := []byte{0, 0}
	if err := c.bus.Transfer(tx, rx); err != nil {
		return 0, err
	}
	return rx[1], nil
}

func (c *SX1276) writeReg(reg byte, vals ...byte) error {
	n := 1 + len(vals)
	c.buf[0] = reg | 0x80
	copy(c.buf[1:], vals)
	return c.bus.Transfer(c.buf[:n], c.rbuf[:n])
}

func (c *SX1276) readFifo(p []byte) error {
	n := 1 + len(p)
	clear(c.buf[:n])
	c.buf[0] = sx1276RegFifo
	if err := c.bus.Transfer(c.buf[:n], c.rbuf[:n]); err != nil {
		return err
	}
	copy(p, c.rbuf[1:n])
	return nil
}

func (c *SX1276) Probe() bool {
	v, err := c.readReg(sx1276RegVersion)
	return err == nil && v == sx1276Version
}

func (c *SX1276) setMode(mode byte) error {
	if c.lora {
		mode |= sx1276ModeLoRa
	}
	return c.writeReg(sx1276RegOpMode, mode)
}

func (c *SX1276) SetFrequency(hz uint32) error {
	frf := (uint64(hz) << 19) / sx1276FXtal
	return c.writeReg(sx1276RegFrfMsb, byte(frf>>16), byte(frf>>8), byte(frf))
}

func (c *SX1276) setPower(dbm int) error {
	// PA_BOOST output: 2..17 dBm linear, 20 dBm with the high-power DAC.
	dac := byte(0x84)
	out := dbm - 2
	if dbm > 17 {
		dac = 0x87
		out = 15
	}
	out = max(0, min(out, 15))
	if err := c.writeReg(sx1276RegPaDac, dac); err != nil {
		return err
	}
	return c.writeReg(sx1276RegPaConfig, 0x80|0x70|byte(out))
}

func (c *SX1276) Configure(cfg ModemConfig) error {
	d := cfg.Desc
	if !c.Supports(d.ID) {
		return fmt.Errorf("%w: %v", ErrUnsupported, d.ID)
	}
	c.lora = d.Modulation == protocol.ModLoRa

	// LongRangeMode may only change in sleep.
	if err := c.setMode(sx1276ModeSleep); err != nil {
		return err
	}
	if err := c.SetFrequency(cfg.FrequencyHz); err != nil {
		return err
	}
	if err := c.setPower(cfg.TxPowerDBm); err != nil {
		return err
	}
	var err error
	if c.lora {
		err = c.configureLoRa(d)
	} else {
		err = c.configureFSK(d)
	}
	if err != nil {
		return err
	}
	return c.setMode(sx1276ModeStandby)
}

func (c *SX1276) configureFSK(d protocol.Descriptor) error {
	if len(d.SyncWord) == 0 || len(d.SyncWord) > 8 {
		return fmt.Errorf("sx1276: invalid sync word length %d", len(d.SyncWord))
	}
	br := sx1276FXtal / d.BitrateBps
	fdev := (uint64(d.DeviationHz) << 19) / sx1276FXtal
	c.rxLen = d.AirSize()

	regs := []struct {
		reg  byte
		vals []byte
	}{
		{sx1276RegBitrateMsb, []byte{byte(br >> 8), byte(br)}},
		{sx1276RegFdevMsb, []byte{byte(fdev >> 8), byte(fdev)}},
		{sx1276RegRxBw, []byte{sx1276RxBw(d.BitrateBps)}},
		{sx1276RegPreamble, []byte{0, byte(d.PreambleLen)}},
		{sx1276RegSyncConfig, []byte{0x10 | byte(len(d.SyncWord)-1)}},
		{sx1276RegSyncValue1, d.SyncWord},
		// Fixed length, no DC-free coding, no hardware CRC.
		{sx1276RegPktConfig1, []byte{0x00}},
		{sx1276RegPktConfig2, []byte{0x40}},
		{sx1276RegPayloadLen, []byte{byte(c.rxLen)}},
		// Start Tx as soon as the FIFO is not empty.
		{sx1276RegFifoThresh, []byte{0x80 | byte(c.rxLen-1)}},
	}
	for _, r := range regs {
		if err := c.writeReg(r.reg, r.vals...); err != nil {
			return err
		}
	}
	return nil
}

// sx1276RxBw picks the receiver bandwidth mantissa/exponent for a bitrate.
func sx1276RxBw(bps uint32) byte {
	switch {
	case bps >= 100000:
		return 0x01 // 250 kHz
	case bps >= 38400:
		return 0x02 // 125 kHz
	default:
		return 0x03 // 62.5 kHz
	}
}

func (c *SX1276) configureLoRa(d protocol.Descriptor) error {
	bw, ok := sx1276LoRaBandwidths[d.LoRa.BandwidthHz]
	if !ok {
		return fmt.Errorf("sx1276: unsupported LoRa bandwidth %d", d.LoRa.BandwidthHz)
	}
	var sync byte = 0x12
	if len(d.SyncWord) > 0 {
		sync = d.SyncWord[0]
	}
	regs := []struct {
		reg  byte
		vals []byte
	}{
		{sx1276LoRaFifoTxBase, []byte{0x00}},
		{sx1276LoRaFifoRxBase, []byte{0x00}},
		// Explicit header.
		{sx1276LoRaModemConfig1, []byte{bw<<4 | d.LoRa.CodingRate<<1}},
		// Payload CRC on.
		{sx1276LoRaModemConfig2, []byte{d.LoRa.SpreadingFactor<<4 | 0x04}},
		{sx1276LoRaModemConfig3, []byte{0x04}},
		{sx1276LoRaPreamble, []byte{0, byte(d.PreambleLen)}},
		{sx1276LoRaSyncWord, []byte{sync}},
	}
	for _, r := range regs {
		if err := c.writeReg(r.reg, r.vals...); err != nil {
			return err
		}
	}
	return nil
}

func (c *SX1276) StartRx() error {
	if c.lora {
		if err := c.writeReg(sx1276LoRaIrqFlags, 0xFF); err != nil {
			return err
		}
	}
	return c.setMode(sx1276ModeRx)
}

func (c *SX1276) StartTx(frame []byte) error {
	if len(frame) > airBufSize {
		return fmt.Errorf("sx1276: frame of %d bytes exceeds FIFO", len(frame))
	}
	if err := c.setMode(sx1276ModeStandby); err != nil {
		return err
	}
	if c.lora {
		if err := c.writeReg(sx1276LoRaIrqFlags, 0xFF); err != nil {
			return err
		}
		if err := c.writeReg(sx1276LoRaFifoAddrPtr, 0x00); err != nil {
			return err
		}
		if err := c.writeReg(sx1276LoRaPayloadLen, byte(len(frame))); err != nil {
			return err
		}
	}
	if err := c.writeReg(sx1276RegFifo, frame...); err != nil {
		return err
	}
	return c.setMode(sx1276ModeTx)
}

func (c *SX1276) Poll() (Event, error) {
	if c.lora {
		f, err := c.readReg(sx1276LoRaIrqFlags)
		if err != nil {
			return EventNone, err
		}
		switch {
		case f&sx1276LoRaIrqTxDone != 0:
			return EventTxDone, c.writeReg(sx1276LoRaIrqFlags, sx1276LoRaIrqTxDone)
		case f&sx1276LoRaIrqRxDone != 0 && f&sx1276LoRaIrqCRCError != 0:
			return EventRxCRCError, c.writeReg(sx1276LoRaIrqFlags, 0xFF)
		case f&sx1276LoRaIrqRxDone != 0:
			return EventRxDone, nil
		}
		return EventNone, nil
	}
	f, err := c.readReg(sx1276RegIrqFlags2)
	if err != nil {
		return EventNone, err
	}
	switch {
	case f&sx1276IrqPacketSent != 0:
		return EventTxDone, nil
	case f&sx1276IrqPayloadReady != 0:
		return EventRxDone, nil
	}
	return EventNone, nil
}

func (c *SX1276) ReadFrame(buf []byte) (int, int, error) {
	if c.lora {
		n, err := c.readReg(sx1276LoRaRxNbBytes)
		if err != nil {
			return 0, 0, err
		}
		addr, err := c.readReg(sx1276LoRaFifoRxCurrent)
		if err != nil {
			return 0, 0, err
		}
		if err := c.writeReg(sx1276LoRaFifoAddrPtr, addr); err != nil {
			return 0, 0, err
		}
		size := min(int(n), len(buf))
		if err := c.readFifo(buf[:size]); err != nil {
			return 0, 0, err
		}
		raw, err := c.readReg(sx1276LoRaPktRssi)
		if err != nil {
			return 0, 0, err
		}
		return size, -157 + int(raw), c.writeReg(sx1276LoRaIrqFlags, 0xFF)
	}

	raw, err := c.readReg(sx1276RegRssiValue)
	if err != nil {
		return 0, 0, err
	}
	size := min(c.rxLen, len(buf))
	if err := c.readFifo(buf[:size]); err != nil {
		return 0, 0, err
	}
	return size, -int(raw) / 2, nil
}

func (c *SX1276) Standby() error { return c.setMode(sx1276ModeStandby) }

func (c *SX1276) Sleep() error { return c.setMode(sx1276ModeSleep) }
