package radio

import (
	"fmt"

	"ognbase/internal/protocol"
)

// SX126x opcodes.
const (
	sx1262CmdSetSleep          = 0x84
	sx1262CmdSetStandby        = 0x80
	sx1262CmdSetTx             = 0x83
	sx1262CmdSetRx             = 0x82
	sx1262CmdSetPacketType     = 0x8A
	sx1262CmdSetRfFrequency    = 0x86
	sx1262CmdSetTxParams       = 0x8E
	sx1262CmdSetPaConfig       = 0x95
	sx1262CmdSetModulation     = 0x8B
	sx1262CmdSetPacketParams   = 0x8C
	sx1262CmdSetBufferBase     = 0x8F
	sx1262CmdSetDioIrqParams   = 0x08
	sx1262CmdGetIrqStatus      = 0x12
	sx1262CmdClearIrqStatus    = 0x02
	sx1262CmdGetRxBufferStatus = 0x13
	sx1262CmdGetPacketStatus   = 0x14
	sx1262CmdWriteBuffer       = 0x0E
	sx1262CmdReadBuffer        = 0x1E
	sx1262CmdWriteRegister     = 0x0D
	sx1262CmdReadRegister      = 0x1D

	sx1262RegGFSKSyncWord = 0x06C0
	sx1262RegLoRaSyncMSB  = 0x0740
	sx1262RegLoRaSyncLSB  = 0x0741

	sx1262PacketGFSK = 0x00
	sx1262PacketLoRa = 0x01

	sx1262IrqTxDone = 1 << 0
	sx1262IrqRxDone = 1 << 1
	sx1262IrqCRCErr = 1 << 6

	sx1262FXtal = 32000000
)

// bandwidth (Hz) -> LoRa modulation parameter.
var sx1262LoRaBandwidths = map[uint32]byte{
	62500:  0x03,
	125000: 0x04,
	250000: 0x05,
	500000: 0x06,
}

// SX1262 drives a Semtech SX1261/SX1262 through its SPI command interface.
type SX1262 struct {
	bus  Bus
	lora bool
	desc protocol.Descriptor
	buf  [airBufSize + 4]byte
	rbuf [airBufSize + 4]byte

	// Busy reports the chip's BUSY line; nil means the line is not wired
	// and commands are issued back to back.
	Busy func() bool
}

func NewSX1262(bus Bus) *SX1262 {
	return &SX1262{bus: bus}
}

func (c *SX1262) Chip() Chip { return ChipSX1262 }

func (c *SX1262) MaxTxPowerDBm() int { return 22 }

// MaxFreqCorrKHz is zero: the TCXO needs no trimming.
func (c *SX1262) MaxFreqCorrKHz() int { return 0 }

func (c *SX1262) Supports(id protocol.ID) bool {
	switch id {
	case protocol.Legacy, protocol.OGNTP, protocol.P3I, protocol.FANET:
		return true
	default:
		return false
	}
}

func (c *SX1262) waitBusy() {
	if c.Busy == nil {
		return
	}
	for i := 0; i < 10000 && c.Busy(); i++ {
	}
}

// cmd sends opcode and params and returns the bytes clocked back, which
// include the status bytes in front of any response.
func (c *SX1262) cmd(op byte, params ...byte) ([]byte, error) {
	n := 1 + len(params)
	if n > len(c.buf) {
		return nil, fmt.Errorf("sx1262: command %#02x too long", op)
	}
	c.waitBusy()
	c.buf[0] = op
	copy(c.buf[1:], params)
	if err := c.bus.Transfer(c.buf[:n], c.rbuf[:n]); err != nil {
		return nil, err
	}
	return c.rbuf[:n], nil
}

func (c *SX1262) readRegister(addr uint16) (byte, error) {
	rx, err := c.cmd(sx1262CmdReadRegister, byte(addr>>8), byte(addr), 0, 0)
	if err != nil {
		return 0, err
	}
	return rx[4], nil
}

func (c *SX1262) writeRegister(addr uint16, vals ...byte) error {
	params := append([]byte{byte(addr >> 8), byte(addr)}, vals...)
	_, err := c.cmd(sx1262CmdWriteRegister, params...)
	return err
}

// Probe checks the LoRa sync word LSB: 0x24 after reset, 0x14 once FANET's
// sync word has been programmed.
func (c *SX1262) Probe() bool {
	v, err := c.readRegister(sx1262RegLoRaSyncLSB)
	return err == nil && (v == 0x24 || v == 0x14)
}

func (c *SX1262) SetFrequency(hz uint32) error {
	frf := uint32((uint64(hz) << 25) / sx1262FXtal)
	_, err := c.cmd(sx1262CmdSetRfFrequency, byte(frf>>24), byte(frf>>16), byte(frf>>8), byte(frf))
	return err
}

func (c *SX1262) Configure(cfg ModemConfig) error {
	d := cfg.Desc
	if !c.Supports(d.ID) {
		return fmt.Errorf("%w: %v", ErrUnsupported, d.ID)
	}
	c.desc = d
	c.lora = d.Modulation == protocol.ModLoRa

	if err := c.Standby(); err != nil {
		return err
	}
	pt := byte(sx1262PacketGFSK)
	if c.lora {
		pt = sx1262PacketLoRa
	}
	if _, err := c.cmd(sx1262CmdSetPacketType, pt); err != nil {
		return err
	}
	if err := c.SetFrequency(cfg.FrequencyHz); err != nil {
		return err
	}
	// SX1262 high-power PA.
	if _, err := c.cmd(sx1262CmdSetPaConfig, 0x04, 0x07, 0x00, 0x01); err != nil {
		return err
	}
	dbm := max(-9, min(cfg.TxPowerDBm, 22))
	if _, err := c.cmd(sx1262CmdSetTxParams, byte(int8(dbm)), 0x04); err != nil {
		return err
	}
	if _, err := c.cmd(sx1262CmdSetBufferBase, 0x00, 0x00); err != nil {
		return err
	}
	irq := uint16(sx1262IrqTxDone | sx1262IrqRxDone | sx1262IrqCRCErr)
	if _, err := c.cmd(sx1262CmdSetDioIrqParams, byte(irq>>8), byte(irq), byte(irq>>8), byte(irq), 0, 0, 0, 0); err != nil {
		return err
	}
	if c.lora {
		return c.configureLoRa(d, 0)
	}
	return c.configureGFSK(d, d.AirSize())
}

func (c *SX1262) configureGFSK(d protocol.Descriptor, length int) error {
	if len(d.SyncWord) == 0 || len(d.SyncWord) > 8 {
		return fmt.Errorf("sx1262: invalid sync word length %d", len(d.SyncWord))
	}
	br := uint32(32 * uint64(sx1262FXtal) / uint64(d.BitrateBps))
	fdev := uint32((uint64(d.DeviationHz) << 25) / sx1262FXtal)
	bw := byte(0x0A) // 234.3 kHz
	if d.BitrateBps < 100000 {
		bw = 0x19 // 117.3 kHz
	}
	if _, err := c.cmd(sx1262CmdSetModulation,
		byte(br>>16), byte(br>>8), byte(br),
		0x09, // gaussian BT 0.5
		bw,
		byte(fdev>>16), byte(fdev>>8), byte(fdev),
	); err != nil {
		return err
	}
	preambleBits := uint16(d.PreambleLen * 8)
	if _, err := c.cmd(sx1262CmdSetPacketParams,
		byte(preambleBits>>8), byte(preambleBits),
		0x04, // 8-bit preamble detector
		byte(len(d.SyncWord)*8),
		0x00, // no address filtering
		0x00, // fixed length
		byte(length),
		0x01, // CRC off
		0x00, // whitening off
	); err != nil {
		return err
	}
	return c.writeRegister(sx1262RegGFSKSyncWord, d.SyncWord...)
}

func (c *SX1262) configureLoRa(d protocol.Descriptor, length int) error {
	bw, ok := sx1262LoRaBandwidths[d.LoRa.BandwidthHz]
	if !ok {
		return fmt.Errorf("sx1262: unsupported LoRa bandwidth %d", d.LoRa.BandwidthHz)
	}
	if _, err := c.cmd(sx1262CmdSetModulation, d.LoRa.SpreadingFactor, bw, d.LoRa.CodingRate, 0x00); err != nil {
		return err
	}
	if err := c.setLoRaPacket(d, length); err != nil {
		return err
	}
	var sync byte = 0x12
	if len(d.SyncWord) > 0 {
		sync = d.SyncWord[0]
	}
	// One-byte SX127x sync word 0xXY maps to 0xX4Y4.
	return c.writeRegister(sx1262RegLoRaSyncMSB, sync&0xF0|0x04, sync<<4|0x04)
}

func (c *SX1262) setLoRaPacket(d protocol.Descriptor, length int) error {
	if length == 0 {
		length = 0xFF
	}
	_, err := c.cmd(sx1262CmdSetPacketParams,
		0x00, byte(d.PreambleLen),
		0x00, // explicit header
		byte(length),
		0x01, // CRC on
		0x00, // standard IQ
	)
	return err
}

func (c *SX1262) clearIrq() error {
	_, err := c.cmd(sx1262CmdClearIrqStatus, 0xFF, 0xFF)
	return err
}

func (c *SX1262) StartRx() error {
	if err := c.clearIrq(); err != nil {
		return err
	}
	if c.lora {
		if err := c.setLoRaPacket(c.desc, 0); err != nil {
			return err
		}
	}
	// Continuous receive.
	_, err := c.cmd(sx1262CmdSetRx, 0xFF, 0xFF, 0xFF)
	return err
}

func (c *SX1262) StartTx(frame []byte) error {
	if len(frame) > airBufSize {
		return fmt.Errorf("sx1262: frame of %d bytes exceeds buffer", len(frame))
	}
	if err := c.Standby(); err != nil {
		return err
	}
	if c.lora {
		if err := c.setLoRaPacket(c.desc, len(frame)); err != nil {
			return err
		}
	}
	if _, err := c.cmd(sx1262CmdWriteBuffer, append([]byte{0x00}, frame...)...); err != nil {
		return err
	}
	if err := c.clearIrq(); err != nil {
		return err
	}
	// No timeout.
	_, err := c.cmd(sx1262CmdSetTx, 0x00, 0x00, 0x00)
	return err
}

func (c *SX1262) Poll() (Event, error) {
	rx, err := c.cmd(sx1262CmdGetIrqStatus, 0, 0, 0)
	if err != nil {
		return EventNone, err
	}
	irq := uint16(rx[2])<<8 | uint16(rx[3])
	switch {
	case irq&sx1262IrqTxDone != 0:
		return EventTxDone, c.clearIrq()
	case irq&sx1262IrqRxDone != 0 && irq&sx1262IrqCRCErr != 0:
		return EventRxCRCError, c.clearIrq()
	case irq&sx1262IrqRxDone != 0:
		return EventRxDone, nil
	}
	return EventNone, nil
}

func (c *SX1262) ReadFrame(buf []byte) (int, int, error) {
	st, err := c.cmd(sx1262CmdGetRxBufferStatus, 0, 0, 0)
	if err != nil {
		return 0, 0, err
	}
	n, start := int(st[2]), st[3]
	n = min(n, len(buf), airBufSize)

	params := make([]byte, 2+n)
	params[0] = start
	rx, err := c.cmd(sx1262CmdReadBuffer, params...)
	if err != nil {
		return 0, 0, err
	}
	copy(buf, rx[3:3+n])

	ps, err := c.cmd(sx1262CmdGetPacketStatus, 0, 0, 0, 0)
	if err != nil {
		return 0, 0, err
	}
	// GFSK reports RssiSync after RxStatus; LoRa leads with RssiPkt.
	raw := ps[3]
	if c.lora {
		raw = ps[2]
	}
	rssi := -int(raw) / 2
	return n, rssi, c.clearIrq()
}

func (c *SX1262) Standby() error {
	_, err := c.cmd(sx1262CmdSetStandby, 0x00)
	return err
}

func (c *SX1262) Sleep() error {
	_, err := c.cmd(sx1262CmdSetSleep, 0x04)
	return err
}
