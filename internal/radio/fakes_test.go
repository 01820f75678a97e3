package radio

import "errors"

// fakeSX1276 emulates the SX1276 register file, FIFO and the IRQ flags the
// driver looks at.
type fakeSX1276 struct {
	regs   [128]byte
	fifoTx []byte
	fifoRx []byte
	sent   [][]byte
	fail   error
}

func newFakeSX1276() *fakeSX1276 {
	f := &fakeSX1276{}
	f.regs[sx1276RegVersion] = sx1276Version
	return f
}

func (f *fakeSX1276) lora() bool { return f.regs[sx1276RegOpMode]&sx1276ModeLoRa != 0 }

func (f *fakeSX1276) mode() byte { return f.regs[sx1276RegOpMode] & 0x07 }

func (f *fakeSX1276) Transfer(tx, rx []byte) error {
	if f.fail != nil {
		return f.fail
	}
	if len(tx) != len(rx) {
		return errors.New("fake: tx/rx length mismatch")
	}
	addr := tx[0] & 0x7F
	write := tx[0]&0x80 != 0
	for i := 1; i < len(tx); i++ {
		if addr == sx1276RegFifo {
			if write {
				f.fifoTx = append(f.fifoTx, tx[i])
				continue
			}
			if len(f.fifoRx) > 0 {
				rx[i] = f.fifoRx[0]
				f.fifoRx = f.fifoRx[1:]
			}
			if len(f.fifoRx) == 0 && !f.lora() {
				f.regs[sx1276RegIrqFlags2] &^= sx1276IrqPayloadReady
			}
			continue
		}
		if write {
			f.write(addr, tx[i])
		} else {
			rx[i] = f.regs[addr]
		}
		addr++
	}
	return nil
}

func (f *fakeSX1276) write(reg, v byte) {
	switch {
	case reg == sx1276LoRaIrqFlags && f.lora():
		f.regs[reg] &^= v
	case reg == sx1276RegOpMode:
		f.regs[reg] = v
		if f.mode() == sx1276ModeTx {
			f.sent = append(f.sent, f.fifoTx)
			f.fifoTx = nil
			if f.lora() {
				f.regs[sx1276LoRaIrqFlags] |= sx1276LoRaIrqTxDone
			} else {
				f.regs[sx1276RegIrqFlags2] |= sx1276IrqPacketSent
			}
		} else if !f.lora() {
			f.regs[sx1276RegIrqFlags2] &^= sx1276IrqPacketSent
		}
	default:
		f.regs[reg] = v
	}
}

func (f *fakeSX1276) injectFSK(frame []byte, rssi int) {
	f.fifoRx = append([]byte(nil), frame...)
	f.regs[sx1276RegRssiValue] = byte(-rssi * 2)
	f.regs[sx1276RegIrqFlags2] |= sx1276IrqPayloadReady
}

func (f *fakeSX1276) injectLoRa(frame []byte, rssi int, crcErr bool) {
	f.fifoRx = append([]byte(nil), frame...)
	f.regs[sx1276LoRaRxNbBytes] = byte(len(frame))
	f.regs[sx1276LoRaFifoRxCurrent] = 0
	f.regs[sx1276LoRaPktRssi] = byte(rssi + 157)
	f.regs[sx1276LoRaIrqFlags] |= sx1276LoRaIrqRxDone
	if crcErr {
		f.regs[sx1276LoRaIrqFlags] |= sx1276LoRaIrqCRCError
	}
}

// fakeSX1262 answers the subset of SX126x commands the driver issues.
type fakeSX1262 struct {
	syncMSB, syncLSB byte
	packetType       byte
	frf              uint32
	irq              uint16
	buf              [256]byte
	txLen            int
	rxLen, rxStart   byte
	rssiRaw          byte
	sent             [][]byte
	ops              []byte
}

func newFakeSX1262() *fakeSX1262 {
	return &fakeSX1262{syncMSB: 0x14, syncLSB: 0x24}
}

func (f *fakeSX1262) Transfer(tx, rx []byte) error {
	op := tx[0]
	f.ops = append(f.ops, op)
	switch op {
	case sx1262CmdReadRegister:
		addr := uint16(tx[1])<<8 | uint16(tx[2])
		switch addr {
		case sx1262RegLoRaSyncMSB:
			rx[4] = f.syncMSB
		case sx1262RegLoRaSyncLSB:
			rx[4] = f.syncLSB
		}
	case sx1262CmdWriteRegister:
		addr := uint16(tx[1])<<8 | uint16(tx[2])
		for i, v := range tx[3:] {
			switch addr + uint16(i) {
			case sx1262RegLoRaSyncMSB:
				f.syncMSB = v
			case sx1262RegLoRaSyncLSB:
				f.syncLSB = v
			}
		}
	case sx1262CmdSetPacketType:
		f.packetType = tx[1]
	case sx1262CmdSetRfFrequency:
		f.frf = uint32(tx[1])<<24 | uint32(tx[2])<<16 | uint32(tx[3])<<8 | uint32(tx[4])
	case sx1262CmdWriteBuffer:
		f.txLen = copy(f.buf[tx[1]:], tx[2:])
	case sx1262CmdSetTx:
		f.sent = append(f.sent, append([]byte(nil), f.buf[:f.txLen]...))
		f.irq |= sx1262IrqTxDone
	case sx1262CmdGetIrqStatus:
		rx[2], rx[3] = byte(f.irq>>8), byte(f.irq)
	case sx1262CmdClearIrqStatus:
		f.irq &^= uint16(tx[1])<<8 | uint16(tx[2])
	case sx1262CmdGetRxBufferStatus:
		rx[2], rx[3] = f.rxLen, f.rxStart
	case sx1262CmdReadBuffer:
		off := int(tx[1])
		for i := 3; i < len(tx); i++ {
			rx[i] = f.buf[off+i-3]
		}
	case sx1262CmdGetPacketStatus:
		rx[2], rx[3] = f.rssiRaw, f.rssiRaw
	}
	return nil
}

func (f *fakeSX1262) inject(frame []byte, rssi int) {
	f.rxStart = 0x80
	copy(f.buf[0x80:], frame)
	f.rxLen = byte(len(frame))
	f.rssiRaw = byte(-rssi * 2)
	f.irq |= sx1262IrqRxDone
}

// countingModem counts retunes on top of a loopback modem.
type countingModem struct {
	*Loopback
	setFreq int
}

func (m *countingModem) SetFrequency(hz uint32) error {
	m.setFreq++
	return m.Loopback.SetFrequency(hz)
}

// absentModem never answers a probe until present is set.
type absentModem struct {
	*Loopback
	chip    Chip
	present bool
	probes  int
}

func (m *absentModem) Chip() Chip { return m.chip }

func (m *absentModem) Probe() bool {
	m.probes++
	return m.present
}
