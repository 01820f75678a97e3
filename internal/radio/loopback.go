package radio

import (
	"sync"

	"ognbase/internal/protocol"
)

// Loopback is an in-memory modem for self-test and simulation. Frames given
// to Inject are received in order; transmitted frames are kept for Sent.
// Inject and Sent may be called from other goroutines.
type Loopback struct {
	mu sync.Mutex

	cfg     ModemConfig
	freqHz  uint32
	rxOn    bool
	txBusy  bool
	inbox   []loopFrame
	sent    [][]byte
	maxSent int

	// HangTx leaves every transmission incomplete.
	HangTx bool
}

type loopFrame struct {
	data   []byte
	rssi   int
	crcErr bool
}

func NewLoopback() *Loopback {
	return &Loopback{maxSent: 64}
}

func (l *Loopback) Chip() Chip { return ChipLoopback }

func (l *Loopback) Probe() bool { return true }

func (l *Loopback) Supports(id protocol.ID) bool { return id.Valid() }

func (l *Loopback) MaxTxPowerDBm() int { return 20 }

func (l *Loopback) MaxFreqCorrKHz() int { return 30 }

func (l *Loopback) Configure(cfg ModemConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg
	l.freqHz = cfg.FrequencyHz
	return nil
}

func (l *Loopback) SetFrequency(hz uint32) error {
	l.mu.Lock()
	l.freqHz = hz
	l.mu.Unlock()
	return nil
}

// FrequencyHz reports the last tuned carrier.
func (l *Loopback) FrequencyHz() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.freqHz
}

func (l *Loopback) Config() ModemConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *Loopback) StartRx() error {
	l.mu.Lock()
	l.rxOn, l.txBusy = true, false
	l.mu.Unlock()
	return nil
}

func (l *Loopback) StartTx(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rxOn, l.txBusy = false, true
	l.sent = append(l.sent, append([]byte(nil), frame...))
	if len(l.sent) > l.maxSent {
		l.sent = l.sent[len(l.sent)-l.maxSent:]
	}
	return nil
}

func (l *Loopback) Poll() (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.txBusy {
		if l.HangTx {
			return EventNone, nil
		}
		l.txBusy = false
		return EventTxDone, nil
	}
	if l.rxOn && len(l.inbox) > 0 {
		if l.inbox[0].crcErr {
			l.inbox = l.inbox[1:]
			return EventRxCRCError, nil
		}
		return EventRxDone, nil
	}
	return EventNone, nil
}

func (l *Loopback) ReadFrame(buf []byte) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbox) == 0 {
		return 0, 0, nil
	}
	f := l.inbox[0]
	l.inbox = l.inbox[1:]
	return copy(buf, f.data), f.rssi, nil
}

func (l *Loopback) Standby() error {
	l.mu.Lock()
	l.rxOn, l.txBusy = false, false
	l.mu.Unlock()
	return nil
}

func (l *Loopback) Sleep() error { return l.Standby() }

// Inject queues an on-air frame (after line coding) for reception.
func (l *Loopback) Inject(frame []byte, rssi int) {
	l.mu.Lock()
	l.inbox = append(l.inbox, loopFrame{data: append([]byte(nil), frame...), rssi: rssi})
	l.mu.Unlock()
}

// InjectCRCError queues a reception the chip rejects on its own CRC.
func (l *Loopback) InjectCRCError() {
	l.mu.Lock()
	l.inbox = append(l.inbox, loopFrame{crcErr: true})
	l.mu.Unlock()
}

// Sent returns a copy of the transmitted frames, oldest first.
func (l *Loopback) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	copy(out, l.sent)
	return out
}
