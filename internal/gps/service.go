package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Config controls the GPS reader.
//
// Device may be empty to auto-detect /dev/ttyACM* or /dev/ttyUSB*. Many
// u-blox receivers default to 9600 baud; HATs wired to the UART often run
// faster.
type Config struct {
	Enable bool
	Device string
	Baud   int
}

// Snapshot is the latest GNSS state. UTC and CommitMs move together: UTC is
// the time carried by the sentence committed at monotonic CommitMs.
type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`

	Source string `json:"source,omitempty"`
	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`

	UTC      time.Time `json:"utc"`
	CommitMs int64     `json:"commit_ms"`

	LatDeg     float64  `json:"lat_deg,omitempty"`
	LonDeg     float64  `json:"lon_deg,omitempty"`
	AltM       *float64 `json:"alt_m,omitempty"`
	GroundKt   *float64 `json:"ground_kt,omitempty"`
	TrackDeg   *float64 `json:"track_deg,omitempty"`
	FixQuality int      `json:"fix_quality"`
	Satellites int      `json:"satellites"`
	HDOP       float64  `json:"hdop,omitempty"`

	LastFixUTC string `json:"last_fix_utc,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// LatLonE6 returns the position in micro-degrees.
func (s Snapshot) LatLonE6() (int32, int32) {
	return int32(s.LatDeg * 1e6), int32(s.LonDeg * 1e6)
}

type Service struct {
	cfg    Config
	nowMs  func() int64
	logger *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
}

// New builds a service. nowMs is the monotonic clock sentence commits are
// stamped with; it must be the same clock PPS edges use.
func New(cfg Config, nowMs func() int64, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{cfg: cfg, nowMs: nowMs, logger: logger}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: "nmea", Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}

	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}

	f, err := openSerial(device, baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, baud, err))
		return err
	}
	// Keep the file reference for Close().
	s.closer = f

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.last.Store(Snapshot{Enabled: true, Source: "nmea", Device: device, Baud: baud})
	s.logger.Info("gps enabled", "device", device, "baud", baud)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			_ = f.Close()
		}()
		s.consume(childCtx, f, device, baud)
	}()
	return nil
}

// consume reads NMEA lines from r until EOF or cancellation, publishing a new
// snapshot after every sentence that changed the state.
func (s *Service) consume(ctx context.Context, r io.Reader, device string, baud int) {
	reader := bufio.NewScanner(r)
	// NMEA sentences are typically < 82 chars, but allow some headroom.
	reader.Buffer(make([]byte, 0, 256), 4096)

	var st nmeaState
	st.device = device
	st.baud = baud

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !reader.Scan() {
			err := reader.Err()
			if err == nil {
				err = io.EOF
			}
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
			return
		}
		nowMs := s.nowMs()

		line := strings.TrimSpace(reader.Text())
		// Some receivers may include non-NMEA chatter; filter quickly.
		if !strings.HasPrefix(line, "$") {
			continue
		}

		sent, perr := parseNMEASentence(line)
		if perr != nil {
			// Avoid spamming on bad noise; just keep the last error.
			s.setError(perr.Error())
			continue
		}

		if updated := st.apply(time.Now().UTC(), nowMs, sent); updated {
			s.last.Store(st.snapshot())
		}
	}
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	cur := s.Snapshot()
	cur.LastError = msg
	// Do not force Valid=false here; transient parse issues shouldn't flip validity.
	s.last.Store(cur)
}

func autoDetectDevice() string {
	candidates := []string{"/dev/serial0", "/dev/ttyAMA0"}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
