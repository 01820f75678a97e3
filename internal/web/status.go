package web

import (
	"sync/atomic"
	"time"

	"ognbase/internal/gps"
	"ognbase/internal/rf"
	"ognbase/internal/traffic"
)

// Sources are the live components the endpoints read from. Any may be nil.
type Sources struct {
	Radio   func() rf.Status
	GPS     func() gps.Snapshot
	Traffic *traffic.Store
	// Export reports datagrams sent and send errors of the UDP exporter.
	Export func() (sent, errors uint64)
}

type Status struct {
	startUnixNano int64
	mode          atomic.Value // string
	station       atomic.Value // map[string]any
	src           Sources
}

func NewStatus(src Sources) *Status {
	s := &Status{src: src}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.mode.Store("")
	s.station.Store(map[string]any{})
	return s
}

// SetStatic records the run mode ("radio", "replay", "sim") and a summary of
// the station configuration.
func (s *Status) SetStatic(mode string, station map[string]any) {
	if mode != "" {
		s.mode.Store(mode)
	}
	if station != nil {
		s.station.Store(station)
	}
}

type ExportSnapshot struct {
	Sent   uint64 `json:"sent"`
	Errors uint64 `json:"errors"`
}

type StatusSnapshot struct {
	Service   string          `json:"service"`
	NowUTC    string          `json:"now_utc"`
	UptimeSec int64           `json:"uptime_sec"`
	Mode      string          `json:"mode"`
	Station   map[string]any  `json:"station"`
	Radio     *rf.Status      `json:"radio,omitempty"`
	GPS       *gps.Snapshot   `json:"gps,omitempty"`
	Export    *ExportSnapshot `json:"export,omitempty"`
	Tracked   int             `json:"tracked"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "ognbase",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Mode:      s.mode.Load().(string),
		Station:   s.station.Load().(map[string]any),
	}
	if s.src.Radio != nil {
		st := s.src.Radio()
		snap.Radio = &st
	}
	if s.src.GPS != nil {
		g := s.src.GPS()
		snap.GPS = &g
	}
	if s.src.Export != nil {
		sent, errs := s.src.Export()
		snap.Export = &ExportSnapshot{Sent: sent, Errors: errs}
	}
	if s.src.Traffic != nil {
		snap.Tracked = s.src.Traffic.Len()
	}
	return snap
}

// TrafficSnapshot is the /api/traffic response.
type TrafficSnapshot struct {
	NowUTC  string           `json:"now_utc"`
	Count   int              `json:"count"`
	Targets []traffic.Target `json:"targets"`
}

func (s *Status) Traffic(nowUTC time.Time) TrafficSnapshot {
	out := TrafficSnapshot{NowUTC: nowUTC.UTC().Format(time.RFC3339Nano), Targets: []traffic.Target{}}
	if s.src.Traffic == nil {
		return out
	}
	if t := s.src.Traffic.Snapshot(nowUTC); t != nil {
		out.Targets = t
	}
	out.Count = len(out.Targets)
	return out
}
