package sim

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"ognbase/internal/protocol"
)

// ScenarioScript is a scripted traffic picture for replaying a known
// situation against the receive path.
//
// Times are Go duration strings ("0s", "250ms", "10s"). If Duration is zero
// it is the latest keyframe time.
//
//	version: 1
//	duration: 60s
//	traffic:
//	  - addr: "DD1234"
//	    protocol: legacy
//	    aircraft_type: 1
//	    keyframes:
//	      - t: 0s
//	        lat_deg: 47.0
//	        lon_deg: 8.0
//	        alt_m: 900
//	        speed_kt: 50
//	        course_deg: 90
//
// Keyframes must be sorted by t. Speeds are reported as written; a script
// whose positions move faster than its speeds will be rejected by the
// plausibility filter, which is sometimes the point.
//
//nolint:revive
type ScenarioScript struct {
	Version  int               `yaml:"version"`
	Duration time.Duration     `yaml:"duration"`
	Traffic  []ScenarioTraffic `yaml:"traffic"`
}

// ScenarioTraffic is one target's timeline.
//
//nolint:revive
type ScenarioTraffic struct {
	Addr         string            `yaml:"addr"`
	Protocol     string            `yaml:"protocol"`
	AircraftType uint8             `yaml:"aircraft_type"`
	Keyframes    []TrafficKeyframe `yaml:"keyframes"`
}

// TrafficKeyframe is a time-stamped target state.
type TrafficKeyframe struct {
	T         time.Duration `yaml:"t"`
	LatDeg    float64       `yaml:"lat_deg"`
	LonDeg    float64       `yaml:"lon_deg"`
	AltM      float64       `yaml:"alt_m"`
	SpeedKt   float64       `yaml:"speed_kt"`
	CourseDeg float64       `yaml:"course_deg"`
}

type scenarioTarget struct {
	addr      uint32
	id        protocol.ID
	acftType  uint8
	keyframes []TrafficKeyframe
}

// Scenario is the validated runtime form of a script.
type Scenario struct {
	targets  []scenarioTarget
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

// ParseScenarioScriptYAML parses a YAML scenario script.
func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Traffic) == 0 {
		return nil, fmt.Errorf("traffic is required")
	}

	scn := &Scenario{duration: script.Duration}
	for i, tr := range script.Traffic {
		addr, err := strconv.ParseUint(tr.Addr, 16, 24)
		if err != nil {
			return nil, fmt.Errorf("traffic[%d].addr %q: must be 6 hex digits", i, tr.Addr)
		}
		id := protocol.Legacy
		if tr.Protocol != "" {
			if id, err = protocol.ParseID(tr.Protocol); err != nil {
				return nil, fmt.Errorf("traffic[%d].protocol: %w", i, err)
			}
		}
		if len(tr.Keyframes) == 0 {
			return nil, fmt.Errorf("traffic[%d].keyframes is required", i)
		}
		if err := validateKeyframes(tr.Keyframes, i); err != nil {
			return nil, err
		}
		if script.Duration <= 0 {
			if last := tr.Keyframes[len(tr.Keyframes)-1].T; last > scn.duration {
				scn.duration = last
			}
		}
		scn.targets = append(scn.targets, scenarioTarget{
			addr:      uint32(addr),
			id:        id,
			acftType:  tr.AircraftType,
			keyframes: tr.Keyframes,
		})
	}
	if scn.duration <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	return scn, nil
}

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// StateAt computes every target's state at elapsed, stamped with ts.
//
// If loop is true, elapsed wraps around Duration(). Otherwise elapsed is
// clamped to [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration, loop bool, ts time.Time) []protocol.AircraftState {
	if s == nil {
		return nil
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed %= s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}

	out := make([]protocol.AircraftState, 0, len(s.targets))
	for _, tg := range s.targets {
		k0, k1, a := selectSegment(tg.keyframes, elapsed)
		out = append(out, protocol.AircraftState{
			Addr:         tg.addr,
			AddrType:     addrTypeFor(tg.id),
			AircraftType: tg.acftType,
			LatDeg:       lerp(k0.LatDeg, k1.LatDeg, a),
			LonDeg:       lerp(k0.LonDeg, k1.LonDeg, a),
			AltM:         lerp(k0.AltM, k1.AltM, a),
			SpeedKt:      lerp(k0.SpeedKt, k1.SpeedKt, a),
			CourseDeg:    lerpAngleDeg(k0.CourseDeg, k1.CourseDeg, a),
			Timestamp:    ts,
			Protocol:     tg.id,
		})
	}
	return out
}

// Player runs a Scenario against the wall clock as a Source.
type Player struct {
	Scenario *Scenario
	Start    time.Time
	Loop     bool
}

func (p Player) States(now time.Time) []protocol.AircraftState {
	return p.Scenario.StateAt(now.Sub(p.Start), p.Loop, now)
}

func validateKeyframes(kfs []TrafficKeyframe, ti int) error {
	for i := range kfs {
		if kfs[i].T < 0 {
			return fmt.Errorf("traffic[%d].keyframes[%d].t must be >= 0", ti, i)
		}
		if i > 0 && kfs[i].T < kfs[i-1].T {
			return fmt.Errorf("traffic[%d].keyframes must be sorted by t (index %d)", ti, i)
		}
	}
	return nil
}

func selectSegment(kfs []TrafficKeyframe, t time.Duration) (TrafficKeyframe, TrafficKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	return k0, k1, min(max(alpha, 0), 1)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// lerpAngleDeg interpolates along the shorter arc, result in [0, 360).
func lerpAngleDeg(a0, a1, t float64) float64 {
	norm := func(x float64) float64 {
		x = mod360(x)
		if x < 0 {
			x += 360
		}
		return x
	}
	a0 = norm(a0)
	a1 = norm(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return norm(a0 + delta*t)
}

func mod360(x float64) float64 {
	for x >= 360 {
		x -= 360
	}
	for x <= -360 {
		x += 360
	}
	return x
}
