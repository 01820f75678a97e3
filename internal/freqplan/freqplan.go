// Package freqplan maps GNSS time and slot to the regional hopping channel.
package freqplan

import (
	"fmt"
	"strings"
)

type Region uint8

const (
	Auto Region = iota
	EU
	US
	AU
	NZ
	RU
	CN
	UK
	IN
	IL
	KR
)

var regionNames = map[Region]string{
	Auto: "auto",
	EU:   "eu",
	US:   "us",
	AU:   "au",
	NZ:   "nz",
	RU:   "ru",
	CN:   "cn",
	UK:   "uk",
	IN:   "in",
	IL:   "il",
	KR:   "kr",
}

func (r Region) String() string {
	if s, ok := regionNames[r]; ok {
		return s
	}
	return fmt.Sprintf("region(%d)", uint8(r))
}

func ParseRegion(s string) (Region, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Auto, nil
	}
	for r, name := range regionNames {
		if name == s {
			return r, nil
		}
	}
	return Auto, fmt.Errorf("unknown band %q", s)
}

// Band is one regional channel table.
type Band struct {
	Region        Region
	BaseHz        uint32
	SpacingHz     uint32
	Channels      uint8
	MaxTxPowerDBm int
}

var bands = map[Region]Band{
	EU: {Region: EU, BaseHz: 868200000, SpacingHz: 200000, Channels: 2, MaxTxPowerDBm: 14},
	US: {Region: US, BaseHz: 902200000, SpacingHz: 400000, Channels: 65, MaxTxPowerDBm: 30},
	AU: {Region: AU, BaseHz: 917000000, SpacingHz: 400000, Channels: 24, MaxTxPowerDBm: 30},
	NZ: {Region: NZ, BaseHz: 869250000, SpacingHz: 200000, Channels: 1, MaxTxPowerDBm: 10},
	RU: {Region: RU, BaseHz: 868800000, SpacingHz: 200000, Channels: 1, MaxTxPowerDBm: 14},
	CN: {Region: CN, BaseHz: 470100000, SpacingHz: 200000, Channels: 18, MaxTxPowerDBm: 17},
	UK: {Region: UK, BaseHz: 869525000, SpacingHz: 200000, Channels: 1, MaxTxPowerDBm: 27},
	IN: {Region: IN, BaseHz: 866000000, SpacingHz: 200000, Channels: 1, MaxTxPowerDBm: 30},
	IL: {Region: IL, BaseHz: 916200000, SpacingHz: 200000, Channels: 1, MaxTxPowerDBm: 30},
	KR: {Region: KR, BaseHz: 920900000, SpacingHz: 200000, Channels: 1, MaxTxPowerDBm: 23},
}

// BandFor returns the table for r. Auto has no table.
func BandFor(r Region) (Band, bool) {
	b, ok := bands[r]
	return b, ok
}

// Regions lists every region with a channel table, in enum order.
func Regions() []Region {
	out := make([]Region, 0, len(bands))
	for r := EU; r <= KR; r++ {
		if _, ok := bands[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

// RegionForPosition picks the plan for a position in microdegrees.
func RegionForPosition(latE6, lonE6 int32) Region {
	if lonE6 >= -20000000 && lonE6 <= 60000000 {
		return EU
	}
	if latE6 < 20000000 {
		if lonE6 > 164000000 && latE6 > -48000000 && latE6 < -30000000 {
			return NZ
		}
		return AU
	}
	return US
}

// Plan is the active channel table. In auto mode it is not ready until a
// position has been supplied.
type Plan struct {
	auto  bool
	ready bool
	band  Band
}

func New(r Region) (*Plan, error) {
	p := &Plan{}
	if r == Auto {
		p.auto = true
		return p, nil
	}
	if err := p.SetRegion(r); err != nil {
		return nil, err
	}
	return p, nil
}

// SetRegion fixes the plan to r.
func (p *Plan) SetRegion(r Region) error {
	b, ok := bands[r]
	if !ok {
		return fmt.Errorf("no channel table for %v", r)
	}
	p.band = b
	p.ready = true
	return nil
}

// SetPosition resolves an auto plan from a position fix. It reports whether
// the plan changed. Fixed plans ignore it.
func (p *Plan) SetPosition(latE6, lonE6 int32) bool {
	if !p.auto {
		return false
	}
	r := RegionForPosition(latE6, lonE6)
	if p.ready && p.band.Region == r {
		return false
	}
	p.band = bands[r]
	p.ready = true
	return true
}

func (p *Plan) Ready() bool { return p.ready }

func (p *Plan) Auto() bool { return p.auto }

func (p *Plan) Band() Band { return p.band }

func (p *Plan) Channels() uint8 { return p.band.Channels }

func (p *Plan) MaxTxPowerDBm() int { return p.band.MaxTxPowerDBm }

// Channel returns the channel for absolute second t and slot. The FLARM and
// OGN classes never share a channel at the same instant when the plan has more
// than one channel.
func (p *Plan) Channel(t uint32, slot uint8, ogn bool) uint8 {
	return channel(p.band.Channels, t, slot, ogn)
}

func channel(n uint8, t uint32, slot uint8, ogn bool) uint8 {
	if n <= 1 {
		return 0
	}
	slot &= 1
	if n == 2 {
		if ogn {
			return slot ^ 1
		}
		return slot
	}
	flarm := uint8(hopHash((t<<1)+uint32(slot)) % uint32(n))
	if !ogn {
		return flarm
	}
	var ch uint8
	if slot == 0 {
		ch = neighbour(flarm, n)
	} else {
		ch = neighbour(uint8(hopHash(t<<1)%uint32(n)), n)
		if ch == flarm {
			ch = neighbour(ch, n)
		}
	}
	return ch
}

func neighbour(ch, n uint8) uint8 {
	ch++
	if ch >= n {
		ch -= 2
	}
	return ch
}

func hopHash(t uint32) uint32 {
	t = (t << 15) + ^t
	t ^= t >> 12
	t += t << 2
	t ^= t >> 4
	t *= 2057
	return t ^ (t >> 16)
}

// Frequency is the carrier for channel ch in Hz.
func (p *Plan) Frequency(ch uint8) uint32 {
	return p.band.BaseHz + uint32(ch)*p.band.SpacingHz
}

// CorrectedFrequency applies an operator correction in kHz, clamped to
// +/- maxKHz.
func (p *Plan) CorrectedFrequency(ch uint8, corrKHz, maxKHz int) uint32 {
	return uint32(int64(p.Frequency(ch)) + int64(ClampCorrection(corrKHz, maxKHz))*1000)
}

func ClampCorrection(corrKHz, maxKHz int) int {
	if maxKHz < 0 {
		maxKHz = 0
	}
	if corrKHz > maxKHz {
		return maxKHz
	}
	if corrKHz < -maxKHz {
		return -maxKHz
	}
	return corrKHz
}
