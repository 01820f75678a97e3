package protocol

import "math"

const (
	feetPerMeter = 1 / 0.3048
	fpmPerMS     = 196.8503937007874
	kmhPerKt     = 1.852
)

func roundClamp(v float64, lo, hi int64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	r := int64(math.Round(v))
	if r < lo {
		return lo
	}
	if r > hi {
		return hi
	}
	return r
}

// normCourse maps any angle to [0, 360).
func normCourse(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

func courseTenths(deg float64) uint16 {
	c := roundClamp(normCourse(deg)*10, 0, 3600)
	if c == 3600 {
		c = 0
	}
	return uint16(c)
}

func degE7(deg float64) int32 {
	return int32(roundClamp(deg*1e7, math.MinInt32, math.MaxInt32))
}

func validLatLon(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) &&
		lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func putUint24LE(p []byte, v uint32) {
	p[0] = byte(v)
	p[1] = byte(v >> 8)
	p[2] = byte(v >> 16)
}

func uint24LE(p []byte) uint32 {
	return uint32(p[0]) | uint32(p[1])<<8 | uint32(p[2])<<16
}

func int24LE(p []byte) int32 {
	v := int32(uint24LE(p))
	if v&0x800000 != 0 {
		v -= 1 << 24
	}
	return v
}

// bitWriter packs MSB-first bit fields.
type bitWriter struct {
	p   []byte
	pos int
}

func (w *bitWriter) put(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if v&(1<<uint(i)) != 0 {
			w.p[w.pos>>3] |= 0x80 >> uint(w.pos&7)
		}
		w.pos++
	}
}

type bitReader struct {
	p   []byte
	pos int
}

func (r *bitReader) get(n int) uint32 {
	var v uint32
	for i := 0; i < n; i++ {
		v <<= 1
		if r.p[r.pos>>3]&(0x80>>uint(r.pos&7)) != 0 {
			v |= 1
		}
		r.pos++
	}
	return v
}
