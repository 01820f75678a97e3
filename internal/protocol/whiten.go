package protocol

// whiteningPattern is the PN9 sequence (x^9 + x^5 + 1, seed 0x1FF) used by
// NiceRF-style modules, long enough to cover any payload in the table.
var whiteningPattern = func() [64]byte {
	var out [64]byte
	state := uint16(0x1FF)
	for i := range out {
		out[i] = byte(state)
		for bit := 0; bit < 8; bit++ {
			fb := (state ^ (state >> 5)) & 1
			state = (state >> 1) | (fb << 8)
		}
	}
	return out
}()

// whiten XORs p with the PN9 pattern in place. Applying it twice restores p.
func whiten(p []byte) {
	for i := range p {
		p[i] ^= whiteningPattern[i%len(whiteningPattern)]
	}
}
