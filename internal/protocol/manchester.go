package protocol

// Manchester symbols: a 1 bit is sent as 10, a 0 bit as 01.
var manchesterNibble = func() [16]byte {
	var out [16]byte
	for n := 0; n < 16; n++ {
		var v byte
		for bit := 3; bit >= 0; bit-- {
			v <<= 2
			if n&(1<<bit) != 0 {
				v |= 0b10
			} else {
				v |= 0b01
			}
		}
		out[n] = v
	}
	return out
}()

// ManchesterEncode writes 2*len(src) bytes into dst and returns that count.
func ManchesterEncode(dst, src []byte) int {
	if len(dst) < 2*len(src) {
		return 0
	}
	for i, b := range src {
		dst[2*i] = manchesterNibble[b>>4]
		dst[2*i+1] = manchesterNibble[b&0x0f]
	}
	return 2 * len(src)
}

// ManchesterDecode reverses ManchesterEncode. Invalid symbol pairs (00 or 11)
// decode as their first chip and are counted in errs.
func ManchesterDecode(dst, src []byte) (n, errs int) {
	n = len(src) / 2
	if len(dst) < n {
		return 0, 0
	}
	for i := 0; i < n; i++ {
		var out byte
		for _, chip := range src[2*i : 2*i+2] {
			for shift := 6; shift >= 0; shift -= 2 {
				pair := (chip >> uint(shift)) & 0b11
				out <<= 1
				switch pair {
				case 0b10:
					out |= 1
				case 0b01:
				default:
					errs++
					out |= pair >> 1
				}
			}
		}
		dst[i] = out
	}
	return n, errs
}
