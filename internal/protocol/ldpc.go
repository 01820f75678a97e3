package protocol

import "math/bits"

// Systematic Gallager (LDPC) code protecting the OGNTP payload:
// 160 information bits, 48 parity bits, every information column weight 3.
// The parity-check matrix is H = [A | I48]; columns of A are distinct, so any
// single bit error has a unique syndrome.
const (
	ldpcInfoBits   = 160
	ldpcParityBits = 48
	ldpcColWeight  = 3
	ldpcMaxIter    = 16
)

// ldpcColumns[j] is the set of checks information bit j participates in.
var ldpcColumns = func() [ldpcInfoBits]uint64 {
	var cols [ldpcInfoBits]uint64
	seen := make(map[uint64]bool, ldpcInfoBits)
	state := uint32(0x4F474E)
	next := func() uint32 {
		state = state*1664525 + 1013904223
		return state >> 8
	}
	for j := 0; j < ldpcInfoBits; {
		var col uint64
		for bits.OnesCount64(col) < ldpcColWeight {
			col |= 1 << (next() % ldpcParityBits)
		}
		if seen[col] {
			continue
		}
		seen[col] = true
		cols[j] = col
		j++
	}
	return cols
}()

func getBit(p []byte, i int) bool {
	return p[i>>3]&(0x80>>uint(i&7)) != 0
}

func flipBit(p []byte, i int) {
	p[i>>3] ^= 0x80 >> uint(i&7)
}

func packParity(dst []byte, parity uint64) {
	for i := 0; i < ldpcParityBits/8; i++ {
		dst[i] = byte(parity >> uint(ldpcParityBits-8-8*i))
	}
}

func unpackParity(src []byte) uint64 {
	var parity uint64
	for i := 0; i < ldpcParityBits/8; i++ {
		parity = parity<<8 | uint64(src[i])
	}
	return parity
}

// parity bit r of the packed trailer lives at bit position 47-r.
func parityColumn(r int) uint64 {
	return 1 << uint(ldpcParityBits-1-r)
}

func ldpcParity(info []byte) uint64 {
	var parity uint64
	for j := 0; j < ldpcInfoBits; j++ {
		if getBit(info, j) {
			parity ^= ldpcColumns[j]
		}
	}
	return parity
}

// ldpcEncode writes the 6 parity bytes for the 20 info bytes.
func ldpcEncode(parity, info []byte) {
	packParity(parity, ldpcParity(info))
}

// ldpcDecode corrects codeword (info followed by parity) in place by bit
// flipping. It reports the number of bits flipped and whether the final
// syndrome is zero.
func ldpcDecode(codeword []byte) (flipped int, ok bool) {
	info := codeword[:ldpcInfoBits/8]
	par := codeword[ldpcInfoBits/8 : (ldpcInfoBits+ldpcParityBits)/8]
	syndrome := ldpcParity(info) ^ unpackParity(par)

	for iter := 0; syndrome != 0 && iter < ldpcMaxIter; iter++ {
		best, bestCount, bestWeight := -1, 0, 1
		for j := 0; j < ldpcInfoBits+ldpcParityBits; j++ {
			col, weight := columnOf(j)
			count := bits.OnesCount64(col & syndrome)
			if count == 0 {
				continue
			}
			// Most unsatisfied checks first, then highest unsatisfied ratio.
			if count > bestCount || (count == bestCount && count*bestWeight > bestCount*weight) {
				best, bestCount, bestWeight = j, count, weight
			}
		}
		if best < 0 {
			break
		}
		flipBit(codeword, best)
		col, _ := columnOf(best)
		syndrome ^= col
		flipped++
	}
	return flipped, syndrome == 0
}

func columnOf(j int) (uint64, int) {
	if j < ldpcInfoBits {
		return ldpcColumns[j], ldpcColWeight
	}
	return parityColumn(j - ldpcInfoBits), 1
}
