package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"os"
)

// Key and IV used when no private-network key material is provisioned.
var (
	defaultPNETKey = [aes.BlockSize]byte{0x2B, 0x7E, 0x15, 0x16, 0x28, 0xAE, 0xD2, 0xA6, 0xAB, 0xF7, 0x15, 0x88, 0x09, 0xCF, 0x4F, 0x3C}
	defaultPNETIV  = [aes.BlockSize]byte{}
)

var ErrPNETPadding = errors.New("protocol: bad private network padding")

// PrivateNetwork encrypts FANET payloads with AES-128-CBC and PKCS#7 padding so
// that only stations sharing the key can read them.
type PrivateNetwork struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

func NewPrivateNetwork(key, iv []byte) (*PrivateNetwork, error) {
	if len(key) != aes.BlockSize {
		return nil, fmt.Errorf("pnet key must be %d bytes, got %d", aes.BlockSize, len(key))
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("pnet iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	p := &PrivateNetwork{block: block}
	copy(p.iv[:], iv)
	return p, nil
}

// LoadPrivateNetwork reads the first 16 bytes of keyPath and ivPath. A missing
// or short file falls back to the built-in default; the returned flags report
// which defaults were used.
func LoadPrivateNetwork(keyPath, ivPath string) (p *PrivateNetwork, defaultKey, defaultIV bool, err error) {
	key, defaultKey := readBlockFile(keyPath, defaultPNETKey)
	iv, defaultIV := readBlockFile(ivPath, defaultPNETIV)
	p, err = NewPrivateNetwork(key[:], iv[:])
	return p, defaultKey, defaultIV, err
}

func readBlockFile(path string, fallback [aes.BlockSize]byte) ([aes.BlockSize]byte, bool) {
	if path == "" {
		return fallback, true
	}
	b, err := os.ReadFile(path)
	if err != nil || len(b) < aes.BlockSize {
		return fallback, true
	}
	var out [aes.BlockSize]byte
	copy(out[:], b)
	return out, false
}

// SealedSize is the ciphertext length for n plaintext bytes.
func (p *PrivateNetwork) SealedSize(n int) int {
	return (n/aes.BlockSize + 1) * aes.BlockSize
}

// Seal encrypts msg into dst and returns the ciphertext length, or 0 if dst
// is too small.
func (p *PrivateNetwork) Seal(dst, msg []byte) int {
	n := p.SealedSize(len(msg))
	if len(dst) < n {
		return 0
	}
	pad := byte(n - len(msg))
	buf := make([]byte, n)
	copy(buf, msg)
	for i := len(msg); i < n; i++ {
		buf[i] = pad
	}
	cipher.NewCBCEncrypter(p.block, p.iv[:]).CryptBlocks(dst[:n], buf)
	return n
}

// Open decrypts msg and strips the padding.
func (p *PrivateNetwork) Open(msg []byte) ([]byte, error) {
	if len(msg) == 0 || len(msg)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrMalformed, len(msg))
	}
	out := make([]byte, len(msg))
	cipher.NewCBCDecrypter(p.block, p.iv[:]).CryptBlocks(out, msg)
	pad := int(out[len(out)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, ErrPNETPadding
	}
	for _, b := range out[len(out)-pad:] {
		if int(b) != pad {
			return nil, ErrPNETPadding
		}
	}
	return out[:len(out)-pad], nil
}
