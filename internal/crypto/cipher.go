package crypto

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCipherLength is returned when Crypt is called with a buffer whose length
// is not a multiple of the cipher word size (4 bytes).
var ErrCipherLength = errors.New("cipher buffer length is not a multiple of 4")

// Cipher is a keyed word-stream generator that XORs buffers in place.
//
// Crypt is its own inverse only across two instances built from the same seed:
// running Crypt twice on one instance advances the stream and does not restore
// the input.
type Cipher interface {
	Crypt(data []byte) error
}

// Variant selects the key schedule used by a client family.
type Variant int

const (
	VariantGameCube Variant = iota // 521-word table (GameCube, Xbox)
	VariantPC                      // 57-word table (PC, Dreamcast)
)

func (v Variant) String() string {
	switch v {
	case VariantGameCube:
		return "gamecube"
	case VariantPC:
		return "pc"
	default:
		return "unknown"
	}
}

// ParseVariant converts a config value into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gamecube", "gc", "a":
		return VariantGameCube, nil
	case "pc", "b":
		return VariantPC, nil
	default:
		return 0, fmt.Errorf("unknown cipher variant %q", s)
	}
}

// NewCipher creates a cipher of the given variant seeded with seed.
// Unknown variants fall back to the GameCube cipher.
func NewCipher(v Variant, seed uint32) Cipher {
	if v == VariantPC {
		return NewPCCrypt(seed)
	}
	return NewGCCrypt(seed)
}
