package crypto

import (
	"encoding/binary"

	"github.com/udisondev/psotrace/internal/constants"
)

// GCCrypt implements the GameCube stream cipher (variant A).
//
// Key schedule:
//   - 17 words come out of a 32-step LCG bit recurrence on the seed.
//   - Word 16 is then replaced by (w[0] >> 9) ^ (w[16] << 23) ^ w[15].
//   - The rest of the 521-word table is filled from a sliding window of three
//     positions, combining a 9-bit and a 23-bit split.
//   - The table is refilled three times and the cursor parked on the last
//     index, so the first word drawn triggers one more refill.
//
// All arithmetic wraps at 32 bits, like the original client.
type GCCrypt struct {
	stream [constants.GCStreamLength]uint32
	offset int
}

// NewGCCrypt builds the key table for seed.
func NewGCCrypt(seed uint32) *GCCrypt {
	gc := &GCCrypt{}

	var basekey uint32
	offset := 0
	for range constants.GCSeedRounds {
		for range 32 {
			seed *= constants.GCSeedMultiplier
			basekey >>= 1
			seed++
			if seed&0x80000000 != 0 {
				basekey |= 0x80000000
			} else {
				basekey &= 0x7FFFFFFF
			}
		}
		gc.stream[offset] = basekey
		offset++
	}

	gc.stream[offset-1] = ((gc.stream[0] >> 9) ^ (gc.stream[offset-1] << 23)) ^ gc.stream[15]

	src1, src2, src3 := 0, 1, offset-1
	for offset != constants.GCStreamLength {
		gc.stream[offset] = gc.stream[src3] ^
			(((gc.stream[src1] << 23) & 0xFF800000) ^ ((gc.stream[src2] >> 9) & 0x007FFFFF))
		offset++
		src1++
		src2++
		src3++
	}

	gc.refill()
	gc.refill()
	gc.refill()
	gc.offset = constants.GCStreamLength - 1

	return gc
}

// refill mixes the table: first the upper window [489, 521) is XORed into
// [0, 32), then the remainder is XORed with the table from index 0.
func (gc *GCCrypt) refill() {
	dst := 0
	for src := constants.GCRefillWindow; src != constants.GCStreamLength; src++ {
		gc.stream[dst] ^= gc.stream[src]
		dst++
	}
	for src := 0; dst != constants.GCStreamLength; src++ {
		gc.stream[dst] ^= gc.stream[src]
		dst++
	}
	gc.offset = 0
}

func (gc *GCCrypt) next() uint32 {
	gc.offset++
	if gc.offset == constants.GCStreamLength {
		gc.refill()
	}
	return gc.stream[gc.offset]
}

// Crypt XORs every little-endian word of data with the next stream word.
func (gc *GCCrypt) Crypt(data []byte) error {
	if len(data)%constants.CipherWordSize != 0 {
		return ErrCipherLength
	}
	for i := 0; i < len(data); i += constants.CipherWordSize {
		w := binary.LittleEndian.Uint32(data[i:])
		binary.LittleEndian.PutUint32(data[i:], w^gc.next())
	}
	return nil
}
