package crypto

import (
	"encoding/binary"

	"github.com/udisondev/psotrace/internal/constants"
)

// PCCrypt implements the PC stream cipher (variant B).
//
// The 57-word table is filled by an additive/subtractive recurrence stepping
// through indexes 0x15, 0x2A, ... modulo 55, then refilled four times.
// A refill subtracts [32, 56) from [1, 25) and then [1, 32) from [25, 56).
// Words 0 and 56 are never emitted.
type PCCrypt struct {
	stream [constants.PCStreamLength]uint32
	offset int
}

// NewPCCrypt builds the key table for seed.
func NewPCCrypt(seed uint32) *PCCrypt {
	pc := &PCCrypt{offset: constants.PCStreamLength - 1}

	esi := uint32(1)
	ebx := seed
	pc.stream[56] = ebx
	pc.stream[55] = ebx

	for edi := uint32(constants.PCSeedStep); edi <= constants.PCSeedLimit; edi += constants.PCSeedStep {
		edx := edi % 55
		ebx -= esi
		pc.stream[edx] = esi
		esi = ebx
		ebx = pc.stream[edx]
	}

	for range 4 {
		pc.refill()
	}

	return pc
}

func (pc *PCCrypt) refill() {
	for i := 1; i <= 0x18; i++ {
		pc.stream[i] -= pc.stream[i+0x1F]
	}
	for i := 0x19; i < 0x19+0x1F; i++ {
		pc.stream[i] -= pc.stream[i-0x18]
	}
}

func (pc *PCCrypt) next() uint32 {
	if pc.offset == constants.PCStreamLength-1 {
		pc.refill()
		pc.offset = 1
	}
	w := pc.stream[pc.offset]
	pc.offset++
	return w
}

// Crypt XORs every little-endian word of data with the next stream word.
func (pc *PCCrypt) Crypt(data []byte) error {
	if len(data)%constants.CipherWordSize != 0 {
		return ErrCipherLength
	}
	for i := 0; i < len(data); i += constants.CipherWordSize {
		w := binary.LittleEndian.Uint32(data[i:])
		binary.LittleEndian.PutUint32(data[i:], w^pc.next())
	}
	return nil
}
