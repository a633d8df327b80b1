package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/udisondev/psotrace/internal/constants"
)

// Header is the 4-byte header in front of every message.
// Size counts the header itself.
type Header struct {
	ID    uint8
	Flags uint8
	Size  uint16
}

// ParseHeader decodes a header from the first 4 bytes of b without consuming anything.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < constants.MessageHeaderSize {
		return Header{}, fmt.Errorf("%w: have %d bytes", ErrTruncatedHeader, len(b))
	}
	return Header{
		ID:    b[0],
		Flags: b[1],
		Size:  binary.LittleEndian.Uint16(b[2:4]),
	}, nil
}

// ReadHeader reads a header from r.
func ReadHeader(r *Reader) (Header, error) {
	if r.Remaining() < constants.MessageHeaderSize {
		return Header{}, fmt.Errorf("%w: have %d bytes", ErrTruncatedHeader, r.Remaining())
	}
	id, _ := r.ReadByte()
	flags, _ := r.ReadByte()
	size, _ := r.ReadUint16()
	return Header{ID: id, Flags: flags, Size: size}, nil
}

// Bytes encodes the header.
func (h Header) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, constants.MessageHeaderSize))
}

// AppendTo appends the encoded header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	dst = append(dst, h.ID, h.Flags)
	return binary.LittleEndian.AppendUint16(dst, h.Size)
}

// BodySize returns the number of body bytes the header announces.
// It fails with ErrMessageFraming when Size is smaller than the header.
func (h Header) BodySize() (int, error) {
	if h.Size < constants.MessageHeaderSize {
		return 0, fmt.Errorf("%w: id=0x%02x size=%d", ErrMessageFraming, h.ID, h.Size)
	}
	return int(h.Size) - constants.MessageHeaderSize, nil
}

func (h Header) String() string {
	return fmt.Sprintf("id=0x%02x, flags=0x%02x, size=%d (0x%04x)", h.ID, h.Flags, h.Size, h.Size)
}
