package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reader предоставляет методы для последовательного чтения полей сообщения.
// Использует Little-Endian byte order для всех многобайтовых значений.
// Ошибки при нехватке данных оборачивают io.ErrUnexpectedEOF.
type Reader struct {
	data []byte
	pos  int
}

// NewReader создаёт новый Reader поверх data (без копирования).
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadByte читает 1 байт.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("ReadByte: not enough data (pos=%d, len=%d): %w", r.pos, len(r.data), io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadUint16 читает uint16 (2 байта, LE).
func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("ReadUint16: not enough data (pos=%d, len=%d): %w", r.pos, len(r.data), io.ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 читает uint32 (4 байта, LE).
func (r *Reader) ReadUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("ReadUint32: not enough data (pos=%d, len=%d): %w", r.pos, len(r.data), io.ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadBytes читает n байт и возвращает их копию.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("ReadBytes: negative count %d", n)
	}
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("ReadBytes: not enough data (pos=%d, need=%d, len=%d): %w", r.pos, n, len(r.data), io.ErrUnexpectedEOF)
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:r.pos+n])
	r.pos += n
	return b, nil
}

// Skip пропускает n байт.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.pos+n > len(r.data) {
		return fmt.Errorf("Skip: cannot skip %d bytes (pos=%d, len=%d): %w", n, r.pos, len(r.data), io.ErrUnexpectedEOF)
	}
	r.pos += n
	return nil
}

// Remaining возвращает количество непрочитанных байт.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Position возвращает текущую позицию чтения.
func (r *Reader) Position() int {
	return r.pos
}
