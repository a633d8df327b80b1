package protocol

import (
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/udisondev/psotrace/internal/constants"
)

// Message is one length-prefixed application message: a header plus exactly
// Header.Size-4 body bytes.
type Message struct {
	Header Header
	Body   []byte
}

// MessageFromBytes reads the body announced by h from r.
// Callers must make sure the body is fully available; a short reader yields
// ErrTruncatedBody and the bytes read so far are lost.
func MessageFromBytes(h Header, r *Reader) (Message, error) {
	n, err := h.BodySize()
	if err != nil {
		return Message{}, err
	}
	if r.Remaining() < n {
		return Message{}, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncatedBody, n, r.Remaining())
	}
	body, err := r.ReadBytes(n)
	if err != nil {
		return Message{}, fmt.Errorf("reading message body: %w", err)
	}
	return Message{Header: h, Body: body}, nil
}

// ParseMessage decodes one complete message from the front of b and returns it
// with the number of bytes it occupied.
func ParseMessage(b []byte) (Message, int, error) {
	r := NewReader(b)
	h, err := ReadHeader(r)
	if err != nil {
		return Message{}, 0, err
	}
	m, err := MessageFromBytes(h, r)
	if err != nil {
		return Message{}, 0, err
	}
	return m, int(h.Size), nil
}

// Bytes encodes the message back to its wire form.
func (m Message) Bytes() []byte {
	buf := make([]byte, 0, constants.MessageHeaderSize+len(m.Body))
	buf = m.Header.AppendTo(buf)
	return append(buf, m.Body...)
}

// Digest returns the BLAKE2b-256 digest of the encoded message.
func (m Message) Digest() [32]byte {
	return blake2b.Sum256(m.Bytes())
}
