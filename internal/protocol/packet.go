package protocol

import (
	"fmt"
	"io"

	"github.com/udisondev/psotrace/internal/constants"
)

// WriteMessage writes m to w in wire form. The header size must agree with the body length.
func WriteMessage(w io.Writer, m Message) error {
	if int(m.Header.Size) != constants.MessageHeaderSize+len(m.Body) {
		return fmt.Errorf("write message: header size %d does not match body length %d", m.Header.Size, len(m.Body))
	}
	if _, err := w.Write(m.Bytes()); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// ReadMessage reads one message from a cleartext stream.
// io.EOF is returned unchanged when r is exhausted at a message boundary.
func ReadMessage(r io.Reader) (Message, error) {
	var header [constants.MessageHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("%w: %w", ErrTruncatedHeader, err)
	}

	h, _ := ParseHeader(header[:])
	n, err := h.BodySize()
	if err != nil {
		return Message{}, err
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrTruncatedBody, err)
	}
	return Message{Header: h, Body: body}, nil
}
