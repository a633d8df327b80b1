package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/udisondev/psotrace/internal/constants"
)

// ServerKind tells which server sent a session init, as selected by its copyright string.
type ServerKind int

const (
	LoginServer ServerKind = iota
	ShipServer
)

func (k ServerKind) String() string {
	switch k {
	case LoginServer:
		return "login"
	case ShipServer:
		return "ship"
	default:
		return "unknown"
	}
}

// SessionInit is the first, cleartext message of a connection. It carries the
// seeds of both stream ciphers.
type SessionInit struct {
	Header    Header
	Server    ServerKind
	ServerKey uint32
	ClientKey uint32

	// Trailer holds whatever the server sent after the client key, e.g. the
	// notice some private servers append. Nil for a minimum-size init.
	Trailer []byte
}

// NewSessionInit builds a minimum-size session init.
func NewSessionInit(kind ServerKind, serverKey, clientKey uint32) SessionInit {
	id := uint8(constants.SessionInitIDLoginServer)
	if kind == ShipServer {
		id = constants.SessionInitIDShipServer
	}
	return SessionInit{
		Header:    Header{ID: id, Size: constants.SessionInitMinSize},
		Server:    kind,
		ServerKey: serverKey,
		ClientKey: clientKey,
	}
}

// Message encodes the init as a generic message, Trailer included, so a
// parsed init encodes back to the bytes it came from.
func (s SessionInit) Message() Message {
	size := max(int(s.Header.Size), constants.SessionInitMinSize+len(s.Trailer))
	body := make([]byte, size-constants.MessageHeaderSize)
	copy(body, copyrightFor(s.Server))
	binary.LittleEndian.PutUint32(body[constants.CopyrightMessageSize:], s.ServerKey)
	binary.LittleEndian.PutUint32(body[constants.CopyrightMessageSize+4:], s.ClientKey)
	copy(body[constants.SessionInitMinSize-constants.MessageHeaderSize:], s.Trailer)

	h := s.Header
	h.Size = uint16(size)
	return Message{Header: h, Body: body}
}

// ParseSessionInit decodes m as a session init, reporting why it does not match.
func ParseSessionInit(m Message) (SessionInit, error) {
	if !IsSessionInitID(m.Header.ID) {
		return SessionInit{}, fmt.Errorf("%w: id 0x%02x", ErrNotSessionInit, m.Header.ID)
	}
	if m.Header.Size < constants.SessionInitMinSize {
		return SessionInit{}, fmt.Errorf("%w: size %d", ErrNotSessionInit, m.Header.Size)
	}

	r := NewReader(m.Body)
	copyright, err := r.ReadBytes(constants.CopyrightMessageSize)
	if err != nil {
		return SessionInit{}, fmt.Errorf("%w: %w", ErrNotSessionInit, err)
	}

	var kind ServerKind
	switch {
	case bytes.Equal(copyright, []byte(constants.LoginServerCopyright)):
		kind = LoginServer
	case bytes.Equal(copyright, []byte(constants.ShipServerCopyright)):
		kind = ShipServer
	default:
		return SessionInit{}, fmt.Errorf("%w: unexpected copyright message", ErrNotSessionInit)
	}

	serverKey, err := r.ReadUint32()
	if err != nil {
		return SessionInit{}, fmt.Errorf("%w: %w", ErrNotSessionInit, err)
	}
	clientKey, err := r.ReadUint32()
	if err != nil {
		return SessionInit{}, fmt.Errorf("%w: %w", ErrNotSessionInit, err)
	}

	var trailer []byte
	if n := r.Remaining(); n > 0 {
		if trailer, err = r.ReadBytes(n); err != nil {
			return SessionInit{}, fmt.Errorf("%w: %w", ErrNotSessionInit, err)
		}
	}

	return SessionInit{
		Header:    m.Header,
		Server:    kind,
		ServerKey: serverKey,
		ClientKey: clientKey,
		Trailer:   trailer,
	}, nil
}

// TrySessionInit reports whether m is a session init. A mismatch is the normal
// outcome for every other message.
func TrySessionInit(m Message) (SessionInit, bool) {
	s, err := ParseSessionInit(m)
	return s, err == nil
}

// ProbeSessionInit checks whether a raw cleartext payload starts with a
// complete session init. Anything after the init in payload is ignored.
func ProbeSessionInit(payload []byte) (SessionInit, Message, bool) {
	h, err := ParseHeader(payload)
	if err != nil || !IsSessionInitID(h.ID) || int(h.Size) > len(payload) {
		return SessionInit{}, Message{}, false
	}
	m, _, err := ParseMessage(payload)
	if err != nil {
		return SessionInit{}, Message{}, false
	}
	s, ok := TrySessionInit(m)
	if !ok {
		return SessionInit{}, Message{}, false
	}
	return s, m, true
}

// IsSessionInitID reports whether id is one of the session init sentinels.
func IsSessionInitID(id uint8) bool {
	return id == constants.SessionInitIDLoginServer || id == constants.SessionInitIDShipServer
}

func copyrightFor(kind ServerKind) string {
	if kind == ShipServer {
		return constants.ShipServerCopyright
	}
	return constants.LoginServerCopyright
}
