// Package session rebuilds per-direction message streams: PeerStream decrypts
// and frames one address's traffic, Router owns the address map and the
// session lifecycle.
package session

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/udisondev/psotrace/internal/constants"
	"github.com/udisondev/psotrace/internal/crypto"
	"github.com/udisondev/psotrace/internal/protocol"
)

// ErrPeerUnkeyed is returned by Ingest on a peer that has not seen a session init.
var ErrPeerUnkeyed = errors.New("peer has no session key")

// PeerStream is the decrypt and reassemble state of one sending address.
//
// raw holds ciphertext not yet decrypted; after Ingest it is shorter than one
// cipher word. plain holds decrypted bytes that do not form a complete message yet.
type PeerStream struct {
	addr    netip.AddrPort
	variant crypto.Variant
	cipher  crypto.Cipher

	raw   []byte
	plain []byte
	queue []protocol.Message
}

// NewPeerStream creates an unkeyed peer for addr.
func NewPeerStream(addr netip.AddrPort, variant crypto.Variant) *PeerStream {
	return &PeerStream{addr: addr, variant: variant}
}

// Addr returns the address whose outgoing bytes this peer decodes.
func (p *PeerStream) Addr() netip.AddrPort {
	return p.addr
}

// State reports whether the peer has a cipher.
func (p *PeerStream) State() State {
	if p.cipher == nil {
		return StateUnkeyed
	}
	return StateKeyed
}

// InitSession installs a fresh cipher for seed and drops both pending buffers.
// Bytes received under a previous key are never decrypted with the new one.
func (p *PeerStream) InitSession(seed uint32) {
	p.cipher = crypto.NewCipher(p.variant, seed)
	p.raw = p.raw[:0]
	p.plain = p.plain[:0]
}

// Ingest appends one segment payload, decrypts every whole word available and
// frames complete messages into the queue.
//
// A header announcing less than its own size is fatal for this peer and is
// returned wrapped around protocol.ErrMessageFraming. Messages framed before
// the bad header stay in the queue.
func (p *PeerStream) Ingest(payload []byte) error {
	if p.cipher == nil {
		return fmt.Errorf("ingest on %s: %w", p.addr, ErrPeerUnkeyed)
	}

	p.raw = append(p.raw, payload...)

	// TCP may split a word across segments; the 0-3 byte tail waits for the next one.
	if n := len(p.raw) &^ (constants.CipherWordSize - 1); n > 0 {
		start := len(p.plain)
		p.plain = append(p.plain, p.raw[:n]...)
		if err := p.cipher.Crypt(p.plain[start:]); err != nil {
			return fmt.Errorf("decrypting %d bytes from %s: %w", n, p.addr, err)
		}
		p.raw = p.raw[:copy(p.raw, p.raw[n:])]
	}

	return p.frame()
}

func (p *PeerStream) frame() error {
	off := 0
	defer func() {
		p.plain = p.plain[:copy(p.plain, p.plain[off:])]
	}()

	for len(p.plain)-off >= constants.MessageHeaderSize {
		h, err := protocol.ParseHeader(p.plain[off:])
		if err != nil {
			return fmt.Errorf("peer %s: %w", p.addr, err)
		}
		if _, err := h.BodySize(); err != nil {
			return fmt.Errorf("peer %s: %w", p.addr, err)
		}
		if int(h.Size) > len(p.plain)-off {
			return nil
		}

		m, n, err := protocol.ParseMessage(p.plain[off:])
		if err != nil {
			return fmt.Errorf("peer %s: %w", p.addr, err)
		}
		p.queue = append(p.queue, m)
		off += n
	}
	return nil
}

// Enqueue appends m to the queue as if it had been framed from the stream.
func (p *PeerStream) Enqueue(m protocol.Message) {
	p.queue = append(p.queue, m)
}

// Drain returns the queued messages in arrival order and empties the queue.
func (p *PeerStream) Drain() []protocol.Message {
	q := p.queue
	p.queue = nil
	return q
}

// Buffered returns the number of pending ciphertext and plaintext bytes.
func (p *PeerStream) Buffered() (cipher, plain int) {
	return len(p.raw), len(p.plain)
}

func (p *PeerStream) String() string {
	c, pl := p.Buffered()
	return fmt.Sprintf("PeerStream{addr=%s, state=%s, raw=%d, plain=%d, queued=%d}",
		p.addr, p.State(), c, pl, len(p.queue))
}
