package session

import (
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/udisondev/psotrace/internal/capture"
	"github.com/udisondev/psotrace/internal/constants"
	"github.com/udisondev/psotrace/internal/crypto"
	"github.com/udisondev/psotrace/internal/protocol"
)

// Action tells what Route did with a segment.
type Action int

const (
	ActionIgnore      Action = iota // no peer for the source, segment dropped
	ActionForward                   // payload ingested by the source peer
	ActionSessionInit               // new session, both peers replaced
	ActionClose                     // FIN, source peer removed
	ActionReset                     // RST, both peers removed
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "IGNORE"
	case ActionForward:
		return "FORWARD"
	case ActionSessionInit:
		return "SESSION_INIT"
	case ActionClose:
		return "CLOSE"
	case ActionReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// Router maps addresses to their PeerStream and applies the session lifecycle.
// Not safe for concurrent use: one capture, one router, frames in order.
type Router struct {
	variant crypto.Variant
	peers   map[netip.AddrPort]*PeerStream
	pool    *BytePool
}

// NewRouter creates an empty router whose peers use the given cipher variant.
func NewRouter(variant crypto.Variant) *Router {
	return &Router{
		variant: variant,
		peers:   make(map[netip.AddrPort]*PeerStream),
		pool:    NewBytePool(constants.DefaultPeerBufSize),
	}
}

// Variant returns the cipher variant used for new sessions.
func (r *Router) Variant() crypto.Variant {
	return r.variant
}

// Route applies one segment. The checks run in a fixed order: RST, FIN,
// session init probe, then forwarding to the source peer.
//
// An error means the source peer hit a framing error; it is left in place so
// the caller can drain what was framed before removing it.
func (r *Router) Route(seg capture.Segment) (Action, error) {
	switch {
	case seg.RST:
		r.Remove(seg.Source)
		r.Remove(seg.Destination)
		slog.Debug("connection reset", "source", seg.Source, "destination", seg.Destination, "frame", seg.Frame)
		return ActionReset, nil
	case seg.FIN:
		if r.Remove(seg.Source) {
			slog.Debug("peer closed", "peer", seg.Source, "frame", seg.Frame)
		}
		return ActionClose, nil
	}

	if init, msg, ok := protocol.ProbeSessionInit(seg.Payload); ok {
		r.establish(seg.Source, seg.Destination, init, msg)
		slog.Debug("session established",
			"server", seg.Source,
			"client", seg.Destination,
			"kind", init.Server,
			"server_key", fmt.Sprintf("%08x", init.ServerKey),
			"client_key", fmt.Sprintf("%08x", init.ClientKey),
			"frame", seg.Frame,
		)
		return ActionSessionInit, nil
	}

	peer, ok := r.peers[seg.Source]
	if !ok {
		return ActionIgnore, nil
	}
	if err := peer.Ingest(seg.Payload); err != nil {
		return ActionForward, fmt.Errorf("frame %d: %w", seg.Frame, err)
	}
	return ActionForward, nil
}

// establish replaces whatever was known about both addresses with a new
// session. The init message itself is queued on the server peer.
func (r *Router) establish(server, client netip.AddrPort, init protocol.SessionInit, msg protocol.Message) {
	r.Remove(server)
	r.Remove(client)

	sp := r.newPeer(server)
	sp.InitSession(init.ServerKey)
	sp.Enqueue(msg)

	cp := r.newPeer(client)
	cp.InitSession(init.ClientKey)

	r.peers[server] = sp
	r.peers[client] = cp
}

func (r *Router) newPeer(addr netip.AddrPort) *PeerStream {
	p := NewPeerStream(addr, r.variant)
	p.raw = r.pool.Get()
	p.plain = r.pool.Get()
	return p
}

// Peer returns the peer registered for addr.
func (r *Router) Peer(addr netip.AddrPort) (*PeerStream, bool) {
	p, ok := r.peers[addr]
	return p, ok
}

// Remove drops the peer registered for addr and reports whether there was one.
// Messages still queued on it are discarded.
func (r *Router) Remove(addr netip.AddrPort) bool {
	p, ok := r.peers[addr]
	if !ok {
		return false
	}
	delete(r.peers, addr)

	r.pool.Put(p.raw)
	r.pool.Put(p.plain)
	p.raw, p.plain, p.queue = nil, nil, nil
	p.cipher = nil
	return true
}

// Len returns the number of registered peers.
func (r *Router) Len() int {
	return len(r.peers)
}
