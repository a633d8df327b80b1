package trace

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/udisondev/psotrace/internal/crypto"
	"github.com/udisondev/psotrace/internal/protocol"
	"github.com/udisondev/psotrace/internal/session"
)

// ErrNoSessionInit is returned when a server dump does not start with a session init.
var ErrNoSessionInit = errors.New("server dump does not start with a session init")

// Dump holds the messages decoded from a pair of raw connection dumps.
type Dump struct {
	Init   protocol.SessionInit
	Server []protocol.Message // starts with the session init message
	Client []protocol.Message
}

// DecodeDumps decodes the raw byte streams of one connection, recorded from
// its first byte. server must start with the cleartext session init; the rest
// of both streams is ciphertext. Incomplete trailing messages are dropped.
func DecodeDumps(server, client []byte, variant crypto.Variant) (Dump, error) {
	init, initMsg, ok := protocol.ProbeSessionInit(server)
	if !ok {
		return Dump{}, ErrNoSessionInit
	}

	sp := session.NewPeerStream(netip.AddrPort{}, variant)
	sp.InitSession(init.ServerKey)
	sp.Enqueue(initMsg)
	if err := sp.Ingest(server[initMsg.Header.Size:]); err != nil {
		return Dump{}, fmt.Errorf("decoding server dump: %w", err)
	}

	cp := session.NewPeerStream(netip.AddrPort{}, variant)
	cp.InitSession(init.ClientKey)
	if err := cp.Ingest(client); err != nil {
		return Dump{}, fmt.Errorf("decoding client dump: %w", err)
	}

	for name, p := range map[string]*session.PeerStream{"server": sp, "client": cp} {
		if c, pl := p.Buffered(); c+pl > 0 {
			slog.Debug("dump ends inside a message", "stream", name, "pending", c+pl)
		}
	}

	return Dump{Init: init, Server: sp.Drain(), Client: cp.Drain()}, nil
}
