package session

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/psotrace/internal/crypto"
	"github.com/udisondev/psotrace/internal/protocol"
	"github.com/udisondev/psotrace/internal/testutil"
)

var (
	serverAddr = netip.MustParseAddrPort("10.0.0.1:9100")
	clientAddr = netip.MustParseAddrPort("192.168.1.10:50123")
)

var variants = []crypto.Variant{crypto.VariantGameCube, crypto.VariantPC}

func sampleMessages() []protocol.Message {
	return []protocol.Message{
		testutil.Filled(0x60, 12, 0x11),
		testutil.Msg(0x1D),
		testutil.Filled(0x62, 28, 0x33),
		testutil.Filled(0x06, 100, 0x44),
	}
}

func keyedPeer(v crypto.Variant, seed uint32) *PeerStream {
	p := NewPeerStream(serverAddr, v)
	p.InitSession(seed)
	return p
}

func TestPeerStream_Unkeyed(t *testing.T) {
	p := NewPeerStream(serverAddr, crypto.VariantGameCube)

	assert.Equal(t, StateUnkeyed, p.State())
	assert.Equal(t, serverAddr, p.Addr())

	err := p.Ingest([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.ErrorIs(t, err, ErrPeerUnkeyed)
	assert.Empty(t, p.Drain())

	c, pl := p.Buffered()
	assert.Zero(t, c)
	assert.Zero(t, pl)
}

func TestPeerStream_SingleIngest(t *testing.T) {
	for _, v := range variants {
		t.Run(v.String(), func(t *testing.T) {
			msgs := sampleMessages()
			sealed := testutil.NewSealer(v, 0x4b253994).Seal(t, msgs...)

			p := keyedPeer(v, 0x4b253994)
			assert.Equal(t, StateKeyed, p.State())
			require.NoError(t, p.Ingest(sealed))

			got := p.Drain()
			require.Len(t, got, len(msgs))
			assert.Equal(t, testutil.Wire(msgs...), testutil.Wire(got...))
			for i := range msgs {
				assert.Equal(t, msgs[i].Header, got[i].Header)
			}

			c, pl := p.Buffered()
			assert.Zero(t, c)
			assert.Zero(t, pl)
		})
	}
}

func TestPeerStream_SplitAtEveryOffset(t *testing.T) {
	const seed = 0x722f231a

	for _, v := range variants {
		t.Run(v.String(), func(t *testing.T) {
			msgs := sampleMessages()
			sealed := testutil.NewSealer(v, seed).Seal(t, msgs...)

			for cut := 0; cut <= len(sealed); cut++ {
				p := keyedPeer(v, seed)

				require.NoError(t, p.Ingest(sealed[:cut]))
				first := p.Drain()
				c, _ := p.Buffered()
				assert.Equal(t, cut%4, c, "cut=%d", cut)

				require.NoError(t, p.Ingest(sealed[cut:]))
				got := append(first, p.Drain()...)

				require.Len(t, got, len(msgs), "cut=%d", cut)
				assert.Equal(t, testutil.Wire(msgs...), testutil.Wire(got...), "cut=%d", cut)
			}
		})
	}
}

func TestPeerStream_ByteByByte(t *testing.T) {
	for _, v := range variants {
		t.Run(v.String(), func(t *testing.T) {
			msgs := sampleMessages()
			sealed := testutil.NewSealer(v, 7).Seal(t, msgs...)

			p := keyedPeer(v, 7)
			var got []protocol.Message
			for i := range sealed {
				require.NoError(t, p.Ingest(sealed[i:i+1]))
				got = append(got, p.Drain()...)
			}

			assert.Equal(t, testutil.Wire(msgs...), testutil.Wire(got...))
		})
	}
}

func TestPeerStream_PartialMessageWaits(t *testing.T) {
	msg := testutil.Filled(0x60, 12, 0x55)
	sealed := testutil.NewSealer(crypto.VariantGameCube, 1).Seal(t, msg)

	p := keyedPeer(crypto.VariantGameCube, 1)
	require.NoError(t, p.Ingest(sealed[:8]))
	assert.Empty(t, p.Drain())

	c, pl := p.Buffered()
	assert.Zero(t, c)
	assert.Equal(t, 8, pl)

	require.NoError(t, p.Ingest(sealed[8:]))
	got := p.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, msg.Bytes(), got[0].Bytes())
}

func TestPeerStream_FramingError(t *testing.T) {
	good := testutil.Filled(0x60, 4, 0x01)
	plain := append(good.Bytes(), 0x61, 0x00, 0x02, 0x00) // size 2 < header

	enc := crypto.NewCipher(crypto.VariantPC, 99)
	require.NoError(t, enc.Crypt(plain))

	p := keyedPeer(crypto.VariantPC, 99)
	err := p.Ingest(plain)
	require.ErrorIs(t, err, protocol.ErrMessageFraming)
	assert.Contains(t, err.Error(), serverAddr.String())

	got := p.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, good.Bytes(), got[0].Bytes())
}

func TestPeerStream_RekeyDropsPending(t *testing.T) {
	v := crypto.VariantGameCube
	old := testutil.NewSealer(v, 0x1111).Seal(t, testutil.Filled(0x60, 40, 0xAA))

	p := keyedPeer(v, 0x1111)
	require.NoError(t, p.Ingest(old[:23]))
	c, pl := p.Buffered()
	assert.Equal(t, 3, c)
	assert.Equal(t, 20, pl)

	p.InitSession(0x2222)
	c, pl = p.Buffered()
	assert.Zero(t, c)
	assert.Zero(t, pl)

	msgs := sampleMessages()
	require.NoError(t, p.Ingest(testutil.NewSealer(v, 0x2222).Seal(t, msgs...)))
	assert.Equal(t, testutil.Wire(msgs...), testutil.Wire(p.Drain()...))
}

func TestPeerStream_DrainIsRestartable(t *testing.T) {
	v := crypto.VariantPC
	s := testutil.NewSealer(v, 5)
	p := keyedPeer(v, 5)

	first := testutil.Filled(0x01, 4, 1)
	second := testutil.Filled(0x02, 8, 2)

	p.Enqueue(testutil.Msg(0x17))
	require.NoError(t, p.Ingest(s.Seal(t, first)))

	got := p.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, uint8(0x17), got[0].Header.ID)
	assert.Equal(t, first.Bytes(), got[1].Bytes())

	assert.Empty(t, p.Drain())

	require.NoError(t, p.Ingest(s.Seal(t, second)))
	got = p.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, second.Bytes(), got[0].Bytes())
}

func TestPeerStream_BodiesDoNotAliasBuffers(t *testing.T) {
	v := crypto.VariantGameCube
	s := testutil.NewSealer(v, 3)
	p := keyedPeer(v, 3)

	m := testutil.Filled(0x10, 8, 0x7F)
	require.NoError(t, p.Ingest(s.Seal(t, m)))
	got := p.Drain()
	require.Len(t, got, 1)

	require.NoError(t, p.Ingest(s.Seal(t, testutil.Filled(0x11, 8, 0x00))))
	assert.Equal(t, m.Bytes(), got[0].Bytes())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "UNKEYED", StateUnkeyed.String())
	assert.Equal(t, "KEYED", StateKeyed.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestBytePool(t *testing.T) {
	p := NewBytePool(64)

	b := p.Get()
	assert.Empty(t, b)
	assert.GreaterOrEqual(t, cap(b), 64)

	b = append(b, 1, 2, 3)
	p.Put(b)
	assert.Empty(t, p.Get())

	// Oversized and nil buffers are not retained; Put must not panic.
	p.Put(make([]byte, 0, maxPooledBuf+1))
	p.Put(nil)
}
