package report

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/psotrace/internal/protocol"
	"github.com/udisondev/psotrace/internal/testutil"
	"github.com/udisondev/psotrace/internal/trace"
)

var (
	server = netip.MustParseAddrPort("10.0.0.1:9100")
	client = netip.MustParseAddrPort("192.168.1.10:50123")
)

func TestMain(m *testing.M) {
	pterm.DisableColor()
	m.Run()
}

func initRecord() trace.Record {
	init := protocol.NewSessionInit(protocol.ShipServer, 0x4b253994, 0x722f231a)
	return trace.Record{
		Capture:     "ship.pcap",
		Frame:       3,
		Time:        testutil.BaseTime,
		Source:      server,
		Destination: client,
		SegmentLen:  76,
		Message:     init.Message(),
		Init:        &init,
	}
}

func TestConsole_Report(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, false)
	ctx := context.Background()

	require.NoError(t, c.Report(ctx, initRecord()))

	empty := initRecord()
	empty.Init = nil
	empty.Message = testutil.Msg(0x1D)
	require.NoError(t, c.Report(ctx, empty))

	next := empty
	next.Frame = 4
	next.Source, next.Destination = client, server
	next.SegmentLen = 12
	next.Message = testutil.Filled(0x60, 8, 0xAB)
	require.NoError(t, c.Report(ctx, next))

	text := out.String()
	assert.Equal(t, 2, strings.Count(text, "<<<<<"), text)
	assert.Contains(t, text, "<<<<< 2004-03-14 12:00:00.000000 >>>>> 10.0.0.1:9100 -> 192.168.1.10:50123 (76)")
	assert.Contains(t, text, "id=0x02, flags=0x00, size=76 (0x004c)")
	assert.Contains(t, text, "session init: ship server, server_key=4b253994, client_key=722f231a")
	assert.Contains(t, text, "id=0x1d, flags=0x00, size=4 (0x0004)\n<No data>\n")
	assert.Contains(t, text, "192.168.1.10:50123 -> 10.0.0.1:9100 (12)")
	// Without hexdump the body is not printed.
	assert.NotContains(t, text, "ab ab ab")
}

func TestConsole_Hexdump(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, true)

	rec := initRecord()
	rec.Init = nil
	rec.Message = testutil.Filled(0x60, 8, 0xAB)
	require.NoError(t, c.Report(context.Background(), rec))

	assert.Contains(t, out.String(), hex.Dump(rec.Message.Body))
}

func TestConsole_WriteError(t *testing.T) {
	c := NewConsole(failingWriter{}, false)
	err := c.Report(context.Background(), initRecord())
	assert.ErrorIs(t, err, testutil.ErrSimulated)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, testutil.ErrSimulated }

func TestConsole_Summary(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, false)

	require.NoError(t, c.Summary("login.pcap", trace.Stats{Segments: 120, Sessions: 2, Messages: 57, FramingErrors: 1}))

	text := out.String()
	assert.Contains(t, text, "login.pcap")
	assert.Contains(t, text, "segments")
	assert.Contains(t, text, "120")
	assert.Contains(t, text, "57")
}

func TestJSONLines(t *testing.T) {
	var out bytes.Buffer
	j := NewJSONLines(&out)

	rec := initRecord()
	require.NoError(t, j.Report(context.Background(), rec))
	second := rec
	second.Init = nil
	second.Message = testutil.Filled(0x60, 4, 0x01)
	require.NoError(t, j.Report(context.Background(), second))

	sc := bufio.NewScanner(&out)
	var events []Event
	for sc.Scan() {
		var ev Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, "ship.pcap", ev.Capture)
	assert.Equal(t, 3, ev.Frame)
	assert.True(t, ev.Time.Equal(testutil.BaseTime))
	assert.Equal(t, "10.0.0.1:9100", ev.Source)
	assert.Equal(t, uint8(0x02), ev.ID)
	assert.Equal(t, uint16(76), ev.Size)
	assert.Equal(t, hex.EncodeToString(rec.Message.Body), ev.Body)
	digest := rec.Message.Digest()
	assert.Equal(t, hex.EncodeToString(digest[:]), ev.Digest)
	require.NotNil(t, ev.Init)
	assert.Equal(t, "ship", ev.Init.Server)
	assert.Equal(t, uint32(0x722f231a), ev.Init.ClientKey)

	assert.Nil(t, events[1].Init)
	assert.Equal(t, "01010101", events[1].Body)
}

func TestHub(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Report(context.Background(), initRecord()))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "ship.pcap", ev.Capture)
	require.NotNil(t, ev.Init)
	assert.Equal(t, uint32(0x4b253994), ev.Init.ServerKey)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, hub.Dropped())
}

func TestHub_NoClients(t *testing.T) {
	hub := NewHub()
	require.NoError(t, hub.Report(context.Background(), initRecord()))
	assert.Zero(t, hub.Clients())
}

func TestHub_Close(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Clients())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "err=%v", err)
}

func TestConsole_Stream(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out, true)

	msgs := []protocol.Message{testutil.Msg(0x1D), testutil.Filled(0x60, 4, 0x0F)}
	require.NoError(t, c.Stream("client -> server", msgs))

	text := out.String()
	assert.Contains(t, text, "===== client -> server (2 messages) =====")
	assert.Contains(t, text, "id=0x1d, flags=0x00, size=4 (0x0004)\n<No data>\n")
	assert.Contains(t, text, hex.Dump([]byte{0x0F, 0x0F, 0x0F, 0x0F}))
}
