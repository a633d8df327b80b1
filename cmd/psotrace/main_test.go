package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/psotrace/internal/crypto"
	"github.com/udisondev/psotrace/internal/protocol"
	"github.com/udisondev/psotrace/internal/report"
	"github.com/udisondev/psotrace/internal/testutil"
)

const (
	serverKey = 0x4b253994
	clientKey = 0x722f231a
)

var (
	server = netip.MustParseAddrPort("10.0.0.1:9100")
	client = netip.MustParseAddrPort("192.168.1.10:50123")
)

func TestMain(m *testing.M) {
	pterm.DisableColor()
	m.Run()
}

func initMessage() protocol.Message {
	return protocol.NewSessionInit(protocol.ShipServer, serverKey, clientKey).Message()
}

// baseArgs points -config at a missing file so defaults are used.
func baseArgs(t *testing.T) []string {
	return []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}
}

func writeCapture(t *testing.T, v crypto.Variant) string {
	t.Helper()

	sw := testutil.NewSealer(v, serverKey).Seal(t, testutil.Filled(0x04, 4, 0))
	cw := testutil.NewSealer(v, clientKey).Seal(t, testutil.Filled(0x93, 8, 0xA5))
	frames := testutil.Frames(t,
		testutil.Frame{Src: server, Dst: client, Payload: initMessage().Bytes()},
		testutil.Frame{Src: server, Dst: client, Payload: sw},
		testutil.Frame{Src: client, Dst: server, Payload: cw},
	)

	path := filepath.Join(t.TempDir(), "ship.pcap")
	require.NoError(t, os.WriteFile(path, testutil.WritePcap(t, layers.LinkTypeEthernet, frames), 0o644))
	return path
}

func TestRun_Capture(t *testing.T) {
	path := writeCapture(t, crypto.VariantGameCube)
	jsonPath := filepath.Join(t.TempDir(), "events.jsonl")

	var out bytes.Buffer
	args := append(baseArgs(t), "-json", jsonPath, path)
	require.NoError(t, run(context.Background(), args, &out))

	text := out.String()
	assert.Contains(t, text, "session init: ship server, server_key=4b253994, client_key=722f231a")
	assert.Contains(t, text, "id=0x04, flags=0x00, size=8 (0x0008)")
	assert.Contains(t, text, "id=0x93, flags=0x00, size=12 (0x000c)")
	assert.Contains(t, text, "ship.pcap")

	f, err := os.Open(jsonPath)
	require.NoError(t, err)
	defer f.Close()

	var ids []uint8
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev report.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		ids = append(ids, ev.ID)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []uint8{0x02, 0x04, 0x93}, ids)
}

func TestRun_WrongCipher(t *testing.T) {
	// A GameCube capture read as PC decrypts into garbage sizes; the peer is
	// dropped but the run itself succeeds.
	path := writeCapture(t, crypto.VariantGameCube)

	var out bytes.Buffer
	args := append(baseArgs(t), "-cipher", "pc", path)
	require.NoError(t, run(context.Background(), args, &out))
	assert.Contains(t, out.String(), "session init")
}

func TestRun_Dump(t *testing.T) {
	v := crypto.VariantPC
	dir := t.TempDir()

	serverDump := append(initMessage().Bytes(), testutil.NewSealer(v, serverKey).Seal(t, testutil.Filled(0x19, 4, 0x11))...)
	clientDump := testutil.NewSealer(v, clientKey).Seal(t, testutil.Msg(0x1D), testutil.Filled(0x60, 4, 0x22))
	serverPath := filepath.Join(dir, "server.bin")
	clientPath := filepath.Join(dir, "client.bin")
	require.NoError(t, os.WriteFile(serverPath, serverDump, 0o644))
	require.NoError(t, os.WriteFile(clientPath, clientDump, 0o644))

	var out bytes.Buffer
	args := append(baseArgs(t), "-cipher", "pc", "dump", serverPath, clientPath)
	require.NoError(t, run(context.Background(), args, &out))

	text := out.String()
	assert.Contains(t, text, "===== server -> client (2 messages) =====")
	assert.Contains(t, text, "===== client -> server (2 messages) =====")
	assert.Contains(t, text, "id=0x19, flags=0x00, size=8 (0x0008)")
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer

	err := run(context.Background(), baseArgs(t), &out)
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), append(baseArgs(t), "dump", "only-one.bin"), &out)
	assert.ErrorIs(t, err, errUsage)
}

func TestRun_InvalidConfig(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), append(baseArgs(t), "-cipher", "dreamcast", "x.pcap"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestRun_MissingCapture(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), append(baseArgs(t), filepath.Join(t.TempDir(), "none.pcap")), &out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_HexdumpByDefault(t *testing.T) {
	path := writeCapture(t, crypto.VariantGameCube)
	body := hex.Dump(bytes.Repeat([]byte{0xA5}, 8))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), append(baseArgs(t), path), &out))
	assert.Contains(t, out.String(), body)

	out.Reset()
	require.NoError(t, run(context.Background(), append(baseArgs(t), "-hexdump=false", path), &out))
	assert.NotContains(t, out.String(), body)
	assert.Contains(t, out.String(), "id=0x93, flags=0x00, size=12 (0x000c)")
}
