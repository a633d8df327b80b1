// Package report renders trace records for people and for other programs.
package report

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/udisondev/psotrace/internal/protocol"
	"github.com/udisondev/psotrace/internal/trace"
)

const timeLayout = "2006-01-02 15:04:05.000000"

// Console prints records as a human readable trace:
//
//	<<<<< 2004-03-14 12:00:00.000000 >>>>> 10.0.0.1:9100 -> 192.168.1.10:50123 (76)
//	id=0x17, flags=0x00, size=76 (0x004c)
//
// A segment line is printed once per frame, followed by every message the
// frame completed.
type Console struct {
	mu      sync.Mutex
	w       io.Writer
	hexdump bool

	lastCapture string
	lastFrame   int
}

// NewConsole creates a console sink writing to w. With hexdump set every
// message body is dumped after its header.
func NewConsole(w io.Writer, hexdump bool) *Console {
	return &Console{w: w, hexdump: hexdump}
}

// Report implements trace.Sink.
func (c *Console) Report(_ context.Context, rec trace.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	if rec.Capture != c.lastCapture || rec.Frame != c.lastFrame {
		c.lastCapture, c.lastFrame = rec.Capture, rec.Frame
		b.WriteString(pterm.FgGray.Sprintf("<<<<< %s >>>>>", rec.Time.Format(timeLayout)))
		fmt.Fprintf(&b, " %s -> %s (%d)\n", rec.Source, rec.Destination, rec.SegmentLen)
	}

	b.WriteString(pterm.FgCyan.Sprint(rec.Message.Header.String()))
	if rec.Init != nil {
		b.WriteString(pterm.FgYellow.Sprintf(" session init: %s server, server_key=%08x, client_key=%08x",
			rec.Init.Server, rec.Init.ServerKey, rec.Init.ClientKey))
	}
	b.WriteByte('\n')

	c.writeBody(&b, rec.Message.Body)

	if _, err := io.WriteString(c.w, b.String()); err != nil {
		return fmt.Errorf("writing console record: %w", err)
	}
	return nil
}

// Stream prints a titled sequence of messages that has no capture context,
// such as one direction of a raw connection dump.
func (c *Console) Stream(title string, msgs []protocol.Message) error {
	var b strings.Builder
	b.WriteString(pterm.Bold.Sprintf("===== %s (%d messages) =====", title, len(msgs)))
	b.WriteByte('\n')
	for _, m := range msgs {
		b.WriteString(pterm.FgCyan.Sprint(m.Header.String()))
		b.WriteByte('\n')
		c.writeBody(&b, m.Body)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := io.WriteString(c.w, b.String()); err != nil {
		return fmt.Errorf("writing %s stream: %w", title, err)
	}
	return nil
}

func (c *Console) writeBody(b *strings.Builder, body []byte) {
	switch {
	case len(body) == 0:
		b.WriteString("<No data>\n")
	case c.hexdump:
		b.WriteString(hex.Dump(body))
	}
}

// Summary prints a table with the counters of one run.
func (c *Console) Summary(name string, st trace.Stats) error {
	data := pterm.TableData{
		{"capture", "segments", "sessions", "messages", "bytes", "ignored", "decode errors", "framing errors"},
		{
			name,
			strconv.Itoa(st.Segments),
			strconv.Itoa(st.Sessions),
			strconv.Itoa(st.Messages),
			strconv.FormatInt(st.Bytes, 10),
			strconv.Itoa(st.Ignored),
			strconv.Itoa(st.DecodeErrors),
			strconv.Itoa(st.FramingErrors),
		},
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintln(c.w, table); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}
