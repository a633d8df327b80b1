package report

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/udisondev/psotrace/internal/trace"
)

// Event is the JSON form of a trace.Record, shared by the JSON-lines sink
// and the live websocket feed.
type Event struct {
	Capture     string     `json:"capture"`
	Frame       int        `json:"frame"`
	Time        time.Time  `json:"time"`
	Source      string     `json:"source"`
	Destination string     `json:"destination"`
	ID          uint8      `json:"id"`
	Flags       uint8      `json:"flags"`
	Size        uint16     `json:"size"`
	Body        string     `json:"body"`   // hex
	Digest      string     `json:"digest"` // blake2b-256 of the encoded message, hex
	Init        *InitEvent `json:"init,omitempty"`
}

// InitEvent describes a session init record.
type InitEvent struct {
	Server    string `json:"server"`
	ServerKey uint32 `json:"server_key"`
	ClientKey uint32 `json:"client_key"`
}

// NewEvent converts rec to its JSON form.
func NewEvent(rec trace.Record) Event {
	digest := rec.Message.Digest()
	ev := Event{
		Capture:     rec.Capture,
		Frame:       rec.Frame,
		Time:        rec.Time,
		Source:      rec.Source.String(),
		Destination: rec.Destination.String(),
		ID:          rec.Message.Header.ID,
		Flags:       rec.Message.Header.Flags,
		Size:        rec.Message.Header.Size,
		Body:        hex.EncodeToString(rec.Message.Body),
		Digest:      hex.EncodeToString(digest[:]),
	}
	if rec.Init != nil {
		ev.Init = &InitEvent{
			Server:    rec.Init.Server.String(),
			ServerKey: rec.Init.ServerKey,
			ClientKey: rec.Init.ClientKey,
		}
	}
	return ev
}

// JSONLines writes one JSON object per record.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLines creates a sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w)}
}

// Report implements trace.Sink.
func (j *JSONLines) Report(_ context.Context, rec trace.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.enc.Encode(NewEvent(rec)); err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return nil
}
