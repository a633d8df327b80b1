// Package trace drives a capture through a session router and reports every
// reconstructed message.
package trace

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/udisondev/psotrace/internal/protocol"
)

// Record is one reconstructed message with the context of the segment that
// completed it.
type Record struct {
	Capture     string
	Frame       int
	Time        time.Time
	Source      netip.AddrPort
	Destination netip.AddrPort
	SegmentLen  int // payload length of the completing segment
	Message     protocol.Message

	// Init is set on the record of a session init message.
	Init *protocol.SessionInit
}

func (r Record) String() string {
	return fmt.Sprintf("Record{capture=%s, frame=%d, %s -> %s, %s}",
		r.Capture, r.Frame, r.Source, r.Destination, r.Message.Header)
}

// Sink receives records in capture order. An error stops the run.
type Sink interface {
	Report(ctx context.Context, rec Record) error
}

// Flusher is implemented by sinks that buffer records.
type Flusher interface {
	Flush(ctx context.Context) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec Record) error

func (f SinkFunc) Report(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// MultiSink reports every record to each sink in order.
type MultiSink []Sink

func (m MultiSink) Report(ctx context.Context, rec Record) error {
	for _, s := range m {
		if err := s.Report(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every sink that buffers and joins their errors.
func (m MultiSink) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, Record) error { return nil })
