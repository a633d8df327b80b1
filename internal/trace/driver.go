package trace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/udisondev/psotrace/internal/capture"
	"github.com/udisondev/psotrace/internal/protocol"
	"github.com/udisondev/psotrace/internal/session"
)

// Driver feeds one capture through a Router and reports the drained messages.
type Driver struct {
	name   string
	router *session.Router
	sink   Sink
	ports  map[uint16]struct{}
}

// Option configures a Driver.
type Option func(*Driver)

// WithPorts restricts processing to segments whose source or destination
// port is in ports. No ports means every segment is processed.
func WithPorts(ports ...uint16) Option {
	return func(d *Driver) {
		if len(ports) == 0 {
			return
		}
		d.ports = make(map[uint16]struct{}, len(ports))
		for _, p := range ports {
			d.ports[p] = struct{}{}
		}
	}
}

// NewDriver creates a driver for the capture called name.
func NewDriver(name string, router *session.Router, sink Sink, opts ...Option) *Driver {
	if sink == nil {
		sink = Discard
	}
	d := &Driver{name: name, router: router, sink: sink}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run processes src until io.EOF.
//
// Undecodable frames are counted and skipped. A peer hitting a framing error
// is drained, removed and counted; the run goes on. Errors from the source,
// the sink or the context stop the run. Buffered sinks are flushed when the
// source is exhausted.
func (d *Driver) Run(ctx context.Context, src capture.Source) (Stats, error) {
	var st Stats

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		seg, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var de *capture.DecodeError
			if errors.As(err, &de) {
				st.DecodeErrors++
				slog.Warn("skipping undecodable frame", "capture", d.name, "frame", de.Frame, "err", de.Err)
				continue
			}
			return st, fmt.Errorf("reading %s: %w", d.name, err)
		}

		st.Segments++
		if !d.accept(seg) {
			st.Filtered++
			continue
		}

		if err := d.step(ctx, seg, &st); err != nil {
			return st, err
		}
	}

	if f, ok := d.sink.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return st, fmt.Errorf("flushing records of %s: %w", d.name, err)
		}
	}

	slog.Debug("capture processed", "capture", d.name, "stats", st.String())
	return st, nil
}

func (d *Driver) step(ctx context.Context, seg capture.Segment, st *Stats) error {
	action, routeErr := d.router.Route(seg)

	switch action {
	case session.ActionSessionInit:
		st.Sessions++
	case session.ActionIgnore:
		st.Ignored++
	case session.ActionReset:
		st.Resets++
	case session.ActionClose:
		st.Closes++
	case session.ActionForward:
		st.Bytes += int64(len(seg.Payload))
	}

	if err := d.report(ctx, seg, action, st); err != nil {
		return err
	}

	if routeErr != nil {
		if !errors.Is(routeErr, protocol.ErrMessageFraming) {
			return fmt.Errorf("routing %s: %w", d.name, routeErr)
		}
		st.FramingErrors++
		d.router.Remove(seg.Source)
		slog.Warn("dropping desynchronized peer", "capture", d.name, "peer", seg.Source, "err", routeErr)
	}
	return nil
}

func (d *Driver) report(ctx context.Context, seg capture.Segment, action session.Action, st *Stats) error {
	peer, ok := d.router.Peer(seg.Source)
	if !ok {
		return nil
	}

	for i, m := range peer.Drain() {
		rec := Record{
			Capture:     d.name,
			Frame:       seg.Frame,
			Time:        seg.Time,
			Source:      seg.Source,
			Destination: seg.Destination,
			SegmentLen:  len(seg.Payload),
			Message:     m,
		}
		if action == session.ActionSessionInit && i == 0 {
			if init, ok := protocol.TrySessionInit(m); ok {
				rec.Init = &init
			}
		}
		if err := d.sink.Report(ctx, rec); err != nil {
			return fmt.Errorf("reporting frame %d of %s: %w", seg.Frame, d.name, err)
		}
		st.Messages++
	}
	return nil
}

func (d *Driver) accept(seg capture.Segment) bool {
	if d.ports == nil {
		return true
	}
	_, src := d.ports[seg.Source.Port()]
	_, dst := d.ports[seg.Destination.Port()]
	return src || dst
}
