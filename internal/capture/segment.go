// Package capture turns an offline packet capture into a sequence of TCP
// segments: addressing, control flags and the exact TCP payload of each frame.
package capture

import (
	"fmt"
	"io"
	"net/netip"
	"time"
)

// Segment is the TCP part of one captured frame.
type Segment struct {
	Frame       int       // 1-based frame number within the capture
	Time        time.Time // capture timestamp, UTC
	Source      netip.AddrPort
	Destination netip.AddrPort
	FIN         bool
	RST         bool
	Payload     []byte // TCP payload only, link-layer padding removed
}

func (s Segment) String() string {
	return fmt.Sprintf("Segment{frame=%d, source=%s, destination=%s, length=%d}",
		s.Frame, s.Source, s.Destination, len(s.Payload))
}

// Source yields segments in capture order.
//
// Next returns io.EOF after the last frame. A frame that cannot be decoded is
// reported as a *DecodeError; the caller may skip it and keep calling Next.
// Any other error is fatal for the source.
type Source interface {
	Next() (Segment, error)
}

// DecodeError describes a frame that could not be decoded into a TCP segment.
type DecodeError struct {
	Frame int
	Time  time.Time
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding frame %d: %v", e.Frame, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SliceSource replays a fixed list of segments. Useful for tests and for
// feeding segments obtained elsewhere.
type SliceSource struct {
	items []sliceItem
	pos   int
}

type sliceItem struct {
	seg Segment
	err error
}

// NewSliceSource creates a source over segs.
func NewSliceSource(segs ...Segment) *SliceSource {
	s := &SliceSource{}
	for _, seg := range segs {
		s.Add(seg)
	}
	return s
}

// Add appends a segment.
func (s *SliceSource) Add(seg Segment) {
	s.items = append(s.items, sliceItem{seg: seg})
}

// AddError appends an error to be returned in sequence.
func (s *SliceSource) AddError(err error) {
	s.items = append(s.items, sliceItem{err: err})
}

// Next implements Source.
func (s *SliceSource) Next() (Segment, error) {
	if s.pos >= len(s.items) {
		return Segment{}, io.EOF
	}
	it := s.items[s.pos]
	s.pos++
	return it.seg, it.err
}
