package trace

import "fmt"

// Stats counts what a run saw.
type Stats struct {
	Segments      int   // TCP segments read from the source
	Filtered      int   // segments outside the port allow-list
	DecodeErrors  int   // frames skipped because they could not be decoded
	Sessions      int   // session inits seen
	Ignored       int   // segments without a peer for their source
	Resets        int   // RST segments
	Closes        int   // FIN segments
	FramingErrors int   // peers dropped after a framing error
	Messages      int   // records reported
	Bytes         int64 // payload bytes of forwarded segments
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Segments += o.Segments
	s.Filtered += o.Filtered
	s.DecodeErrors += o.DecodeErrors
	s.Sessions += o.Sessions
	s.Ignored += o.Ignored
	s.Resets += o.Resets
	s.Closes += o.Closes
	s.FramingErrors += o.FramingErrors
	s.Messages += o.Messages
	s.Bytes += o.Bytes
}

func (s Stats) String() string {
	return fmt.Sprintf("segments=%d sessions=%d messages=%d decode_errors=%d framing_errors=%d",
		s.Segments, s.Sessions, s.Messages, s.DecodeErrors, s.FramingErrors)
}
