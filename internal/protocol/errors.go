package protocol

import "errors"

// Sentinel errors for message framing.
var (
	ErrTruncatedHeader = errors.New("truncated message header")
	ErrTruncatedBody   = errors.New("truncated message body")
	ErrMessageFraming  = errors.New("message size smaller than header")
	ErrNotSessionInit  = errors.New("not a session init message")
)
