// Package testutil builds captures, encrypted streams and fakes for tests.
package testutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

// ErrSimulated is returned by failing fakes (sinks, sources) in tests.
var ErrSimulated = errors.New("simulated error for testing")

// ContextWithTimeout отменяется по timeout или при завершении теста.
func ContextWithTimeout(tb testing.TB, d time.Duration) context.Context {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	tb.Cleanup(cancel)
	return ctx
}
