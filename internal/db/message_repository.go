package db

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/psotrace/internal/trace"
)

// DefaultBatchSize is the number of buffered messages that triggers a flush.
const DefaultBatchSize = 1000

var (
	sessionColumns = []string{
		"capture", "frame", "captured_at", "server_addr", "client_addr",
		"server_kind", "server_key", "client_key",
	}
	messageColumns = []string{
		"capture", "frame", "captured_at", "source_addr", "destination_addr",
		"msg_id", "msg_flags", "msg_size", "body", "body_digest",
	}
)

// MessageRepository stores trace records in trace_messages and session inits
// in trace_sessions. Records are buffered and written with COPY.
// Safe for use by several drivers at once.
type MessageRepository struct {
	pool      *pgxpool.Pool
	batchSize int

	mu       sync.Mutex
	sessions [][]any
	messages [][]any
}

// NewMessageRepository создаёт repository с размером пачки DefaultBatchSize.
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool, batchSize: DefaultBatchSize}
}

// WithBatchSize меняет размер пачки; при n <= 1 каждая запись пишется сразу.
func (r *MessageRepository) WithBatchSize(n int) *MessageRepository {
	r.batchSize = max(n, 1)
	return r
}

// Report implements trace.Sink.
func (r *MessageRepository) Report(ctx context.Context, rec trace.Record) error {
	digest := rec.Message.Digest()
	h := rec.Message.Header
	body := rec.Message.Body
	if body == nil {
		body = []byte{} // nil encodes as NULL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.Init != nil {
		r.sessions = append(r.sessions, []any{
			rec.Capture, rec.Frame, rec.Time,
			rec.Source.String(), rec.Destination.String(),
			rec.Init.Server.String(), int64(rec.Init.ServerKey), int64(rec.Init.ClientKey),
		})
	}
	r.messages = append(r.messages, []any{
		rec.Capture, rec.Frame, rec.Time,
		rec.Source.String(), rec.Destination.String(),
		int16(h.ID), int16(h.Flags), int32(h.Size),
		body, digest[:],
	})

	if len(r.messages) >= r.batchSize {
		return r.flushLocked(ctx)
	}
	return nil
}

// Flush implements trace.Flusher.
func (r *MessageRepository) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked(ctx)
}

func (r *MessageRepository) flushLocked(ctx context.Context) error {
	if len(r.messages) == 0 && len(r.sessions) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(r.sessions) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"trace_sessions"}, sessionColumns, pgx.CopyFromRows(r.sessions)); err != nil {
			return fmt.Errorf("inserting %d sessions: %w", len(r.sessions), err)
		}
	}
	if len(r.messages) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"trace_messages"}, messageColumns, pgx.CopyFromRows(r.messages)); err != nil {
			return fmt.Errorf("inserting %d messages: %w", len(r.messages), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}

	slog.Debug("stored trace records", "sessions", len(r.sessions), "messages", len(r.messages))
	r.sessions = r.sessions[:0]
	r.messages = r.messages[:0]
	return nil
}

// CountMessages returns the number of stored messages of one capture.
func (r *MessageRepository) CountMessages(ctx context.Context, capture string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trace_messages WHERE capture = $1`, capture).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting messages of %q: %w", capture, err)
	}
	return n, nil
}

// StoredMessage is a row of trace_messages.
type StoredMessage struct {
	Frame       int
	CapturedAt  time.Time
	Source      string
	Destination string
	ID          uint8
	Flags       uint8
	Size        uint16
	Body        []byte
	Digest      []byte
}

// Messages returns the stored messages of one capture in insertion order.
func (r *MessageRepository) Messages(ctx context.Context, capture string) ([]StoredMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT frame, captured_at, source_addr, destination_addr, msg_id, msg_flags, msg_size, body, body_digest
		 FROM trace_messages WHERE capture = $1 ORDER BY id`, capture)
	if err != nil {
		return nil, fmt.Errorf("querying messages of %q: %w", capture, err)
	}
	defer rows.Close()

	var result []StoredMessage
	for rows.Next() {
		var (
			m               StoredMessage
			id, flags, size int32
		)
		if err := rows.Scan(&m.Frame, &m.CapturedAt, &m.Source, &m.Destination, &id, &flags, &size, &m.Body, &m.Digest); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.ID, m.Flags, m.Size = uint8(id), uint8(flags), uint16(size)
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return result, nil
}

// SessionKeys returns the (server, client) keys of the sessions stored for one capture.
func (r *MessageRepository) SessionKeys(ctx context.Context, capture string) ([][2]uint32, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT server_key, client_key FROM trace_sessions WHERE capture = $1 ORDER BY id`, capture)
	if err != nil {
		return nil, fmt.Errorf("querying sessions of %q: %w", capture, err)
	}
	defer rows.Close()

	var result [][2]uint32
	for rows.Next() {
		var sk, ck int64
		if err := rows.Scan(&sk, &ck); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		result = append(result, [2]uint32{uint32(sk), uint32(ck)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return result, nil
}
