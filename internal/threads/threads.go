// Package threads binds WhatsApp users to durable assistant-side
// conversation threads.
package threads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Thread maps one external user id to one assistant thread. The binding
// is append-only: created once, never updated.
type Thread struct {
	ID        int64     `json:"id"`
	WaID      string    `json:"wa_id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrNotFound is returned when a user has no thread binding yet.
var ErrNotFound = errors.New("thread not found")

// Store reads and writes the threads table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a thread store over the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetByWaID loads the thread binding for a user.
func (s *Store) GetByWaID(ctx context.Context, waID string) (Thread, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, wa_id, thread_id, created_at FROM threads WHERE wa_id = $1`, waID)
	var t Thread
	err := row.Scan(&t.ID, &t.WaID, &t.ThreadID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, ErrNotFound
	}
	if err != nil {
		return Thread{}, fmt.Errorf("get thread: %w", err)
	}
	return t, nil
}

// Create stores a user-thread binding. Concurrent first messages race on
// the unique(wa_id) constraint; the loser gets the winner's binding back
// with created=false and must treat it as the thread of record.
func (s *Store) Create(ctx context.Context, waID, threadID string) (Thread, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO threads (wa_id, thread_id)
		VALUES ($1, $2)
		ON CONFLICT (wa_id) DO NOTHING
		RETURNING id, wa_id, thread_id, created_at`, waID, threadID)
	var t Thread
	err := row.Scan(&t.ID, &t.WaID, &t.ThreadID, &t.CreatedAt)
	if err == nil {
		return t, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, false, fmt.Errorf("insert thread: %w", err)
	}
	existing, err := s.GetByWaID(ctx, waID)
	if err != nil {
		return Thread{}, false, fmt.Errorf("load conflicting thread: %w", err)
	}
	return existing, false, nil
}
