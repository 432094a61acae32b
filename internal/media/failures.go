package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/crmlat/wabot/internal/db"
)

// Failure is one media delivery whose download failed. It keeps enough
// context to replay the ingestion later.
type Failure struct {
	ID        uuid.UUID `json:"id"`
	MediaID   string    `json:"media_id"`
	MediaType string    `json:"media_type"`
	WamID     string    `json:"wam_id"`
	WaID      string    `json:"wa_id"`
	PhoneID   string    `json:"phone_id"`
	Caption   string    `json:"caption,omitempty"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	CreatedAt time.Time `json:"created_at"`
}

// FailureStore persists failed ingestions.
type FailureStore struct {
	pool *pgxpool.Pool
}

// NewFailureStore creates a failure store over the shared pool.
func NewFailureStore(pool *pgxpool.Pool) *FailureStore {
	return &FailureStore{pool: pool}
}

// Record registers a failed ingestion. Redeliveries of the same message
// bump the attempt counter instead of inserting a new row.
func (s *FailureStore) Record(ctx context.Context, f Failure) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_ingestions (id, media_id, media_type, wam_id, wa_id, phone_id, caption, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (wam_id) DO UPDATE
		SET attempts = failed_ingestions.attempts + 1,
		    last_error = EXCLUDED.last_error,
		    updated_at = now()`,
		f.ID, f.MediaID, f.MediaType, f.WamID, f.WaID, f.PhoneID,
		dbpkg.ToText(f.Caption), f.LastError)
	if err != nil {
		return fmt.Errorf("record failed ingestion: %w", err)
	}
	return nil
}

// ListPending returns unresolved failures, oldest first.
func (s *FailureStore) ListPending(ctx context.Context, limit int) ([]Failure, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, media_id, media_type, wam_id, wa_id, phone_id, caption, attempts, last_error, created_at
		FROM failed_ingestions
		WHERE resolved_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending ingestions: %w", err)
	}
	defer rows.Close()

	var failures []Failure
	for rows.Next() {
		var (
			f       Failure
			caption pgtype.Text
		)
		if err := rows.Scan(&f.ID, &f.MediaID, &f.MediaType, &f.WamID, &f.WaID,
			&f.PhoneID, &caption, &f.Attempts, &f.LastError, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Caption = dbpkg.TextToString(caption)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// MarkResolved closes a failure after a successful replay.
func (s *FailureStore) MarkResolved(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE failed_ingestions SET resolved_at = now(), updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark resolved: %w", err)
	}
	return nil
}

// MarkAttempt records one more failed replay attempt.
func (s *FailureStore) MarkAttempt(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE failed_ingestions SET attempts = attempts + 1, last_error = $2, updated_at = now()
		WHERE id = $1`, id, lastError)
	if err != nil {
		return fmt.Errorf("mark attempt: %w", err)
	}
	return nil
}
