package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	dbpkg "github.com/crmlat/wabot/internal/db"
)

// Store reads and writes the messages table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a message store over the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const messageColumns = `id, wam_id, outgoing, type, body, caption, wa_id, phone_id, status, data, created_at, updated_at`

// Create inserts a message. The unique constraint on wam_id is the
// idempotency guard: a duplicate insert returns the existing row with
// created=false instead of failing.
func (s *Store) Create(ctx context.Context, input PersistInput) (Message, bool, error) {
	createdAt := input.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages (wam_id, outgoing, type, body, caption, wa_id, phone_id, status, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (wam_id) DO NOTHING
		RETURNING `+messageColumns,
		dbpkg.ToText(input.WamID), input.Outgoing, string(input.Type), input.Body,
		dbpkg.ToText(input.Caption), input.WaID, input.PhoneID, string(StatusSent),
		input.Data, createdAt,
	)
	msg, err := scanMessage(row)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, false, fmt.Errorf("insert message: %w", err)
	}
	existing, err := s.GetByWamID(ctx, input.WamID)
	if err != nil {
		return Message{}, false, fmt.Errorf("load conflicting message: %w", err)
	}
	return existing, false, nil
}

// GetByWamID loads a message by its platform id.
func (s *Store) GetByWamID(ctx context.Context, wamID string) (Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE wam_id = $1`, wamID)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// ExistsByWamID reports whether a message with the given platform id is stored.
func (s *Store) ExistsByWamID(ctx context.Context, wamID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE wam_id = $1)`, wamID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check message exists: %w", err)
	}
	return exists, nil
}

// UpdateStatus sets the delivery status for a message. The optional
// errorCode lands in the caption slot, matching how failed statuses are
// recorded. Returns ErrNotFound when no row matches.
func (s *Store) UpdateStatus(ctx context.Context, wamID string, status Status, errorCode string) (Message, error) {
	var row pgx.Row
	if errorCode != "" {
		row = s.pool.QueryRow(ctx, `
			UPDATE messages SET status = $2, caption = $3, updated_at = now()
			WHERE wam_id = $1
			RETURNING `+messageColumns, wamID, string(status), errorCode)
	} else {
		row = s.pool.QueryRow(ctx, `
			UPDATE messages SET status = $2, updated_at = now()
			WHERE wam_id = $1
			RETURNING `+messageColumns, wamID, string(status))
	}
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("update status: %w", err)
	}
	return msg, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		msg      Message
		wamID    pgtype.Text
		caption  pgtype.Text
		typ      string
		status   string
		created  pgtype.Timestamptz
		updated  pgtype.Timestamptz
		outgoing bool
	)
	err := row.Scan(&msg.ID, &wamID, &outgoing, &typ, &msg.Body, &caption,
		&msg.WaID, &msg.PhoneID, &status, &msg.Data, &created, &updated)
	if err != nil {
		return Message{}, err
	}
	msg.WamID = dbpkg.TextToString(wamID)
	msg.Caption = dbpkg.TextToString(caption)
	msg.Outgoing = outgoing
	msg.Type = Type(typ)
	msg.Status = Status(status)
	msg.CreatedAt = created.Time
	msg.UpdatedAt = updated.Time
	return msg, nil
}
