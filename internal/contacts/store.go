package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store reads and writes contactos, tags and the contacto_tag join.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a contact store over the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const contactColumns = `id, telefono, nombre, notas, created_at, updated_at`

// GetByPhone loads a contact by phone number.
func (s *Store) GetByPhone(ctx context.Context, phone string) (Contact, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contactos WHERE telefono = $1`, phone)
	contact, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

// CreateWithDefaultTag inserts a contact and attaches the classification
// tag, creating the tag row on first use. Concurrent first messages from
// the same number collapse onto the unique(telefono) constraint; the
// surviving row is returned.
func (s *Store) CreateWithDefaultTag(ctx context.Context, phone, name, notes, tag string) (Contact, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Contact{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO contactos (telefono, nombre, notas)
		VALUES ($1, $2, $3)
		ON CONFLICT (telefono) DO NOTHING
		RETURNING `+contactColumns, phone, name, notes)
	contact, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race: another delivery created the contact first.
		return s.GetByPhone(ctx, phone)
	}
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}

	var tagID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO tags (nombre, descripcion, color)
		VALUES ($1, 'Descripción pendiente', 'gray')
		ON CONFLICT (nombre) DO UPDATE SET nombre = EXCLUDED.nombre
		RETURNING id`, tag).Scan(&tagID)
	if err != nil {
		return Contact{}, fmt.Errorf("ensure tag: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO contacto_tag (contacto_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, contact.ID, tagID)
	if err != nil {
		return Contact{}, fmt.Errorf("attach tag: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Contact{}, fmt.Errorf("commit: %w", err)
	}
	return contact, nil
}

// UpdateName replaces the display name and notes of a contact.
func (s *Store) UpdateName(ctx context.Context, id int64, name, notes string) (Contact, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE contactos SET nombre = $2, notas = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+contactColumns, id, name, notes)
	contact, err := scanContact(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("update contact name: %w", err)
	}
	return contact, nil
}

// Tags returns the tag names attached to a contact.
func (s *Store) Tags(ctx context.Context, contactID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.nombre FROM tags t
		JOIN contacto_tag ct ON ct.tag_id = t.id
		WHERE ct.contacto_id = $1
		ORDER BY t.nombre`, contactID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func scanContact(row pgx.Row) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}
