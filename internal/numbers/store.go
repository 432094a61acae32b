// Package numbers resolves business phone numbers (numeros) to the
// application credentials (aplicaciones) that own them.
package numbers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Number is one registered business phone number.
type Number struct {
	ID            int64  `json:"id"`
	Name          string `json:"nombre"`
	Number        string `json:"numero"`
	PhoneID       string `json:"id_telefono"`
	ApplicationID int64  `json:"aplicacion_id"`
	Quality       string `json:"calidad"`
}

// ErrUnknownNumber is returned for phone-number-ids not in the registry.
var ErrUnknownNumber = errors.New("unknown phone number id")

// Store reads the numeros and aplicaciones tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a number registry over the shared pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetByPhoneID loads a number by its platform phone-number-id.
func (s *Store) GetByPhoneID(ctx context.Context, phoneID string) (Number, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, nombre, numero, id_telefono, aplicacion_id, calidad
		FROM numeros WHERE id_telefono = $1`, phoneID)
	var n Number
	err := row.Scan(&n.ID, &n.Name, &n.Number, &n.PhoneID, &n.ApplicationID, &n.Quality)
	if errors.Is(err, pgx.ErrNoRows) {
		return Number{}, ErrUnknownNumber
	}
	if err != nil {
		return Number{}, fmt.Errorf("get number: %w", err)
	}
	return n, nil
}

// ResolveToken returns the API token of the application owning the
// given phone-number-id.
func (s *Store) ResolveToken(ctx context.Context, phoneID string) (string, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT a.token_api
		FROM numeros n
		JOIN aplicaciones a ON a.id = n.aplicacion_id
		WHERE n.id_telefono = $1`, phoneID)
	var token string
	err := row.Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUnknownNumber
	}
	if err != nil {
		return "", fmt.Errorf("resolve token: %w", err)
	}
	return token, nil
}
