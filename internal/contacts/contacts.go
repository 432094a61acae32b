// Package contacts reconciles webhook senders against the contactos table.
package contacts

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultTag is attached to every contact created from a webhook until
// an operator classifies it.
const DefaultTag = "Pendiente"

const (
	notesCreated     = "created by webhook"
	notesNameUpdated = "name updated by webhook"
)

// Contact is one contactos row.
type Contact struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"telefono"`
	Name      string    `json:"nombre"`
	Notes     string    `json:"notas"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrNotFound is returned when no contact matches a phone number.
var ErrNotFound = errors.New("contact not found")

// ContactStore is the persistence surface the reconciler needs.
type ContactStore interface {
	GetByPhone(ctx context.Context, phone string) (Contact, error)
	CreateWithDefaultTag(ctx context.Context, phone, name, notes, tag string) (Contact, error)
	UpdateName(ctx context.Context, id int64, name, notes string) (Contact, error)
}

// Service owns all contact writes triggered by inbound webhooks.
type Service struct {
	store  ContactStore
	logger *slog.Logger
}

// NewService creates a contact reconciler.
func NewService(log *slog.Logger, store ContactStore) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "contacts")),
	}
}

// Resolve maps a sender phone number to a contact row, creating it on
// first sight with the phone number as placeholder name. A stored
// display name equal to the phone number means the name was never
// captured; a profile name replaces it exactly once.
func (s *Service) Resolve(ctx context.Context, phone, profileName string) (Contact, error) {
	contact, err := s.store.GetByPhone(ctx, phone)
	if errors.Is(err, ErrNotFound) {
		created, err := s.store.CreateWithDefaultTag(ctx, phone, phone, notesCreated, DefaultTag)
		if err != nil {
			return Contact{}, err
		}
		s.logger.Info("contact created", slog.String("phone", phone))
		return created, nil
	}
	if err != nil {
		return Contact{}, err
	}

	if contact.Name == contact.Phone && profileName != "" && profileName != contact.Phone {
		updated, err := s.store.UpdateName(ctx, contact.ID, profileName, notesNameUpdated)
		if err != nil {
			return Contact{}, err
		}
		s.logger.Info("contact name updated", slog.String("phone", phone))
		return updated, nil
	}

	return contact, nil
}
