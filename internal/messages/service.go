package messages

import (
	"context"
	"errors"
	"log/slog"
)

// MessageStore is the persistence surface the service needs.
type MessageStore interface {
	Create(ctx context.Context, input PersistInput) (Message, bool, error)
	UpdateStatus(ctx context.Context, wamID string, status Status, errorCode string) (Message, error)
	ExistsByWamID(ctx context.Context, wamID string) (bool, error)
}

// Service persists messages and publishes change notifications.
type Service struct {
	store     MessageStore
	logger    *slog.Logger
	publisher Publisher
}

// NewService creates a message service. The publisher may be nil.
func NewService(log *slog.Logger, store MessageStore, publisher Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:     store,
		logger:    log.With(slog.String("service", "messages")),
		publisher: publisher,
	}
}

// Persist writes a message row and notifies subscribers. Replayed
// deliveries (same wam id) return the stored row without publishing.
func (s *Service) Persist(ctx context.Context, input PersistInput) (Message, bool, error) {
	msg, created, err := s.store.Create(ctx, input)
	if err != nil {
		return Message{}, false, err
	}
	if !created {
		s.logger.Debug("duplicate message delivery ignored", slog.String("wam_id", input.WamID))
		return msg, false, nil
	}
	s.publish(msg, false)
	return msg, true, nil
}

// ApplyStatus records a delivery status update. A status for an unknown
// wam id is dropped without error: the platform may deliver the status
// before the message row lands.
func (s *Service) ApplyStatus(ctx context.Context, wamID string, status Status, errorCode string) (Message, bool, error) {
	msg, err := s.store.UpdateStatus(ctx, wamID, status, errorCode)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("status for unknown message dropped", slog.String("wam_id", wamID), slog.String("status", string(status)))
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, err
	}
	s.publish(msg, true)
	return msg, true, nil
}

// Exists reports whether an inbound message was already recorded.
func (s *Service) Exists(ctx context.Context, wamID string) (bool, error) {
	return s.store.ExistsByWamID(ctx, wamID)
}

func (s *Service) publish(msg Message, statusChange bool) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishMessageChanged(msg, statusChange)
}
