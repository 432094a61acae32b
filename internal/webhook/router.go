package webhook

import (
	"context"
	"log/slog"

	"github.com/crmlat/wabot/internal/contacts"
	"github.com/crmlat/wabot/internal/messages"
	"github.com/crmlat/wabot/internal/prune"
)

// MessageService is the persistence surface the router mutates.
type MessageService interface {
	ApplyStatus(ctx context.Context, wamID string, status messages.Status, errorCode string) (messages.Message, bool, error)
	Exists(ctx context.Context, wamID string) (bool, error)
}

// ContactResolver reconciles the sender against the contact table.
type ContactResolver interface {
	Resolve(ctx context.Context, phone, profileName string) (contacts.Contact, error)
}

// Router classifies one webhook delivery and drives the matching path.
type Router struct {
	msgs       MessageService
	contacts   ContactResolver
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewRouter creates an event router.
func NewRouter(log *slog.Logger, msgs MessageService, contactSvc ContactResolver, dispatcher *Dispatcher) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		msgs:       msgs,
		contacts:   contactSvc,
		dispatcher: dispatcher,
		logger:     log.With(slog.String("service", "webhook")),
	}
}

// Route decodes and processes one raw webhook body. Unknown shapes and
// duplicate deliveries succeed silently: failing the HTTP response only
// triggers platform-side redelivery floods.
func (r *Router) Route(ctx context.Context, raw []byte) error {
	// Raw body is logged on every outcome for forensic replay.
	r.logger.Info("webhook received", slog.String("payload", prune.Clip(string(raw), prune.DefaultMaxBytes)))

	event, err := Decode(raw)
	if err != nil {
		return err
	}

	switch event.Kind {
	case KindStatus:
		return r.routeStatus(ctx, event.Status)
	case KindMessage:
		return r.routeMessage(ctx, event.Message)
	default:
		r.logger.Debug("webhook shape ignored")
		return nil
	}
}

func (r *Router) routeStatus(ctx context.Context, status *StatusUpdate) error {
	errorCode := ""
	if status.Status == messages.StatusFailed {
		errorCode = status.ErrorCode
		r.logger.Error("delivery failed",
			slog.String("wam_id", status.WamID),
			slog.String("code", status.ErrorCode),
			slog.String("message", status.ErrorMessage),
			slog.String("details", status.ErrorDetails))
	}

	// A status for a message not yet persisted is dropped, not failed:
	// the platform may race the status ahead of the message row.
	_, found, err := r.msgs.ApplyStatus(ctx, status.WamID, status.Status, errorCode)
	if err != nil {
		return err
	}
	if !found {
		r.logger.Debug("status for unknown message", slog.String("wam_id", status.WamID))
	}
	return nil
}

func (r *Router) routeMessage(ctx context.Context, msg *IncomingMessage) error {
	if _, err := r.contacts.Resolve(ctx, msg.From, msg.ProfileName); err != nil {
		return err
	}

	// Idempotency guard: at-least-once webhook transport means replays
	// are routine. Checked here so a duplicate never re-triggers the
	// assistant; the unique constraint on wam_id is the hard net.
	exists, err := r.msgs.Exists(ctx, msg.WamID)
	if err != nil {
		return err
	}
	if exists {
		r.logger.Debug("duplicate delivery ignored", slog.String("wam_id", msg.WamID))
		return nil
	}

	return r.dispatcher.Handle(ctx, msg)
}
