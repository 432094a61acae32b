package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/crmlat/wabot/internal/messages"
	"github.com/crmlat/wabot/internal/whatsapp"
)

// Job carries one outbound send: the raw API payload plus the display
// body and auxiliary data persisted alongside the delivery id.
type Job struct {
	Token   string
	PhoneID string
	To      string
	Payload map[string]any
	Body    string
	Type    messages.Type
	Data    string
}

// PayloadSender posts a message payload to the messaging API.
type PayloadSender interface {
	SendPayload(ctx context.Context, token, phoneID string, payload map[string]any) (whatsapp.SendResponse, error)
}

// MessagePersister records the outbound message row.
type MessagePersister interface {
	Persist(ctx context.Context, input messages.PersistInput) (messages.Message, bool, error)
}

// Sender delivers a composed message and records the result. Failures
// after the retry budget are logged with full context and dropped; there
// is no dead-letter path.
type Sender struct {
	api      PayloadSender
	msgs     MessagePersister
	retryMax int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewSender creates an outbound sender.
func NewSender(log *slog.Logger, api PayloadSender, msgs MessagePersister, retryMax int) *Sender {
	if log == nil {
		log = slog.Default()
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	return &Sender{
		api:      api,
		msgs:     msgs,
		retryMax: retryMax,
		backoff:  500 * time.Millisecond,
		logger:   log.With(slog.String("service", "sender")),
	}
}

// Send posts the payload and persists the resulting message as sent.
func (s *Sender) Send(ctx context.Context, job Job) (messages.Message, error) {
	resp, err := s.sendWithRetry(ctx, job)
	if err != nil {
		s.logFailure(job, err)
		return messages.Message{}, err
	}

	waID := resp.RecipientWaID()
	if waID == "" {
		waID = job.To
	}
	msgType := job.Type
	if msgType == "" {
		msgType = messages.TypeTemplate
	}

	msg, _, err := s.msgs.Persist(ctx, messages.PersistInput{
		WamID:    resp.MessageID(),
		Outgoing: true,
		Type:     msgType,
		Body:     job.Body,
		WaID:     waID,
		PhoneID:  job.PhoneID,
		Data:     job.Data,
	})
	if err != nil {
		s.logFailure(job, fmt.Errorf("persist outbound message: %w", err))
		return messages.Message{}, err
	}
	return msg, nil
}

func (s *Sender) sendWithRetry(ctx context.Context, job Job) (whatsapp.SendResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retryMax; attempt++ {
		resp, err := s.api.SendPayload(ctx, job.Token, job.PhoneID, job.Payload)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt < s.retryMax {
			select {
			case <-ctx.Done():
				return whatsapp.SendResponse{}, ctx.Err()
			case <-time.After(s.backoff * time.Duration(attempt)):
			}
		}
	}
	return whatsapp.SendResponse{}, lastErr
}

func (s *Sender) logFailure(job Job, err error) {
	payload, _ := json.Marshal(job.Payload)
	s.logger.Error("outbound dispatch failed",
		slog.Any("error", err),
		slog.String("phone_id", job.PhoneID),
		slog.String("to", job.To),
		slog.String("payload", string(payload)),
		slog.String("body", job.Body),
		slog.String("data", job.Data))
}
