package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crmlat/wabot/internal/assistant"
	"github.com/crmlat/wabot/internal/dispatch"
	"github.com/crmlat/wabot/internal/media"
	"github.com/crmlat/wabot/internal/messages"
)

// MessagePersister writes inbound message rows.
type MessagePersister interface {
	Persist(ctx context.Context, input messages.PersistInput) (messages.Message, bool, error)
}

// MediaFetcher downloads a media asset and returns its stored URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, mediaID, token string) (string, error)
}

// TokenResolver maps a phone-number-id to its application token.
type TokenResolver interface {
	ResolveToken(ctx context.Context, phoneID string) (string, error)
}

// FailureRecorder keeps a trace of media ingestions that were dropped.
type FailureRecorder interface {
	Record(ctx context.Context, f media.Failure) error
}

// Converser runs one assistant turn for a user.
type Converser interface {
	Converse(ctx context.Context, waID, question string) (string, error)
}

// ReplySender delivers and persists an outbound message.
type ReplySender interface {
	Send(ctx context.Context, job dispatch.Job) (messages.Message, error)
}

// TaskQueue runs work off the webhook request goroutine.
type TaskQueue interface {
	Submit(name string, fn func(ctx context.Context)) error
}

// Dispatcher branches an inbound message on its content type and
// normalizes it into a persisted row. Text messages additionally trigger
// the assistant turn and the outbound reply, both off-thread.
type Dispatcher struct {
	msgs     MessagePersister
	fetcher  MediaFetcher
	tokens   TokenResolver
	failures FailureRecorder
	bot      Converser
	sender   ReplySender
	queue    TaskQueue
	logger   *slog.Logger
}

// NewDispatcher creates a message type dispatcher.
func NewDispatcher(log *slog.Logger, msgs MessagePersister, fetcher MediaFetcher, tokens TokenResolver, failures FailureRecorder, bot Converser, sender ReplySender, queue TaskQueue) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		msgs:     msgs,
		fetcher:  fetcher,
		tokens:   tokens,
		failures: failures,
		bot:      bot,
		sender:   sender,
		queue:    queue,
		logger:   log.With(slog.String("service", "dispatcher")),
	}
}

// Handle persists the message according to its content type.
func (d *Dispatcher) Handle(ctx context.Context, msg *IncomingMessage) error {
	switch {
	case msg.Type == messages.TypeText:
		return d.handleText(ctx, msg)
	case messages.MediaTypes[msg.Type]:
		return d.handleMedia(ctx, msg)
	default:
		return d.handleOther(ctx, msg)
	}
}

func (d *Dispatcher) handleText(ctx context.Context, msg *IncomingMessage) error {
	body := ""
	if msg.Raw.Text != nil {
		body = msg.Raw.Text.Body
	}

	_, created, err := d.msgs.Persist(ctx, messages.PersistInput{
		WamID:     msg.WamID,
		Type:      messages.TypeText,
		Body:      body,
		WaID:      msg.From,
		PhoneID:   msg.PhoneID,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	// The assistant turn blocks on run polling; it runs on the dispatch
	// pool so webhook acknowledgment is not coupled to AI latency.
	return d.queue.Submit("assistant_reply", func(ctx context.Context) {
		d.reply(ctx, msg.From, msg.PhoneID, body)
	})
}

func (d *Dispatcher) reply(ctx context.Context, waID, phoneID, question string) {
	answer, err := d.bot.Converse(ctx, waID, question)
	if errors.Is(err, assistant.ErrRunFailed) {
		d.logger.Warn("assistant run failed", slog.String("wa_id", waID), slog.Any("error", err))
		answer = assistant.FailureReply
	} else if err != nil {
		d.logger.Error("assistant turn failed", slog.String("wa_id", waID), slog.Any("error", err))
		return
	}

	token, err := d.tokens.ResolveToken(ctx, phoneID)
	if err != nil {
		d.logger.Error("token resolution failed", slog.String("phone_id", phoneID), slog.Any("error", err))
		return
	}

	if _, err := d.sender.Send(ctx, dispatch.Job{
		Token:   token,
		PhoneID: phoneID,
		To:      waID,
		Payload: textPayload(waID, answer),
		Body:    answer,
		Type:    messages.TypeText,
	}); err != nil {
		d.logger.Error("reply dispatch failed", slog.String("wa_id", waID), slog.Any("error", err))
	}
}

func (d *Dispatcher) handleMedia(ctx context.Context, msg *IncomingMessage) error {
	content, ok := msg.Raw.Media()
	if !ok {
		return nil
	}

	token, err := d.tokens.ResolveToken(ctx, msg.PhoneID)
	if err != nil {
		return err
	}

	url, err := d.fetcher.Fetch(ctx, content.ID, token)
	if err != nil {
		// Intentional drop: no row, no event. The failure is recorded so
		// the retry sweep can replay the ingestion.
		d.logger.Warn("media fetch failed", slog.String("wam_id", msg.WamID), slog.Any("error", err))
		if recErr := d.failures.Record(ctx, media.Failure{
			MediaID:   content.ID,
			MediaType: string(msg.Type),
			WamID:     msg.WamID,
			WaID:      msg.From,
			PhoneID:   msg.PhoneID,
			Caption:   content.Caption,
			LastError: err.Error(),
		}); recErr != nil {
			d.logger.Error("record failed ingestion failed", slog.String("wam_id", msg.WamID), slog.Any("error", recErr))
		}
		return nil
	}

	_, _, err = d.msgs.Persist(ctx, messages.PersistInput{
		WamID:     msg.WamID,
		Type:      msg.Type,
		Body:      url,
		Caption:   content.Caption,
		WaID:      msg.From,
		PhoneID:   msg.PhoneID,
		Timestamp: msg.Timestamp,
	})
	return err
}

func (d *Dispatcher) handleOther(ctx context.Context, msg *IncomingMessage) error {
	nested, ok := msg.Raw.NestedPayload()
	if !ok {
		return nil
	}

	_, _, err := d.msgs.Persist(ctx, messages.PersistInput{
		WamID:     msg.WamID,
		Type:      messages.TypeOther,
		Body:      fmt.Sprintf("(%s): \n _%s_", msg.Type, string(nested)),
		WaID:      msg.From,
		PhoneID:   msg.PhoneID,
		Timestamp: msg.Timestamp,
	})
	return err
}

func textPayload(to, body string) map[string]any {
	return map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"preview_url": false,
			"body":        body,
		},
	}
}
