package media

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/crmlat/wabot/internal/messages"
)

// AssetFetcher downloads an asset and returns its stored public URL.
type AssetFetcher interface {
	Fetch(ctx context.Context, mediaID, token string) (string, error)
}

// TokenResolver maps a phone-number-id to its application token.
type TokenResolver interface {
	ResolveToken(ctx context.Context, phoneID string) (string, error)
}

// MessagePersister writes the replayed message row.
type MessagePersister interface {
	Persist(ctx context.Context, input messages.PersistInput) (messages.Message, bool, error)
}

// FailureQueue is the pending-failure surface the retrier sweeps.
type FailureQueue interface {
	ListPending(ctx context.Context, limit int) ([]Failure, error)
	MarkResolved(ctx context.Context, id uuid.UUID) error
	MarkAttempt(ctx context.Context, id uuid.UUID, lastError string) error
}

const (
	sweepBatchSize   = 50
	sweepItemTimeout = time.Minute
)

// Retrier periodically replays failed media ingestions. A successful
// replay persists the message row that the original delivery dropped.
type Retrier struct {
	fetcher  AssetFetcher
	tokens   TokenResolver
	msgs     MessagePersister
	failures FailureQueue
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewRetrier creates a retry sweeper with a cron schedule spec.
func NewRetrier(log *slog.Logger, fetcher AssetFetcher, tokens TokenResolver, msgs MessagePersister, failures FailureQueue, schedule string) *Retrier {
	if log == nil {
		log = slog.Default()
	}
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &Retrier{
		fetcher:  fetcher,
		tokens:   tokens,
		msgs:     msgs,
		failures: failures,
		schedule: schedule,
		logger:   log.With(slog.String("service", "media_retry")),
	}
}

// Start schedules the sweep.
func (r *Retrier) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, func() { r.Sweep(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	r.cron = c
	return nil
}

// Stop halts the schedule and waits for a running sweep.
func (r *Retrier) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep replays all pending failures once.
func (r *Retrier) Sweep(ctx context.Context) {
	pending, err := r.failures.ListPending(ctx, sweepBatchSize)
	if err != nil {
		r.logger.Error("list pending ingestions failed", slog.Any("error", err))
		return
	}
	for _, f := range pending {
		r.replay(ctx, f)
	}
}

func (r *Retrier) replay(ctx context.Context, f Failure) {
	ctx, cancel := context.WithTimeout(ctx, sweepItemTimeout)
	defer cancel()

	token, err := r.tokens.ResolveToken(ctx, f.PhoneID)
	if err != nil {
		r.markAttempt(ctx, f, err)
		return
	}

	url, err := r.fetcher.Fetch(ctx, f.MediaID, token)
	if err != nil {
		r.markAttempt(ctx, f, err)
		return
	}

	_, _, err = r.msgs.Persist(ctx, messages.PersistInput{
		WamID:   f.WamID,
		Type:    messages.Type(f.MediaType),
		Body:    url,
		Caption: f.Caption,
		WaID:    f.WaID,
		PhoneID: f.PhoneID,
	})
	if err != nil {
		r.markAttempt(ctx, f, err)
		return
	}

	if err := r.failures.MarkResolved(ctx, f.ID); err != nil {
		r.logger.Error("mark resolved failed", slog.String("wam_id", f.WamID), slog.Any("error", err))
		return
	}
	r.logger.Info("failed ingestion replayed", slog.String("wam_id", f.WamID), slog.Int("attempts", f.Attempts))
}

func (r *Retrier) markAttempt(ctx context.Context, f Failure, cause error) {
	r.logger.Warn("ingestion replay failed", slog.String("wam_id", f.WamID), slog.Any("error", cause))
	if err := r.failures.MarkAttempt(ctx, f.ID, cause.Error()); err != nil {
		r.logger.Error("mark attempt failed", slog.String("wam_id", f.WamID), slog.Any("error", err))
	}
}
