package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crmlat/wabot/internal/threads"
)

const (
	// FallbackAnswer is returned when a completed run yields no text.
	FallbackAnswer = "No answer received"
	// FailureReply is the user-visible reply for a failed run.
	FailureReply = "Request failed, please try again"
)

// ErrRunFailed is returned when a run terminates in any state other
// than completed, including the poll deadline expiring.
var ErrRunFailed = errors.New("assistant run failed")

// API is the Assistants surface the orchestrator drives.
type API interface {
	CreateThreadAndRun(ctx context.Context, assistantID, message string) (Run, error)
	AppendMessage(ctx context.Context, threadID, message string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	LatestAssistantText(ctx context.Context, threadID string) (string, error)
}

// ThreadStore persists user-thread bindings.
type ThreadStore interface {
	GetByWaID(ctx context.Context, waID string) (threads.Thread, error)
	Create(ctx context.Context, waID, threadID string) (threads.Thread, bool, error)
}

// Options bound the run poll loop.
type Options struct {
	PollInitial  time.Duration
	PollMax      time.Duration
	PollDeadline time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInitial <= 0 {
		o.PollInitial = 500 * time.Millisecond
	}
	if o.PollMax <= 0 {
		o.PollMax = 5 * time.Second
	}
	if o.PollDeadline <= 0 {
		o.PollDeadline = 2 * time.Minute
	}
	return o
}

// Orchestrator maps users to threads and drives one run per question.
type Orchestrator struct {
	api         API
	store       ThreadStore
	assistantID string
	opts        Options
	logger      *slog.Logger
}

// NewOrchestrator creates a conversation orchestrator.
func NewOrchestrator(log *slog.Logger, api API, store ThreadStore, assistantID string, opts Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		api:         api,
		store:       store,
		assistantID: assistantID,
		opts:        opts.withDefaults(),
		logger:      log.With(slog.String("service", "assistant")),
	}
}

// Converse submits the question on the user's thread (creating one on
// first contact), waits for the run to reach a terminal state, and
// returns the assistant's reply text.
func (o *Orchestrator) Converse(ctx context.Context, waID, question string) (string, error) {
	run, err := o.submit(ctx, waID, question)
	if err != nil {
		return "", err
	}

	run, err = o.awaitTerminal(ctx, run)
	if err != nil {
		return "", err
	}

	if run.Status != RunCompleted {
		return "", fmt.Errorf("%w: terminal status %s", ErrRunFailed, run.Status)
	}

	answer, err := o.api.LatestAssistantText(ctx, run.ThreadID)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return FallbackAnswer, nil
	}
	return answer, nil
}

func (o *Orchestrator) submit(ctx context.Context, waID, question string) (Run, error) {
	binding, err := o.store.GetByWaID(ctx, waID)
	if err == nil {
		if err := o.api.AppendMessage(ctx, binding.ThreadID, question); err != nil {
			return Run{}, err
		}
		return o.api.CreateRun(ctx, binding.ThreadID, o.assistantID)
	}
	if !errors.Is(err, threads.ErrNotFound) {
		return Run{}, err
	}

	run, err := o.api.CreateThreadAndRun(ctx, o.assistantID, question)
	if err != nil {
		return Run{}, err
	}
	// Persist the binding before returning; the unique constraint on the
	// user id resolves concurrent first messages to a single thread.
	stored, created, err := o.store.Create(ctx, waID, run.ThreadID)
	if err != nil {
		return Run{}, err
	}
	if !created && stored.ThreadID != run.ThreadID {
		o.logger.Warn("concurrent thread creation, keeping stored binding",
			slog.String("wa_id", waID),
			slog.String("stored_thread", stored.ThreadID),
			slog.String("orphan_thread", run.ThreadID))
	}
	return run, nil
}

// awaitTerminal polls the run with exponential backoff until it leaves
// queued/in_progress or the deadline expires.
func (o *Orchestrator) awaitTerminal(ctx context.Context, run Run) (Run, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.PollDeadline)
	defer cancel()

	delay := o.opts.PollInitial
	for !run.Status.Terminal() {
		select {
		case <-ctx.Done():
			return Run{}, fmt.Errorf("%w: poll deadline exceeded after %s", ErrRunFailed, o.opts.PollDeadline)
		case <-time.After(delay):
		}

		next, err := o.api.GetRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return Run{}, err
		}
		run = next

		delay *= 2
		if delay > o.opts.PollMax {
			delay = o.opts.PollMax
		}
	}
	return run, nil
}
