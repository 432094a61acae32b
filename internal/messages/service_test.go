package messages

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	createFunc func(ctx context.Context, input PersistInput) (Message, bool, error)
	updateFunc func(ctx context.Context, wamID string, status Status, errorCode string) (Message, error)
	exists     bool
}

func (f *fakeStore) Create(ctx context.Context, input PersistInput) (Message, bool, error) {
	if f.createFunc == nil {
		return Message{WamID: input.WamID}, true, nil
	}
	return f.createFunc(ctx, input)
}

func (f *fakeStore) UpdateStatus(ctx context.Context, wamID string, status Status, errorCode string) (Message, error) {
	if f.updateFunc == nil {
		return Message{WamID: wamID, Status: status}, nil
	}
	return f.updateFunc(ctx, wamID, status, errorCode)
}

func (f *fakeStore) ExistsByWamID(ctx context.Context, wamID string) (bool, error) {
	return f.exists, nil
}

type recordingPublisher struct {
	events []bool // statusChange flag per event
}

func (p *recordingPublisher) PublishMessageChanged(msg Message, statusChange bool) {
	p.events = append(p.events, statusChange)
}

func TestPersistPublishesOnCreate(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	svc := NewService(nil, &fakeStore{}, pub)

	_, created, err := svc.Persist(context.Background(), PersistInput{WamID: "wamid.1"})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if !created {
		t.Fatal("expected created")
	}
	if len(pub.events) != 1 || pub.events[0] {
		t.Fatalf("events=%v want one create event", pub.events)
	}
}

func TestPersistDuplicateStaysSilent(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	store := &fakeStore{
		createFunc: func(ctx context.Context, input PersistInput) (Message, bool, error) {
			return Message{WamID: input.WamID}, false, nil
		},
	}
	svc := NewService(nil, store, pub)

	msg, created, err := svc.Persist(context.Background(), PersistInput{WamID: "wamid.1"})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if created {
		t.Fatal("duplicate reported as created")
	}
	if msg.WamID != "wamid.1" {
		t.Fatalf("msg=%+v", msg)
	}
	if len(pub.events) != 0 {
		t.Fatalf("duplicate must not publish, events=%v", pub.events)
	}
}

func TestApplyStatusPublishesChange(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	svc := NewService(nil, &fakeStore{}, pub)

	_, found, err := svc.ApplyStatus(context.Background(), "wamid.1", StatusRead, "")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !found {
		t.Fatal("expected found")
	}
	if len(pub.events) != 1 || !pub.events[0] {
		t.Fatalf("events=%v want one status event", pub.events)
	}
}

func TestApplyStatusUnknownMessageIsDropped(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	store := &fakeStore{
		updateFunc: func(ctx context.Context, wamID string, status Status, errorCode string) (Message, error) {
			return Message{}, ErrNotFound
		},
	}
	svc := NewService(nil, store, pub)

	_, found, err := svc.ApplyStatus(context.Background(), "wamid.unknown", StatusDelivered, "")
	if err != nil {
		t.Fatalf("unknown wam id must not error: %v", err)
	}
	if found {
		t.Fatal("unknown wam id reported as found")
	}
	if len(pub.events) != 0 {
		t.Fatalf("dropped status must not publish, events=%v", pub.events)
	}
}

func TestApplyStatusStoreFailurePropagates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{
		updateFunc: func(ctx context.Context, wamID string, status Status, errorCode string) (Message, error) {
			return Message{}, errors.New("db down")
		},
	}
	svc := NewService(nil, store, nil)

	if _, _, err := svc.ApplyStatus(context.Background(), "wamid.1", StatusDelivered, ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestNilPublisherIsSafe(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeStore{}, nil)
	if _, _, err := svc.Persist(context.Background(), PersistInput{WamID: "wamid.1"}); err != nil {
		t.Fatalf("persist: %v", err)
	}
}
