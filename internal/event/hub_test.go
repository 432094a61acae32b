package event

import (
	"context"
	"testing"
	"time"

	"github.com/crmlat/wabot/internal/messages"
)

func TestHubDeliversToSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ch, subID := hub.Subscribe(context.Background())
	defer hub.Unsubscribe(subID)

	hub.PublishMessageChanged(messages.Message{WamID: "wamid.1"}, false)

	select {
	case evt := <-ch:
		if evt.Message.WamID != "wamid.1" {
			t.Fatalf("wam_id=%q", evt.Message.WamID)
		}
		if evt.StatusChange {
			t.Fatal("create event must not be flagged as status change")
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

func TestHubStatusChangeFlag(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ch, subID := hub.Subscribe(context.Background())
	defer hub.Unsubscribe(subID)

	hub.PublishMessageChanged(messages.Message{WamID: "wamid.1", Status: messages.StatusRead}, true)

	evt := <-ch
	if !evt.StatusChange {
		t.Fatal("expected status change flag")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ch, subID := hub.Subscribe(context.Background())
	hub.Unsubscribe(subID)

	if _, open := <-ch; open {
		t.Fatal("channel still open after unsubscribe")
	}
	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscribers=%d", hub.SubscriberCount())
	}

	// Publishing with no subscribers must not panic.
	hub.PublishMessageChanged(messages.Message{WamID: "wamid.2"}, false)
}

func TestHubContextCancelRemovesSubscriber(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	hub.Subscribe(ctx)

	cancel()
	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not removed after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubConcurrentPublishAndUnsubscribe(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)

	// A disconnecting client must never crash an in-flight broadcast.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			hub.PublishMessageChanged(messages.Message{WamID: "wamid.race"}, true)
		}
	}()

	for i := 0; i < 500; i++ {
		_, subID := hub.Subscribe(context.Background())
		hub.Unsubscribe(subID)
	}
	<-done

	if hub.SubscriberCount() != 0 {
		t.Fatalf("subscribers=%d", hub.SubscriberCount())
	}
}

func TestHubFullSubscriberDoesNotBlockPublisher(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	_, subID := hub.Subscribe(context.Background())
	defer hub.Unsubscribe(subID)

	// Overfill the subscriber buffer; publish must return regardless.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize+10; i++ {
			hub.PublishMessageChanged(messages.Message{WamID: "wamid.flood"}, false)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
