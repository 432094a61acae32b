package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crmlat/wabot/internal/messages"
	"github.com/crmlat/wabot/internal/whatsapp"
)

type fakePayloadSender struct {
	failures int
	calls    int
	resp     whatsapp.SendResponse
}

func (f *fakePayloadSender) SendPayload(ctx context.Context, token, phoneID string, payload map[string]any) (whatsapp.SendResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return whatsapp.SendResponse{}, errors.New("transient")
	}
	return f.resp, nil
}

type fakeMessagePersister struct {
	inputs []messages.PersistInput
	err    error
}

func (f *fakeMessagePersister) Persist(ctx context.Context, input messages.PersistInput) (messages.Message, bool, error) {
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return messages.Message{}, false, f.err
	}
	return messages.Message{WamID: input.WamID, Outgoing: input.Outgoing}, true, nil
}

func sentResponse(wamID, waID string) whatsapp.SendResponse {
	var resp whatsapp.SendResponse
	resp.Messages = append(resp.Messages, struct {
		ID string `json:"id"`
	}{ID: wamID})
	resp.Contacts = append(resp.Contacts, struct {
		WaID string `json:"wa_id"`
	}{WaID: waID})
	return resp
}

func fastSender(api PayloadSender, msgs MessagePersister, retryMax int) *Sender {
	s := NewSender(nil, api, msgs, retryMax)
	s.backoff = time.Millisecond
	return s
}

func TestSendPersistsOutboundMessage(t *testing.T) {
	t.Parallel()

	api := &fakePayloadSender{resp: sentResponse("wamid.OUT", "5215550002222")}
	persister := &fakeMessagePersister{}
	s := fastSender(api, persister, 3)

	msg, err := s.Send(context.Background(), Job{
		Token:   "tok",
		PhoneID: "phone-1",
		To:      "5215550002222",
		Payload: map[string]any{"type": "text"},
		Body:    "hola",
		Type:    messages.TypeText,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !msg.Outgoing {
		t.Fatal("outbound flag not set")
	}
	if len(persister.inputs) != 1 {
		t.Fatalf("inputs=%d", len(persister.inputs))
	}
	input := persister.inputs[0]
	if input.WamID != "wamid.OUT" || input.WaID != "5215550002222" || input.Body != "hola" {
		t.Fatalf("input=%+v", input)
	}
	if input.Type != messages.TypeText {
		t.Fatalf("type=%q", input.Type)
	}
}

func TestSendRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	api := &fakePayloadSender{failures: 2, resp: sentResponse("wamid.OUT", "")}
	s := fastSender(api, &fakeMessagePersister{}, 3)

	if _, err := s.Send(context.Background(), Job{To: "1", Payload: map[string]any{}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if api.calls != 3 {
		t.Fatalf("calls=%d want 3", api.calls)
	}
}

func TestSendExhaustedRetriesFails(t *testing.T) {
	t.Parallel()

	api := &fakePayloadSender{failures: 10}
	persister := &fakeMessagePersister{}
	s := fastSender(api, persister, 3)

	if _, err := s.Send(context.Background(), Job{To: "1", Payload: map[string]any{}}); err == nil {
		t.Fatal("expected error after retry budget")
	}
	if api.calls != 3 {
		t.Fatalf("calls=%d want 3", api.calls)
	}
	if len(persister.inputs) != 0 {
		t.Fatalf("failed send must not persist, inputs=%+v", persister.inputs)
	}
}

func TestSendDefaultsMissingFields(t *testing.T) {
	t.Parallel()

	// No recipient in the response and no explicit type.
	api := &fakePayloadSender{resp: sentResponse("wamid.OUT", "")}
	persister := &fakeMessagePersister{}
	s := fastSender(api, persister, 1)

	if _, err := s.Send(context.Background(), Job{To: "5215550002222", Payload: map[string]any{}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	input := persister.inputs[0]
	if input.WaID != "5215550002222" {
		t.Fatalf("wa_id=%q want job recipient fallback", input.WaID)
	}
	if input.Type != messages.TypeTemplate {
		t.Fatalf("type=%q want template default", input.Type)
	}
}
