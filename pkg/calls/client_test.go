package calls

import (
	"context"
	"errors"
	"testing"
)

type fakeTransport struct {
	fields map[string]string
	err    error
	got    []Request
}

func (f *fakeTransport) Do(_ context.Context, req Request) (map[string]string, error) {
	f.got = append(f.got, req)
	return f.fields, f.err
}

func TestClientCreate(t *testing.T) {
	tr := &fakeTransport{fields: map[string]string{
		"From": "+15550001111", "To": "+15550002222", "CallSid": "CA1", "CallStatus": "queued",
	}}
	client := NewClient(tr)

	call, err := client.Create(context.Background(), NewOutboundCall("+15550001111", "+15550002222", "https://example.com/twiml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.SID != "CA1" || call.Status != StatusQueued {
		t.Fatalf("unexpected call %+v", call)
	}
	if len(tr.got) != 1 || tr.got[0].Method != "POST" || tr.got[0].Path != "Calls" {
		t.Fatalf("unexpected transport requests %+v", tr.got)
	}
}

func TestClientRetrieve(t *testing.T) {
	tr := &fakeTransport{fields: map[string]string{
		"From": "+1", "To": "+2", "CallSid": "CA9", "CallStatus": "completed",
	}}
	call, err := NewClient(tr).Retrieve(context.Background(), "CA9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", call.Status)
	}
	if tr.got[0].Path != "Calls/CA9" || tr.got[0].Method != "GET" {
		t.Fatalf("unexpected request %+v", tr.got[0])
	}
}

func TestClientSkipsTransportOnInvalidInput(t *testing.T) {
	tr := &fakeTransport{}
	if _, err := NewClient(tr).Retrieve(context.Background(), ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(tr.got) != 0 {
		t.Fatalf("transport should not be called")
	}
}

func TestClientPropagatesTransportError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewClient(&fakeTransport{err: boom}).Retrieve(context.Background(), "CA1")
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if errors.Is(err, ErrParse) {
		t.Fatalf("transport error must not look like a parse error")
	}
}

func TestClientPropagatesDecodeError(t *testing.T) {
	tr := &fakeTransport{fields: map[string]string{"From": "+1", "To": "+2", "CallSid": "CA1", "CallStatus": "unknown"}}
	_, err := NewClient(tr).Retrieve(context.Background(), "CA1")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}
