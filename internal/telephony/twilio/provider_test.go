package twilio

import (
	"context"
	"testing"

	"github.com/acme/callbridge/pkg/calls"
)

type stubTransport struct {
	requests []calls.Request
}

func (s *stubTransport) Do(_ context.Context, req calls.Request) (map[string]string, error) {
	s.requests = append(s.requests, req)
	return map[string]string{"From": "+1", "To": "+2", "CallSid": "CA1", "CallStatus": "ringing"}, nil
}

func TestProviderDelegatesToCallsClient(t *testing.T) {
	tr := &stubTransport{}
	p := NewProvider(tr)

	if p.Name() != "twilio" {
		t.Fatalf("unexpected name %q", p.Name())
	}

	call, err := p.PlaceCall(context.Background(), calls.NewOutboundCallWithTwiML("+1", "+2", "<Response/>"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if call.Status != calls.StatusRinging {
		t.Fatalf("unexpected status %s", call.Status)
	}

	if _, err := p.FetchCall(context.Background(), "CA1"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(tr.requests) != 2 || tr.requests[0].Path != "Calls" || tr.requests[1].Path != "Calls/CA1" {
		t.Fatalf("unexpected requests %+v", tr.requests)
	}
	if tr.requests[0].Params[2].Key != "Twiml" {
		t.Fatalf("expected Twiml param, got %+v", tr.requests[0].Params)
	}
}
