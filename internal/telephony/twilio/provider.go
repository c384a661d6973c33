package twilio

import (
	"context"

	"github.com/acme/callbridge/internal/telephony"
	"github.com/acme/callbridge/pkg/calls"
)

// Provider places calls through the provider's Calls REST resource.
type Provider struct {
	client *calls.Client
}

var _ telephony.Provider = (*Provider)(nil)

// NewProvider wraps transport in a calls client.
func NewProvider(transport calls.Transport) *Provider {
	return &Provider{client: calls.NewClient(transport)}
}

func (p *Provider) Name() string { return "twilio" }

// PlaceCall creates an outbound call.
func (p *Provider) PlaceCall(ctx context.Context, call calls.OutboundCall) (calls.Call, error) {
	return p.client.Create(ctx, call)
}

// FetchCall returns the provider's current snapshot of sid.
func (p *Provider) FetchCall(ctx context.Context, sid string) (calls.Call, error) {
	return p.client.Retrieve(ctx, sid)
}
