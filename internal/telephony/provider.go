package telephony

import (
	"context"

	"github.com/acme/callbridge/pkg/calls"
)

// Provider abstracts the telephony integration.
type Provider interface {
	Name() string
	PlaceCall(ctx context.Context, call calls.OutboundCall) (calls.Call, error)
	FetchCall(ctx context.Context, sid string) (calls.Call, error)
}
