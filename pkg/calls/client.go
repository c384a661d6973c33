package calls

import (
	"context"
	"fmt"
)

// Transport performs a Request against the provider and returns the response body
// flattened to string keys. Authentication, TLS and wire format belong to the
// transport.
type Transport interface {
	Do(ctx context.Context, req Request) (map[string]string, error)
}

// Client places and retrieves calls. It holds no mutable state and is safe for
// concurrent use if its Transport is.
type Client struct {
	transport Transport
}

// NewClient constructs a client over transport.
func NewClient(transport Transport) *Client {
	return &Client{transport: transport}
}

// Create places an outbound call.
func (c *Client) Create(ctx context.Context, call OutboundCall) (Call, error) {
	req, err := BuildCreate(call)
	if err != nil {
		return Call{}, err
	}
	return c.send(ctx, req)
}

// Retrieve fetches the current snapshot of the call identified by sid.
func (c *Client) Retrieve(ctx context.Context, sid string) (Call, error) {
	req, err := BuildLookup(sid)
	if err != nil {
		return Call{}, err
	}
	return c.send(ctx, req)
}

func (c *Client) send(ctx context.Context, req Request) (Call, error) {
	fields, err := c.transport.Do(ctx, req)
	if err != nil {
		return Call{}, fmt.Errorf("calls: %s %s: %w", req.Method, req.Path, err)
	}
	return Decode(fields)
}
