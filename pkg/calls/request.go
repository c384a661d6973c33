package calls

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/acme/callbridge/pkg/errors"
)

// ErrInvalidRequest is returned by the builders for unusable input.
var ErrInvalidRequest = fmt.Errorf("%w: calls request", apperrors.ErrValidation)

const resourcePath = "Calls"

// Instructions tells the provider how to drive an answered call. The only
// implementations are URL and TwiML.
type Instructions interface {
	param() Param
}

// URL is fetched by the provider for call-control markup.
type URL string

// TwiML is inline call-control markup.
type TwiML string

func (u URL) param() Param   { return Param{Key: "Url", Value: string(u)} }
func (t TwiML) param() Param { return Param{Key: "Twiml", Value: string(t)} }

// OutboundCall describes a call to place.
type OutboundCall struct {
	From         string
	To           string
	Instructions Instructions
}

// NewOutboundCall returns a call driven by instructions fetched from url.
func NewOutboundCall(from, to, url string) OutboundCall {
	return OutboundCall{From: from, To: to, Instructions: URL(url)}
}

// NewOutboundCallWithTwiML returns a call driven by inline markup.
func NewOutboundCallWithTwiML(from, to, twiml string) OutboundCall {
	return OutboundCall{From: from, To: to, Instructions: TwiML(twiml)}
}

// Param is a single request parameter.
type Param struct {
	Key   string
	Value string
}

// Request is what a Transport executes. Params keep insertion order.
type Request struct {
	Method string
	Path   string
	Params []Param
}

// BuildCreate builds the request that places call.
func BuildCreate(call OutboundCall) (Request, error) {
	if call.From == "" {
		return Request{}, fmt.Errorf("%w: from is required", ErrInvalidRequest)
	}
	if call.To == "" {
		return Request{}, fmt.Errorf("%w: to is required", ErrInvalidRequest)
	}
	if call.Instructions == nil {
		return Request{}, fmt.Errorf("%w: instructions are required", ErrInvalidRequest)
	}
	instr := call.Instructions.param()
	if instr.Value == "" {
		return Request{}, fmt.Errorf("%w: %s is empty", ErrInvalidRequest, instr.Key)
	}

	return Request{
		Method: http.MethodPost,
		Path:   resourcePath,
		Params: []Param{
			{Key: "To", Value: call.To},
			{Key: "From", Value: call.From},
			instr,
		},
	}, nil
}

// BuildLookup builds the request that fetches the call identified by sid.
func BuildLookup(sid string) (Request, error) {
	if strings.TrimSpace(sid) == "" {
		return Request{}, fmt.Errorf("%w: sid is required", ErrInvalidRequest)
	}
	return Request{
		Method: http.MethodGet,
		Path:   resourcePath + "/" + url.PathEscape(sid),
	}, nil
}
