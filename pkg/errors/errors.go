package errors

import "errors"

// Sentinels for domain errors. Components wrap them with fmt.Errorf("%w: ...")
// and the HTTP layer maps them onto status codes.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrValidation  = errors.New("validation error")
	ErrUnavailable = errors.New("service unavailable")
	// ErrUpstream marks a provider answer the service could not use: rejected
	// credentials or a body it could not read.
	ErrUpstream = errors.New("upstream rejected request")
)
