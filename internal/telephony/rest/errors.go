package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/acme/callbridge/pkg/errors"
)

// APIError is a non-2xx answer from the provider.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
	MoreInfo   string
}

func (e *APIError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("rest transport: provider error %d (http %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("rest transport: http %d: %s", e.StatusCode, e.Message)
}

// Unwrap classifies the error against the application sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return apperrors.ErrUpstream
	case e.StatusCode >= 500:
		return apperrors.ErrUnavailable
	default:
		return apperrors.ErrValidation
	}
}

type errorBody struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
}

func newAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
		apiErr.MoreInfo = body.MoreInfo
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
