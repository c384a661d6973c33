// Package calls is a typed binding for the provider's Calls resource. It builds the
// requests that place or fetch a call and decodes the provider's flattened response
// into a Call value. Network I/O is delegated to a Transport.
package calls

import "fmt"

// Status is the provider-side lifecycle state of a call.
type Status int

const (
	StatusQueued Status = iota + 1
	StatusRinging
	StatusInProgress
	StatusCanceled
	StatusCompleted
	StatusFailed
	StatusBusy
	StatusNoAnswer
)

var statusTokens = map[Status]string{
	StatusQueued:     "queued",
	StatusRinging:    "ringing",
	StatusInProgress: "in-progress",
	StatusCanceled:   "canceled",
	StatusCompleted:  "completed",
	StatusFailed:     "failed",
	StatusBusy:       "busy",
	StatusNoAnswer:   "no-answer",
}

var statusByToken = func() map[string]Status {
	m := make(map[string]Status, len(statusTokens))
	for s, tok := range statusTokens {
		m[tok] = s
	}
	return m
}()

// Statuses lists every known status in declaration order.
func Statuses() []Status {
	return []Status{
		StatusQueued, StatusRinging, StatusInProgress, StatusCanceled,
		StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer,
	}
}

// ParseStatus maps a wire token to a Status. Matching is case-sensitive.
func ParseStatus(token string) (Status, bool) {
	s, ok := statusByToken[token]
	return s, ok
}

// String returns the wire token.
func (s Status) String() string {
	if tok, ok := statusTokens[s]; ok {
		return tok
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether the provider will not move the call out of this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCanceled, StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer:
		return true
	}
	return false
}

// MarshalText encodes the status as its wire token.
func (s Status) MarshalText() ([]byte, error) {
	tok, ok := statusTokens[s]
	if !ok {
		return nil, fmt.Errorf("calls: cannot marshal %s", s)
	}
	return []byte(tok), nil
}

// UnmarshalText accepts only the eight wire tokens.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, ok := ParseStatus(string(b))
	if !ok {
		return &DecodeError{Kind: UnrecognizedStatus, Field: FieldStatus, Value: string(b)}
	}
	*s = parsed
	return nil
}

// Call is a snapshot of a call resource as reported by the provider.
type Call struct {
	From   string `json:"from"`
	To     string `json:"to"`
	SID    string `json:"sid"`
	Status Status `json:"status"`
}
