package calls

import (
	"errors"
	"fmt"
)

// Keys the decoder reads from a flattened response.
const (
	FieldFrom   = "From"
	FieldTo     = "To"
	FieldSID    = "CallSid"
	FieldStatus = "CallStatus"
)

// ErrParse matches every DecodeError via errors.Is.
var ErrParse = errors.New("calls: parse response")

// DecodeErrorKind distinguishes why decoding failed.
type DecodeErrorKind int

const (
	MissingField DecodeErrorKind = iota + 1
	UnrecognizedStatus
)

func (k DecodeErrorKind) String() string {
	switch k {
	case MissingField:
		return "missing field"
	case UnrecognizedStatus:
		return "unrecognized status"
	default:
		return "unknown"
	}
}

// DecodeError reports a response that does not describe a call.
type DecodeError struct {
	Kind  DecodeErrorKind
	Field string
	Value string
}

func (e *DecodeError) Error() string {
	if e.Kind == UnrecognizedStatus && e.Value != "" {
		return fmt.Sprintf("calls: %s %q in %s", e.Kind, e.Value, e.Field)
	}
	return fmt.Sprintf("calls: %s %s", e.Kind, e.Field)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrParse
}

// Decode converts a flattened provider response into a Call. It fails when From, To
// or CallSid is absent, or when CallStatus is absent or not a known token. Other keys
// are ignored and fields is never modified.
func Decode(fields map[string]string) (Call, error) {
	from, ok := fields[FieldFrom]
	if !ok {
		return Call{}, &DecodeError{Kind: MissingField, Field: FieldFrom}
	}
	to, ok := fields[FieldTo]
	if !ok {
		return Call{}, &DecodeError{Kind: MissingField, Field: FieldTo}
	}
	sid, ok := fields[FieldSID]
	if !ok || sid == "" {
		return Call{}, &DecodeError{Kind: MissingField, Field: FieldSID}
	}

	token, ok := fields[FieldStatus]
	if !ok {
		return Call{}, &DecodeError{Kind: UnrecognizedStatus, Field: FieldStatus}
	}
	status, ok := ParseStatus(token)
	if !ok {
		return Call{}, &DecodeError{Kind: UnrecognizedStatus, Field: FieldStatus, Value: token}
	}

	return Call{From: from, To: to, SID: sid, Status: status}, nil
}
