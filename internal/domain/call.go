package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/callbridge/pkg/calls"
)

// ObservationKind records how a call snapshot was obtained.
type ObservationKind string

const (
	ObservationCreated  ObservationKind = "created"
	ObservationObserved ObservationKind = "observed"
)

// Snapshot is one observation of a call as reported by the provider.
type Snapshot struct {
	ID         uuid.UUID
	SID        string
	From       string
	To         string
	Status     calls.Status
	Kind       ObservationKind
	Provider   string
	ObservedAt time.Time
}

// NewSnapshot stamps call with a fresh id and observation time.
func NewSnapshot(call calls.Call, kind ObservationKind, provider string, at time.Time) Snapshot {
	return Snapshot{
		ID:         uuid.New(),
		SID:        call.SID,
		From:       call.From,
		To:         call.To,
		Status:     call.Status,
		Kind:       kind,
		Provider:   provider,
		ObservedAt: at.UTC(),
	}
}

// Call returns the provider record carried by the snapshot.
func (s Snapshot) Call() calls.Call {
	return calls.Call{From: s.From, To: s.To, SID: s.SID, Status: s.Status}
}

// CallEntry is the registry view of a call: the latest observed status plus
// bookkeeping about when it was seen.
type CallEntry struct {
	SID          string
	From         string
	To           string
	LastStatus   calls.Status
	Provider     string
	Observations int64
	FirstSeenAt  time.Time
	LastSeenAt   time.Time
}
