package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/acme/callbridge/internal/domain"
	"github.com/acme/callbridge/pkg/calls"
)

// StatusMessage represents one observation of a call's provider status.
type StatusMessage struct {
	EventID    uuid.UUID              `json:"event_id"`
	SID        string                 `json:"sid"`
	From       string                 `json:"from"`
	To         string                 `json:"to"`
	Status     calls.Status           `json:"status"`
	Kind       domain.ObservationKind `json:"kind"`
	Provider   string                 `json:"provider"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// NewStatusMessage converts a snapshot into its wire form.
func NewStatusMessage(s domain.Snapshot) StatusMessage {
	return StatusMessage{
		EventID:    s.ID,
		SID:        s.SID,
		From:       s.From,
		To:         s.To,
		Status:     s.Status,
		Kind:       s.Kind,
		Provider:   s.Provider,
		OccurredAt: s.ObservedAt,
	}
}

// Snapshot converts the message back into a domain snapshot.
func (m StatusMessage) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		ID:         m.EventID,
		SID:        m.SID,
		From:       m.From,
		To:         m.To,
		Status:     m.Status,
		Kind:       m.Kind,
		Provider:   m.Provider,
		ObservedAt: m.OccurredAt,
	}
}
