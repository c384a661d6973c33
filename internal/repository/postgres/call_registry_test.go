package postgres

import (
	"testing"
	"time"

	"github.com/acme/callbridge/pkg/calls"
)

func TestCallRecordToDomain(t *testing.T) {
	seen := time.Date(2024, 1, 1, 10, 0, 0, 0, time.FixedZone("EST", -5*3600))
	record := callRecord{
		SID:          "CA1",
		From:         "+1",
		To:           "+2",
		LastStatus:   "in-progress",
		Provider:     "twilio",
		Observations: 3,
		FirstSeenAt:  seen,
		LastSeenAt:   seen.Add(time.Minute),
	}

	entry, err := record.toDomain()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.LastStatus != calls.StatusInProgress {
		t.Fatalf("unexpected status %s", entry.LastStatus)
	}
	if entry.FirstSeenAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps")
	}
	if entry.Observations != 3 || entry.SID != "CA1" {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestCallRecordToDomainRejectsUnknownStatus(t *testing.T) {
	if _, err := (callRecord{SID: "CA1", LastStatus: "in_progress"}).toDomain(); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
