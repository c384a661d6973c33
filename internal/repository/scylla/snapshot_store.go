package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"

	"github.com/acme/callbridge/internal/domain"
	"github.com/acme/callbridge/pkg/calls"
)

// SnapshotStore persists call observations in Scylla, partitioned by SID and
// clustered newest first.
type SnapshotStore struct {
	session *gocql.Session
}

// NewSnapshotStore creates a new snapshot store.
func NewSnapshotStore(session *gocql.Session) *SnapshotStore {
	return &SnapshotStore{session: session}
}

// Append inserts one observation.
func (s *SnapshotStore) Append(ctx context.Context, snapshot domain.Snapshot) error {
	if err := s.session.Query(`INSERT INTO call_snapshots (sid, observed_at, event_id, from_number, to_number, status, kind, provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snapshot.SID, snapshot.ObservedAt, snapshot.ID.String(), snapshot.From, snapshot.To,
		snapshot.Status.String(), string(snapshot.Kind), snapshot.Provider,
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("snapshot store: insert: %w", err)
	}
	return nil
}

// List pages through the observations of sid, newest first.
func (s *SnapshotStore) List(ctx context.Context, sid string, limit int, pagingState []byte) ([]domain.Snapshot, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT observed_at, event_id, from_number, to_number, status, kind, provider
		FROM call_snapshots WHERE sid = ?`, sid).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	snapshots := make([]domain.Snapshot, 0, limit)

	var (
		observedAt time.Time
		eventID    string
		from       string
		to         string
		status     string
		kind       string
		provider   string
	)

	for len(snapshots) < limit && iter.Scan(&observedAt, &eventID, &from, &to, &status, &kind, &provider) {
		id, err := uuid.Parse(eventID)
		if err != nil {
			continue
		}
		parsed, ok := calls.ParseStatus(status)
		if !ok {
			continue
		}
		snapshots = append(snapshots, domain.Snapshot{
			ID:         id,
			SID:        sid,
			From:       from,
			To:         to,
			Status:     parsed,
			Kind:       domain.ObservationKind(kind),
			Provider:   provider,
			ObservedAt: observedAt.UTC(),
		})
	}

	nextState := iter.PageState()
	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("snapshot store: iter close: %w", err)
	}

	return snapshots, nextState, nil
}
