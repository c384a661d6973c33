package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/acme/callbridge/internal/domain"
	"github.com/acme/callbridge/internal/repository"
	"github.com/acme/callbridge/pkg/calls"
)

const defaultListLimit = 50

// CallRegistry implements repository.CallRegistry using PostgreSQL.
type CallRegistry struct {
	db *sqlx.DB
}

// NewCallRegistry constructs a new registry.
func NewCallRegistry(db *sqlx.DB) *CallRegistry {
	return &CallRegistry{db: db}
}

// Record upserts the call row. The stored status only moves forward in
// observation time, so late deliveries do not overwrite newer snapshots.
func (r *CallRegistry) Record(ctx context.Context, snapshot domain.Snapshot) error {
	q := `INSERT INTO calls (
		sid, from_number, to_number, last_status, provider, observations, first_seen_at, last_seen_at
	) VALUES (
		:sid, :from_number, :to_number, :last_status, :provider, 1, :observed_at, :observed_at
	)
	ON CONFLICT (sid) DO UPDATE SET
		last_status = CASE WHEN EXCLUDED.last_seen_at >= calls.last_seen_at
			THEN EXCLUDED.last_status ELSE calls.last_status END,
		observations = calls.observations + 1,
		first_seen_at = LEAST(calls.first_seen_at, EXCLUDED.first_seen_at),
		last_seen_at = GREATEST(calls.last_seen_at, EXCLUDED.last_seen_at)`

	params := map[string]any{
		"sid":         snapshot.SID,
		"from_number": snapshot.From,
		"to_number":   snapshot.To,
		"last_status": snapshot.Status.String(),
		"provider":    snapshot.Provider,
		"observed_at": snapshot.ObservedAt,
	}

	if _, err := r.db.NamedExecContext(ctx, q, params); err != nil {
		return fmt.Errorf("call registry: upsert: %w", err)
	}
	return nil
}

// Get fetches a registry entry by SID.
func (r *CallRegistry) Get(ctx context.Context, sid string) (*domain.CallEntry, error) {
	q := `SELECT sid, from_number, to_number, last_status, provider, observations, first_seen_at, last_seen_at
	  FROM calls WHERE sid = $1`

	var record callRecord
	if err := r.db.QueryRowxContext(ctx, q, sid).StructScan(&record); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("call registry: get: %w", err)
	}

	entry, err := record.toDomain()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns entries ordered by first sighting, starting after afterSID.
func (r *CallRegistry) List(ctx context.Context, afterSID string, limit int) ([]domain.CallEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}

	q := `SELECT sid, from_number, to_number, last_status, provider, observations, first_seen_at, last_seen_at
	  FROM calls
	  WHERE $1 = '' OR (first_seen_at, sid) > (SELECT first_seen_at, sid FROM calls WHERE sid = $1)
	  ORDER BY first_seen_at, sid
	  LIMIT $2`

	rows, err := r.db.QueryxContext(ctx, q, afterSID, limit)
	if err != nil {
		return nil, fmt.Errorf("call registry: list: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.CallEntry, 0, limit)
	for rows.Next() {
		var record callRecord
		if err := rows.StructScan(&record); err != nil {
			return nil, fmt.Errorf("call registry: scan: %w", err)
		}
		entry, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("call registry: rows: %w", err)
	}
	return entries, nil
}

type callRecord struct {
	SID          string    `db:"sid"`
	From         string    `db:"from_number"`
	To           string    `db:"to_number"`
	LastStatus   string    `db:"last_status"`
	Provider     string    `db:"provider"`
	Observations int64     `db:"observations"`
	FirstSeenAt  time.Time `db:"first_seen_at"`
	LastSeenAt   time.Time `db:"last_seen_at"`
}

func (r callRecord) toDomain() (domain.CallEntry, error) {
	status, ok := calls.ParseStatus(r.LastStatus)
	if !ok {
		return domain.CallEntry{}, fmt.Errorf("call registry: sid %s has unknown status %q", r.SID, r.LastStatus)
	}
	return domain.CallEntry{
		SID:          r.SID,
		From:         r.From,
		To:           r.To,
		LastStatus:   status,
		Provider:     r.Provider,
		Observations: r.Observations,
		FirstSeenAt:  r.FirstSeenAt.UTC(),
		LastSeenAt:   r.LastSeenAt.UTC(),
	}, nil
}
