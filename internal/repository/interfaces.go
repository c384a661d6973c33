package repository

import (
	"context"

	"github.com/acme/callbridge/internal/domain"
	apperrors "github.com/acme/callbridge/pkg/errors"
)

var (
	// ErrNotFound indicates the entity was not located.
	ErrNotFound = apperrors.ErrNotFound
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = apperrors.ErrConflict
)

// CallRegistry keeps the latest known state of every call the service has seen.
type CallRegistry interface {
	Record(ctx context.Context, snapshot domain.Snapshot) error
	Get(ctx context.Context, sid string) (*domain.CallEntry, error)
	List(ctx context.Context, afterSID string, limit int) ([]domain.CallEntry, error)
}

// SnapshotStore keeps the append-only observation history of each call.
type SnapshotStore interface {
	Append(ctx context.Context, snapshot domain.Snapshot) error
	List(ctx context.Context, sid string, limit int, pagingState []byte) ([]domain.Snapshot, []byte, error)
}
