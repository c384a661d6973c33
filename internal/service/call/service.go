package call

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/acme/callbridge/internal/domain"
	"github.com/acme/callbridge/internal/queue"
	"github.com/acme/callbridge/internal/repository"
	"github.com/acme/callbridge/internal/service/common"
	"github.com/acme/callbridge/internal/service/idempotency"
	"github.com/acme/callbridge/internal/telephony"
	"github.com/acme/callbridge/pkg/calls"
	apperrors "github.com/acme/callbridge/pkg/errors"
	"github.com/acme/callbridge/pkg/logger"
)

// Publisher pushes call observations onto the status stream.
type Publisher interface {
	PublishStatus(ctx context.Context, msg queue.StatusMessage) error
}

// IdempotencyGuard remembers which call was placed for a client key.
type IdempotencyGuard interface {
	Claim(ctx context.Context, key string) (idempotency.Claim, error)
	Complete(ctx context.Context, key, sid string) error
	Abandon(ctx context.Context, key string) error
}

// Service coordinates call placement and lookup against the provider and
// exposes what the status worker has projected.
type Service struct {
	provider  telephony.Provider
	guard     IdempotencyGuard
	publisher Publisher
	registry  repository.CallRegistry
	snapshots repository.SnapshotStore
	logger    *logger.Logger
	now       func() time.Time

	completeBackoff time.Duration
}

const completeAttempts = 3

// NewService builds the call service.
func NewService(
	provider telephony.Provider,
	guard IdempotencyGuard,
	publisher Publisher,
	registry repository.CallRegistry,
	snapshots repository.SnapshotStore,
	lg *logger.Logger,
) *Service {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Service{
		provider:  provider,
		guard:     guard,
		publisher: publisher,
		registry:  registry,
		snapshots: snapshots,
		logger:    lg,
		now:       time.Now,

		completeBackoff: 100 * time.Millisecond,
	}
}

// PlaceInput encapsulates the arguments for placing a call.
type PlaceInput struct {
	From           string
	To             string
	URL            string
	TwiML          string
	IdempotencyKey string
}

// PlaceResult is the call placed, or the call found under a reused idempotency key.
type PlaceResult struct {
	Call     calls.Call
	Replayed bool
}

func (in PlaceInput) outbound() (calls.OutboundCall, error) {
	from := strings.TrimSpace(in.From)
	to := strings.TrimSpace(in.To)
	if from == "" || to == "" {
		return calls.OutboundCall{}, fmt.Errorf("%w: from and to are required", apperrors.ErrValidation)
	}

	hasURL := strings.TrimSpace(in.URL) != ""
	hasTwiML := strings.TrimSpace(in.TwiML) != ""
	switch {
	case hasURL && hasTwiML:
		return calls.OutboundCall{}, fmt.Errorf("%w: url and twiml are mutually exclusive", apperrors.ErrValidation)
	case hasURL:
		return calls.NewOutboundCall(from, to, strings.TrimSpace(in.URL)), nil
	case hasTwiML:
		return calls.NewOutboundCallWithTwiML(from, to, in.TwiML), nil
	default:
		return calls.OutboundCall{}, fmt.Errorf("%w: one of url or twiml is required", apperrors.ErrValidation)
	}
}

// Place dials a new call. When the idempotency key already maps to a call, that
// call is fetched instead and no second call is placed.
func (s *Service) Place(ctx context.Context, input PlaceInput) (*PlaceResult, error) {
	outbound, err := input.outbound()
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	if key != "" {
		claim, err := s.guard.Claim(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: call service: claim idempotency key: %v", apperrors.ErrUnavailable, err)
		}
		switch {
		case claim.InFlight:
			return nil, fmt.Errorf("%w: call service: request with idempotency key %q is still in progress", apperrors.ErrConflict, key)
		case claim.SID != "":
			call, err := s.observe(ctx, claim.SID)
			if err != nil {
				return nil, err
			}
			return &PlaceResult{Call: call, Replayed: true}, nil
		}
	}

	call, err := s.provider.PlaceCall(ctx, outbound)
	if err != nil {
		if key != "" {
			if abandonErr := s.guard.Abandon(context.WithoutCancel(ctx), key); abandonErr != nil {
				s.logger.Warn("call service: release idempotency key", zap.String("key", key), zap.Error(abandonErr))
			}
		}
		return nil, fmt.Errorf("call service: place call: %w", err)
	}

	if key != "" {
		s.complete(ctx, key, call.SID)
	}

	s.publish(ctx, call, domain.ObservationCreated)
	s.logger.WithContext(ctx).Info("call placed",
		zap.String("call_sid", call.SID),
		zap.String("status", call.Status.String()),
		zap.String("provider", s.provider.Name()),
	)
	return &PlaceResult{Call: call}, nil
}

// complete records sid under key. The call is already placed, so failures are
// retried and then logged; the claim lapses after the store's lock TTL.
func (s *Service) complete(ctx context.Context, key, sid string) {
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		if err = s.guard.Complete(ctx, key, sid); err == nil {
			return
		}
		if attempt < completeAttempts {
			time.Sleep(s.completeBackoff * time.Duration(attempt))
		}
	}
	s.logger.Error("call service: remember idempotency key",
		zap.String("key", key),
		zap.String("call_sid", sid),
		zap.Int("attempts", completeAttempts),
		zap.Error(err),
	)
}

// Get fetches the current state of a call from the provider.
func (s *Service) Get(ctx context.Context, sid string) (calls.Call, error) {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return calls.Call{}, fmt.Errorf("%w: call sid is required", apperrors.ErrValidation)
	}
	return s.observe(ctx, sid)
}

func (s *Service) observe(ctx context.Context, sid string) (calls.Call, error) {
	call, err := s.provider.FetchCall(ctx, sid)
	if err != nil {
		return calls.Call{}, fmt.Errorf("call service: fetch call %s: %w", sid, err)
	}
	s.publish(ctx, call, domain.ObservationObserved)
	return call, nil
}

// publish emits the observation. The provider has already acted, so failures are
// logged and swallowed.
func (s *Service) publish(ctx context.Context, call calls.Call, kind domain.ObservationKind) {
	snapshot := domain.NewSnapshot(call, kind, s.provider.Name(), s.now())
	if err := s.publisher.PublishStatus(ctx, queue.NewStatusMessage(snapshot)); err != nil {
		s.logger.WithContext(ctx).Error("call service: publish status",
			zap.String("call_sid", call.SID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// List returns registry entries ordered by first sighting.
func (s *Service) List(ctx context.Context, afterSID string, limit int) ([]domain.CallEntry, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", apperrors.ErrValidation)
	}
	entries, err := s.registry.List(ctx, strings.TrimSpace(afterSID), limit)
	if err != nil {
		return nil, fmt.Errorf("call service: list calls: %w", err)
	}
	return entries, nil
}

// HistoryResult is one page of a call's observations, newest first.
type HistoryResult struct {
	Snapshots     []domain.Snapshot
	NextPageToken string
}

// History pages through the recorded observations of a call.
func (s *Service) History(ctx context.Context, sid string, limit int, pageToken string) (*HistoryResult, error) {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return nil, fmt.Errorf("%w: call sid is required", apperrors.ErrValidation)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", apperrors.ErrValidation)
	}
	state, err := DecodePagingState(pageToken)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid page token", apperrors.ErrValidation)
	}

	snapshots, next, err := s.snapshots.List(ctx, sid, limit, state)
	if err != nil {
		return nil, fmt.Errorf("call service: list snapshots: %w", err)
	}
	return &HistoryResult{Snapshots: snapshots, NextPageToken: EncodePagingState(next)}, nil
}

// EncodePagingState converts the paging state to base64 for API responses.
func EncodePagingState(state []byte) string {
	if len(state) == 0 {
		return ""
	}
	return common.EncodeBase64(state)
}

// DecodePagingState decodes a base64 token to paging state bytes.
func DecodePagingState(token string) ([]byte, error) {
	if token == "" {
		return nil, nil
	}
	return common.DecodeBase64(token)
}
