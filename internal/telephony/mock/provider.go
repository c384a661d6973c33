package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/callbridge/internal/telephony"
	"github.com/acme/callbridge/pkg/calls"
	apperrors "github.com/acme/callbridge/pkg/errors"
)

var progression = map[calls.Status]calls.Status{
	calls.StatusQueued:  calls.StatusRinging,
	calls.StatusRinging: calls.StatusInProgress,
}

var failureOutcomes = []calls.Status{calls.StatusBusy, calls.StatusNoAnswer, calls.StatusFailed}

// Provider simulates the provider's Calls resource in memory. Each fetch moves a
// call one step along queued, ringing, in-progress and then into a terminal status.
type Provider struct {
	successRate float64

	mu    sync.Mutex
	rng   *rand.Rand
	calls map[string]calls.Call
}

var _ telephony.Provider = (*Provider)(nil)

// NewProvider constructs a mock provider seeded from seed.
func NewProvider(seed int64) *Provider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Provider{
		successRate: 0.8,
		rng:         rand.New(rand.NewSource(seed)),
		calls:       make(map[string]calls.Call),
	}
}

func (p *Provider) Name() string { return "mock" }

// PlaceCall records a queued call under a synthetic SID.
func (p *Provider) PlaceCall(ctx context.Context, call calls.OutboundCall) (calls.Call, error) {
	if err := ctx.Err(); err != nil {
		return calls.Call{}, err
	}
	if _, err := calls.BuildCreate(call); err != nil {
		return calls.Call{}, err
	}

	record := calls.Call{
		From:   call.From,
		To:     call.To,
		SID:    "CA" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Status: calls.StatusQueued,
	}

	p.mu.Lock()
	p.calls[record.SID] = record
	p.mu.Unlock()
	return record, nil
}

// FetchCall advances and returns the call identified by sid.
func (p *Provider) FetchCall(ctx context.Context, sid string) (calls.Call, error) {
	if err := ctx.Err(); err != nil {
		return calls.Call{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	record, ok := p.calls[sid]
	if !ok {
		return calls.Call{}, fmt.Errorf("mock provider: call %s: %w", sid, apperrors.ErrNotFound)
	}
	if next, ok := progression[record.Status]; ok {
		record.Status = next
	} else if record.Status == calls.StatusInProgress {
		record.Status = p.outcome()
	}
	p.calls[sid] = record
	return record, nil
}

func (p *Provider) outcome() calls.Status {
	if p.rng.Float64() <= p.successRate {
		return calls.StatusCompleted
	}
	return failureOutcomes[p.rng.Intn(len(failureOutcomes))]
}
