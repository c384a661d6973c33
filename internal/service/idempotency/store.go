package idempotency

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// pending marks a key whose call is being placed right now.
const pending = "\x00pending"

var claimScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return {1, ''}
end
return {0, current}
`)

var abandonScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Claim is the outcome of claiming an idempotency key.
type Claim struct {
	// Claimed is true when the caller now owns the key and must place the call.
	Claimed bool
	// SID is the call already placed under the key, if any.
	SID string
	// InFlight is true when another request holds the key and has not finished.
	InFlight bool
}

// Store maps client idempotency keys to call SIDs in Redis. A claim expires
// after lockTTL so a crashed or failed request cannot hold its key for the
// full retention period.
type Store struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
	prefix  string
}

// NewStore constructs an idempotency store.
func NewStore(client *redis.Client, ttl, lockTTL time.Duration, prefix string) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if lockTTL <= 0 || lockTTL > ttl {
		lockTTL = min(30*time.Second, ttl)
	}
	return &Store{client: client, ttl: ttl, lockTTL: lockTTL, prefix: prefix}
}

// Claim atomically reserves key or reports who already holds it.
func (s *Store) Claim(ctx context.Context, key string) (Claim, error) {
	res, err := claimScript.Run(ctx, s.client, []string{s.key(key)}, pending, s.lockTTL.Milliseconds()).Slice()
	if err != nil {
		return Claim{}, fmt.Errorf("idempotency claim: %w", err)
	}
	return parseClaim(res)
}

// Complete stores sid under a key previously claimed.
func (s *Store) Complete(ctx context.Context, key, sid string) error {
	if err := s.client.Set(ctx, s.key(key), sid, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Abandon releases a claimed key so the caller may retry. Completed keys are kept.
func (s *Store) Abandon(ctx context.Context, key string) error {
	if _, err := abandonScript.Run(ctx, s.client, []string{s.key(key)}, pending).Int(); err != nil {
		return fmt.Errorf("idempotency abandon: %w", err)
	}
	return nil
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func parseClaim(res []any) (Claim, error) {
	if len(res) != 2 {
		return Claim{}, fmt.Errorf("idempotency claim: unexpected reply %v", res)
	}
	flag, ok := res[0].(int64)
	if !ok {
		return Claim{}, fmt.Errorf("idempotency claim: unexpected flag %T", res[0])
	}
	if flag == 1 {
		return Claim{Claimed: true}, nil
	}
	current, _ := res[1].(string)
	if current == pending {
		return Claim{InFlight: true}, nil
	}
	return Claim{SID: current}, nil
}
