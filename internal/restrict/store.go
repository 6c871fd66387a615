// Package restrict provides temporary posting restrictions backed by Redis.
// Restriction records are stored as simple key-value pairs with TTL-based
// expiry:
//
//	Key:   restrict:<user_id>
//	Value: <reason>
//	TTL:   restriction duration
package restrict

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// RestrictPrefix is the Redis key prefix for restriction records.
	RestrictPrefix = "restrict:"

	// OffensesPrefix is the Redis key prefix for offense counters used by
	// the escalating restriction system.
	OffensesPrefix = "offenses:"

	// Escalating restriction durations.
	Restrict15Min  = 15 * time.Minute // 1st offense
	Restrict1Hour  = 1 * time.Hour    // 2nd offense
	Restrict24Hour = 24 * time.Hour   // 3rd+ offense

	// OffensesTTL is how long the offense counter lives in Redis. After 24h
	// without new offenses the counter resets to zero.
	OffensesTTL = 24 * time.Hour

	// AutoRestrictThreshold is the number of flagged messages within
	// OffensesTTL that triggers an automatic restriction.
	AutoRestrictThreshold = 3
)

// Store manages restriction records in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a new restriction store using the provided Redis client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// IsRestricted checks if a user is currently restricted.
// Returns (restricted, remainingSeconds, reason, error).
// If the user is not restricted, restricted is false and the other return
// values are zero/empty. Redis errors are returned so callers can decide how
// to handle them (the recommended policy is fail-open).
func (s *Store) IsRestricted(ctx context.Context, userID string) (bool, int, string, error) {
	key := RestrictPrefix + userID

	reason, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		// We know the restriction exists but can't read the TTL. Report
		// restricted with 0 remaining rather than swallowing it.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}

	return true, remaining, reason, nil
}

// Restrict places a restriction on a user with the given duration and reason.
// The restriction automatically expires after the specified duration.
func (s *Store) Restrict(ctx context.Context, userID string, duration time.Duration, reason string) error {
	key := RestrictPrefix + userID
	return s.client.Set(ctx, key, reason, duration).Err()
}

// Lift removes a restriction from a user immediately.
func (s *Store) Lift(ctx context.Context, userID string) error {
	key := RestrictPrefix + userID
	return s.client.Del(ctx, key).Err()
}

// escalationDuration returns the restriction duration for a given offense count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Restrict15Min
	case offenseCount == 2:
		return Restrict1Hour
	default:
		return Restrict24Hour
	}
}

// OffenseCount returns the current offense counter for a user. Returns 0 if
// the key does not exist (no offenses recorded or counter expired).
func (s *Store) OffenseCount(ctx context.Context, userID string) (int, error) {
	key := OffensesPrefix + userID
	val, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Escalate increments the offense counter for a user and applies a
// restriction whose duration escalates with the number of offenses:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// The offense counter has a 24h TTL set on first increment, so counters
// naturally expire if there is no new activity.
//
// Returns the restriction duration that was applied.
func (s *Store) Escalate(ctx context.Context, userID string, reason string) (time.Duration, error) {
	key := OffensesPrefix + userID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("restrict: escalate incr: %w", err)
	}

	// Set TTL only on first increment so the window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffensesTTL).Err(); err != nil {
			return 0, fmt.Errorf("restrict: escalate expire: %w", err)
		}
	}

	duration := escalationDuration(int(count))
	if err := s.Restrict(ctx, userID, duration, reason); err != nil {
		return 0, fmt.Errorf("restrict: escalate restrict: %w", err)
	}

	return duration, nil
}

// RecordAndCheck increments the offense counter for a user and checks
// whether the auto-restrict threshold (3 flagged messages in 24h) has been
// reached.
//
// If the threshold is met or exceeded, a restriction with escalating
// duration is applied. Returns (restricted, duration, error).
func (s *Store) RecordAndCheck(ctx context.Context, userID string) (bool, time.Duration, error) {
	key := OffensesPrefix + userID

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("restrict: record incr: %w", err)
	}

	// Set TTL only on first increment so the 24h window doesn't slide.
	if count == 1 {
		if err := s.client.Expire(ctx, key, OffensesTTL).Err(); err != nil {
			return false, 0, fmt.Errorf("restrict: record expire: %w", err)
		}
	}

	if count >= AutoRestrictThreshold {
		duration := escalationDuration(int(count))
		if err := s.Restrict(ctx, userID, duration, "repeated_abuse"); err != nil {
			return false, 0, fmt.Errorf("restrict: record restrict: %w", err)
		}
		return true, duration, nil
	}

	return false, 0, nil
}
