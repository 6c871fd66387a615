// Package ratelimit provides per-user message throttling for the analysis
// pipeline. Two implementations share the same sliding-window policy: a
// Redis-backed limiter using the INCR + EXPIRE algorithm for multi-instance
// deployments, and an in-process MemoryLimiter for single-instance use and
// tests.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:analyze:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// Standard rate limiting rules.
var (
	// RuleAnalyze allows 50 analysis requests per 5 minutes per user.
	RuleAnalyze = Rule{Key: "rl:analyze:", Limit: 50, Window: 5 * time.Minute}

	// RuleAlert allows 10 alert publications per minute per user, damping
	// alert floods from a single abusive session.
	RuleAlert = Rule{Key: "rl:alert:", Limit: 10, Window: 1 * time.Minute}
)

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
}

// NewLimiter creates a Limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks whether the given identifier is within the rate limit defined by
// rule. It increments the counter in Redis and sets the expiry on first access.
//
// Returns true if the request is allowed, false if rate limited. On Redis
// errors the method fails open (returns true) so that a Redis outage does not
// block legitimate traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, rule Rule) (bool, error) {
	key := rule.Key + identifier

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", key, err)
		return true, err
	}

	// On the first increment, set the expiry to define the window boundary.
	if count == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", key, err)
			// The key exists but has no TTL — it will persist. Best effort: try
			// to delete it so it doesn't block the identifier forever.
			l.client.Del(ctx, key)
			return true, err
		}
	}

	if int(count) > rule.Limit {
		return false, nil
	}

	return true, nil
}

// Remaining returns the number of requests the identifier has left in the
// current window for the given rule. Returns the full limit if the key does not
// exist yet. On Redis errors it returns the full limit (fail open).
func (l *Limiter) Remaining(ctx context.Context, identifier string, rule Rule) (int, error) {
	key := rule.Key + identifier

	count, err := l.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return rule.Limit, nil
	}
	if err != nil {
		log.Printf("[ratelimit] redis GET error key=%s: %v (failing open)", key, err)
		return rule.Limit, err
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Bound fixes a Limiter to a single rule so it satisfies single-method
// limiter contracts.
type Bound struct {
	limiter *Limiter
	rule    Rule
}

// Bind returns the limiter restricted to the given rule.
func (l *Limiter) Bind(rule Rule) *Bound {
	return &Bound{limiter: l, rule: rule}
}

// Allow checks the bound rule for the identifier.
func (b *Bound) Allow(ctx context.Context, identifier string) (bool, error) {
	return b.limiter.Allow(ctx, identifier, b.rule)
}

// MemoryLimiter is an in-process sliding-window limiter. Unlike the Redis
// INCR window, it tracks individual hit timestamps, so the window slides
// continuously rather than resetting on expiry.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time // stubbed in tests
}

// NewMemoryLimiter creates a limiter allowing limit hits per window per key.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records a hit for the identifier and reports whether it is within the
// limit. The error return is always nil; it exists to match the Redis-backed
// limiter's contract.
func (m *MemoryLimiter) Allow(_ context.Context, identifier string) (bool, error) {
	now := m.now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := prune(m.hits[identifier], cutoff)
	if len(recent) >= m.limit {
		m.hits[identifier] = recent
		return false, nil
	}

	m.hits[identifier] = append(recent, now)
	return true, nil
}

// Remaining returns the number of hits the identifier has left in the current
// window.
func (m *MemoryLimiter) Remaining(identifier string) int {
	cutoff := m.now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	recent := prune(m.hits[identifier], cutoff)
	m.hits[identifier] = recent

	remaining := m.limit - len(recent)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Sweep drops identifiers with no hits inside the window, bounding memory on
// long-running processes. Returns the number of identifiers removed.
func (m *MemoryLimiter) Sweep() int {
	cutoff := m.now().Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, stamps := range m.hits {
		if len(prune(stamps, cutoff)) == 0 {
			delete(m.hits, id)
			removed++
		}
	}
	return removed
}

// prune drops timestamps at or before the cutoff. Timestamps are appended in
// order, so only the leading run is scanned.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
