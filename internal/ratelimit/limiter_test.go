package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newTestLimiter(limit int, window time.Duration) (*MemoryLimiter, *time.Time) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemoryLimiter(limit, window)
	m.now = func() time.Time { return now }
	return m, &now
}

func TestMemoryLimiter_AllowsUpToLimit(t *testing.T) {
	m, _ := newTestLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("hit %d rejected, want allowed", i+1)
		}
	}

	ok, _ := m.Allow(ctx, "alice")
	if ok {
		t.Error("4th hit allowed, want rejected")
	}
}

func TestMemoryLimiter_KeysIndependent(t *testing.T) {
	m, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()

	if ok, _ := m.Allow(ctx, "alice"); !ok {
		t.Fatal("alice rejected")
	}
	if ok, _ := m.Allow(ctx, "bob"); !ok {
		t.Error("bob rejected, want limits tracked per key")
	}
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	m, now := newTestLimiter(2, time.Minute)
	ctx := context.Background()

	m.Allow(ctx, "alice")
	m.Allow(ctx, "alice")
	if ok, _ := m.Allow(ctx, "alice"); ok {
		t.Fatal("3rd hit allowed inside window")
	}

	*now = now.Add(61 * time.Second)
	if ok, _ := m.Allow(ctx, "alice"); !ok {
		t.Error("hit rejected after window expired")
	}
}

func TestMemoryLimiter_Remaining(t *testing.T) {
	m, _ := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	if got := m.Remaining("alice"); got != 5 {
		t.Errorf("Remaining = %d, want 5 before any hits", got)
	}

	m.Allow(ctx, "alice")
	m.Allow(ctx, "alice")
	if got := m.Remaining("alice"); got != 3 {
		t.Errorf("Remaining = %d, want 3", got)
	}
}

func TestMemoryLimiter_Sweep(t *testing.T) {
	m, now := newTestLimiter(5, time.Minute)
	ctx := context.Background()

	m.Allow(ctx, "alice")
	m.Allow(ctx, "bob")

	*now = now.Add(2 * time.Minute)
	m.Allow(ctx, "carol")

	if removed := m.Sweep(); removed != 2 {
		t.Errorf("Sweep removed %d, want 2 stale identifiers", removed)
	}
	if got := m.Remaining("carol"); got != 4 {
		t.Errorf("Remaining(carol) = %d after sweep, want 4", got)
	}
}

func TestRules(t *testing.T) {
	if RuleAnalyze.Limit != 50 || RuleAnalyze.Window != 5*time.Minute {
		t.Errorf("RuleAnalyze = %+v, want 50 per 5m", RuleAnalyze)
	}
}
