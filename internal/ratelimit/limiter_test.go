package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterDeniesOverBudget(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(60, time.Minute)

	for i := 0; i < 60; i++ {
		ok, err := l.Allow(ctx, "0xabc")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("request %d rejected inside budget", i+1)
		}
	}

	ok, _ := l.Allow(ctx, "0xabc")
	if ok {
		t.Fatal("61st request within the window should be rejected")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)

	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("first request for key a rejected")
	}
	if ok, _ := l.Allow(ctx, "b"); !ok {
		t.Fatal("key b should have its own budget")
	}
	if ok, _ := l.Allow(ctx, "a"); ok {
		t.Fatal("second request for key a should be rejected")
	}
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1, time.Minute)

	now := time.Now()
	l.now = func() time.Time { return now }

	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("first request rejected")
	}
	if ok, _ := l.Allow(ctx, "a"); ok {
		t.Fatal("over-budget request allowed")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := l.Allow(ctx, "a"); !ok {
		t.Fatal("request after window reset should be allowed")
	}
}
