package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/tapfinity/tapfinity-api/internal/pkg/ratelimit"
)

func TestMemoryLimiterAllowsUpToLimit(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(5, 5*time.Second)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if !l.Allow(ctx, "1.2.3.4") {
			t.Fatalf("request %d within limit was denied", i+1)
		}
	}
	if l.Allow(ctx, "1.2.3.4") {
		t.Fatal("request over limit was allowed")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(1, 5*time.Second)
	defer l.Close()

	ctx := context.Background()
	if !l.Allow(ctx, "a") {
		t.Fatal("first request for key a denied")
	}
	if l.Allow(ctx, "a") {
		t.Fatal("second request for key a allowed")
	}
	if !l.Allow(ctx, "b") {
		t.Fatal("first request for key b denied")
	}
}

func TestMemoryLimiterResetsAfterWindow(t *testing.T) {
	l := ratelimit.NewMemoryLimiter(2, 50*time.Millisecond)
	defer l.Close()

	ctx := context.Background()
	l.Allow(ctx, "ip")
	l.Allow(ctx, "ip")
	if l.Allow(ctx, "ip") {
		t.Fatal("over-limit request allowed before window elapsed")
	}

	time.Sleep(60 * time.Millisecond)

	if !l.Allow(ctx, "ip") {
		t.Fatal("request after window elapsed was denied")
	}
}
