package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowHonorsBurstPerKey(t *testing.T) {
	l := New(0.001, 2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Fatalf("third event should be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("keys must not share a bucket")
	}
}

func TestWaitStopsOnCancel(t *testing.T) {
	l := New(0.001, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "k"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if err := l.Wait(ctx, "k"); err == nil {
		t.Fatalf("expected the second wait to fail")
	}
}

func TestZeroRateIsUnlimited(t *testing.T) {
	l := New(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("k") {
			t.Fatalf("event %d limited", i)
		}
	}
}
