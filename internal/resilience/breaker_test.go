// Copyright 2025 James Ross
// Copyright 2025 James Ross
package resilience

import (
	"testing"
	"time"
)

func TestBreakerOpensOnFailureRate(t *testing.T) {
	cb := New(time.Minute, 50*time.Millisecond, 0.5, 4)
	for i := 0; i < 3; i++ {
		cb.Record(false)
	}
	cb.Record(true)
	if cb.State() != Open {
		t.Fatalf("expected Open after 3/4 failures, got %v", cb.State())
	}
	if cb.Allow() {
		t.Fatalf("expected Allow() to be false while Open")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	cb := New(time.Minute, 10*time.Millisecond, 0.5, 2)
	cb.Record(false)
	cb.Record(false)
	if cb.State() != Open {
		t.Fatalf("expected Open, got %v", cb.State())
	}
	time.Sleep(20 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("expected a single probe to be allowed after cooldown")
	}
	if cb.Allow() {
		t.Fatalf("expected a second concurrent probe to be rejected")
	}
	cb.Record(true)
	if cb.State() != Closed {
		t.Fatalf("expected Closed after successful probe, got %v", cb.State())
	}
}
