package httpprobe

import (
	"context"
	"testing"
	"time"
)

func TestStealthScheduler_EnforcesMinimumSpacing(t *testing.T) {
	s := NewStealthScheduler(50*time.Millisecond, false, 0, 0)
	ctx := context.Background()

	start := time.Now()
	if err := s.Reserve(ctx); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := s.Reserve(ctx); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 50*time.Millisecond {
		t.Fatalf("expected at least 50ms between two reservations, got %v", elapsed)
	}
}

func TestStealthScheduler_CancelledContext(t *testing.T) {
	s := NewStealthScheduler(time.Second, false, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Reserve(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestStealthScheduler_SharedAcrossCallers(t *testing.T) {
	s := NewStealthScheduler(30*time.Millisecond, false, 0, 0)
	ctx := context.Background()

	start := time.Now()
	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			s.Reserve(ctx)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
	elapsed := time.Since(start)
	if elapsed < 60*time.Millisecond {
		t.Fatalf("expected global spacing across concurrent callers, got %v", elapsed)
	}
}
