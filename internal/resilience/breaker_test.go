package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var (
	errTest     = errors.New("service unavailable")
	errNotFound = errors.New("not found")
)

func trip(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(func() error { return errTest })
	}
}

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker("test", 3, time.Second)
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("test", 3, time.Second)
	trip(b, 3)

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %s, want open", b.State())
	}
}

func TestHalfOpenTransitions(t *testing.T) {
	tests := []struct {
		name      string
		probeErr  error
		wantState State
	}{
		{"probe success closes", nil, StateClosed},
		{"probe failure reopens", errTest, StateOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			b := NewBreaker("test", 2, time.Second)
			b.now = func() time.Time { return now }

			trip(b, 2)
			if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
				t.Fatalf("expected ErrCircuitOpen, got %v", err)
			}

			now = now.Add(2 * time.Second)
			if b.State() != StateHalfOpen {
				t.Fatalf("state = %s, want half-open", b.State())
			}

			called := false
			err := b.Execute(func() error { called = true; return tt.probeErr })
			if !errors.Is(err, tt.probeErr) {
				t.Fatalf("probe err = %v, want %v", err, tt.probeErr)
			}
			if !called {
				t.Fatal("expected probe to run")
			}
			if got := b.State(); got != tt.wantState {
				t.Errorf("state = %s, want %s", got, tt.wantState)
			}
		})
	}
}

func TestHalfOpenAllowsSingleProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("test", 1, time.Second)
	b.now = func() time.Time { return now }
	trip(b, 1)
	now = now.Add(2 * time.Second)

	inProbe := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Execute(func() error {
			close(inProbe)
			<-release
			return nil
		})
	}()
	<-inProbe

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second call during probe: err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	wg.Wait()

	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", 3, time.Second)
	trip(b, 2)
	_ = b.Execute(func() error { return nil })
	trip(b, 2)

	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestFailurePredicate(t *testing.T) {
	b := NewBreaker("test", 1, time.Second, WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, errNotFound)
	}))

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errNotFound }); !errors.Is(err, errNotFound) {
			t.Fatalf("err = %v, want errNotFound", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed after ignored errors", b.State())
	}
}

func TestCancelledCallNotCounted(t *testing.T) {
	b := NewBreaker("test", 1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.ExecuteContext(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %s, want closed", b.State())
	}
}
