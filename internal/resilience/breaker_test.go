package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("service unavailable")

func TestClosedStateAllowsCalls(t *testing.T) {
	b := NewBreaker("db", 3, time.Second)
	called := false
	if err := b.Execute(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
	if got := b.State(); got != "closed" {
		t.Errorf("State() = %q, want closed", got)
	}
}

func TestOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("llm", 3, time.Second)

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("call %d: expected errTest, got %v", i, err)
		}
	}

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not run while the circuit is open")
	}
	if got := b.State(); got != "open" {
		t.Errorf("State() = %q, want open", got)
	}
}

func TestHalfOpenTrialCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker("db", 2, time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errTest })
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if got := b.State(); got != "half-open" {
		t.Errorf("State() = %q, want half-open", got)
	}

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("trial should succeed, got %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Errorf("State() = %q, want closed after successful trial", got)
	}
}

func TestHalfOpenAdmitsOneTrial(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	b := NewBreaker("llm", 1, time.Second)
	b.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	_ = b.Execute(func() error { return errTest })
	mu.Lock()
	now = now.Add(2 * time.Second)
	mu.Unlock()

	started := make(chan struct{})
	release := make(chan struct{})
	trialErr := make(chan error, 1)
	go func() {
		trialErr <- b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("second call during trial: expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not run while a trial call is in flight")
	}
	if got := b.State(); got != "half-open" {
		t.Errorf("State() = %q, want half-open during trial", got)
	}

	close(release)
	if err := <-trialErr; err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if got := b.State(); got != "closed" {
		t.Errorf("State() = %q, want closed after trial", got)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("closed breaker should admit calls, got %v", err)
	}
}

func TestHalfOpenTrialPanicReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("db", 1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errTest })
	now = now.Add(2 * time.Second)

	func() {
		defer func() { _ = recover() }()
		_ = b.Execute(func() error { panic("boom") })
	}()

	if got := b.State(); got != "open" {
		t.Fatalf("State() = %q, want open after panicking trial", got)
	}
	now = now.Add(2 * time.Second)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("next trial should run, got %v", err)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("db", 1, time.Second)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errTest })
	now = now.Add(2 * time.Second)

	if err := b.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
		t.Fatalf("trial should run and fail, got %v", err)
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit to reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("db", 2, time.Second)
	_ = b.Execute(func() error { return errTest })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errTest })

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("breaker should still be closed, got %v", err)
	}
}
