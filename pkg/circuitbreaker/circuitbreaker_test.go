package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

var errRemote = errors.New("remote failed")

func newTestBreaker(clock *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
	})
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(func() error { return errRemote }); !errors.Is(err, errRemote) {
			t.Fatalf("call %d: got %v", i, err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.GetState())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitBreakerOpen) || called {
		t.Fatalf("open breaker let call through: err=%v called=%v", err, called)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	_ = cb.Execute(func() error { return errRemote })
	_ = cb.Execute(func() error { return errRemote })

	clock = clock.Add(2 * time.Minute)
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.GetState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.GetState())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := time.Now()
	cb := newTestBreaker(&clock)
	_ = cb.Execute(func() error { return errRemote })
	_ = cb.Execute(func() error { return errRemote })

	clock = clock.Add(2 * time.Minute)
	_ = cb.Execute(func() error { return errRemote })
	if cb.GetState() != StateOpen {
		t.Errorf("state = %v, want open", cb.GetState())
	}
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	errBadInput := errors.New("bad input")
	var transitions []string
	cb := NewCircuitBreaker(Config{
		FailureThreshold:    1,
		SuccessThreshold:    1,
		Timeout:             time.Minute,
		HalfOpenMaxRequests: 1,
		IsFailure:           func(err error) bool { return !errors.Is(err, errBadInput) },
		OnStateChange:       func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) },
	})

	_ = cb.Execute(func() error { return errBadInput })
	if cb.GetState() != StateClosed {
		t.Fatalf("caller error tripped the breaker")
	}
	_ = cb.Execute(func() error { return errRemote })
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v", transitions)
	}
}
