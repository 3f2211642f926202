package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func testConfig() *Config {
	return &Config{
		Name:             "test",
		MaxFailures:      3,
		Timeout:          50 * time.Millisecond,
		HalfOpenMaxCalls: 1,
	}
}

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Execute() error = %v, want errBoom", err)
		}
	}

	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want %v", got, StateOpen)
	}

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := New(testConfig())

	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBoom })
	_ = cb.Execute(func() error { return errBoom })

	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want %v after interleaved success", got, StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}

	time.Sleep(60 * time.Millisecond)

	// First probe after the cool-down succeeds and closes the circuit.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() probe error = %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State() = %v, want %v", got, StateClosed)
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(testConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}

	time.Sleep(60 * time.Millisecond)

	_ = cb.Execute(func() error { return errBoom })
	if got := cb.State(); got != StateOpen {
		t.Errorf("State() = %v, want %v after failed probe", got, StateOpen)
	}
}
