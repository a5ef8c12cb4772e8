package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/snow-ghost/adaptmgr/core"
)

func TestCircuitBreakerManager(t *testing.T) {
	cbm := NewCircuitBreakerManager(nil, nil)

	result, err := cbm.Execute(context.Background(), "get_qr", func(ctx context.Context) (interface{}, error) {
		return "success", nil
	})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected result 'success', got %v", result)
	}
	if !cbm.IsClosed("get_qr") {
		t.Error("Expected circuit breaker to be closed after success")
	}
}

func TestCircuitBreakerManagerOpensAfterFailures(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.Timeout = time.Hour
	cbm := NewCircuitBreakerManager(config, nil)

	var transitions []gobreaker.State
	cbm.OnStateChange(func(service string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	for i := 0; i < 3; i++ {
		_, err := cbm.Execute(context.Background(), "get_qr", func(ctx context.Context) (interface{}, error) {
			return nil, errors.New("simulated failure")
		})
		if err == nil {
			t.Error("Expected error for failing function")
		}
	}

	if !cbm.IsOpen("get_qr") {
		t.Error("Expected circuit breaker to be open after failures")
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("Expected a single transition to open, got %v", transitions)
	}

	calls := 0
	_, err := cbm.Execute(context.Background(), "get_qr", func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, nil
	})
	if !errors.Is(err, core.ErrServiceUnavailable) {
		t.Errorf("Expected open breaker to report service unavailable, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected open breaker to skip the call, got %d calls", calls)
	}

	// other services are unaffected
	if !cbm.IsClosed("get_variable_params") {
		t.Error("Expected independent breaker per service")
	}

	cbm.Reset("get_qr")
	if !cbm.IsClosed("get_qr") {
		t.Error("Expected reset breaker to be closed")
	}
}

func TestCircuitBreakerStats(t *testing.T) {
	cbm := NewCircuitBreakerManager(nil, nil)
	_, _ = cbm.Execute(context.Background(), "set_blackboard", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})

	stats := cbm.GetStats("set_blackboard")
	if stats["service"] != "set_blackboard" {
		t.Errorf("Expected service set_blackboard, got %v", stats["service"])
	}
	if stats["total_successes"] != uint32(1) {
		t.Errorf("Expected 1 success, got %v", stats["total_successes"])
	}
}
