package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func testConfig() Config {
	return Config{
		Name:             "test-circuit",
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

func TestNew(t *testing.T) {
	cb := New(testConfig())

	if cb == nil {
		t.Fatal("expected circuit breaker, got nil")
	}
	if cb.Name() != "test-circuit" {
		t.Errorf("expected name='test-circuit', got %q", cb.Name())
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected initial state=Closed, got %v", cb.State())
	}
}

func TestCircuitBreaker_Execute_Success(t *testing.T) {
	cb := New(testConfig())

	result, err := cb.Execute(func() (interface{}, error) {
		return "insight", nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "insight" {
		t.Errorf("expected result='insight', got %v", result)
	}
}

func TestCircuitBreaker_TripsOpen(t *testing.T) {
	var transitions []gobreaker.State
	cfg := testConfig()
	cfg.OnStateChange = func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	}
	cb := New(cfg)

	testErr := errors.New("backend down")
	for i := 0; i < 5; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, testErr
		})
		if err != testErr {
			t.Errorf("request %d: expected test error, got %v", i, err)
		}
	}

	if !cb.IsOpen() {
		t.Fatalf("expected open circuit, got %v", cb.State())
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Errorf("expected one transition to open, got %v", transitions)
	}

	_, err := cb.Execute(func() (interface{}, error) {
		t.Error("function should not be called when circuit is open")
		return nil, nil
	})
	if !IsRejection(err) {
		t.Errorf("expected breaker rejection, got %v", err)
	}
}

func TestCircuitBreaker_IsSuccessfulIgnoresClientErrors(t *testing.T) {
	clientErr := errors.New("bad request")
	cfg := testConfig()
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, clientErr)
	}
	cb := New(cfg)

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, clientErr
		})
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("client errors must not trip the circuit, got %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpen(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequests = 2
	cfg.Timeout = 100 * time.Millisecond
	cb := New(cfg)

	testErr := errors.New("test error")
	for i := 0; i < 6; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, testErr
		})
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("circuit should be open, got %v", cb.State())
	}

	time.Sleep(150 * time.Millisecond)

	_, err := cb.Execute(func() (interface{}, error) {
		return "success", nil
	})
	if err != nil {
		t.Errorf("expected success in half-open state, got %v", err)
	}
	if cb.State() == gobreaker.StateOpen {
		t.Errorf("circuit should not be open after successful half-open request, got %v", cb.State())
	}
}

func TestCircuitBreaker_MinRequests(t *testing.T) {
	cfg := testConfig()
	cfg.MinRequests = 10
	cb := New(cfg)

	testErr := errors.New("test error")
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, testErr
		})
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("expected state=Closed (below MinRequests), got %v", cb.State())
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		cfg  Config
		name string
	}{
		{GeminiAPIConfig(), "gemini-api"},
		{ClaudeAPIConfig(), "claude-api"},
		{OpenAIAPIConfig(), "openai-api"},
		{OllamaConfig(), "ollama"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.cfg.Name != tt.name {
				t.Errorf("expected Name=%q, got %q", tt.name, tt.cfg.Name)
			}
			if tt.cfg.MaxRequests != 3 {
				t.Errorf("expected MaxRequests=3, got %d", tt.cfg.MaxRequests)
			}
			if tt.cfg.FailureThreshold != 0.6 {
				t.Errorf("expected FailureThreshold=0.6, got %f", tt.cfg.FailureThreshold)
			}
		})
	}

	if OllamaConfig().Timeout >= DefaultConfig("x").Timeout {
		t.Error("expected a shorter open timeout for ollama")
	}
}

func TestIsRejection(t *testing.T) {
	if !IsRejection(gobreaker.ErrOpenState) {
		t.Error("expected ErrOpenState to be a rejection")
	}
	if !IsRejection(gobreaker.ErrTooManyRequests) {
		t.Error("expected ErrTooManyRequests to be a rejection")
	}
	if IsRejection(errors.New("other")) {
		t.Error("expected plain error not to be a rejection")
	}
}
