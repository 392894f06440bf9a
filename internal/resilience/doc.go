// Package resilience provides reliability and fault tolerance patterns for the application.
// It includes implementations of circuit breakers and retry logic used around every
// call to a generative-language backend.
//
// The package supports:
//   - Circuit breakers for backend API calls (Gemini, Claude, OpenAI, Ollama)
//   - Retry loops with linear backoff and pluggable error classification
//
// Usage Example:
//
//	cb := circuitbreaker.New(circuitbreaker.GeminiAPIConfig())
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callBackend()
//	})
//
//	err := retry.Linear(ctx, retry.DefaultConfig(), retry.Sleep, nil, func(attempt int) error {
//	    return performOperation()
//	})
package resilience
