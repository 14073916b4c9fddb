package resilience

import (
	"time"

	"github.com/sells-group/extraction-ops/internal/config"
)

// FromAPIConfig builds the retry and circuit breaker settings for the
// pipeline API client.
func FromAPIConfig(api config.APIConfig) (RetryConfig, CircuitBreakerConfig) {
	retry := DefaultRetryConfig()
	if api.MaxRetries >= 0 {
		retry.MaxAttempts = api.MaxRetries + 1
	}
	if api.InitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(api.InitialBackoffMs) * time.Millisecond
	}

	breaker := DefaultCircuitBreakerConfig()
	if api.BreakerFailures > 0 {
		breaker.FailureThreshold = api.BreakerFailures
	}
	if api.BreakerResetSecs > 0 {
		breaker.ResetTimeout = time.Duration(api.BreakerResetSecs) * time.Second
	}
	// Client errors say nothing about upstream health.
	breaker.ShouldTrip = IsTransient
	return retry, breaker
}
