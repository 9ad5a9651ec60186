package httpclient

import (
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern. After a run of
// consecutive failures the circuit opens and requests are rejected
// outright; once the reset timeout passes a limited number of probe
// requests decide whether to close it again.
type CircuitBreaker struct {
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int

	mu              sync.RWMutex
	state           CircuitState
	failures        int // consecutive
	halfOpenCount   int
	lastFailureTime time.Time
	lastSuccessTime time.Time

	// Totals are never reset, for stats reporting.
	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
	errorCounts    ErrorCategoryCount
}

// NewCircuitBreaker creates a circuit breaker. Zero or negative values
// fall back to the package defaults.
func NewCircuitBreaker(threshold int, resetTimeout time.Duration, halfOpenMax int) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultCircuitThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultCircuitTimeout
	}
	if halfOpenMax <= 0 {
		halfOpenMax = DefaultCircuitHalfOpenMax
	}
	return &CircuitBreaker{
		threshold:    threshold,
		resetTimeout: resetTimeout,
		halfOpenMax:  halfOpenMax,
		state:        CircuitClosed,
	}
}

// Allow returns true if the request should be allowed to proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) >= cb.resetTimeout {
			cb.state = CircuitHalfOpen
			cb.halfOpenCount = 1 // this request is the first probe
			return true
		}
		return false

	case CircuitHalfOpen:
		if cb.halfOpenCount < cb.halfOpenMax {
			cb.halfOpenCount++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess records a successful request. A success while half-open
// closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	cb.totalSuccesses++
	cb.lastSuccessTime = time.Now()
	cb.errorCounts.Increment(ErrorCategorySuccess2xx)

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
	}
	cb.failures = 0
}

// RecordFailure records a failed request of unspecified category.
func (cb *CircuitBreaker) RecordFailure() {
	cb.RecordFailureCategory(ErrorCategoryNetworkError)
}

// RecordFailureCategory records a failed request. Reaching the failure
// threshold while closed opens the circuit; any failure while half-open
// reopens it.
func (cb *CircuitBreaker) RecordFailureCategory(category ErrorCategory) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()
	cb.totalRequests++
	cb.totalFailures++
	cb.errorCounts.Increment(category)

	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.threshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.halfOpenCount = 0
}

// CircuitBreakerStats holds statistics about a circuit breaker.
type CircuitBreakerStats struct {
	State               CircuitState       `json:"state"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	TotalRequests       int64              `json:"total_requests"`
	TotalSuccesses      int64              `json:"total_successes"`
	TotalFailures       int64              `json:"total_failures"`
	FailureRate         float64            `json:"failure_rate"`
	ErrorCounts         ErrorCategoryCount `json:"error_counts"`
	LastFailure         time.Time          `json:"last_failure,omitempty"`
	LastSuccess         time.Time          `json:"last_success,omitempty"`

	// NextProbeAt is when a probe will be allowed, set while open.
	NextProbeAt time.Time `json:"next_probe_at,omitempty"`
}

// Stats returns current statistics for this circuit breaker.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	stats := CircuitBreakerStats{
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		TotalRequests:       cb.totalRequests,
		TotalSuccesses:      cb.totalSuccesses,
		TotalFailures:       cb.totalFailures,
		ErrorCounts:         cb.errorCounts.Clone(),
		LastFailure:         cb.lastFailureTime,
		LastSuccess:         cb.lastSuccessTime,
	}
	if stats.TotalRequests > 0 {
		stats.FailureRate = float64(stats.TotalFailures) / float64(stats.TotalRequests) * 100
	}
	if cb.state == CircuitOpen && !cb.lastFailureTime.IsZero() {
		stats.NextProbeAt = cb.lastFailureTime.Add(cb.resetTimeout)
	}
	return stats
}
