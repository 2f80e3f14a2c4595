// Package resilience decorates operations with fault-tolerance patterns.
//
// Each decorator returns an op.Operation with the wrapped operation's name:
//   - Timeout: bounds one invocation, failing with *op.TimeoutFailure
//   - Retry: re-invokes on retryable failures with exponential backoff
//   - CircuitBreaker: fails fast while a dependency keeps failing
//   - RateLimit: token-bucket admission
//   - Bulkhead: caps concurrent invocations
//
// Wrap applies all configured patterns in the order
// RateLimit → Bulkhead → CircuitBreaker → Retry → Timeout → operation.
//
// Breakers, limiters and bulkheads hold state shared by every invocation of
// the returned operation; they are safe for concurrent use.
package resilience
