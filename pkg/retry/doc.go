// Package retry runs an operation a bounded number of times with a backoff
// between attempts.
//
// The download engine uses a constant backoff of network.retry_wait and
// MaxAttempts = network.retry + 1; the site client retries rate-limited page
// requests with exponential backoff. Permanent faults are never retried: the
// RetryIf predicate decides.
package retry
