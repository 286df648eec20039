// Package retry classifies job failures and decides whether the queue
// should schedule another attempt, matching the fixed error-keyword
// classification the original ingestion backend used.
package retry

import (
	"strings"
	"time"
)

// Category indicates how a failure should be handled.
type Category string

const (
	CategoryTransient Category = "TRANSIENT"
	CategoryPermanent Category = "PERMANENT"
	CategoryUnknown   Category = "UNKNOWN"
)

// Delays are the fixed backoff delays applied to scheduled retries,
// saturating at the last entry for attempts beyond its length.
var Delays = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	60 * time.Minute,
}

// DelayForAttempt returns the backoff delay for the given 1-indexed attempt
// number, saturating at the longest configured delay.
func DelayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	idx := attempt - 1
	if idx >= len(Delays) {
		idx = len(Delays) - 1
	}
	return Delays[idx]
}

// transientKeywords indicate a failure is likely to succeed on retry:
// network blips, rate limiting, temporary upstream unavailability.
var transientKeywords = []string{
	"timeout",
	"timed out",
	"connection",
	"network",
	"rate limit",
	"flood",
	"429",
	"502",
	"503",
	"504",
	"temporary",
	"unavailable",
	"retry",
	"throttl",
	"busy",
	"overload",
}

// permanentKeywords indicate retrying will never succeed: the target is
// gone, the input was invalid, or the credentials are rejected.
var permanentKeywords = []string{
	"not found",
	"404",
	"missing",
	"invalid",
	"unauthorized",
	"401",
	"forbidden",
	"403",
	"permission denied",
	"does not exist",
	"already exists",
	"duplicate",
	"malformed",
	"corrupt",
	"password protected",
	"authentication failed",
}

// Categorize classifies an error message. Permanent keywords take
// precedence over transient ones when both match, and an empty message
// classifies as Unknown.
func Categorize(errMsg string) Category {
	if errMsg == "" {
		return CategoryUnknown
	}
	lower := strings.ToLower(errMsg)
	for _, kw := range permanentKeywords {
		if strings.Contains(lower, kw) {
			return CategoryPermanent
		}
	}
	for _, kw := range transientKeywords {
		if strings.Contains(lower, kw) {
			return CategoryTransient
		}
	}
	return CategoryUnknown
}

// ShouldRetry reports whether a job at the given attempt count should be
// retried given its failure. Permanent errors never retry; unknown errors
// retry only on the first attempt; transient errors retry up to
// maxAttempts.
func ShouldRetry(attempts, maxAttempts int, errMsg string) bool {
	if attempts >= maxAttempts {
		return false
	}
	switch Categorize(errMsg) {
	case CategoryPermanent:
		return false
	case CategoryUnknown:
		return attempts < 2
	default:
		return true
	}
}
