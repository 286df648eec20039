package retry

import (
	"testing"
	"time"
)

func TestDelayForAttemptSaturates(t *testing.T) {
	cases := map[int]time.Duration{
		0: time.Minute,
		1: time.Minute,
		2: 5 * time.Minute,
		3: 15 * time.Minute,
		4: 60 * time.Minute,
		5: 60 * time.Minute,
		9: 60 * time.Minute,
	}
	for attempt, want := range cases {
		if got := DelayForAttempt(attempt); got != want {
			t.Errorf("DelayForAttempt(%d) = %s, want %s", attempt, got, want)
		}
	}
}

func TestCategorizePermanentTakesPrecedence(t *testing.T) {
	// "invalid" is permanent, "timeout" is transient; permanent must win.
	if got := Categorize("invalid request: connection timeout"); got != CategoryPermanent {
		t.Fatalf("expected permanent precedence, got %s", got)
	}
}

func TestCategorizeTransient(t *testing.T) {
	cases := []string{
		"upstream connection reset",
		"request timed out after 30s",
		"received 503 from remote",
		"server is busy, please retry",
	}
	for _, msg := range cases {
		if got := Categorize(msg); got != CategoryTransient {
			t.Errorf("Categorize(%q) = %s, want TRANSIENT", msg, got)
		}
	}
}

func TestCategorizePermanent(t *testing.T) {
	cases := []string{
		"design not found",
		"401 unauthorized",
		"archive is password protected",
		"file already exists",
	}
	for _, msg := range cases {
		if got := Categorize(msg); got != CategoryPermanent {
			t.Errorf("Categorize(%q) = %s, want PERMANENT", msg, got)
		}
	}
}

func TestCategorizeUnknownForUnmatchedMessage(t *testing.T) {
	if got := Categorize("something unexpected happened"); got != CategoryUnknown {
		t.Fatalf("expected UNKNOWN, got %s", got)
	}
}

func TestShouldRetryPermanentNeverRetries(t *testing.T) {
	if ShouldRetry(0, 5, "404 not found") {
		t.Fatal("permanent errors must not retry")
	}
}

func TestShouldRetryUnknownOnlyOnce(t *testing.T) {
	if !ShouldRetry(1, 5, "something unexpected happened") {
		t.Fatal("unknown errors should retry once")
	}
	if ShouldRetry(2, 5, "something unexpected happened") {
		t.Fatal("unknown errors must not retry past one attempt")
	}
}

func TestShouldRetryTransientUntilMaxAttempts(t *testing.T) {
	if !ShouldRetry(3, 5, "connection reset") {
		t.Fatal("transient errors should retry below max attempts")
	}
	if ShouldRetry(5, 5, "connection reset") {
		t.Fatal("transient errors must not retry once max attempts reached")
	}
}
