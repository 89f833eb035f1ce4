package sessionauth

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsUntilThreshold(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.isAllowed("1.2.3.4") {
			t.Fatalf("expected attempt %d to be allowed", i)
		}
		rl.recordFailure("1.2.3.4")
	}

	if rl.isAllowed("1.2.3.4") {
		t.Fatal("expected IP to be rate limited after reaching maxFails")
	}
}

func TestRateLimiterRecordSuccessClearsHistory(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	rl.recordFailure("5.6.7.8")
	if rl.isAllowed("5.6.7.8") {
		t.Fatal("expected IP to be rate limited after one failure with maxFails=1")
	}

	rl.recordSuccess("5.6.7.8")
	if !rl.isAllowed("5.6.7.8") {
		t.Fatal("expected success to clear failure history")
	}
}

func TestRateLimiterPrunesOldAttempts(t *testing.T) {
	rl := newRateLimiter(1, 10*time.Millisecond)
	rl.recordFailure("9.9.9.9")
	if rl.isAllowed("9.9.9.9") {
		t.Fatal("expected IP to be rate limited immediately after failure")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.isAllowed("9.9.9.9") {
		t.Fatal("expected rate limit window to have expired")
	}
}

func TestExtractIP(t *testing.T) {
	cases := map[string]string{
		"192.168.1.1:8080":    "192.168.1.1",
		"[::1]:8080":          "::1",
		"203.0.113.5":         "203.0.113.5",
		"[2001:db8::1]:12345": "2001:db8::1",
	}
	for in, want := range cases {
		if got := extractIP(in); got != want {
			t.Errorf("extractIP(%q) = %q, want %q", in, got, want)
		}
	}
}
