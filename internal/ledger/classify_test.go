package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/0gfoundation/0g-arcade/internal/fault"
)

// Every known ledger error string maps to exactly one category; anything
// unrecognised lands on fault.Unknown.
func TestClassify_SubmitRun(t *testing.T) {
	cases := []struct {
		raw  string
		want fault.Category
	}{
		{"execution reverted: Score exceeds max", fault.ScoreExceedsMax},
		{"execution reverted: SCORE_EXCEEDS_MAX", fault.ScoreExceedsMax},
		{"execution reverted: ScoreTooHigh()", fault.ScoreExceedsMax},
		{"execution reverted: Invalid time window", fault.InvalidTimeWindow},
		{"execution reverted: InvalidWindow()", fault.InvalidTimeWindow},
		{"execution reverted: session too long", fault.InvalidTimeWindow},
		{"execution reverted: Run ID already used", fault.DuplicateRunID},
		{"execution reverted: RunIdUsed()", fault.DuplicateRunID},
		{"execution reverted: run already submitted", fault.DuplicateRunID},
		{"execution reverted: Cooldown active", fault.CooldownActive},
		{"execution reverted: CooldownActive(120)", fault.CooldownActive},
		{"execution reverted: Pausable: paused", fault.LedgerPaused},
		{"execution reverted: EnforcedPause() paused", fault.LedgerPaused},
		{"insufficient funds for gas * price + value: balance 0", fault.InsufficientFunds},
		{"Post \"https://rpc\": dial tcp 10.0.0.1:443: connect: connection refused", fault.TransientNetwork},
		{"Post \"https://rpc\": context deadline exceeded", fault.TransientNetwork},
		{"429 Too Many Requests: rate limited", fault.TransientNetwork},
		{"502 Bad Gateway", fault.TransientNetwork},
		{"503 Service Unavailable", fault.TransientNetwork},
		{"read tcp: connection reset by peer", fault.TransientNetwork},
		{"unexpected EOF", fault.TransientNetwork},
		{"nonce too low", fault.TransientNetwork},
		{"i/o timeout", fault.TransientNetwork},
		{"execution reverted", fault.Unknown},
		{"execution reverted: custom error 0xdeadbeef", fault.Unknown},
		{"something odd happened", fault.Unknown},
	}
	for _, tc := range cases {
		got := Classify(OpSubmitRun, errors.New(tc.raw))
		if got.Category != tc.want {
			t.Errorf("%q: got %q want %q", tc.raw, got.Category, tc.want)
		}
		if got.Details() != tc.raw {
			t.Errorf("%q: raw details lost, got %q", tc.raw, got.Details())
		}
	}
}

func TestClassify_RecordRefillSubset(t *testing.T) {
	cases := []struct {
		raw  string
		want fault.Category
	}{
		{"execution reverted: invalid player", fault.InvalidPlayer},
		{"execution reverted: ZeroAddress()", fault.InvalidPlayer},
		{"execution reverted: invalid health", fault.InvalidHealthValue},
		{"execution reverted: HealthOutOfRange(12)", fault.InvalidHealthValue},
		{"dial tcp: i/o timeout", fault.TransientNetwork},
		// Submission-only categories are outside the refill subset.
		{"execution reverted: Pausable: paused", fault.Unknown},
		{"execution reverted: Run ID already used", fault.Unknown},
		{"insufficient funds for gas * price + value", fault.Unknown},
	}
	for _, tc := range cases {
		got := Classify(OpRecordRefill, errors.New(tc.raw))
		if got.Category != tc.want {
			t.Errorf("%q: got %q want %q", tc.raw, got.Category, tc.want)
		}
	}
}

func TestClassify_TypedNetworkErrors(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("host down")}
	if got := Classify(OpRead, fmt.Errorf("getPlayer: %w", opErr)); got.Category != fault.TransientNetwork {
		t.Errorf("net.OpError: got %q", got.Category)
	}
	if got := Classify(OpRead, fmt.Errorf("wrapped: %w", context.DeadlineExceeded)); got.Category != fault.TransientNetwork {
		t.Errorf("deadline: got %q", got.Category)
	}
}

func TestClassify_PassesThroughClassifiedErrors(t *testing.T) {
	orig := &fault.Error{Category: fault.TransientNetwork, TxRef: "0xabc"}
	got := Classify(OpSubmitRun, fmt.Errorf("outer: %w", orig))
	if got != orig {
		t.Fatal("an already classified error must not be reclassified")
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(OpSubmitRun, nil) != nil {
		t.Fatal("nil error must classify to nil")
	}
}

func TestIsAbsent(t *testing.T) {
	for _, raw := range []string{
		"execution reverted",
		"execution reverted: UnknownPlayer()",
		"account not found",
	} {
		if !isAbsent(errors.New(raw)) {
			t.Errorf("%q should read as absent", raw)
		}
	}
	if isAbsent(errors.New("dial tcp: connection refused")) {
		t.Error("network failures must not read as absent")
	}
}
