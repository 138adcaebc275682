package ledger

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/0gfoundation/0g-arcade/internal/fault"
)

// Op selects the rule table used to classify a ledger error.
type Op int

const (
	OpSubmitRun Op = iota
	OpRecordRefill
	OpRead
)

type rule struct {
	category fault.Category
	// patterns are matched against the error text lowercased with every
	// non-alphanumeric rune removed, so "Score exceeds max",
	// "SCORE_EXCEEDS_MAX" and "ScoreExceedsMax()" all hit "scoreexceedsmax".
	patterns []string
}

var submitRules = []rule{
	{fault.ScoreExceedsMax, []string{"scoreexceedsmax", "scoretoohigh", "scoreabovemax"}},
	{fault.InvalidTimeWindow, []string{"invalidtimewindow", "invalidwindow", "badtimewindow", "sessiontoolong"}},
	{fault.DuplicateRunID, []string{"runidalreadyused", "runidused", "runalreadysubmitted", "duplicaterun"}},
	{fault.CooldownActive, []string{"cooldown"}},
	{fault.LedgerPaused, []string{"paused"}},
	{fault.InsufficientFunds, []string{"insufficientfunds"}},
}

var refillRules = []rule{
	{fault.InvalidPlayer, []string{"invalidplayer", "zeroaddress"}},
	{fault.InvalidHealthValue, []string{"invalidhealth", "healthoutofrange"}},
}

// transientMarkers are matched against the lowercased text as-is.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"unexpected eof",
	"too many requests",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"nonce too low",
	"replacement transaction underpriced",
}

// Classify maps a raw ledger error to one category. Domain rules for the op
// are tried first, then network markers; anything else is fault.Unknown.
func Classify(op Op, err error) *fault.Error {
	if err == nil {
		return nil
	}
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe
	}

	text := strings.ToLower(err.Error())
	squashed := squash(text)

	var rules []rule
	switch op {
	case OpSubmitRun:
		rules = submitRules
	case OpRecordRefill:
		rules = refillRules
	}
	for _, r := range rules {
		for _, p := range r.patterns {
			if strings.Contains(squashed, p) {
				return fault.Wrap(r.category, err)
			}
		}
	}

	if isTransient(err, text) {
		return fault.Wrap(fault.TransientNetwork, err)
	}
	return fault.Wrap(fault.Unknown, err)
}

func isTransient(err error, text string) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	for _, m := range transientMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// isAbsent reports whether a read failed because the ledger has no record
// for the key. Those reads resolve to the zero state, not an error.
func isAbsent(err error) bool {
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "not found") ||
		strings.Contains(text, "revert") ||
		strings.Contains(squash(text), "unknownplayer")
}

func squash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
