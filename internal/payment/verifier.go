// Package payment describes what a gated action costs and decides whether a
// presented proof pays for it.
package payment

import (
	"context"
	"strings"
)

// Verifier judges a proof against the challenge it answers. A non-nil error
// means the verifier could not decide (for example the payment network was
// unreachable), which is different from a rejected proof.
type Verifier interface {
	Verify(ctx context.Context, c Challenge, p Proof) (bool, error)
}

// Releaser is implemented by verifiers that reserve a proof when they accept
// it. Release undoes the reservation so the same proof can be presented again.
type Releaser interface {
	Release(ctx context.Context, p Proof) error
}

// DemoVerifier accepts the sentinel token or anything shaped like an on-chain
// reference. It checks syntax only and proves nothing about payment; use
// OnChainVerifier outside demos.
type DemoVerifier struct {
	Sentinel string
}

func (d DemoVerifier) Verify(_ context.Context, _ Challenge, p Proof) (bool, error) {
	if d.Sentinel != "" && p.Token == d.Sentinel {
		return true, nil
	}
	return isHexRef(p.Token, 0), nil
}

// isHexRef reports whether s is "0x" followed by hex digits. With n > 0 the
// digit count must be exactly n.
func isHexRef(s string, n int) bool {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return false
	}
	digits := s[2:]
	if len(digits) == 0 || (n > 0 && len(digits) != n) {
		return false
	}
	for _, r := range digits {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
