// Package refill runs the pay-to-refill exchange: a request without proof gets
// a payment challenge, a request with an accepted proof gets health back, and
// every grant is queued for recording on the ledger.
package refill

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/fault"
	"github.com/0gfoundation/0g-arcade/internal/payment"
)

const releaseTimeout = 5 * time.Second

// State is where a single refill request ended up.
type State string

const (
	AwaitingProof State = "awaiting_proof"
	Fulfilled     State = "fulfilled"
	Rejected      State = "rejected"
)

// Outcome is the result of one request. Challenge and Onramp are set for
// AwaitingProof, NewHealth and HealthIncrease for Fulfilled.
type Outcome struct {
	State          State
	Challenge      payment.Challenge
	Onramp         string
	NewHealth      int
	HealthIncrease int
}

// Enqueuer accepts refill events for asynchronous recording. *Queue
// satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, ev Event) error
}

// Workflow holds no per-request state. The optional Registry binds proofs to
// issued challenges; without it any accepted proof is honored.
type Workflow struct {
	issuer       *payment.Issuer
	verifier     payment.Verifier
	registry     *payment.Registry
	events       Enqueuer
	maxHealth    int
	refillAmount int
	log          *zap.Logger
	now          func() time.Time
}

func NewWorkflow(
	issuer *payment.Issuer,
	verifier payment.Verifier,
	registry *payment.Registry,
	events Enqueuer,
	maxHealth, refillAmount int,
	log *zap.Logger,
) *Workflow {
	return &Workflow{
		issuer:       issuer,
		verifier:     verifier,
		registry:     registry,
		events:       events,
		maxHealth:    maxHealth,
		refillAmount: refillAmount,
		log:          log,
		now:          time.Now,
	}
}

// Handle advances one request. A non-nil error is always a *fault.Error and
// means the request was rejected.
func (w *Workflow) Handle(ctx context.Context, p payment.Proof) (Outcome, error) {
	if !p.Present() {
		return w.challenge(ctx, p.PlayerAddress)
	}

	if p.PresentedHealth < 0 || p.PresentedHealth > w.maxHealth {
		return Outcome{State: Rejected}, fault.New(fault.InvalidRequest,
			"currentHealth %d outside [0, %d]", p.PresentedHealth, w.maxHealth)
	}

	c := w.issuer.Issue()
	if w.registry != nil {
		live, err := w.registry.Live(ctx, p.ChallengeID)
		if err != nil {
			return Outcome{State: Rejected}, fault.Wrap(fault.TransientNetwork, err)
		}
		if !live {
			return Outcome{State: Rejected}, fault.New(fault.InvalidPaymentProof,
				"challenge %q is not open", p.ChallengeID)
		}
		c.ID = p.ChallengeID
	}

	ok, err := w.verifier.Verify(ctx, c, p)
	if err != nil {
		w.log.Warn("refill: verifier unavailable", zap.String("player", p.PlayerAddress), zap.Error(err))
		return Outcome{State: Rejected}, fault.Wrap(fault.TransientNetwork, err)
	}
	if !ok {
		w.log.Info("refill: proof rejected", zap.String("player", p.PlayerAddress))
		return Outcome{State: Rejected}, fault.New(fault.InvalidPaymentProof, "proof not accepted")
	}

	if w.registry != nil {
		consumed, err := w.registry.Consume(ctx, p.ChallengeID)
		if err != nil {
			w.release(ctx, p)
			return Outcome{State: Rejected}, fault.Wrap(fault.TransientNetwork, err)
		}
		if !consumed {
			w.release(ctx, p)
			return Outcome{State: Rejected}, fault.New(fault.InvalidPaymentProof,
				"challenge %q already answered", p.ChallengeID)
		}
	}

	newHealth := min(p.PresentedHealth+w.refillAmount, w.maxHealth)
	out := Outcome{
		State:          Fulfilled,
		NewHealth:      newHealth,
		HealthIncrease: newHealth - p.PresentedHealth,
	}
	w.record(ctx, p.PlayerAddress, newHealth)
	return out, nil
}

// release hands an accepted proof back to the verifier after the grant fell
// through, so the player can retry with the same payment.
func (w *Workflow) release(ctx context.Context, p payment.Proof) {
	r, ok := w.verifier.(payment.Releaser)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := r.Release(ctx, p); err != nil {
		w.log.Error("refill: release proof", zap.String("player", p.PlayerAddress), zap.Error(err))
	}
}

func (w *Workflow) challenge(ctx context.Context, player string) (Outcome, error) {
	c := w.issuer.Issue()
	if w.registry != nil {
		var err error
		if c, err = w.registry.Open(ctx, c, w.now()); err != nil {
			return Outcome{}, fault.Wrap(fault.TransientNetwork, err)
		}
	}
	return Outcome{
		State:     AwaitingProof,
		Challenge: c,
		Onramp:    w.issuer.OnrampLink(player),
	}, nil
}

// record queues the grant. Health has already been granted, so failures here
// are logged and never returned.
func (w *Workflow) record(ctx context.Context, player string, newHealth int) {
	if player == "" {
		return
	}
	if !common.IsHexAddress(player) {
		w.log.Warn("refill: not recorded, bad player address", zap.String("player", player))
		return
	}
	ev := Event{
		Player:    common.HexToAddress(player),
		NewHealth: newHealth,
		GrantedAt: w.now().Unix(),
	}
	if err := w.events.Enqueue(ctx, ev); err != nil {
		w.log.Error("refill: enqueue event", zap.String("player", player), zap.Int("newHealth", newHealth), zap.Error(err))
		return
	}
	w.log.Info("refill granted", zap.String("player", ev.Player.Hex()), zap.Int("newHealth", newHealth))
}
