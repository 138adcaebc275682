// Package score turns a finished game into a ledger write: build a run
// record, reject it locally when it cannot pass, and submit it with bounded
// retries for network failures only.
package score

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/config"
	"github.com/0gfoundation/0g-arcade/internal/fault"
	"github.com/0gfoundation/0g-arcade/internal/ledger"
	"github.com/0gfoundation/0g-arcade/internal/run"
)

// Submitter is the part of ledger.Gateway this workflow writes through.
type Submitter interface {
	SubmitRun(ctx context.Context, r run.Record) (ledger.Receipt, error)
}

// Result describes a submission. On failure only RunID and Score are
// meaningful, plus TxRef when the write was broadcast but not confirmed.
type Result struct {
	TxRef    string      `json:"txRef"`
	BlockRef uint64      `json:"blockRef"`
	RunID    common.Hash `json:"runId"`
	Score    int64       `json:"score"`
}

type Workflow struct {
	ledger      Submitter
	policy      run.Policy
	maxAttempts uint
	initial     time.Duration
	maxInterval time.Duration
	log         *zap.Logger
}

func NewWorkflow(s Submitter, policy run.Policy, retry config.RetryConfig, log *zap.Logger) *Workflow {
	return &Workflow{
		ledger:      s,
		policy:      policy,
		maxAttempts: max(retry.MaxAttempts, 1),
		initial:     time.Duration(retry.InitialIntervalMs) * time.Millisecond,
		maxInterval: time.Duration(retry.MaxIntervalMs) * time.Millisecond,
		log:         log,
	}
}

// Policy returns the limits records are validated against.
func (w *Workflow) Policy() run.Policy { return w.policy }

// Submit records one run for player. Every call builds a new run id, so a
// caller retrying after duplicate_run_id gets a fresh record. Errors are
// always *fault.Error.
func (w *Workflow) Submit(ctx context.Context, player common.Address, score int64, now time.Time) (Result, error) {
	rec, err := w.policy.Build(player, score, now)
	if err != nil {
		return Result{Score: score}, fault.Wrap(fault.Unknown, err)
	}
	res := Result{RunID: rec.RunID, Score: score}

	if err := rec.Validate(w.policy); err != nil {
		w.log.Info("score rejected locally",
			zap.String("player", player.Hex()),
			zap.Int64("score", score),
			zap.String("category", string(fault.CategoryOf(err))),
		)
		return res, err
	}

	attempt := 0
	receipt, err := backoff.Retry(ctx, func() (ledger.Receipt, error) {
		attempt++
		r, err := w.ledger.SubmitRun(ctx, rec)
		if err == nil {
			return r, nil
		}
		fe := ledger.Classify(ledger.OpSubmitRun, err)
		if !fe.Retryable() {
			return ledger.Receipt{}, backoff.Permanent(fe)
		}
		return ledger.Receipt{}, fe
	},
		backoff.WithBackOff(w.newBackOff()),
		backoff.WithMaxTries(w.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.log.Warn("submit run: retrying",
				zap.String("runId", rec.RunID.Hex()),
				zap.Int("attempt", attempt),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		fe := ledger.Classify(ledger.OpSubmitRun, err)
		res.TxRef = fe.TxRef
		w.log.Warn("submit run failed",
			zap.String("player", player.Hex()),
			zap.String("runId", rec.RunID.Hex()),
			zap.String("category", string(fe.Category)),
			zap.String("txRef", fe.TxRef),
			zap.Int("attempts", attempt),
			zap.Error(fe.Raw),
		)
		return res, fe
	}

	res.TxRef = receipt.TxRef
	res.BlockRef = receipt.BlockRef
	w.log.Info("run submitted",
		zap.String("player", player.Hex()),
		zap.String("runId", rec.RunID.Hex()),
		zap.Int64("score", score),
		zap.String("txRef", receipt.TxRef),
		zap.Uint64("blockRef", receipt.BlockRef),
	)
	return res, nil
}

func (w *Workflow) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if w.initial > 0 {
		b.InitialInterval = w.initial
	}
	if w.maxInterval > 0 {
		b.MaxInterval = w.maxInterval
	}
	return b
}
