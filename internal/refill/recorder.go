package refill

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/fault"
	"github.com/0gfoundation/0g-arcade/internal/ledger"
)

// Writer is the part of ledger.Gateway the recorder needs.
type Writer interface {
	RecordRefill(ctx context.Context, player common.Address, newHealth int) (ledger.Receipt, error)
}

const pushTimeout = 5 * time.Second

// Recorder drains the refill queue into the ledger.
type Recorder struct {
	rdb         *redis.Client
	ledger      Writer
	log         *zap.Logger
	pollTimeout time.Duration
	retryPause  time.Duration
	maxAttempts int
}

func NewRecorder(rdb *redis.Client, w Writer, maxAttempts int, log *zap.Logger) *Recorder {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Recorder{
		rdb:         rdb,
		ledger:      w,
		log:         log,
		pollTimeout: 5 * time.Second,
		retryPause:  5 * time.Second,
		maxAttempts: maxAttempts,
	}
}

// Run is the recorder loop: BLPOP → RecordRefill → requeue or dead-letter.
// It returns when ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	r.log.Info("refill recorder started", zap.String("queue", QueueKey))

	for {
		if ctx.Err() != nil {
			r.log.Info("refill recorder stopped")
			return
		}

		results, err := r.rdb.BLPop(ctx, r.pollTimeout, QueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				r.log.Info("refill recorder stopped")
				return
			}
			r.log.Error("refill recorder: BLPOP", zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}

		// results[0] = key, results[1] = value
		if r.handle(ctx, results[1]) {
			sleep(ctx, r.retryPause)
		}
	}
}

// handle records one raw queue item. It reports whether the item was put
// back for another try.
func (r *Recorder) handle(ctx context.Context, raw string) bool {
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		r.log.Error("refill recorder: unmarshal event", zap.String("raw", raw), zap.Error(err))
		return false
	}
	ev.Attempts++

	receipt, err := r.ledger.RecordRefill(ctx, ev.Player, ev.NewHealth)
	if err == nil {
		r.log.Info("refill recorded",
			zap.String("player", ev.Player.Hex()),
			zap.Int("newHealth", ev.NewHealth),
			zap.String("txRef", receipt.TxRef),
			zap.Uint64("blockRef", receipt.BlockRef),
		)
		return false
	}

	fe := ledger.Classify(ledger.OpRecordRefill, err)

	// Queue writes outlive the loop's context so a popped event is never lost
	// to shutdown.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()

	if ctx.Err() != nil && fe.TxRef == "" {
		// Interrupted before broadcast: the failure says nothing about the event.
		ev.Attempts--
		if perr := r.rdb.LPush(pushCtx, QueueKey, mustJSON(ev)).Err(); perr != nil {
			r.log.Error("refill recorder: restore on shutdown", zap.String("player", ev.Player.Hex()), zap.Error(perr))
			r.deadLetter(pushCtx, ev, fe)
		}
		return false
	}

	if fe.Retryable() && ev.Attempts < r.maxAttempts {
		if perr := r.push(pushCtx, QueueKey, ev); perr != nil {
			r.log.Error("refill recorder: requeue", zap.String("player", ev.Player.Hex()), zap.Error(perr))
			r.deadLetter(pushCtx, ev, fe)
			return false
		}
		r.log.Warn("refill recorder: transient failure, requeued",
			zap.String("player", ev.Player.Hex()),
			zap.Int("attempts", ev.Attempts),
			zap.Error(err),
		)
		return true
	}

	r.deadLetter(pushCtx, ev, fe)
	return false
}

func (r *Recorder) deadLetter(ctx context.Context, ev Event, fe *fault.Error) {
	dl := DeadLetter{Event: ev, Reason: string(fe.Category), Details: fe.Details(), TxRef: fe.TxRef}
	if err := r.rdb.RPush(ctx, DLQKey, mustJSON(dl)).Err(); err != nil {
		r.log.Error("refill recorder: DLQ push", zap.Error(err))
	}
	r.log.Error("refill event dead-lettered",
		zap.String("player", ev.Player.Hex()),
		zap.String("reason", dl.Reason),
		zap.String("txRef", dl.TxRef),
		zap.Int("attempts", ev.Attempts),
	)
}

func (r *Recorder) push(ctx context.Context, key string, ev Event) error {
	return r.rdb.RPush(ctx, key, mustJSON(ev)).Err()
}

// mustJSON encodes values whose fields always marshal.
func mustJSON(v any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
