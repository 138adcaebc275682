package refill

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/fault"
	"github.com/0gfoundation/0g-arcade/internal/ledger"
)

type fakeWriter struct {
	mu    sync.Mutex
	errs  []error
	calls []Event
}

func (f *fakeWriter) RecordRefill(_ context.Context, player common.Address, newHealth int) (ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Event{Player: player, NewHealth: newHealth})
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return ledger.Receipt{}, err
		}
	}
	return ledger.Receipt{TxRef: "0xfeed", BlockRef: 42}, nil
}

func (f *fakeWriter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func rawEvent(t *testing.T, ev Event) string {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func dlqEntries(t *testing.T, rdb *redis.Client) []DeadLetter {
	t.Helper()
	raws, err := rdb.LRange(context.Background(), DLQKey, 0, -1).Result()
	if err != nil {
		t.Fatalf("LRANGE dlq: %v", err)
	}
	out := make([]DeadLetter, 0, len(raws))
	for _, r := range raws {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(r), &dl); err != nil {
			t.Fatalf("unmarshal dlq entry: %v", err)
		}
		out = append(out, dl)
	}
	return out
}

var testEvent = Event{Player: common.HexToAddress(testPlayer), NewHealth: 9, GrantedAt: 1_700_000_000}

// ── handle ────────────────────────────────────────────────────────────────────

func TestRecorder_Success(t *testing.T) {
	rdb := newTestRedis(t)
	w := &fakeWriter{}
	r := NewRecorder(rdb, w, 3, zap.NewNop())

	if requeued := r.handle(context.Background(), rawEvent(t, testEvent)); requeued {
		t.Fatal("success must not requeue")
	}
	if w.callCount() != 1 || w.calls[0].NewHealth != 9 {
		t.Fatalf("unexpected calls: %+v", w.calls)
	}
	if n, _ := rdb.LLen(context.Background(), QueueKey).Result(); n != 0 {
		t.Errorf("queue: got %d items", n)
	}
	if len(dlqEntries(t, rdb)) != 0 {
		t.Error("DLQ must be empty")
	}
}

func TestRecorder_TransientRequeuesWithAttemptCount(t *testing.T) {
	rdb := newTestRedis(t)
	w := &fakeWriter{errs: []error{errors.New("dial tcp: connection refused")}}
	r := NewRecorder(rdb, w, 3, zap.NewNop())
	ctx := context.Background()

	if !r.handle(ctx, rawEvent(t, testEvent)) {
		t.Fatal("transient failure must requeue")
	}
	raw, err := rdb.LPop(ctx, QueueKey).Result()
	if err != nil {
		t.Fatalf("LPOP: %v", err)
	}
	var ev Event
	_ = json.Unmarshal([]byte(raw), &ev)
	if ev.Attempts != 1 || ev.NewHealth != 9 {
		t.Errorf("requeued event: %+v", ev)
	}
}

func TestRecorder_TransientExhaustedGoesToDLQ(t *testing.T) {
	rdb := newTestRedis(t)
	w := &fakeWriter{errs: []error{errors.New("i/o timeout")}}
	r := NewRecorder(rdb, w, 2, zap.NewNop())

	ev := testEvent
	ev.Attempts = 1
	if r.handle(context.Background(), rawEvent(t, ev)) {
		t.Fatal("exhausted event must not requeue")
	}
	dl := dlqEntries(t, rdb)
	if len(dl) != 1 || dl[0].Reason != string(fault.TransientNetwork) || dl[0].Event.Attempts != 2 {
		t.Fatalf("unexpected DLQ: %+v", dl)
	}
}

func TestRecorder_BroadcastTimeoutIsNotResent(t *testing.T) {
	rdb := newTestRedis(t)
	unconfirmed := fault.Wrap(fault.TransientNetwork, errors.New("wait mined: context deadline exceeded"))
	unconfirmed.TxRef = "0xabc"
	w := &fakeWriter{errs: []error{unconfirmed}}
	r := NewRecorder(rdb, w, 5, zap.NewNop())

	if r.handle(context.Background(), rawEvent(t, testEvent)) {
		t.Fatal("a broadcast write must not be resent")
	}
	dl := dlqEntries(t, rdb)
	if len(dl) != 1 || dl[0].TxRef != "0xabc" {
		t.Fatalf("DLQ must keep txRef for reconciliation: %+v", dl)
	}
}

func TestRecorder_ShutdownRestoresPoppedEvent(t *testing.T) {
	rdb := newTestRedis(t)
	w := &fakeWriter{errs: []error{context.Canceled}}
	r := NewRecorder(rdb, w, 3, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if r.handle(ctx, rawEvent(t, testEvent)) {
		t.Fatal("shutdown must not schedule a retry pause")
	}
	raw, err := rdb.LPop(context.Background(), QueueKey).Result()
	if err != nil {
		t.Fatalf("event must be back on the queue: %v", err)
	}
	var ev Event
	_ = json.Unmarshal([]byte(raw), &ev)
	if ev != testEvent {
		t.Errorf("restored event: got %+v want %+v", ev, testEvent)
	}
	if len(dlqEntries(t, rdb)) != 0 {
		t.Error("shutdown must not dead-letter the event")
	}
}

func TestRecorder_ShutdownAfterBroadcastStillDeadLetters(t *testing.T) {
	rdb := newTestRedis(t)
	unconfirmed := fault.Wrap(fault.TransientNetwork, context.Canceled)
	unconfirmed.TxRef = "0xabc"
	w := &fakeWriter{errs: []error{unconfirmed}}
	r := NewRecorder(rdb, w, 3, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r.handle(ctx, rawEvent(t, testEvent))
	dl := dlqEntries(t, rdb)
	if len(dl) != 1 || dl[0].TxRef != "0xabc" {
		t.Fatalf("DLQ entry must be written despite the cancelled context: %+v", dl)
	}
	if n, _ := rdb.LLen(context.Background(), QueueKey).Result(); n != 0 {
		t.Errorf("a broadcast write must not be requeued, queue has %d", n)
	}
}

func TestRecorder_PermanentFailuresGoToDLQ(t *testing.T) {
	cases := map[string]fault.Category{
		"execution reverted: InvalidPlayer()":     fault.InvalidPlayer,
		"execution reverted: health out of range": fault.InvalidHealthValue,
		"execution reverted: Ownable: caller":     fault.Unknown,
	}
	for msg, want := range cases {
		rdb := newTestRedis(t)
		r := NewRecorder(rdb, &fakeWriter{errs: []error{errors.New(msg)}}, 3, zap.NewNop())
		if r.handle(context.Background(), rawEvent(t, testEvent)) {
			t.Errorf("%q: must not requeue", msg)
		}
		dl := dlqEntries(t, rdb)
		if len(dl) != 1 || dl[0].Reason != string(want) {
			t.Errorf("%q: DLQ got %+v want reason %q", msg, dl, want)
		}
	}
}

func TestRecorder_MalformedItemDropped(t *testing.T) {
	rdb := newTestRedis(t)
	w := &fakeWriter{}
	r := NewRecorder(rdb, w, 3, zap.NewNop())
	if r.handle(context.Background(), "{not json") {
		t.Fatal("malformed item must not requeue")
	}
	if w.callCount() != 0 {
		t.Error("ledger must not be called for a malformed item")
	}
}

// ── Run ───────────────────────────────────────────────────────────────────────

func TestRecorder_RunDrainsQueueAndStops(t *testing.T) {
	rdb := newTestRedis(t)
	w := &fakeWriter{}
	r := NewRecorder(rdb, w, 3, zap.NewNop())
	r.pollTimeout = 100 * time.Millisecond

	q := NewQueue(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, testEvent); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for w.callCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := w.callCount(); got != 3 {
		t.Fatalf("recorded %d events, want 3", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
