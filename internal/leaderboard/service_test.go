package leaderboard

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/fault"
	"github.com/0gfoundation/0g-arcade/internal/ledger"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type fakeReader struct {
	entries []ledger.Entry
	total   uint64
	state   ledger.PlayerState
	err     error
	topN    []int
}

func (f *fakeReader) Top(_ context.Context, n int) ([]ledger.Entry, error) {
	f.topN = append(f.topN, n)
	if f.err != nil {
		return nil, f.err
	}
	return append([]ledger.Entry(nil), f.entries...), nil
}

func (f *fakeReader) TotalPlayers(context.Context) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.total, nil
}

func (f *fakeReader) PlayerState(context.Context, common.Address) (ledger.PlayerState, error) {
	if f.err != nil {
		return ledger.PlayerState{}, f.err
	}
	return f.state, nil
}

func fiveEntries() []ledger.Entry {
	out := make([]ledger.Entry, 5)
	for i := range out {
		out[i] = ledger.Entry{
			Rank:   i + 1,
			Player: common.BigToAddress(big.NewInt(int64(i + 1))),
			Score:  uint64(1000 - i*100),
		}
	}
	return out
}

func newTestService(t *testing.T, r Reader) *Service {
	t.Helper()
	s := NewService(r, newTestRedis(t), zap.NewNop())
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

// ── Top ───────────────────────────────────────────────────────────────────────

func TestClampLimit(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 5: 5, 6: 5, 100: 5}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d): got %d want %d", in, got, want)
		}
	}
}

func TestTop_TruncatesToLimit(t *testing.T) {
	r := &fakeReader{entries: fiveEntries(), total: 12}
	b, err := newTestService(t, r).Top(context.Background(), 3)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if len(b.Entries) != 3 || b.TotalPlayers != 12 || b.Stale {
		t.Errorf("unexpected board: %+v", b)
	}
	if b.UpdatedAt != 1_700_000_000 {
		t.Errorf("timestamp: got %d", b.UpdatedAt)
	}
	if len(r.topN) != 1 || r.topN[0] != MaxLimit {
		t.Errorf("ledger must be read at MaxLimit, got %v", r.topN)
	}
}

func TestTop_ServesStaleSnapshotOnLedgerFailure(t *testing.T) {
	r := &fakeReader{entries: fiveEntries(), total: 7}
	s := newTestService(t, r)
	ctx := context.Background()

	if _, err := s.Top(ctx, 5); err != nil {
		t.Fatalf("warm: %v", err)
	}
	r.err = errors.New("dial tcp: connection refused")

	b, err := s.Top(ctx, 2)
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if !b.Stale {
		t.Error("expected stale=true")
	}
	if len(b.Entries) != 2 || b.TotalPlayers != 7 {
		t.Errorf("unexpected stale board: %+v", b)
	}
}

func TestTop_NoSnapshotPropagatesError(t *testing.T) {
	r := &fakeReader{err: errors.New("dial tcp: connection refused")}
	_, err := newTestService(t, r).Top(context.Background(), 5)
	if got := fault.CategoryOf(err); got != fault.TransientNetwork {
		t.Fatalf("category: got %q want %q", got, fault.TransientNetwork)
	}
}

func TestTop_EmptyLedger(t *testing.T) {
	b, err := newTestService(t, &fakeReader{entries: []ledger.Entry{}}).Top(context.Background(), 5)
	if err != nil {
		t.Fatalf("Top: %v", err)
	}
	if b.Entries == nil || len(b.Entries) != 0 {
		t.Errorf("expected empty non-nil entries, got %#v", b.Entries)
	}
}

// ── PlayerState ───────────────────────────────────────────────────────────────

func TestPlayerState_ZeroStateIsDifficultyOne(t *testing.T) {
	player := common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	v, err := newTestService(t, &fakeReader{}).PlayerState(context.Background(), player)
	if err != nil {
		t.Fatalf("PlayerState: %v", err)
	}
	if v.Player != player || v.State != (ledger.PlayerState{}) || v.Difficulty != 1 {
		t.Errorf("unexpected view: %+v", v)
	}
}

func TestPlayerState_ErrorClassified(t *testing.T) {
	_, err := newTestService(t, &fakeReader{err: errors.New("boom")}).PlayerState(context.Background(), common.Address{})
	if got := fault.CategoryOf(err); got != fault.Unknown {
		t.Fatalf("category: got %q", got)
	}
}

func TestDifficulty(t *testing.T) {
	cases := map[uint64]int{0: 1, 499: 1, 500: 2, 1499: 3, 4500: 10, 1_000_000: 10}
	for best, want := range cases {
		if got := Difficulty(best); got != want {
			t.Errorf("Difficulty(%d): got %d want %d", best, got, want)
		}
	}
}
