// Package leaderboard serves the read model derived from the ledger: ranked
// top entries and per-player state. The last good top-N read is kept in
// Redis so a ledger outage degrades to stale data instead of an error.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/ledger"
)

const (
	SnapshotKey = "leaderboard:top"
	MaxLimit    = 5

	difficultyStep = 500
	maxDifficulty  = 10
)

// Reader is the read side of ledger.Gateway.
type Reader interface {
	PlayerState(ctx context.Context, player common.Address) (ledger.PlayerState, error)
	Top(ctx context.Context, n int) ([]ledger.Entry, error)
	TotalPlayers(ctx context.Context) (uint64, error)
}

// Board is one leaderboard response. Stale is set when the ledger could not
// be read and the last snapshot was served instead.
type Board struct {
	Entries      []ledger.Entry `json:"entries"`
	TotalPlayers uint64         `json:"totalPlayers"`
	UpdatedAt    int64          `json:"timestamp"`
	Stale        bool           `json:"stale"`
}

// PlayerView is a player's ledger state plus the difficulty derived from it.
type PlayerView struct {
	Player     common.Address     `json:"player"`
	State      ledger.PlayerState `json:"state"`
	Difficulty int                `json:"difficulty"`
}

type Service struct {
	ledger Reader
	rdb    *redis.Client
	log    *zap.Logger
	now    func() time.Time
}

func NewService(r Reader, rdb *redis.Client, log *zap.Logger) *Service {
	return &Service{ledger: r, rdb: rdb, log: log, now: time.Now}
}

// ClampLimit forces limit into [1, MaxLimit].
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Top returns up to limit ranked entries.
func (s *Service) Top(ctx context.Context, limit int) (Board, error) {
	limit = ClampLimit(limit)

	b, err := s.Refresh(ctx)
	if err != nil {
		snap, ok := s.snapshot(ctx)
		if !ok {
			return Board{}, ledger.Classify(ledger.OpRead, err)
		}
		s.log.Warn("leaderboard: serving stale snapshot", zap.Int64("updatedAt", snap.UpdatedAt), zap.Error(err))
		b = snap
		b.Stale = true
	}
	if len(b.Entries) > limit {
		b.Entries = b.Entries[:limit]
	}
	return b, nil
}

// Refresh reads the full top-N from the ledger and stores it as the
// snapshot.
func (s *Service) Refresh(ctx context.Context) (Board, error) {
	entries, err := s.ledger.Top(ctx, MaxLimit)
	if err != nil {
		return Board{}, fmt.Errorf("read top: %w", err)
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	total, err := s.ledger.TotalPlayers(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("read total players: %w", err)
	}
	b := Board{Entries: entries, TotalPlayers: total, UpdatedAt: s.now().Unix()}

	raw, err := json.Marshal(b)
	if err == nil {
		err = s.rdb.Set(ctx, SnapshotKey, raw, 0).Err()
	}
	if err != nil {
		s.log.Warn("leaderboard: store snapshot", zap.Error(err))
	}
	return b, nil
}

func (s *Service) snapshot(ctx context.Context) (Board, bool) {
	raw, err := s.rdb.Get(ctx, SnapshotKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("leaderboard: load snapshot", zap.Error(err))
		}
		return Board{}, false
	}
	var b Board
	if err := json.Unmarshal(raw, &b); err != nil {
		s.log.Warn("leaderboard: decode snapshot", zap.Error(err))
		return Board{}, false
	}
	return b, true
}

// PlayerState reads player's ledger state. A player with no ledger activity
// gets the zero state.
func (s *Service) PlayerState(ctx context.Context, player common.Address) (PlayerView, error) {
	st, err := s.ledger.PlayerState(ctx, player)
	if err != nil {
		return PlayerView{}, ledger.Classify(ledger.OpRead, err)
	}
	return PlayerView{Player: player, State: st, Difficulty: Difficulty(st.BestScore)}, nil
}

// Difficulty grows by one level per 500 points of best score, from 1 to 10.
func Difficulty(bestScore uint64) int {
	return int(min(1+bestScore/difficultyStep, maxDifficulty))
}
