// Package ledger is the only path to the external ledger. It writes runs and
// refill events, reads player and leaderboard state, and turns every ledger
// failure into exactly one fault.Category.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/0g-arcade/internal/run"
)

// Gateway is satisfied by *Client. Workflows take this interface so tests
// can substitute an in-memory ledger.
type Gateway interface {
	SubmitRun(ctx context.Context, r run.Record) (Receipt, error)
	RecordRefill(ctx context.Context, player common.Address, newHealth int) (Receipt, error)
	PlayerState(ctx context.Context, player common.Address) (PlayerState, error)
	Top(ctx context.Context, n int) ([]Entry, error)
	TotalPlayers(ctx context.Context) (uint64, error)
}

// Receipt acknowledges a confirmed write.
type Receipt struct {
	TxRef    string `json:"txRef"`
	BlockRef uint64 `json:"blockRef"`
}

// PlayerState is a player's aggregate record on the ledger. The zero value
// is the state of a player with no ledger activity.
type PlayerState struct {
	BestScore    uint64      `json:"bestScore"`
	LastScore    uint64      `json:"lastScore"`
	Runs         uint32      `json:"runs"`
	LastPlayedAt uint64      `json:"lastPlayedAt"`
	LastRunID    common.Hash `json:"lastRunId"`
}

// Entry is one ranked leaderboard row.
type Entry struct {
	Rank   int            `json:"rank"`
	Player common.Address `json:"player"`
	Score  uint64         `json:"score"`
}
