package run

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/0g-arcade/internal/fault"
)

const nonceSize = 16

// Record is one finished game session, ready to be written to the ledger.
type Record struct {
	Player    common.Address `json:"player"`
	Score     int64          `json:"score"`
	RunID     common.Hash    `json:"runId"`
	StartedAt int64          `json:"startedAt"`
	EndedAt   int64          `json:"endedAt"`
}

// Policy holds the limits a record is checked against. ScoreMax of zero
// means the maximum is not known locally and only the ledger enforces it.
type Policy struct {
	ScoreMax          int64
	MaxSession        time.Duration
	SessionAssumption time.Duration
	Rand              io.Reader
}

// Build creates a record ending at now. The run id hashes the player, the
// instant and a random nonce, so two builds at the same instant still differ.
func (p Policy) Build(player common.Address, score int64, now time.Time) (Record, error) {
	nonce := make([]byte, nonceSize)
	r := p.Rand
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, nonce); err != nil {
		return Record{}, fmt.Errorf("read run nonce: %w", err)
	}

	seed := strings.ToLower(player.Hex()) + ":" +
		fmt.Sprint(now.UnixNano()) + ":" +
		hex.EncodeToString(nonce)

	return Record{
		Player:    player,
		Score:     score,
		RunID:     crypto.Keccak256Hash([]byte(seed)),
		StartedAt: now.Add(-p.SessionAssumption).Unix(),
		EndedAt:   now.Unix(),
	}, nil
}

// Validate applies the local submission rules. A failure here must never
// reach the ledger.
func (r Record) Validate(p Policy) error {
	if r.Score < 0 {
		return fault.New(fault.InvalidRequest, "score %d is negative", r.Score)
	}
	if p.ScoreMax > 0 && r.Score > p.ScoreMax {
		return fault.New(fault.ScoreExceedsMax, "score %d exceeds max %d", r.Score, p.ScoreMax)
	}
	if r.EndedAt <= r.StartedAt {
		return fault.New(fault.InvalidTimeWindow, "endedAt %d not after startedAt %d", r.EndedAt, r.StartedAt)
	}
	if p.MaxSession > 0 && r.EndedAt-r.StartedAt > int64(p.MaxSession/time.Second) {
		return fault.New(fault.InvalidTimeWindow, "session of %ds exceeds %s", r.EndedAt-r.StartedAt, p.MaxSession)
	}
	return nil
}
