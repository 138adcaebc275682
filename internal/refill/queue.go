package refill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

const (
	QueueKey = "refill:queue"
	DLQKey   = "refill:dlq"
)

// Event is one granted refill waiting to be written to the ledger.
type Event struct {
	Player    common.Address `json:"player"`
	NewHealth int            `json:"newHealth"`
	GrantedAt int64          `json:"grantedAt"`
	Attempts  int            `json:"attempts,omitempty"`
}

// DeadLetter is what lands in the DLQ when an event cannot be recorded.
type DeadLetter struct {
	Event   Event  `json:"event"`
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
	TxRef   string `json:"txRef,omitempty"`
}

// Queue pushes events onto the Redis list drained by Recorder.
type Queue struct {
	rdb *redis.Client
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

func (q *Queue) Enqueue(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal refill event: %w", err)
	}
	return q.rdb.RPush(ctx, QueueKey, string(raw)).Err()
}
