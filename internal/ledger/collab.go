package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// BalanceSource answers address → balances. Only operator tooling uses it.
type BalanceSource interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// LogSource answers block range → arcade contract activity.
type LogSource interface {
	RunLogs(ctx context.Context, fromBlock, toBlock uint64) ([]RunLog, error)
}

// RunLog is a decoded RunSubmitted event.
type RunLog struct {
	Block  uint64         `json:"block"`
	TxRef  string         `json:"txRef"`
	Player common.Address `json:"player"`
	RunID  common.Hash    `json:"runId"`
	Score  uint64         `json:"score"`
}

var (
	_ BalanceSource = (*Client)(nil)
	_ LogSource     = (*Client)(nil)
)

func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s: %w", owner.Hex(), err)
	}
	return bal, nil
}

func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	erc20 := bind.NewBoundContract(token, parsed, c.eth, nil, nil)
	var out []any
	if err := erc20.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", owner.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (c *Client) RunLogs(ctx context.Context, fromBlock, toBlock uint64) ([]RunLog, error) {
	parsed, err := abi.JSON(strings.NewReader(arcadeABI))
	if err != nil {
		return nil, fmt.Errorf("parse arcade abi: %w", err)
	}
	event := parsed.Events["RunSubmitted"]
	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.contractAddr},
		Topics:    [][]common.Hash{{event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs %d-%d: %w", fromBlock, toBlock, err)
	}

	out := make([]RunLog, 0, len(logs))
	for _, l := range logs {
		var ev struct {
			Player common.Address
			RunId  [32]byte
			Score  uint64
		}
		if err := c.contract.UnpackLog(&ev, "RunSubmitted", l); err != nil {
			return nil, fmt.Errorf("unpack log %s: %w", l.TxHash.Hex(), err)
		}
		out = append(out, RunLog{
			Block:  l.BlockNumber,
			TxRef:  l.TxHash.Hex(),
			Player: ev.Player,
			RunID:  ev.RunId,
			Score:  ev.Score,
		})
	}
	return out, nil
}
