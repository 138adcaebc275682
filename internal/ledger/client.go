package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/0gfoundation/0g-arcade/internal/config"
	"github.com/0gfoundation/0g-arcade/internal/fault"
	"github.com/0gfoundation/0g-arcade/internal/run"
)

// Backend is the RPC surface the client needs. *ethclient.Client and
// simulated.Client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client wraps go-ethereum and the arcade contract. Writes are signed by the
// relayer key, so players never pay gas for score or refill records.
type Client struct {
	eth          Backend
	closeFn      func()
	contract     *bind.BoundContract
	contractAddr common.Address
	chainID      *big.Int
	relayerKey   *ecdsa.PrivateKey
	relayer      common.Address
	writeTimeout time.Duration
}

var _ Gateway = (*Client)(nil)

func NewClient(cfg *config.Config) (*Client, error) {
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.Chain.RelayerKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse relayer key: %w", err)
	}

	c, err := Dial(cfg.Chain.RPCURL, common.HexToAddress(cfg.Chain.ContractAddress))
	if err != nil {
		return nil, err
	}
	c.WithRelayer(privKey, big.NewInt(cfg.Chain.ChainID))
	if cfg.Chain.WriteTimeoutSec > 0 {
		c.writeTimeout = time.Duration(cfg.Chain.WriteTimeoutSec) * time.Second
	}
	return c, nil
}

// Dial returns a read-only client. Writes on it fail without broadcasting.
func Dial(rpcURL string, contract common.Address) (*Client, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c, err := New(eth, contract)
	if err != nil {
		eth.Close()
		return nil, err
	}
	c.closeFn = eth.Close
	return c, nil
}

// New binds the arcade contract at contract on an existing backend. The
// client is read-only until WithRelayer is called.
func New(backend Backend, contract common.Address) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(arcadeABI))
	if err != nil {
		return nil, fmt.Errorf("parse arcade abi: %w", err)
	}
	return &Client{
		eth:          backend,
		contract:     bind.NewBoundContract(contract, parsed, backend, backend, backend),
		contractAddr: contract,
		writeTimeout: time.Minute,
	}, nil
}

// WithRelayer makes c sign writes with key for chainID.
func (c *Client) WithRelayer(key *ecdsa.PrivateKey, chainID *big.Int) *Client {
	c.relayerKey = key
	c.relayer = crypto.PubkeyToAddress(key.PublicKey)
	c.chainID = chainID
	return c
}

// Relayer returns the address that signs ledger writes.
func (c *Client) Relayer() common.Address { return c.relayer }

// ContractAddress returns the arcade contract address.
func (c *Client) ContractAddress() common.Address { return c.contractAddr }

func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// transactOpts builds a *bind.TransactOpts signed by the relayer key.
func (c *Client) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.relayerKey == nil {
		return nil, errors.New("client has no relayer key")
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.relayerKey, c.chainID)
	if err != nil {
		return nil, err
	}
	auth.Context = ctx
	return auth, nil
}

// SubmitRun writes a finished run. The contract rejects reused run ids.
func (c *Client) SubmitRun(ctx context.Context, r run.Record) (Receipt, error) {
	return c.write(ctx, OpSubmitRun, "submitRun",
		r.Player,
		[32]byte(r.RunID),
		uint64(r.Score),
		uint64(r.StartedAt),
		uint64(r.EndedAt),
	)
}

// RecordRefill writes a refill event for player.
func (c *Client) RecordRefill(ctx context.Context, player common.Address, newHealth int) (Receipt, error) {
	if newHealth < 0 {
		return Receipt{}, fault.New(fault.InvalidHealthValue, "health %d is negative", newHealth)
	}
	return c.write(ctx, OpRecordRefill, "recordRefill", player, uint32(newHealth))
}

func (c *Client) write(ctx context.Context, op Op, method string, args ...any) (Receipt, error) {
	opts, err := c.transactOpts(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("build tx opts: %w", err)
	}

	// Gas estimation runs the call first, so most contract rejections
	// surface here before anything is broadcast.
	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return Receipt{}, Classify(op, fmt.Errorf("%s tx: %w", method, err))
	}
	txRef := tx.Hash().Hex()

	waitCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		// Broadcast but unconfirmed: the write may still land.
		fe := fault.Wrap(fault.TransientNetwork, fmt.Errorf("wait mined %s: %w", txRef, err))
		fe.TxRef = txRef
		return Receipt{}, fe
	}
	if receipt.Status == types.ReceiptStatusFailed {
		fe := Classify(op, c.revertReason(ctx, tx, receipt))
		fe.TxRef = txRef
		return Receipt{}, fe
	}

	return Receipt{TxRef: txRef, BlockRef: receipt.BlockNumber.Uint64()}, nil
}

// revertReason replays a failed tx against the parent block so the node
// returns the revert string for classification.
func (c *Client) revertReason(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) error {
	msg := ethereum.CallMsg{
		From:  c.relayer,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	var at *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		at = new(big.Int).Sub(receipt.BlockNumber, common.Big1)
	}
	if _, err := c.eth.CallContract(ctx, msg, at); err != nil {
		return fmt.Errorf("tx %s reverted: %w", tx.Hash().Hex(), err)
	}
	return fmt.Errorf("tx %s reverted", tx.Hash().Hex())
}

// PlayerState reads a player's record. A player the ledger does not know
// resolves to the zero state.
func (c *Client) PlayerState(ctx context.Context, player common.Address) (PlayerState, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPlayer", player); err != nil {
		if isAbsent(err) {
			return PlayerState{}, nil
		}
		return PlayerState{}, Classify(OpRead, fmt.Errorf("getPlayer: %w", err))
	}
	return PlayerState{
		BestScore:    *abi.ConvertType(out[0], new(uint64)).(*uint64),
		LastScore:    *abi.ConvertType(out[1], new(uint64)).(*uint64),
		Runs:         *abi.ConvertType(out[2], new(uint32)).(*uint32),
		LastPlayedAt: *abi.ConvertType(out[3], new(uint64)).(*uint64),
		LastRunID:    common.Hash(*abi.ConvertType(out[4], new([32]byte)).(*[32]byte)),
	}, nil
}

// Top returns at most n ranked entries. Twice n slots are read so that
// placeholder rows dropped by rankTop do not shorten the board.
func (c *Client) Top(ctx context.Context, n int) ([]Entry, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getTopPlayers", big.NewInt(int64(2*n))); err != nil {
		return nil, Classify(OpRead, fmt.Errorf("getTopPlayers: %w", err))
	}
	players := *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address)
	scores := *abi.ConvertType(out[1], new([]uint64)).(*[]uint64)
	return rankTop(players, scores, n), nil
}

func (c *Client) TotalPlayers(ctx context.Context) (uint64, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "totalPlayers"); err != nil {
		return 0, Classify(OpRead, fmt.Errorf("totalPlayers: %w", err))
	}
	return (*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)).Uint64(), nil
}

// MaxScore reads the contract's score cap, used when none is configured.
func (c *Client) MaxScore(ctx context.Context) (uint64, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "maxScore"); err != nil {
		return 0, Classify(OpRead, fmt.Errorf("maxScore: %w", err))
	}
	return *abi.ConvertType(out[0], new(uint64)).(*uint64), nil
}
