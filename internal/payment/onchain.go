package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const spentKeyPrefix = "payment:spent:"

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ReceiptSource is satisfied by *ethclient.Client.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// OnChainVerifier treats the proof token as a transaction hash on the payment
// network and accepts it when that transaction moved at least the challenge
// price of the configured token to the receiver. A hash unlocks one refill.
type OnChainVerifier struct {
	receipts ReceiptSource
	token    common.Address
	decimals int32
	rdb      *redis.Client
}

func NewOnChainVerifier(receipts ReceiptSource, token common.Address, decimals int32, rdb *redis.Client) *OnChainVerifier {
	return &OnChainVerifier{receipts: receipts, token: token, decimals: decimals, rdb: rdb}
}

func (v *OnChainVerifier) Verify(ctx context.Context, c Challenge, p Proof) (bool, error) {
	if !isHexRef(p.Token, 64) {
		return false, nil
	}
	hash := common.HexToHash(p.Token)

	receipt, err := v.receipts.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return false, nil
	}

	want, err := baseUnits(c.Price, v.decimals)
	if err != nil {
		return false, err
	}
	if !paysReceiver(receipt.Logs, v.token, common.HexToAddress(c.Receiver), want) {
		return false, nil
	}

	fresh, err := v.rdb.SetNX(ctx, spentKeyPrefix+hash.Hex(), p.PlayerAddress, 0).Result()
	if err != nil {
		return false, fmt.Errorf("mark proof spent: %w", err)
	}
	return fresh, nil
}

// Release returns the proof's transaction to the unspent set. The workflow
// calls it when an accepted proof did not end in a grant.
func (v *OnChainVerifier) Release(ctx context.Context, p Proof) error {
	if !isHexRef(p.Token, 64) {
		return nil
	}
	if err := v.rdb.Del(ctx, spentKeyPrefix+common.HexToHash(p.Token).Hex()).Err(); err != nil {
		return fmt.Errorf("release proof: %w", err)
	}
	return nil
}

// baseUnits converts a decimal price to the token's integer units, rounding up.
func baseUnits(price string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return d.Shift(decimals).Ceil().BigInt(), nil
}

func paysReceiver(logs []*types.Log, token, receiver common.Address, want *big.Int) bool {
	for _, l := range logs {
		if l == nil || l.Address != token || len(l.Topics) != 3 || l.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(l.Topics[2].Bytes()) != receiver {
			continue
		}
		if new(big.Int).SetBytes(l.Data).Cmp(want) >= 0 {
			return true
		}
	}
	return false
}
