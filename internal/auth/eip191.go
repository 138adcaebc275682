package auth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// hashMessage builds the EIP-191 personal_sign digest:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func hashMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// Sign produces a wallet-style personal_sign signature over msg, hex encoded
// with V in {27,28}.
func Sign(msg []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(hashMessage(msg), key)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Recover returns the address that signed msg. sigHex is 65 bytes
// (R || S || V), optionally 0x-prefixed, with V in {0,1} or {27,28}.
func Recover(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, errors.New("invalid signature hex")
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.New("invalid signature length")
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hashMessage(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
