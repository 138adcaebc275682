// Package auth checks EIP-191 wallet signatures on player-initiated writes so
// a score can only be submitted by the wallet it is credited to.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	HeaderWallet    = "X-Wallet-Address"
	HeaderMessage   = "X-Signed-Message"
	HeaderSignature = "X-Wallet-Signature"

	walletKey      = "wallet_address"
	nonceKeyPrefix = "auth:nonce:"
)

// SignedRequest is the JSON payload inside X-Signed-Message (fields sorted).
type SignedRequest struct {
	Action     string          `json:"action"`
	ExpiresAt  int64           `json:"expires_at"`
	Nonce      string          `json:"nonce"`
	Payload    json.RawMessage `json:"payload"`
	ResourceID string          `json:"resource_id"`
}

const maxFutureWindow = 5 * time.Minute

// Middleware rejects requests that are not signed by the wallet named in
// X-Wallet-Address for the given action. Each nonce is accepted once while
// its request is unexpired.
func Middleware(rdb *redis.Client, action string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		walletAddr := c.GetHeader(HeaderWallet)
		signedMsgB64 := c.GetHeader(HeaderMessage)
		sigHex := c.GetHeader(HeaderSignature)

		if walletAddr == "" || signedMsgB64 == "" || sigHex == "" {
			abort(c, "missing auth headers")
			return
		}
		if !common.IsHexAddress(walletAddr) {
			abort(c, "invalid wallet address")
			return
		}

		msgBytes, err := base64.StdEncoding.DecodeString(signedMsgB64)
		if err != nil {
			abort(c, "invalid X-Signed-Message encoding")
			return
		}
		var req SignedRequest
		if err := json.Unmarshal(msgBytes, &req); err != nil {
			abort(c, "invalid signed message JSON")
			return
		}
		if req.Action != action {
			abort(c, "signed for a different action")
			return
		}

		now := time.Now().Unix()
		if req.ExpiresAt <= now {
			abort(c, "request expired")
			return
		}
		if req.ExpiresAt > now+int64(maxFutureWindow.Seconds()) {
			abort(c, "expires_at too far in future")
			return
		}

		recovered, err := Recover(msgBytes, sigHex)
		if err != nil || recovered != common.HexToAddress(walletAddr) {
			abort(c, "invalid signature")
			return
		}

		ttl := time.Duration(req.ExpiresAt-now) * time.Second
		fresh, err := rdb.SetNX(c.Request.Context(), nonceKeyPrefix+req.Nonce, recovered.Hex(), ttl).Result()
		if err != nil {
			log.Error("auth: nonce check", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !fresh {
			abort(c, "nonce already used")
			return
		}

		c.Set(walletKey, recovered)
		c.Next()
	}
}

// Wallet returns the signer verified by Middleware, if any.
func Wallet(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(walletKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := v.(common.Address)
	return addr, ok
}

// SignHeaders builds the three auth headers for msg signed by sigHex.
func SignHeaders(wallet common.Address, msg []byte, sigHex string) map[string]string {
	return map[string]string{
		HeaderWallet:    wallet.Hex(),
		HeaderMessage:   base64.StdEncoding.EncodeToString(msg),
		HeaderSignature: sigHex,
	}
}

func abort(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msg})
}
