// Package api exposes the refill, score and read-model flows over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/auth"
	"github.com/0gfoundation/0g-arcade/internal/fault"
	"github.com/0gfoundation/0g-arcade/internal/leaderboard"
	"github.com/0gfoundation/0g-arcade/internal/payment"
	"github.com/0gfoundation/0g-arcade/internal/refill"
	"github.com/0gfoundation/0g-arcade/internal/score"
)

// HeaderPayment carries the payment proof as an alternative to the body
// field. HeaderChallenge does the same for the challenge id.
const (
	HeaderPayment   = "X-Payment"
	HeaderChallenge = "X-Payment-Challenge"
)

// Refiller is satisfied by *refill.Workflow.
type Refiller interface {
	Handle(ctx context.Context, p payment.Proof) (refill.Outcome, error)
}

// ScoreSubmitter is satisfied by *score.Workflow.
type ScoreSubmitter interface {
	Submit(ctx context.Context, player common.Address, score int64, now time.Time) (score.Result, error)
}

// ReadModel is satisfied by *leaderboard.Service.
type ReadModel interface {
	Top(ctx context.Context, limit int) (leaderboard.Board, error)
	PlayerState(ctx context.Context, player common.Address) (leaderboard.PlayerView, error)
}

// Handler wires the game routes onto a Gin router group.
type Handler struct {
	refill Refiller
	scores ScoreSubmitter
	board  ReadModel
	log    *zap.Logger
}

func NewHandler(rf Refiller, sc ScoreSubmitter, rm ReadModel, log *zap.Logger) *Handler {
	return &Handler{refill: rf, scores: sc, board: rm, log: log}
}

// Register mounts all routes. submitAuth, when given, guards score
// submission; the handler then requires the body's player to be the signer.
func (h *Handler) Register(rg *gin.RouterGroup, submitAuth ...gin.HandlerFunc) {
	rg.POST("/refill", h.handleRefill)
	rg.POST("/submitScore", slices.Concat(submitAuth, []gin.HandlerFunc{h.handleSubmitScore})...)
	rg.GET("/playerState/:address", h.handlePlayerState)
	rg.GET("/leaderboard", h.handleLeaderboard)
}

// ── Refill ──────────────────────────────────────────────────────────────────

type refillRequest struct {
	CurrentHealth *int   `json:"currentHealth"`
	PlayerAddress string `json:"playerAddress"`
	PaymentProof  string `json:"paymentProof"`
	ChallengeID   string `json:"challengeId"`
}

type challengeResponse struct {
	payment.Challenge
	Onramp string `json:"onramp,omitempty"`
}

func (h *Handler) handleRefill(c *gin.Context) {
	var req refillRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeFault(c, fault.New(fault.InvalidRequest, "decode body: %v", err))
		return
	}

	p := payment.Proof{
		Token:           firstNonEmpty(c.GetHeader(HeaderPayment), req.PaymentProof),
		PresentedHealth: -1,
		PlayerAddress:   req.PlayerAddress,
		ChallengeID:     firstNonEmpty(c.GetHeader(HeaderChallenge), req.ChallengeID),
	}
	if req.CurrentHealth != nil {
		p.PresentedHealth = *req.CurrentHealth
	}

	out, err := h.refill.Handle(c.Request.Context(), p)
	if err != nil {
		writeFault(c, err)
		return
	}
	switch out.State {
	case refill.AwaitingProof:
		c.JSON(http.StatusPaymentRequired, challengeResponse{Challenge: out.Challenge, Onramp: out.Onramp})
	case refill.Fulfilled:
		c.JSON(http.StatusOK, gin.H{
			"ok":             true,
			"newHealth":      out.NewHealth,
			"healthIncrease": out.HealthIncrease,
		})
	default:
		writeFault(c, fault.New(fault.Unknown, "refill ended in state %q", out.State))
	}
}

// ── Score ───────────────────────────────────────────────────────────────────

type submitScoreRequest struct {
	Player string `json:"player"`
	Score  *int64 `json:"score"`
}

func (h *Handler) handleSubmitScore(c *gin.Context) {
	var req submitScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeFault(c, fault.New(fault.InvalidRequest, "decode body: %v", err))
		return
	}
	if !common.IsHexAddress(req.Player) {
		writeFault(c, fault.New(fault.InvalidRequest, "player %q is not an address", req.Player))
		return
	}
	if req.Score == nil {
		writeFault(c, fault.New(fault.InvalidRequest, "score is required"))
		return
	}
	player := common.HexToAddress(req.Player)

	if signer, ok := auth.Wallet(c); ok && signer != player {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "player does not match signer"})
		return
	}

	res, err := h.scores.Submit(c.Request.Context(), player, *req.Score, time.Now())
	if err != nil {
		var fe *fault.Error
		if !errors.As(err, &fe) {
			fe = fault.Wrap(fault.Unknown, err)
		}
		body := faultBody(fe)
		body["success"] = false
		if res.RunID != (common.Hash{}) {
			body["runId"] = res.RunID.Hex()
		}
		if res.TxRef != "" {
			body["txRef"] = res.TxRef
		}
		c.JSON(fault.HTTPStatus(fe.Category), body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"txRef":    res.TxRef,
		"blockRef": res.BlockRef,
		"runId":    res.RunID.Hex(),
		"score":    res.Score,
	})
}

// ── Read model ──────────────────────────────────────────────────────────────

func (h *Handler) handlePlayerState(c *gin.Context) {
	addr := c.Param("address")
	if !common.IsHexAddress(addr) {
		writeFault(c, fault.New(fault.InvalidRequest, "%q is not an address", addr))
		return
	}
	v, err := h.board.PlayerState(c.Request.Context(), common.HexToAddress(addr))
	if err != nil {
		h.log.Warn("player state read failed", zap.String("player", addr), zap.Error(err))
		writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) handleLeaderboard(c *gin.Context) {
	limit := leaderboard.MaxLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeFault(c, fault.New(fault.InvalidRequest, "limit %q is not a number", s))
			return
		}
		limit = n
	}
	b, err := h.board.Top(c.Request.Context(), limit)
	if err != nil {
		h.log.Warn("leaderboard read failed", zap.Error(err))
		writeFault(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func writeFault(c *gin.Context, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		fe = fault.Wrap(fault.Unknown, err)
	}
	c.JSON(fault.HTTPStatus(fe.Category), faultBody(fe))
}

func faultBody(fe *fault.Error) gin.H {
	body := gin.H{
		"error":   string(fe.Category),
		"message": fault.Message(fe.Category),
	}
	if d := fe.Details(); d != "" {
		body["details"] = d
	}
	return body
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
