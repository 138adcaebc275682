package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/api"
	"github.com/0gfoundation/0g-arcade/internal/auth"
	"github.com/0gfoundation/0g-arcade/internal/config"
	"github.com/0gfoundation/0g-arcade/internal/leaderboard"
	"github.com/0gfoundation/0g-arcade/internal/ledger"
	"github.com/0gfoundation/0g-arcade/internal/payment"
	"github.com/0gfoundation/0g-arcade/internal/poll"
	"github.com/0gfoundation/0g-arcade/internal/refill"
	"github.com/0gfoundation/0g-arcade/internal/run"
	"github.com/0gfoundation/0g-arcade/internal/score"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Ledger client (relayer key + arcade ABI) ──────────────────────────────
	gw, err := ledger.NewClient(cfg)
	if err != nil {
		log.Fatal("ledger client init failed", zap.Error(err))
	}
	defer gw.Close()
	log.Info("ledger ready",
		zap.String("contract", gw.ContractAddress().Hex()),
		zap.String("relayer", gw.Relayer().Hex()),
	)

	// ── Payment verifier ──────────────────────────────────────────────────────
	verifier, closeVerifier, err := newVerifier(cfg.Payment, rdb)
	if err != nil {
		log.Fatal("payment verifier init failed", zap.Error(err))
	}
	defer closeVerifier()
	if cfg.Payment.Verifier == config.VerifierDemo {
		log.Warn("demo payment verifier active: proofs are checked for shape only")
	}

	var registry *payment.Registry
	if cfg.Payment.BindChallenges {
		registry = payment.NewRegistry(rdb, time.Duration(cfg.Payment.ChallengeTTLSec)*time.Second)
	}

	// ── Workflows ─────────────────────────────────────────────────────────────
	refills := refill.NewWorkflow(
		payment.NewIssuer(cfg.Payment),
		verifier,
		registry,
		refill.NewQueue(rdb),
		cfg.Game.MaxHealth,
		cfg.Game.RefillAmount,
		log,
	)
	scores := score.NewWorkflow(gw, scorePolicy(ctx, cfg.Game, gw, log), cfg.Retry, log)
	board := leaderboard.NewService(gw, rdb, log)

	// ── Background workers ────────────────────────────────────────────────────
	recorder := refill.NewRecorder(rdb, gw, int(cfg.Retry.MaxAttempts), log)
	go recorder.Run(ctx)

	warm := poll.New("leaderboard", time.Duration(cfg.Leaderboard.RefreshIntervalSec)*time.Second,
		func(ctx context.Context, _ string) {
			if _, err := board.Refresh(ctx); err != nil {
				log.Warn("leaderboard refresh failed", zap.Error(err))
			}
		}, log)
	warm.Bind(ctx, leaderboard.SnapshotKey)
	defer warm.Stop()

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	var submitAuth []gin.HandlerFunc
	if cfg.Auth.RequireSignature {
		submitAuth = append(submitAuth, auth.Middleware(rdb, "submitScore", log))
	}
	api.NewHandler(refills, scores, board, log).Register(r.Group("/api"), submitAuth...)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// newVerifier picks the proof check from config. The returned func releases
// any connection the verifier holds.
func newVerifier(cfg config.PaymentConfig, rdb *redis.Client) (payment.Verifier, func(), error) {
	switch cfg.Verifier {
	case config.VerifierOnChain:
		eth, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial payment rpc: %w", err)
		}
		v := payment.NewOnChainVerifier(eth, common.HexToAddress(cfg.TokenAddress), cfg.TokenDecimals, rdb)
		return v, eth.Close, nil
	case config.VerifierDemo:
		return payment.DemoVerifier{Sentinel: cfg.DemoToken}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown payment verifier %q", cfg.Verifier)
	}
}

type maxScoreReader interface {
	MaxScore(ctx context.Context) (uint64, error)
}

// scorePolicy builds the local validation limits. When no maximum is
// configured it is read from the contract; if that fails only the ledger
// enforces it.
func scorePolicy(ctx context.Context, g config.GameConfig, src maxScoreReader, log *zap.Logger) run.Policy {
	p := run.Policy{
		ScoreMax:          g.ScoreMax,
		MaxSession:        time.Duration(g.MaxSessionSec) * time.Second,
		SessionAssumption: time.Duration(g.SessionAssumptionSec) * time.Second,
	}
	if p.ScoreMax > 0 {
		return p
	}
	readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	m, err := src.MaxScore(readCtx)
	if err != nil {
		log.Warn("max score unknown, deferring to ledger", zap.Error(err))
		return p
	}
	if m > 0 && m <= math.MaxInt64 {
		p.ScoreMax = int64(m)
	}
	log.Info("max score read from ledger", zap.Int64("scoreMax", p.ScoreMax))
	return p
}
