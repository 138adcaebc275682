package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Chain       ChainConfig
	Payment     PaymentConfig
	Game        GameConfig
	Retry       RetryConfig
	Leaderboard LeaderboardConfig
	Auth        AuthConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

// ChainConfig points at the ledger contract that stores runs and refills.
type ChainConfig struct {
	RPCURL          string `mapstructure:"rpc_url"`
	ContractAddress string `mapstructure:"contract_address"`
	RelayerKey      string `mapstructure:"relayer_key"`
	ChainID         int64  `mapstructure:"chain_id"`
	WriteTimeoutSec int64  `mapstructure:"write_timeout_sec"`
}

// PaymentConfig describes the refill price and how proofs are checked.
// Verifier is "demo" (syntactic acceptance, non-production) or "onchain".
type PaymentConfig struct {
	Price           string `mapstructure:"price"`
	Currency        string `mapstructure:"currency"`
	Network         string `mapstructure:"network"`
	Receiver        string `mapstructure:"receiver"`
	Memo            string `mapstructure:"memo"`
	Verifier        string `mapstructure:"verifier"`
	DemoToken       string `mapstructure:"demo_token"`
	RPCURL          string `mapstructure:"rpc_url"`
	TokenAddress    string `mapstructure:"token_address"`
	TokenDecimals   int32  `mapstructure:"token_decimals"`
	BindChallenges  bool   `mapstructure:"bind_challenges"`
	ChallengeTTLSec int64  `mapstructure:"challenge_ttl_sec"`
	OnrampURL       string `mapstructure:"onramp_url"`
}

type GameConfig struct {
	MaxHealth            int   `mapstructure:"max_health"`
	RefillAmount         int   `mapstructure:"refill_amount"`
	ScoreMax             int64 `mapstructure:"score_max"`
	MaxSessionSec        int64 `mapstructure:"max_session_sec"`
	SessionAssumptionSec int64 `mapstructure:"session_assumption_sec"`
}

type RetryConfig struct {
	MaxAttempts       uint  `mapstructure:"max_attempts"`
	InitialIntervalMs int64 `mapstructure:"initial_interval_ms"`
	MaxIntervalMs     int64 `mapstructure:"max_interval_ms"`
}

type LeaderboardConfig struct {
	RefreshIntervalSec int64 `mapstructure:"refresh_interval_sec"`
}

type AuthConfig struct {
	RequireSignature bool `mapstructure:"require_signature"`
}

const (
	VerifierDemo    = "demo"
	VerifierOnChain = "onchain"
)

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("chain.write_timeout_sec", 60)
	v.SetDefault("payment.price", "0.01")
	v.SetDefault("payment.currency", "USDC")
	v.SetDefault("payment.network", "base")
	v.SetDefault("payment.memo", "Health refill")
	v.SetDefault("payment.verifier", VerifierDemo)
	v.SetDefault("payment.demo_token", "demo")
	v.SetDefault("payment.token_decimals", 6)
	v.SetDefault("payment.challenge_ttl_sec", 300)
	v.SetDefault("game.max_health", 9)
	v.SetDefault("game.refill_amount", 3)
	v.SetDefault("game.max_session_sec", 3600)
	v.SetDefault("game.session_assumption_sec", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval_ms", 500)
	v.SetDefault("retry.max_interval_ms", 4000)
	v.SetDefault("leaderboard.refresh_interval_sec", 30)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"redis.addr":                       "REDIS_ADDR",
		"redis.password":                   "REDIS_PASSWORD",
		"chain.rpc_url":                    "RPC_URL",
		"chain.contract_address":           "ARCADE_CONTRACT",
		"chain.relayer_key":                "RELAYER_KEY",
		"chain.chain_id":                   "CHAIN_ID",
		"payment.price":                    "REFILL_PRICE",
		"payment.receiver":                 "PAYMENT_RECEIVER",
		"payment.verifier":                 "PAYMENT_VERIFIER",
		"payment.rpc_url":                  "PAYMENT_RPC_URL",
		"payment.token_address":            "PAYMENT_TOKEN",
		"payment.bind_challenges":          "BIND_CHALLENGES",
		"payment.onramp_url":               "ONRAMP_URL",
		"game.score_max":                   "SCORE_MAX",
		"auth.require_signature":           "REQUIRE_SIGNATURE",
		"leaderboard.refresh_interval_sec": "LEADERBOARD_REFRESH_SEC",
		"server.port":                      "PORT",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	type req struct {
		val  string
		name string
	}
	required := []req{
		{c.Chain.RPCURL, "RPC_URL"},
		{c.Chain.ContractAddress, "ARCADE_CONTRACT"},
		{c.Chain.RelayerKey, "RELAYER_KEY"},
		{c.Payment.Receiver, "PAYMENT_RECEIVER"},
	}
	if c.Payment.Verifier == VerifierOnChain {
		required = append(required,
			req{c.Payment.RPCURL, "PAYMENT_RPC_URL"},
			req{c.Payment.TokenAddress, "PAYMENT_TOKEN"},
		)
	}
	for _, r := range required {
		if r.val == "" {
			return fmt.Errorf("required config missing: %s", r.name)
		}
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("required config missing: CHAIN_ID")
	}

	switch c.Payment.Verifier {
	case VerifierDemo, VerifierOnChain:
	default:
		return fmt.Errorf("unknown payment verifier %q", c.Payment.Verifier)
	}
	if !common.IsHexAddress(c.Payment.Receiver) {
		return fmt.Errorf("PAYMENT_RECEIVER is not an address: %q", c.Payment.Receiver)
	}
	price, err := decimal.NewFromString(c.Payment.Price)
	if err != nil {
		return fmt.Errorf("REFILL_PRICE: %w", err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("REFILL_PRICE must be positive, got %s", c.Payment.Price)
	}

	if c.Game.MaxHealth <= 0 || c.Game.RefillAmount <= 0 {
		return fmt.Errorf("game.max_health and game.refill_amount must be positive")
	}
	if c.Game.SessionAssumptionSec <= 0 || c.Game.SessionAssumptionSec > c.Game.MaxSessionSec {
		return fmt.Errorf("game.session_assumption_sec must be in (0, max_session_sec]")
	}
	if c.Leaderboard.RefreshIntervalSec <= 0 {
		return fmt.Errorf("leaderboard.refresh_interval_sec must be positive")
	}
	if c.Retry.MaxAttempts == 0 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}
