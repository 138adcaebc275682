// cmd/ledgerctl inspects the arcade ledger and produces signed request
// headers for manual testing against the API.
//
// Usage:
//
//	go run ./cmd/ledgerctl/ --rpc <url> --contract 0x<addr> player 0x<player>
//	go run ./cmd/ledgerctl/ --rpc <url> --contract 0x<addr> top [n]
//	go run ./cmd/ledgerctl/ --rpc <url> balance 0x<owner> [--token 0x<erc20> --decimals 6]
//	go run ./cmd/ledgerctl/ --rpc <url> --contract 0x<addr> logs <from> <to>
//	go run ./cmd/ledgerctl/ --rpc <url> --contract 0x<addr> watch 0x<player>
//	PLAYER_KEY=0x<key> go run ./cmd/ledgerctl/ sign [--action submitScore] [--payload '{"score":10}']
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-arcade/internal/auth"
	"github.com/0gfoundation/0g-arcade/internal/leaderboard"
	"github.com/0gfoundation/0g-arcade/internal/ledger"
	"github.com/0gfoundation/0g-arcade/internal/poll"
)

func main() {
	rpc := flag.String("rpc", envOr("RPC_URL", "https://evmrpc-testnet.0g.ai"), "RPC endpoint")
	contractHex := flag.String("contract", os.Getenv("ARCADE_CONTRACT"), "Arcade contract address")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fatalf("usage: ledgerctl [flags] player|top|balance|logs|watch|sign ...")
	}
	cmd, rest := args[0], args[1:]

	if cmd == "sign" {
		runSign(rest)
		return
	}

	if !common.IsHexAddress(*contractHex) && cmd != "balance" {
		fatalf("--contract (or ARCADE_CONTRACT) must be an address, got %q", *contractHex)
	}
	c, err := ledger.Dial(*rpc, common.HexToAddress(*contractHex))
	if err != nil {
		fatalf("%v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {
	case "player":
		player := addressArg(rest, 0, "player")
		st, err := c.PlayerState(ctx, player)
		if err != nil {
			fatalf("player state: %v", err)
		}
		printPlayer(player, st)
	case "top":
		n := leaderboard.MaxLimit
		if len(rest) > 0 {
			if n, err = strconv.Atoi(rest[0]); err != nil {
				fatalf("top: %q is not a number", rest[0])
			}
		}
		entries, err := c.Top(ctx, leaderboard.ClampLimit(n))
		if err != nil {
			fatalf("top: %v", err)
		}
		total, err := c.TotalPlayers(ctx)
		if err != nil {
			fatalf("total players: %v", err)
		}
		for _, e := range entries {
			fmt.Printf("%2d  %s  %d\n", e.Rank, e.Player.Hex(), e.Score)
		}
		fmt.Printf("players:  %d\n", total)
	case "balance":
		runBalance(ctx, c, rest)
	case "logs":
		if len(rest) < 2 {
			fatalf("usage: logs <from> <to>")
		}
		from, err1 := strconv.ParseUint(rest[0], 10, 64)
		to, err2 := strconv.ParseUint(rest[1], 10, 64)
		if err1 != nil || err2 != nil || from > to {
			fatalf("logs: bad block range %q-%q", rest[0], rest[1])
		}
		logs, err := c.RunLogs(ctx, from, to)
		if err != nil {
			fatalf("logs: %v", err)
		}
		for _, l := range logs {
			fmt.Printf("%d  %s  %s  %d  %s\n", l.Block, l.Player.Hex(), l.RunID.Hex(), l.Score, l.TxRef)
		}
		fmt.Printf("runs:     %d\n", len(logs))
	case "watch":
		cancel()
		runWatch(c, addressArg(rest, 0, "player"))
	default:
		fatalf("unknown command %q", cmd)
	}
}

func runBalance(ctx context.Context, src ledger.BalanceSource, args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	token := fs.String("token", "", "ERC-20 token address (native balance when empty)")
	decimals := fs.Int("decimals", 18, "Token decimals")
	owner := addressArg(args, 0, "owner")
	if err := fs.Parse(args[1:]); err != nil {
		fatalf("balance: %v", err)
	}

	var (
		bal *big.Int
		err error
	)
	if *token == "" {
		bal, err = src.NativeBalance(ctx, owner)
	} else {
		if !common.IsHexAddress(*token) {
			fatalf("--token must be an address, got %q", *token)
		}
		bal, err = src.TokenBalance(ctx, common.HexToAddress(*token), owner)
	}
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("owner:    %s\n", owner.Hex())
	fmt.Printf("balance:  %s (%s base units)\n", formatUnits(bal, int32(*decimals)), bal)
}

// runWatch prints the player's state every few seconds until interrupted.
func runWatch(c *ledger.Client, player common.Address) {
	log, _ := zap.NewDevelopment()
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := poll.New("watch", 5*time.Second, func(ctx context.Context, p common.Address) {
		st, err := c.PlayerState(ctx, p)
		if err != nil {
			log.Warn("player state read failed", zap.Error(err))
			return
		}
		printPlayer(p, st)
	}, log)
	loop.Bind(ctx, player)
	<-ctx.Done()
	loop.Stop()
}

func runSign(args []string) {
	fs := flag.NewFlagSet("sign", flag.ExitOnError)
	action := fs.String("action", "submitScore", "Action the signature is bound to")
	payload := fs.String("payload", "{}", "JSON payload embedded in the signed message")
	ttl := fs.Duration("ttl", 2*time.Minute, "Validity window of the signed request")
	if err := fs.Parse(args); err != nil {
		fatalf("sign: %v", err)
	}

	keyHex := strings.TrimPrefix(os.Getenv("PLAYER_KEY"), "0x")
	if keyHex == "" {
		fmt.Fprintln(os.Stderr, "error: PLAYER_KEY not set")
		os.Exit(1)
	}
	headers, err := signedHeaders(keyHex, *action, json.RawMessage(*payload), *ttl, time.Now())
	if err != nil {
		fatalf("sign: %v", err)
	}
	for _, k := range []string{auth.HeaderWallet, auth.HeaderMessage, auth.HeaderSignature} {
		fmt.Printf("%s: %s\n", k, headers[k])
	}
}

// signedHeaders builds the auth headers for one request, using a fresh nonce.
func signedHeaders(keyHex, action string, payload json.RawMessage, ttl time.Duration, now time.Time) (map[string]string, error) {
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse key: %w", err)
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}
	msg, err := json.Marshal(auth.SignedRequest{
		Action:    action,
		ExpiresAt: now.Add(ttl).Unix(),
		Nonce:     uuid.NewString(),
		Payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	sig, err := auth.Sign(msg, key)
	if err != nil {
		return nil, err
	}
	return auth.SignHeaders(crypto.PubkeyToAddress(key.PublicKey), msg, sig), nil
}

func printPlayer(player common.Address, st ledger.PlayerState) {
	fmt.Printf("player:      %s\n", player.Hex())
	fmt.Printf("best score:  %d\n", st.BestScore)
	fmt.Printf("last score:  %d\n", st.LastScore)
	fmt.Printf("runs:        %d\n", st.Runs)
	fmt.Printf("difficulty:  %d\n", leaderboard.Difficulty(st.BestScore))
}

// formatUnits renders a base-unit amount with the given decimals.
func formatUnits(v *big.Int, decimals int32) string {
	return decimal.NewFromBigInt(v, -decimals).String()
}

func addressArg(args []string, i int, name string) common.Address {
	if len(args) <= i || !common.IsHexAddress(args[i]) {
		fatalf("%s address required", name)
	}
	return common.HexToAddress(args[i])
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}
