package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/defistate/defistate-sor-go/config"
	"github.com/defistate/defistate-sor-go/differ"
	"github.com/defistate/defistate-sor-go/graph"
	"github.com/defistate/defistate-sor-go/patcher"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/router"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

type flags struct {
	configPath   string
	snapshotPath string
	diffPaths    string
	tokenIn      string
	tokenOut     string
	amount       string
	kind         string
	pools        string
	dumpGraph    bool
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	f := parseFlags()
	cfg, err := loadConfig(f.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}
	level, _ := cfg.Level()
	rootLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	closeApp := func() {
		os.Exit(1)
	}

	if f.snapshotPath != "" {
		cfg.SnapshotPath = f.snapshotPath
	}
	s, err := readSnapshot(cfg.SnapshotPath)
	if err != nil {
		rootLogger.Error("Failed to read snapshot", "path", cfg.SnapshotPath, "error", err)
		closeApp()
	}
	if f.diffPaths != "" {
		for _, p := range strings.Split(f.diffPaths, ",") {
			if s, err = applyDiff(s, p); err != nil {
				rootLogger.Error("Failed to apply snapshot diff", "path", p, "error", err)
				closeApp()
			}
			rootLogger.Debug("Applied snapshot diff", "path", p, "block", s.BlockNumber)
		}
	}

	if f.dumpGraph {
		if err := dumpGraph(s, cfg, f.pools); err != nil {
			rootLogger.Error("Failed to build graph", "error", err)
			closeApp()
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routerCfg, err := cfg.Router(prometheus.DefaultRegisterer, rootLogger.With("component", "router"))
	if err != nil {
		rootLogger.Error("Invalid router configuration", "error", err)
		closeApp()
	}
	r, err := router.New(routerCfg)
	if err != nil {
		rootLogger.Error("Failed to initialize router", "error", err)
		closeApp()
	}

	req, err := buildRequest(s, f)
	if err != nil {
		rootLogger.Error("Invalid request", "error", err)
		closeApp()
	}
	res, err := r.Quote(ctx, s, req)
	if err != nil {
		rootLogger.Error("Quote failed", "error", err)
		closeApp()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		rootLogger.Error("Failed to encode result", "error", err)
		closeApp()
	}
	if res.Status != router.StatusOK {
		closeApp()
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "config.yaml", "Path to the configuration file.")
	flag.StringVar(&f.snapshotPath, "snapshot", "", "Path to the pool snapshot JSON. Overrides the config.")
	flag.StringVar(&f.diffPaths, "diff", "", "Comma separated snapshot diff JSON files applied in order.")
	flag.StringVar(&f.tokenIn, "in", "", "Input token address.")
	flag.StringVar(&f.tokenOut, "out", "", "Output token address.")
	flag.StringVar(&f.amount, "amount", "", "Swap amount in token units, e.g. 1.5.")
	flag.StringVar(&f.kind, "kind", "GivenIn", "Swap kind: GivenIn or GivenOut.")
	flag.StringVar(&f.pools, "pools", "", "Comma separated pool ids to restrict routing to.")
	flag.BoolVar(&f.dumpGraph, "dump-graph", false, "Print the token graph as JSON and exit.")
	flag.Parse()
	return f
}

// loadConfig reads the config file when it exists, then applies the environment.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSnapshot(path string) (*snapshot.Snapshot, error) {
	if path == "" {
		return nil, errors.New("no snapshot path configured")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return snapshot.Decode(file)
}

func applyDiff(s *snapshot.Snapshot, path string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var diff differ.SnapshotDiff
	if err := json.Unmarshal(data, &diff); err != nil {
		return nil, fmt.Errorf("decoding diff: %w", err)
	}
	return patcher.Patch(s, &diff)
}

func buildRequest(s *snapshot.Snapshot, f flags) (router.Request, error) {
	if !common.IsHexAddress(f.tokenIn) || !common.IsHexAddress(f.tokenOut) {
		return router.Request{}, errors.New("-in and -out must be hex addresses")
	}
	kind, err := protocols.ParseSwapKind(f.kind)
	if err != nil {
		return router.Request{}, err
	}
	req := router.Request{
		TokenIn:  common.HexToAddress(f.tokenIn),
		TokenOut: common.HexToAddress(f.tokenOut),
		SwapKind: kind,
	}
	if f.pools != "" {
		req.PoolIDs = strings.Split(f.pools, ",")
	}

	given := req.TokenIn
	if kind == protocols.GivenOut {
		given = req.TokenOut
	}
	raw, err := rawAmount(s, given, f.amount)
	if err != nil {
		return router.Request{}, err
	}
	req.SwapAmount = raw
	return req, nil
}

// rawAmount scales a human amount by the decimals the snapshot lists for
// address. Unlisted tokens, such as pool shares, use 18 decimals.
func rawAmount(s *snapshot.Snapshot, address common.Address, human string) (*big.Int, error) {
	decimals := uint8(18)
	if d, ok := s.Decimals(address); ok {
		decimals = d
	}
	t, err := token.New(s.ChainID, address, decimals, "")
	if err != nil {
		return nil, err
	}
	amount, err := token.FromHumanAmount(t, human)
	if err != nil {
		return nil, err
	}
	return amount.Amount, nil
}

func dumpGraph(s *snapshot.Snapshot, cfg *config.Config, pools string) error {
	u, err := snapshot.Build(s, snapshot.Options{StableMaxIterations: cfg.StableMaxIterations})
	if err != nil {
		return err
	}
	var opts graph.Options
	if pools != "" {
		opts.AllowedPools = strings.Split(pools, ",")
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(graph.New(u, opts).View())
}
