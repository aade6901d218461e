package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/defistate/defistate-sor-go/graph"
	"github.com/defistate/defistate-sor-go/optimizer"
	"github.com/defistate/defistate-sor-go/path"
	"github.com/defistate/defistate-sor-go/pathfinder"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds the router's tuning and dependencies.
type Config struct {
	PathFinder pathfinder.Config
	Optimizer  optimizer.Config
	Snapshot   snapshot.Options
	// Timeout bounds a single quote. Zero means no bound beyond the caller's context.
	Timeout time.Duration
	// CacheSize is the number of candidate path sets kept. Zero disables the cache.
	CacheSize int
	Registry  prometheus.Registerer
	Logger    Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	if c.Timeout < 0 {
		return errors.New("config: Timeout cannot be negative")
	}
	if c.CacheSize < 0 {
		return errors.New("config: CacheSize cannot be negative")
	}
	return nil
}

// cacheKey identifies a candidate path set. The fingerprint separates
// snapshots that share a block but differ in content.
type cacheKey struct {
	chainID     uint64
	block       uint64
	fingerprint uint64
	tokenIn     common.Address
	tokenOut    common.Address
	pools       string
}

type cacheEntry struct {
	topologies  []pathfinder.Topology
	onlyBlocked bool
	noLiquidity bool
}

// Router quotes swaps against pool snapshots. It is safe for concurrent use;
// every quote builds its own pool models.
type Router struct {
	cfg       Config
	finder    *pathfinder.Finder
	optimizer *optimizer.Optimizer
	cache     *lru.Cache[cacheKey, cacheEntry]
	metrics   *Metrics
	logger    Logger
}

func New(cfg Config) (*Router, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Router{
		cfg:       cfg,
		finder:    pathfinder.New(cfg.PathFinder),
		optimizer: optimizer.New(cfg.Optimizer),
		metrics:   NewMetrics(cfg.Registry),
		logger:    cfg.Logger,
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[cacheKey, cacheEntry](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating path cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Quote routes req against s. Routing outcomes such as no route, no liquidity,
// timeout or shortfall are reported through Result.Status; the error is
// reserved for malformed input and internal inconsistencies.
func (r *Router) Quote(ctx context.Context, s *snapshot.Snapshot, req Request) (*Result, error) {
	timer := prometheus.NewTimer(r.metrics.quoteDuration.WithLabelValues(req.SwapKind.String()))
	defer timer.ObserveDuration()

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	res, err := r.quote(ctx, s, req)
	if err != nil {
		r.metrics.quotes.WithLabelValues("ERROR").Inc()
		r.logger.Error("quote failed", "tokenIn", req.TokenIn.Hex(), "tokenOut", req.TokenOut.Hex(), "error", err)
		return nil, err
	}
	r.metrics.quotes.WithLabelValues(string(res.Status)).Inc()
	r.logger.Info("quote",
		"status", res.Status,
		"swapKind", res.SwapKind,
		"tokenIn", res.TokenIn.Address.Hex(),
		"tokenOut", res.TokenOut.Address.Hex(),
		"inputAmount", res.InputAmount.Amount,
		"outputAmount", res.OutputAmount.Amount,
		"paths", len(res.Paths),
	)
	return res, nil
}

func (r *Router) quote(ctx context.Context, s *snapshot.Snapshot, req Request) (*Result, error) {
	if err := checkRequest(req); err != nil {
		return nil, &QuoteError{Reason: "invalid request", Err: err}
	}
	u, err := snapshot.Build(s, r.cfg.Snapshot)
	if err != nil {
		return nil, &QuoteError{Reason: "invalid snapshot", Err: err}
	}
	for _, ex := range u.Excluded {
		r.logger.Debug("pool excluded", "pool", ex.PoolID, "reason", ex.Err)
	}

	g := graph.New(u, graph.Options{AllowedPools: req.PoolIDs})
	tokenIn, okIn := resolve(u, g, req.TokenIn)
	tokenOut, okOut := resolve(u, g, req.TokenOut)
	res := &Result{
		SwapKind:     req.SwapKind,
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		InputAmount:  token.Zero(tokenIn),
		OutputAmount: token.Zero(tokenOut),
		PriceImpact:  new(big.Int),
		Shortfall:    new(big.Int),
	}
	if !okIn || !okOut {
		return noRoute(res, fmt.Errorf("%w: token not in snapshot", ErrNoRouteFound)), nil
	}

	given := tokenIn
	if req.SwapKind == protocols.GivenOut {
		given = tokenOut
	}
	amount, err := token.FromRawAmount(given, req.SwapAmount)
	if err != nil {
		return nil, &QuoteError{Reason: "invalid amount", Err: err}
	}

	found, err := r.candidates(ctx, s, u, g, req, tokenIn, tokenOut)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return timedOut(res, ctxErr), nil
		}
		return nil, &QuoteError{Reason: "path search", Err: err}
	}
	candidates := found.Candidates
	if len(candidates) == 0 {
		return noRoute(res, fmt.Errorf("%w: tokens are not connected", ErrNoRouteFound)), nil
	}
	if found.OnlyBlocked || found.NoLiquidity {
		return noLiquidity(res, candidates[0].Path, amount), nil
	}

	opt, err := r.optimizer.Optimize(ctx, candidates, req.SwapKind, amount)
	switch {
	case errors.Is(err, optimizer.ErrNoCapacity):
		return noLiquidity(res, candidates[0].Path, amount), nil
	case errors.Is(err, optimizer.ErrTimeout):
		return timedOut(res, err), nil
	case err != nil:
		return nil, &QuoteError{Reason: "optimization", Err: err}
	}
	for _, key := range opt.Dropped {
		r.logger.Debug("candidate dropped", "path", key)
	}

	if err := assemble(res, opt.Paths); err != nil {
		return nil, &QuoteError{Reason: "assembly", Err: err}
	}
	res.Shortfall = opt.Shortfall
	res.Status = StatusOK
	if res.err = opt.Err(); res.err != nil {
		res.Status = StatusShortfall
	}
	return res, nil
}

// candidates returns the ranked paths, reusing cached topologies for the same
// snapshot contents when they still bind to g.
func (r *Router) candidates(ctx context.Context, s *snapshot.Snapshot, u *snapshot.Universe, g *graph.Graph, req Request, tokenIn, tokenOut token.Token) (*pathfinder.Result, error) {
	var key cacheKey
	if r.cache != nil {
		fingerprint, err := s.Fingerprint()
		if err != nil {
			return nil, err
		}
		key = cacheKey{
			chainID:     u.ChainID,
			block:       u.BlockNumber,
			fingerprint: fingerprint,
			tokenIn:     tokenIn.PoolAddress(),
			tokenOut:    tokenOut.PoolAddress(),
			pools:       poolsKey(req.PoolIDs),
		}
		if entry, ok := r.cache.Get(key); ok {
			candidates, err := pathfinder.Rebind(g, entry.topologies)
			if err == nil {
				r.metrics.cacheHits.WithLabelValues("hit").Inc()
				return &pathfinder.Result{
					Candidates:  candidates,
					OnlyBlocked: entry.onlyBlocked,
					NoLiquidity: entry.noLiquidity,
				}, nil
			}
			r.logger.Warn("cached paths do not bind", "error", err)
			r.cache.Remove(key)
		}
		r.metrics.cacheHits.WithLabelValues("miss").Inc()
	}

	found, err := r.finder.Find(ctx, g, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	r.metrics.pathsEvaluated.Observe(float64(found.Enumerated))
	r.logger.Debug("paths found",
		"enumerated", found.Enumerated,
		"selected", len(found.Candidates),
		"onlyBlocked", found.OnlyBlocked,
		"noLiquidity", found.NoLiquidity,
	)

	if r.cache != nil {
		entry := cacheEntry{onlyBlocked: found.OnlyBlocked, noLiquidity: found.NoLiquidity}
		for _, c := range found.Candidates {
			entry.topologies = append(entry.topologies, c.Topology())
		}
		r.cache.Add(key, entry)
	}
	return found, nil
}

func checkRequest(req Request) error {
	if req.SwapAmount == nil || req.SwapAmount.Sign() <= 0 {
		return fmt.Errorf("%w: swap amount must be positive", ErrInvalidRequest)
	}
	if req.TokenIn == req.TokenOut {
		return fmt.Errorf("%w: tokenIn equals tokenOut", ErrInvalidRequest)
	}
	if req.SwapKind != protocols.GivenIn && req.SwapKind != protocols.GivenOut {
		return fmt.Errorf("%w: unknown swap kind %d", ErrInvalidRequest, req.SwapKind)
	}
	return nil
}

// resolve finds a token in the snapshot registry, falling back to the graph
// for pool tokens that are only known as a BPT.
func resolve(u *snapshot.Universe, g *graph.Graph, address common.Address) (token.Token, bool) {
	if t, ok := u.Tokens.GetByAddress(address); ok {
		return t, true
	}
	if i, ok := g.TokenIndex(token.Token{Address: address}); ok {
		return g.Token(i), true
	}
	return token.Token{ChainID: u.ChainID, Address: address, Wrapped: address}, false
}

func poolsKey(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func assemble(res *Result, paths []path.WithAmount) error {
	input, err := InputAmount(paths)
	if err != nil {
		return err
	}
	output, err := OutputAmount(paths)
	if err != nil {
		return err
	}
	if !input.Token.IsUnderlyingEqual(res.TokenIn) || !output.Token.IsUnderlyingEqual(res.TokenOut) {
		return fmt.Errorf("%w: paths run %s -> %s", ErrInconsistentPathTokens, input.Token, output.Token)
	}
	impact, err := PriceImpact(paths, res.SwapKind, input, output)
	if err != nil {
		return err
	}
	res.InputAmount = input
	res.OutputAmount = output
	res.Paths = paths
	res.PriceImpact = impact
	return nil
}

func noRoute(res *Result, err error) *Result {
	res.Status = StatusNoRoute
	res.err = err
	return res
}

func timedOut(res *Result, err error) *Result {
	res.Status = StatusTimeout
	res.err = fmt.Errorf("%w: %w", ErrTimeout, err)
	return res
}

// noLiquidity reports a route that exists but carries nothing, as a single
// zero-output path. For GivenIn the path keeps the requested input.
func noLiquidity(res *Result, p path.Path, amount token.Amount) *Result {
	zeroPath := path.WithAmount{
		Path:         p,
		SwapKind:     res.SwapKind,
		InputAmount:  token.Zero(p.TokenIn()),
		OutputAmount: token.Zero(p.TokenOut()),
	}
	if res.SwapKind == protocols.GivenIn {
		zeroPath.InputAmount = amount
		res.InputAmount = amount
	}
	res.Paths = []path.WithAmount{zeroPath}
	res.Status = StatusNoLiquidity
	res.err = fmt.Errorf("%w: no liquidity via %s", ErrNoRouteFound, p.Key())
	return res
}
