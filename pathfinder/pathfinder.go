package pathfinder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"sort"

	"github.com/defistate/defistate-sor-go/bitset"
	"github.com/defistate/defistate-sor-go/graph"
	"github.com/defistate/defistate-sor-go/path"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxHops       = 4
	DefaultTopK          = 3
	DefaultMaxPaths      = 5
	DefaultMaxCandidates = 10_000
)

// ErrStaleTopology is returned when a cached topology no longer matches the graph.
var ErrStaleTopology = errors.New("topology does not match graph")

// Config bounds the search. Zero values take the defaults.
type Config struct {
	MaxHops int
	// TopK is the number of multi-hop paths kept per hop count. Direct paths
	// are always kept.
	TopK     int
	MaxPaths int
	// MaxCandidates stops enumeration once that many multi-hop paths were
	// found. Paths are enumerated by increasing hop count and direct paths do
	// not count towards it.
	MaxCandidates int
	Workers       int
}

func (c Config) withDefaults() Config {
	if c.MaxHops <= 0 {
		c.MaxHops = DefaultMaxHops
	}
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxPaths <= 0 {
		c.MaxPaths = DefaultMaxPaths
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	return c
}

// Candidate is a scored path skeleton ready for optimization.
type Candidate struct {
	Path path.Path
	// Score is the smallest normalized liquidity across the hops.
	Score *big.Int
	Key   string
}

// Topology is the pool-independent form of a candidate, safe to cache across
// universes built from the same snapshot.
type Topology struct {
	Tokens   []common.Address
	Pools    []string
	IsBuffer []bool
	Score    *big.Int
}

func (c Candidate) Topology() Topology {
	t := Topology{
		Tokens:   make([]common.Address, len(c.Path.Tokens)),
		Pools:    make([]string, len(c.Path.Pools)),
		IsBuffer: append([]bool(nil), c.Path.IsBuffer...),
		Score:    new(big.Int).Set(c.Score),
	}
	for i, tok := range c.Path.Tokens {
		t.Tokens[i] = tok.PoolAddress()
	}
	for i, p := range c.Path.Pools {
		t.Pools[i] = p.ID()
	}
	return t
}

// Result is the outcome of one search.
type Result struct {
	Candidates []Candidate
	// OnlyBlocked is set when every route runs through a disallowed
	// unbalanced leg. Such candidates carry a zero score.
	OnlyBlocked bool
	// NoLiquidity is set when routes exist but none has a positive score.
	// Such candidates carry a zero score.
	NoLiquidity bool
	// Enumerated counts the raw paths found before scoring and selection.
	Enumerated int
}

// Finder enumerates and ranks candidate paths.
type Finder struct {
	cfg Config
}

func New(cfg Config) *Finder {
	return &Finder{cfg: cfg.withDefaults()}
}

// Find returns the ranked candidates from tokenIn to tokenOut. An empty
// result means no route exists.
func (f *Finder) Find(ctx context.Context, g *graph.Graph, tokenIn, tokenOut token.Token) (*Result, error) {
	start, ok := g.TokenIndex(tokenIn)
	if !ok {
		return &Result{}, nil
	}
	target, ok := g.TokenIndex(tokenOut)
	if !ok || start == target {
		return &Result{}, nil
	}

	raw, err := f.enumerate(ctx, g, start, target, false)
	if err != nil {
		return nil, err
	}
	onlyBlocked := false
	if len(raw) == 0 {
		if raw, err = f.enumerate(ctx, g, start, target, true); err != nil {
			return nil, err
		}
		onlyBlocked = len(raw) > 0
	}

	paths := make([]path.Path, len(raw))
	for i, edges := range raw {
		paths[i] = toPath(g, edges)
	}
	scores, err := f.score(ctx, paths)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(paths))
	for i, p := range paths {
		if scores[i] == nil || (scores[i].Sign() == 0 && !onlyBlocked) {
			continue
		}
		candidates = append(candidates, Candidate{Path: p, Score: scores[i], Key: p.Key()})
	}
	noLiquidity := false
	if len(candidates) == 0 && len(paths) > 0 {
		noLiquidity = true
		for _, p := range paths {
			candidates = append(candidates, Candidate{Path: p, Score: new(big.Int), Key: p.Key()})
		}
	}
	return &Result{
		Candidates:  f.selectCandidates(candidates),
		OnlyBlocked: onlyBlocked,
		NoLiquidity: noLiquidity,
		Enumerated:  len(raw),
	}, nil
}

// search is the state of one bounded depth-first enumeration. Each pass
// records only the paths of exactly depth hops.
type search struct {
	ctx          context.Context
	g            *graph.Graph
	target       int
	depth        int
	limit        int
	allowBlocked bool
	visited      bitset.BitSet
	usedPools    bitset.BitSet
	stack        []int
	found        [][]int
	steps        int
}

func (f *Finder) enumerate(ctx context.Context, g *graph.Graph, start, target int, allowBlocked bool) ([][]int, error) {
	s := &search{
		ctx:          ctx,
		g:            g,
		target:       target,
		limit:        f.cfg.MaxCandidates,
		allowBlocked: allowBlocked,
		visited:      bitset.New(g.NumTokens()),
		usedPools:    bitset.New(g.NumPools()),
	}
	s.visited.Set(start)
	for s.depth = 1; s.depth <= f.cfg.MaxHops; s.depth++ {
		if s.depth > 1 && len(s.found) >= s.limit {
			break
		}
		if err := s.walk(start); err != nil {
			return nil, err
		}
		if s.depth == 1 {
			// direct paths are exempt from the limit
			s.limit += len(s.found)
		}
	}
	return s.found, nil
}

func (s *search) walk(node int) error {
	for _, edgeIndex := range s.g.Outgoing(node) {
		if s.depth > 1 && len(s.found) >= s.limit {
			return nil
		}
		s.steps++
		if s.steps%1024 == 0 {
			if err := s.ctx.Err(); err != nil {
				return err
			}
		}
		edge := s.g.Edge(edgeIndex)
		if (edge.Blocked && !s.allowBlocked) || s.visited.IsSet(edge.To) || s.usedPools.IsSet(edge.Pool) {
			continue
		}

		s.stack = append(s.stack, edgeIndex)
		if edge.To == s.target {
			if len(s.stack) == s.depth {
				s.found = append(s.found, append([]int(nil), s.stack...))
			}
		} else if len(s.stack) < s.depth {
			s.visited.Set(edge.To)
			s.usedPools.Set(edge.Pool)
			if err := s.walk(edge.To); err != nil {
				return err
			}
			s.usedPools.Unset(edge.Pool)
			s.visited.Unset(edge.To)
		}
		s.stack = s.stack[:len(s.stack)-1]
	}
	return nil
}

func toPath(g *graph.Graph, edges []int) path.Path {
	p := path.Path{
		Tokens:   make([]token.Token, 0, len(edges)+1),
		Pools:    make([]protocols.Pool, 0, len(edges)),
		IsBuffer: make([]bool, 0, len(edges)),
	}
	p.Tokens = append(p.Tokens, g.Token(g.Edge(edges[0]).From))
	for _, edgeIndex := range edges {
		e := g.Edge(edgeIndex)
		p.Tokens = append(p.Tokens, g.Token(e.To))
		p.Pools = append(p.Pools, g.Pool(e.Pool))
		p.IsBuffer = append(p.IsBuffer, e.IsBuffer)
	}
	return p
}

// score evaluates every path in parallel. Paths whose liquidity cannot be
// computed get a nil score.
func (f *Finder) score(ctx context.Context, paths []path.Path) ([]*big.Int, error) {
	scores := make([]*big.Int, len(paths))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.cfg.Workers)
	for i := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			scores[i] = Score(paths[i])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// Score is the minimum normalized liquidity along p on the snapshot state, or
// nil when a hop cannot be evaluated.
func Score(p path.Path) *big.Int {
	var lowest *big.Int
	for i, pool := range p.Pools {
		liquidity, err := pool.NormalizedLiquidity(nil, p.Tokens[i], p.Tokens[i+1])
		if err != nil {
			return nil
		}
		if lowest == nil || liquidity.Cmp(lowest) < 0 {
			lowest = liquidity
		}
	}
	return lowest
}

// Less orders candidates canonically: higher score, then fewer hops, then key.
func Less(a, b Candidate) bool {
	if c := a.Score.Cmp(b.Score); c != 0 {
		return c > 0
	}
	if a.Path.Hops() != b.Path.Hops() {
		return a.Path.Hops() < b.Path.Hops()
	}
	return a.Key < b.Key
}

// selectCandidates keeps every direct path plus the TopK best per longer hop
// count, caps the total at MaxPaths without dropping direct paths, and
// returns them in canonical order.
func (f *Finder) selectCandidates(candidates []Candidate) []Candidate {
	sort.Slice(candidates, func(i, j int) bool { return Less(candidates[i], candidates[j]) })

	perHops := make(map[int]int)
	bucketed := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		hops := c.Path.Hops()
		if hops > 1 && perHops[hops] >= f.cfg.TopK {
			continue
		}
		perHops[hops]++
		bucketed = append(bucketed, c)
	}

	selected := make([]Candidate, 0, f.cfg.MaxPaths)
	for i, c := range bucketed {
		if i < f.cfg.MaxPaths || c.Path.Hops() == 1 {
			selected = append(selected, c)
		}
	}
	return selected
}

// Rebind resolves cached topologies against g. Topologies whose pools or
// tokens are missing fail with ErrStaleTopology.
func Rebind(g *graph.Graph, topologies []Topology) ([]Candidate, error) {
	out := make([]Candidate, 0, len(topologies))
	for _, t := range topologies {
		p := path.Path{
			Tokens:   make([]token.Token, len(t.Tokens)),
			Pools:    make([]protocols.Pool, len(t.Pools)),
			IsBuffer: append([]bool(nil), t.IsBuffer...),
		}
		for i, addr := range t.Tokens {
			idx, ok := g.TokenIndex(token.Token{Address: addr})
			if !ok {
				return nil, fmt.Errorf("%w: token %s", ErrStaleTopology, addr.Hex())
			}
			p.Tokens[i] = g.Token(idx)
		}
		for i, id := range t.Pools {
			idx, ok := g.PoolIndex(id)
			if !ok {
				return nil, fmt.Errorf("%w: pool %s", ErrStaleTopology, id)
			}
			p.Pools[i] = g.Pool(idx)
		}
		out = append(out, Candidate{Path: p, Score: new(big.Int).Set(t.Score), Key: p.Key()})
	}
	return out, nil
}
