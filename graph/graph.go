package graph

import (
	"math/big"
	"sort"

	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
)

// Edge is one directed traversal possibility through one pool. Parallel pools
// between the same tokens produce parallel edges.
type Edge struct {
	From     int  `json:"from"`
	To       int  `json:"to"`
	Pool     int  `json:"pool"`
	IsBuffer bool `json:"isBuffer"`
	// Blocked edges are single-token joins or exits the pool disallows. They
	// are kept so callers can tell "no liquidity" from "no route".
	Blocked bool `json:"blocked"`
}

// View is a serializable copy of the graph structure.
type View struct {
	Tokens    []common.Address `json:"tokens"`
	Pools     []string         `json:"pools"`
	Adjacency [][]int          `json:"adjacency"`
	Edges     []Edge           `json:"edges"`
	Excluded  []string         `json:"excluded"`
}

// Options restricts graph construction.
type Options struct {
	// AllowedPools limits the graph to the listed pool ids when non-empty.
	// Buffers are synthetic and always included.
	AllowedPools []string
}

// Graph is an immutable token graph for a single snapshot. Tokens and pools
// are addressed by dense indices; tokens are keyed by their pool-side address.
type Graph struct {
	tokenToIndex map[common.Address]int
	poolToIndex  map[string]int

	tokens    []token.Token
	pools     []protocols.Pool
	adjacency [][]int
	edges     []Edge
	excluded  []snapshot.Exclusion
}

// New builds the graph of every pool in u that passes the options.
func New(u *snapshot.Universe, opts Options) *Graph {
	var allowed map[string]struct{}
	if len(opts.AllowedPools) > 0 {
		allowed = make(map[string]struct{}, len(opts.AllowedPools))
		for _, id := range opts.AllowedPools {
			allowed[id] = struct{}{}
		}
	}

	g := &Graph{
		tokenToIndex: make(map[common.Address]int),
		poolToIndex:  make(map[string]int),
		excluded:     append([]snapshot.Exclusion(nil), u.Excluded...),
	}
	for _, p := range u.Pools {
		if allowed != nil && p.Kind() != protocols.KindBuffer {
			if _, ok := allowed[p.ID()]; !ok {
				continue
			}
		}
		g.add(p)
	}
	return g
}

// addToken returns the index of t, creating the node on first sight.
func (g *Graph) addToken(t token.Token) int {
	key := t.PoolAddress()
	if i, ok := g.tokenToIndex[key]; ok {
		return i
	}
	i := len(g.tokens)
	g.tokens = append(g.tokens, t)
	g.tokenToIndex[key] = i
	g.adjacency = append(g.adjacency, nil)
	return i
}

// add connects every ordered pair of the pool's nodes, including its BPT when
// it is tradeable.
func (g *Graph) add(p protocols.Pool) {
	nodes := p.Tokens()
	balances := p.InitialBalances()
	depth := make([]*big.Int, len(nodes), len(nodes)+1)
	copy(depth, balances.Amounts)

	if bpt, ok := p.BPT(); ok {
		inList := false
		for _, t := range nodes {
			if t.IsUnderlyingEqual(bpt) {
				inList = true
				break
			}
		}
		if !inList {
			nodes = append(nodes, bpt)
			depth = append(depth, balances.TotalShares)
		}
	}

	poolIndex := len(g.pools)
	g.pools = append(g.pools, p)
	g.poolToIndex[p.ID()] = poolIndex

	indices := make([]int, len(nodes))
	for i, t := range nodes {
		indices[i] = g.addToken(t)
	}

	lm := p.LiquidityManagement()
	isBuffer := p.Kind() == protocols.KindBuffer
	for i := range nodes {
		for j := range nodes {
			if i == j || depth[i].Sign() == 0 || depth[j].Sign() == 0 {
				continue
			}
			edgeIndex := len(g.edges)
			g.edges = append(g.edges, Edge{
				From:     indices[i],
				To:       indices[j],
				Pool:     poolIndex,
				IsBuffer: isBuffer,
				Blocked:  lm.DisableUnbalancedLiquidity && p.IsUnbalancedLeg(nodes[i], nodes[j]),
			})
			g.adjacency[indices[i]] = append(g.adjacency[indices[i]], edgeIndex)
		}
	}
}

func (g *Graph) NumTokens() int {
	return len(g.tokens)
}

func (g *Graph) NumPools() int {
	return len(g.pools)
}

func (g *Graph) Token(i int) token.Token {
	return g.tokens[i]
}

func (g *Graph) Pool(i int) protocols.Pool {
	return g.pools[i]
}

func (g *Graph) Edge(i int) Edge {
	return g.edges[i]
}

// Excluded returns the pools left out of the universe with their reasons.
func (g *Graph) Excluded() []snapshot.Exclusion {
	return g.excluded
}

// TokenIndex returns the node of t, matched on its pool-side address.
func (g *Graph) TokenIndex(t token.Token) (int, bool) {
	i, ok := g.tokenToIndex[t.PoolAddress()]
	return i, ok
}

// PoolIndex returns the index of the pool with the given id.
func (g *Graph) PoolIndex(id string) (int, bool) {
	i, ok := g.poolToIndex[id]
	return i, ok
}

// Outgoing returns the edge indices leaving token index i. The slice MUST NOT
// be modified.
func (g *Graph) Outgoing(i int) []int {
	return g.adjacency[i]
}

// Blocked returns every blocked edge.
func (g *Graph) Blocked() []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.Blocked {
			out = append(out, e)
		}
	}
	return out
}

// PoolsForToken returns the sorted ids of pools with an edge leaving t.
func (g *Graph) PoolsForToken(t token.Token) []string {
	tokenIndex, ok := g.TokenIndex(t)
	if !ok {
		return nil
	}
	unique := make(map[int]struct{})
	for _, edgeIndex := range g.adjacency[tokenIndex] {
		unique[g.edges[edgeIndex].Pool] = struct{}{}
	}
	if len(unique) == 0 {
		return nil
	}
	ids := make([]string, 0, len(unique))
	for poolIndex := range unique {
		ids = append(ids, g.pools[poolIndex].ID())
	}
	sort.Strings(ids)
	return ids
}

// View returns a deep copy of the graph structure.
func (g *Graph) View() *View {
	v := &View{
		Tokens:    make([]common.Address, len(g.tokens)),
		Pools:     make([]string, len(g.pools)),
		Adjacency: make([][]int, len(g.adjacency)),
		Edges:     append([]Edge(nil), g.edges...),
		Excluded:  make([]string, len(g.excluded)),
	}
	for i, t := range g.tokens {
		v.Tokens[i] = t.PoolAddress()
	}
	for i, p := range g.pools {
		v.Pools[i] = p.ID()
	}
	for i, adj := range g.adjacency {
		v.Adjacency[i] = append([]int(nil), adj...)
	}
	for i, e := range g.excluded {
		v.Excluded[i] = e.PoolID
	}
	return v
}
