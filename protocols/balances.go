package protocols

import (
	"math/big"
	"sort"
)

// Balances is the mutable state of one pool: raw token balances in pool token
// order and the BPT total supply.
type Balances struct {
	Amounts     []*big.Int
	TotalShares *big.Int
}

// Clone returns a deep copy of b.
func (b *Balances) Clone() *Balances {
	amounts := make([]*big.Int, len(b.Amounts))
	for i, a := range b.Amounts {
		amounts[i] = new(big.Int).Set(a)
	}
	shares := new(big.Int)
	if b.TotalShares != nil {
		shares.Set(b.TotalShares)
	}
	return &Balances{Amounts: amounts, TotalShares: shares}
}

// stateful is anything the arena can materialize balances for.
type stateful interface {
	ID() string
	InitialBalances() *Balances
}

// Arena holds per-request copies of pool balances keyed by pool id. A pool's
// balances are copied from its immutable snapshot state the first time they are
// requested, so what-if swaps never touch the snapshot. An Arena is not safe for
// concurrent use; clone it to evaluate paths in parallel.
type Arena struct {
	balances map[string]*Balances
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{balances: make(map[string]*Balances)}
}

// Balances returns the arena's copy of p's balances, creating it on first use.
// A nil arena hands out a throwaway copy.
func (a *Arena) Balances(p stateful) *Balances {
	if a == nil {
		return p.InitialBalances().Clone()
	}
	if b, ok := a.balances[p.ID()]; ok {
		return b
	}
	b := p.InitialBalances().Clone()
	a.balances[p.ID()] = b
	return b
}

// Clone deep copies every materialized pool state.
func (a *Arena) Clone() *Arena {
	c := NewArena()
	if a == nil {
		return c
	}
	for id, b := range a.balances {
		c.balances[id] = b.Clone()
	}
	return c
}

// Touched returns the ids of pools whose balances have been materialized, sorted.
func (a *Arena) Touched() []string {
	if a == nil {
		return nil
	}
	ids := make([]string, 0, len(a.balances))
	for id := range a.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
