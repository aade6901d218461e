package token

import (
	"github.com/ethereum/go-ethereum/common"
)

// Registry provides indexed access to the tokens of a single snapshot.
type Registry struct {
	byAddress map[common.Address]Token
	all       []Token
}

// NewRegistry indexes tokens by address. Later duplicates replace earlier ones.
func NewRegistry(tokens []Token) *Registry {
	byAddress := make(map[common.Address]Token, len(tokens))
	for _, t := range tokens {
		byAddress[t.Address] = t
	}
	return &Registry{
		byAddress: byAddress,
		all:       tokens,
	}
}

// GetByAddress retrieves a token by its contract address.
func (r *Registry) GetByAddress(address common.Address) (Token, bool) {
	t, ok := r.byAddress[address]
	return t, ok
}

// All returns a defensive copy of the slice of all tokens.
func (r *Registry) All() []Token {
	allCopy := make([]Token, len(r.all))
	copy(allCopy, r.all)
	return allCopy
}

// Len returns the number of indexed tokens.
func (r *Registry) Len() int {
	return len(r.byAddress)
}
