package token

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidDecimals is returned for tokens with more than 18 decimals.
	ErrInvalidDecimals = errors.New("token decimals must be <= 18")
	// ErrTokenMismatch is returned when arithmetic mixes amounts of different tokens.
	ErrTokenMismatch = errors.New("token mismatch")
)

// Token is a chain-scoped token identity.
type Token struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol,omitempty"`
	// Wrapped is the address used inside pools. It equals Address except for
	// native assets, which pools hold in their wrapped form.
	Wrapped common.Address `json:"wrapped"`
}

// New validates and returns a Token whose wrapped address defaults to its own address.
func New(chainID uint64, address common.Address, decimals uint8, symbol string) (Token, error) {
	if decimals > 18 {
		return Token{}, fmt.Errorf("%w: %s has %d", ErrInvalidDecimals, address.Hex(), decimals)
	}
	return Token{
		ChainID:  chainID,
		Address:  address,
		Decimals: decimals,
		Symbol:   symbol,
		Wrapped:  address,
	}, nil
}

// WithWrapped returns a copy of t whose pool-side representation is wrapped.
func (t Token) WithWrapped(wrapped common.Address) Token {
	t.Wrapped = wrapped
	return t
}

// IsEqual reports whether t and o are the same chain and address.
func (t Token) IsEqual(o Token) bool {
	return t.ChainID == o.ChainID && t.Address == o.Address
}

// IsUnderlyingEqual reports whether t and o share the same pool-side representation.
func (t Token) IsUnderlyingEqual(o Token) bool {
	return t.ChainID == o.ChainID && t.PoolAddress() == o.PoolAddress()
}

// PoolAddress returns the address pools use for t.
func (t Token) PoolAddress() common.Address {
	if t.Wrapped == (common.Address{}) {
		return t.Address
	}
	return t.Wrapped
}

func (t Token) String() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Address.Hex()
}
