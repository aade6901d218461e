package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidSnapshot is returned when a snapshot cannot be used at all.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Snapshot is the point-in-time pool universe handed to the router. Numeric
// fields are human decimal strings: balances in token units, fees, weights and
// rates as fractions of one.
type Snapshot struct {
	ChainID     uint64  `json:"chainId"`
	BlockNumber uint64  `json:"blockNumber"`
	Tokens      []Token `json:"tokens,omitempty"`
	Pools       []Pool  `json:"pools"`
	// Buffers maps an ERC4626 wrapped token to its unwrap data.
	Buffers map[common.Address]Buffer `json:"buffers,omitempty"`
}

// Token is token metadata. Pool tokens carry their own copy, so this list is
// only needed for tokens that appear in buffers alone.
type Token struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
	Symbol   string         `json:"symbol,omitempty"`
}

type Pool struct {
	ID          string         `json:"id"`
	Address     common.Address `json:"address"`
	Type        string         `json:"type"`
	SwapFee     string         `json:"swapFee"`
	TotalShares string         `json:"totalShares"`
	Tokens      []PoolToken    `json:"tokens"`

	// STABLE
	Amp string `json:"amp,omitempty"`
	// GYRO
	SqrtAlpha string `json:"sqrtAlpha,omitempty"`
	SqrtBeta  string `json:"sqrtBeta,omitempty"`

	Hook                *Hook                         `json:"hook,omitempty"`
	LiquidityManagement protocols.LiquidityManagement `json:"liquidityManagement"`
}

type PoolToken struct {
	Address   common.Address `json:"address"`
	Decimals  uint8          `json:"decimals"`
	Symbol    string         `json:"symbol,omitempty"`
	Balance   string         `json:"balance"`
	Weight    string         `json:"weight,omitempty"`
	PriceRate string         `json:"priceRate,omitempty"`
}

// Hook is a pool hook descriptor. DynamicData values are decimal fractions.
type Hook struct {
	Name        string            `json:"name"`
	Address     common.Address    `json:"address"`
	DynamicData map[string]string `json:"dynamicData,omitempty"`
}

// Buffer is the unwrap data of one ERC4626 token. Empty balances are unbounded.
type Buffer struct {
	UnderlyingToken   common.Address `json:"underlyingToken"`
	UnwrapRate        string         `json:"unwrapRate"`
	WrappedBalance    string         `json:"wrappedBalance,omitempty"`
	UnderlyingBalance string         `json:"underlyingBalance,omitempty"`
}

// Decode reads a JSON snapshot and checks its structure.
func Decode(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the properties that make the whole snapshot unusable. Problems
// local to a single pool are reported by Build as exclusions instead.
func (s *Snapshot) Validate() error {
	if s.ChainID == 0 {
		return fmt.Errorf("%w: chainId is required", ErrInvalidSnapshot)
	}
	seen := make(map[string]struct{}, len(s.Pools))
	for i, p := range s.Pools {
		if p.ID == "" {
			return fmt.Errorf("%w: pool %d has no id", ErrInvalidSnapshot, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate pool id %s", ErrInvalidSnapshot, p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	decimals := make(map[common.Address]uint8)
	check := func(addr common.Address, d uint8) error {
		if prev, ok := decimals[addr]; ok && prev != d {
			return fmt.Errorf("%w: token %s listed with %d and %d decimals", ErrInvalidSnapshot, addr.Hex(), prev, d)
		}
		decimals[addr] = d
		return nil
	}
	for _, t := range s.Tokens {
		if err := check(t.Address, t.Decimals); err != nil {
			return err
		}
	}
	for _, p := range s.Pools {
		for _, t := range p.Tokens {
			if err := check(t.Address, t.Decimals); err != nil {
				return err
			}
		}
	}
	return nil
}

// Decimals returns the decimals listed for address anywhere in the snapshot.
func (s *Snapshot) Decimals(address common.Address) (uint8, bool) {
	for _, t := range s.Tokens {
		if t.Address == address {
			return t.Decimals, true
		}
	}
	for _, p := range s.Pools {
		for _, t := range p.Tokens {
			if t.Address == address {
				return t.Decimals, true
			}
		}
	}
	return 0, false
}

// Fingerprint hashes the full contents of s. Two snapshots at the same block
// differ in fingerprint when any pool, token or buffer field differs.
func (s *Snapshot) Fingerprint() (uint64, error) {
	d := xxhash.New()
	if err := json.NewEncoder(d).Encode(s); err != nil {
		return 0, fmt.Errorf("fingerprinting snapshot: %w", err)
	}
	return d.Sum64(), nil
}
