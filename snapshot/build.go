package snapshot

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/protocols/calculator/gyro"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Exclusion records a pool left out of the universe and why.
type Exclusion struct {
	PoolID string
	Err    error
}

// Universe is a snapshot turned into immutable pool models.
type Universe struct {
	ChainID     uint64
	BlockNumber uint64
	Tokens      *token.Registry
	// Pools holds snapshot pools in snapshot order followed by buffers sorted
	// by wrapped token address.
	Pools    []protocols.Pool
	Excluded []Exclusion
}

// Options tunes pool construction.
type Options struct {
	// StableMaxIterations bounds the stable Newton solves. Zero uses the on-chain default.
	StableMaxIterations int
}

// Build constructs the pool models of s. Pools of unsupported types, with
// unimplemented hooks or with malformed data are excluded rather than failing
// the whole build.
func Build(s *Snapshot, opts Options) (*Universe, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	tokens, err := s.registry()
	if err != nil {
		return nil, err
	}

	u := &Universe{
		ChainID:     s.ChainID,
		BlockNumber: s.BlockNumber,
		Tokens:      tokens,
	}
	for _, raw := range s.Pools {
		p, err := buildPool(s.ChainID, tokens, raw, opts)
		if err != nil {
			u.Excluded = append(u.Excluded, Exclusion{PoolID: raw.ID, Err: err})
			continue
		}
		u.Pools = append(u.Pools, p)
	}

	wrapped := make([]common.Address, 0, len(s.Buffers))
	for addr := range s.Buffers {
		wrapped = append(wrapped, addr)
	}
	sort.Slice(wrapped, func(i, j int) bool {
		return bytes.Compare(wrapped[i][:], wrapped[j][:]) < 0
	})
	for _, addr := range wrapped {
		b, err := buildBuffer(tokens, addr, s.Buffers[addr])
		if err != nil {
			u.Excluded = append(u.Excluded, Exclusion{PoolID: "buffer:" + addr.Hex(), Err: err})
			continue
		}
		u.Pools = append(u.Pools, b)
	}
	return u, nil
}

// Pool returns the pool with the given id.
func (u *Universe) Pool(id string) (protocols.Pool, bool) {
	for _, p := range u.Pools {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

func (s *Snapshot) registry() (*token.Registry, error) {
	var all []token.Token
	seen := make(map[common.Address]struct{})
	add := func(addr common.Address, decimals uint8, symbol string) error {
		if _, ok := seen[addr]; ok {
			return nil
		}
		t, err := token.New(s.ChainID, addr, decimals, symbol)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		seen[addr] = struct{}{}
		all = append(all, t)
		return nil
	}
	for _, t := range s.Tokens {
		if err := add(t.Address, t.Decimals, t.Symbol); err != nil {
			return nil, err
		}
	}
	for _, p := range s.Pools {
		for _, t := range p.Tokens {
			if err := add(t.Address, t.Decimals, t.Symbol); err != nil {
				return nil, err
			}
		}
	}
	return token.NewRegistry(all), nil
}

func buildPool(chainID uint64, tokens *token.Registry, raw Pool, opts Options) (protocols.Pool, error) {
	kind, err := protocols.ParseKind(raw.Type)
	if err != nil {
		return nil, err
	}
	if kind == protocols.KindBuffer {
		return nil, fmt.Errorf("%w: buffers are supplied through the buffer map", protocols.ErrUnsupportedPoolType)
	}
	cfg, err := poolConfig(chainID, tokens, raw)
	if err != nil {
		return nil, err
	}

	switch kind {
	case protocols.KindWeighted:
		return protocols.NewWeighted(cfg)
	case protocols.KindStable:
		amp, err := parseScaled(raw.Amp, 3)
		if err != nil {
			return nil, fmt.Errorf("amp: %w", err)
		}
		return protocols.NewStable(cfg, amp, opts.StableMaxIterations)
	case protocols.KindGyro2CLP:
		sqrtAlpha, err := parseFraction(raw.SqrtAlpha)
		if err != nil {
			return nil, fmt.Errorf("sqrtAlpha: %w", err)
		}
		sqrtBeta, err := parseFraction(raw.SqrtBeta)
		if err != nil {
			return nil, fmt.Errorf("sqrtBeta: %w", err)
		}
		return protocols.NewGyro2CLP(cfg, gyro.Params{SqrtAlpha: sqrtAlpha, SqrtBeta: sqrtBeta})
	}
	return nil, fmt.Errorf("%w: %s", protocols.ErrUnsupportedPoolType, raw.Type)
}

func poolConfig(chainID uint64, tokens *token.Registry, raw Pool) (protocols.Config, error) {
	swapFee, err := parseFraction(raw.SwapFee)
	if err != nil {
		return protocols.Config{}, fmt.Errorf("swapFee: %w", err)
	}
	totalShares, err := parseScaled(orZero(raw.TotalShares), 18)
	if err != nil {
		return protocols.Config{}, fmt.Errorf("totalShares: %w", err)
	}
	hook, err := resolveHook(raw.Hook)
	if err != nil {
		return protocols.Config{}, err
	}

	cfg := protocols.Config{
		ID:                  raw.ID,
		Address:             raw.Address,
		Tokens:              make([]protocols.PoolToken, len(raw.Tokens)),
		Balances:            make([]*big.Int, len(raw.Tokens)),
		TotalShares:         totalShares,
		SwapFee:             swapFee,
		Hook:                hook,
		LiquidityManagement: raw.LiquidityManagement,
	}
	for i, pt := range raw.Tokens {
		t, ok := tokens.GetByAddress(pt.Address)
		if !ok {
			if t, err = token.New(chainID, pt.Address, pt.Decimals, pt.Symbol); err != nil {
				return protocols.Config{}, err
			}
		}
		balance, err := parseScaled(pt.Balance, int32(pt.Decimals))
		if err != nil {
			return protocols.Config{}, fmt.Errorf("balance of %s: %w", pt.Address.Hex(), err)
		}
		poolToken := protocols.PoolToken{Token: t}
		if pt.Weight != "" {
			if poolToken.Weight, err = parseFraction(pt.Weight); err != nil {
				return protocols.Config{}, fmt.Errorf("weight of %s: %w", pt.Address.Hex(), err)
			}
		}
		if pt.PriceRate != "" {
			if poolToken.Rate, err = parseFraction(pt.PriceRate); err != nil {
				return protocols.Config{}, fmt.Errorf("priceRate of %s: %w", pt.Address.Hex(), err)
			}
		}
		cfg.Tokens[i] = poolToken
		cfg.Balances[i] = balance
	}
	return cfg, nil
}

func resolveHook(h *Hook) (protocols.Hook, error) {
	if h == nil {
		return protocols.Hook{}, nil
	}
	params := make(map[string]*big.Int, len(h.DynamicData))
	for k, v := range h.DynamicData {
		n, err := parseFraction(v)
		if err != nil {
			return protocols.Hook{}, fmt.Errorf("%w: %s %s: %v", protocols.ErrInvalidHookParams, h.Name, k, err)
		}
		params[k] = n
	}
	return protocols.ResolveHook(h.Name, params)
}

func buildBuffer(tokens *token.Registry, wrappedAddr common.Address, raw Buffer) (*protocols.Buffer, error) {
	wrapped, ok := tokens.GetByAddress(wrappedAddr)
	if !ok {
		return nil, fmt.Errorf("%w: unknown wrapped token %s", ErrInvalidSnapshot, wrappedAddr.Hex())
	}
	underlying, ok := tokens.GetByAddress(raw.UnderlyingToken)
	if !ok {
		return nil, fmt.Errorf("%w: unknown underlying token %s", ErrInvalidSnapshot, raw.UnderlyingToken.Hex())
	}
	rate, err := parseFraction(raw.UnwrapRate)
	if err != nil {
		return nil, fmt.Errorf("unwrapRate: %w", err)
	}
	cfg := protocols.BufferConfig{Wrapped: wrapped, Underlying: underlying, Rate: rate}
	if raw.WrappedBalance != "" {
		if cfg.WrappedBalance, err = parseScaled(raw.WrappedBalance, int32(wrapped.Decimals)); err != nil {
			return nil, fmt.Errorf("wrappedBalance: %w", err)
		}
	}
	if raw.UnderlyingBalance != "" {
		if cfg.UnderlyingBalance, err = parseScaled(raw.UnderlyingBalance, int32(underlying.Decimals)); err != nil {
			return nil, fmt.Errorf("underlyingBalance: %w", err)
		}
	}
	return protocols.NewBuffer(cfg)
}

// parseFraction converts a decimal fraction such as "0.003" to WAD.
func parseFraction(s string) (*big.Int, error) {
	return parseScaled(s, 18)
}

// parseScaled converts a non-negative decimal string to an integer scaled by
// 10^exp, truncating digits beyond that precision.
func parseScaled(s string, exp int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative value %s", s)
	}
	return d.Shift(exp).BigInt(), nil
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
