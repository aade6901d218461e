package protocols

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
)

// Pool is the capability set every pool variant exposes to the graph, the
// path finder and the optimizer. State is read from, and optionally written
// to, the caller's Arena.
type Pool interface {
	ID() string
	Address() common.Address
	Kind() Kind
	// Tokens returns the pool tokens in index order.
	Tokens() []token.Token
	// BPT returns the pool share token when it can be traded through the pool.
	BPT() (token.Token, bool)
	Hook() Hook
	LiquidityManagement() LiquidityManagement
	SwapFee() *big.Int
	InitialBalances() *Balances

	SwapGivenIn(a *Arena, tokenIn, tokenOut token.Token, amountIn token.Amount, mutate bool) (token.Amount, error)
	SwapGivenOut(a *Arena, tokenIn, tokenOut token.Token, amountOut token.Amount, mutate bool) (token.Amount, error)
	// LimitAmountSwap returns the largest raw amount of the given token (tokenIn
	// for GivenIn, tokenOut for GivenOut) the pool accepts.
	LimitAmountSwap(a *Arena, tokenIn, tokenOut token.Token, kind SwapKind) (*big.Int, error)
	NormalizedLiquidity(a *Arena, tokenIn, tokenOut token.Token) (*big.Int, error)
	SubtractSwapFeeAmount(amount token.Amount) (token.Amount, error)
	AddSwapFeeAmount(amount token.Amount) (token.Amount, error)
	// IsUnbalancedLeg reports whether tokenIn to tokenOut is a single-token join or exit.
	IsUnbalancedLeg(tokenIn, tokenOut token.Token) bool
}

// LiquidityManagement mirrors the pool's liquidity flags.
type LiquidityManagement struct {
	DisableUnbalancedLiquidity  bool `json:"disableUnbalancedLiquidity"`
	EnableAddLiquidityCustom    bool `json:"enableAddLiquidityCustom"`
	EnableRemoveLiquidityCustom bool `json:"enableRemoveLiquidityCustom"`
	EnableDonation              bool `json:"enableDonation"`
}

// PoolToken is a pool token with its per-token attributes. Rate defaults to 1
// and Weight is only meaningful for weighted pools.
type PoolToken struct {
	Token  token.Token
	Rate   *big.Int
	Weight *big.Int
}

// Config carries the fields shared by every pool constructor. Balances are raw
// amounts in token order.
type Config struct {
	ID                  string
	Address             common.Address
	Tokens              []PoolToken
	Balances            []*big.Int
	TotalShares         *big.Int
	SwapFee             *big.Int
	Hook                Hook
	LiquidityManagement LiquidityManagement
}

type leg uint8

const (
	legSwap leg = iota
	legJoin
	legExit
)

// swapState is the arena state of one swap, precomputed by base.
type swapState struct {
	balances *Balances
	// live balances are 18 decimal and rate scaled, in token order
	live        []*big.Int
	totalShares *big.Int
	leg         leg
	// token indices, -1 for a BPT outside the token list
	in, out int
}

// curve is the variant-specific math plugged into base. All amounts are live.
type curve interface {
	// calc returns the counter amount of a swap. For legSwap the given amount
	// is already net of the swap fee (GivenIn) or the result is grossed up by
	// the caller (GivenOut).
	calc(st *swapState, kind SwapKind, given *big.Int) (*big.Int, error)
	// limit returns the raw limit of the given token.
	limit(st *swapState, kind SwapKind) (*big.Int, error)
	normalizedLiquidity(st *swapState) (*big.Int, error)
}

type base struct {
	id      string
	address common.Address
	kind    Kind
	tokens  []PoolToken
	index   map[common.Address]int
	swapFee *big.Int
	hook    Hook
	lm      LiquidityManagement
	initial *Balances
	// bpt is the pool share token; bptIndex is its index in tokens or -1
	bpt          token.Token
	bptTradeable bool
	bptIndex     int
	curve        curve
}

func newBase(kind Kind, cfg Config, c curve) (base, error) {
	if len(cfg.Tokens) < 2 {
		return base{}, fmt.Errorf("%w: %s needs at least two tokens", ErrInvalidPool, cfg.ID)
	}
	if len(cfg.Balances) != len(cfg.Tokens) {
		return base{}, fmt.Errorf("%w: %s has %d balances for %d tokens", ErrInvalidPool, cfg.ID, len(cfg.Balances), len(cfg.Tokens))
	}
	fee := cfg.SwapFee
	if fee == nil {
		fee = new(big.Int)
	}
	if fee.Sign() < 0 || fee.Cmp(fixedpoint.One) >= 0 {
		return base{}, fmt.Errorf("%w: %s swap fee %s out of range", ErrInvalidPool, cfg.ID, fee)
	}

	b := base{
		id:       cfg.ID,
		address:  cfg.Address,
		kind:     kind,
		tokens:   make([]PoolToken, len(cfg.Tokens)),
		index:    make(map[common.Address]int, len(cfg.Tokens)),
		swapFee:  new(big.Int).Set(fee),
		hook:     cfg.Hook,
		lm:       cfg.LiquidityManagement,
		bptIndex: -1,
		curve:    c,
	}

	amounts := make([]*big.Int, len(cfg.Balances))
	for i, pt := range cfg.Tokens {
		if pt.Token.Decimals > 18 {
			return base{}, fmt.Errorf("%w: %s", token.ErrInvalidDecimals, pt.Token)
		}
		if pt.Rate == nil {
			pt.Rate = fixedpoint.One
		}
		if pt.Rate.Sign() <= 0 {
			return base{}, fmt.Errorf("%w: %s token %s has rate %s", ErrInvalidPool, cfg.ID, pt.Token, pt.Rate)
		}
		addr := pt.Token.PoolAddress()
		if _, dup := b.index[addr]; dup {
			return base{}, fmt.Errorf("%w: %s lists %s twice", ErrInvalidPool, cfg.ID, addr.Hex())
		}
		b.index[addr] = i
		b.tokens[i] = pt
		if addr == cfg.Address {
			b.bptIndex = i
		}

		bal := cfg.Balances[i]
		if bal == nil || bal.Sign() < 0 {
			return base{}, fmt.Errorf("%w: %s balance %d is negative", ErrInvalidPool, cfg.ID, i)
		}
		amounts[i] = new(big.Int).Set(bal)
	}

	shares := new(big.Int)
	if cfg.TotalShares != nil {
		shares.Set(cfg.TotalShares)
	}
	b.initial = &Balances{Amounts: amounts, TotalShares: shares}

	chainID := cfg.Tokens[0].Token.ChainID
	bpt, err := token.New(chainID, cfg.Address, 18, "BPT")
	if err != nil {
		return base{}, err
	}
	b.bpt = bpt
	return b, nil
}

func (b *base) ID() string                               { return b.id }
func (b *base) Address() common.Address                  { return b.address }
func (b *base) Kind() Kind                               { return b.kind }
func (b *base) Hook() Hook                               { return b.hook }
func (b *base) LiquidityManagement() LiquidityManagement { return b.lm }
func (b *base) InitialBalances() *Balances               { return b.initial }
func (b *base) BPT() (token.Token, bool)                 { return b.bpt, b.bptTradeable }

func (b *base) SwapFee() *big.Int {
	return new(big.Int).Set(b.swapFee)
}

// PoolTokens returns the pool tokens with their rates and weights.
func (b *base) PoolTokens() []PoolToken {
	return append([]PoolToken(nil), b.tokens...)
}

func (b *base) isBPT(t token.Token) bool {
	return b.bptTradeable && t.PoolAddress() == b.address
}

func (b *base) IsUnbalancedLeg(tokenIn, tokenOut token.Token) bool {
	return b.isBPT(tokenIn) != b.isBPT(tokenOut)
}

func (b *base) Tokens() []token.Token {
	out := make([]token.Token, len(b.tokens))
	for i, pt := range b.tokens {
		out[i] = pt.Token
	}
	return out
}

// rate returns the token rate at index i, or 1 for a BPT outside the list.
func (b *base) rate(i int) *big.Int {
	if i < 0 {
		return fixedpoint.One
	}
	return b.tokens[i].Rate
}

func (b *base) decimals(i int) uint8 {
	if i < 0 {
		return 18
	}
	return b.tokens[i].Token.Decimals
}

func (b *base) lookup(t token.Token) (int, bool) {
	if b.isBPT(t) && b.bptIndex < 0 {
		return -1, true
	}
	i, ok := b.index[t.PoolAddress()]
	return i, ok
}

// state resolves the swap leg and materializes arena balances.
func (b *base) state(a *Arena, tokenIn, tokenOut token.Token) (*swapState, error) {
	if tokenIn.IsUnderlyingEqual(tokenOut) {
		return nil, fmt.Errorf("%w: %s to itself", ErrTokenNotInPool, tokenIn)
	}
	in, okIn := b.lookup(tokenIn)
	out, okOut := b.lookup(tokenOut)
	if !okIn || !okOut {
		return nil, fmt.Errorf("%w: %s does not hold %s/%s", ErrTokenNotInPool, b.id, tokenIn, tokenOut)
	}

	l := legSwap
	switch {
	case b.isBPT(tokenOut):
		l = legJoin
	case b.isBPT(tokenIn):
		l = legExit
	}

	bal := a.Balances(b)
	live, err := b.live(bal)
	if err != nil {
		return nil, err
	}
	return &swapState{
		balances:    bal,
		live:        live,
		totalShares: bal.TotalShares,
		leg:         l,
		in:          in,
		out:         out,
	}, nil
}

func (b *base) live(bal *Balances) ([]*big.Int, error) {
	var c fixedpoint.Calc
	live := make([]*big.Int, len(bal.Amounts))
	for i, raw := range bal.Amounts {
		scalar, err := fixedpoint.Scalar(b.tokens[i].Token.Decimals)
		if err != nil {
			return nil, err
		}
		live[i] = c.MulDown(c.Mul(raw, scalar), b.tokens[i].Rate)
	}
	return live, c.Err()
}

// toLive scales a raw given amount of token index i to a live amount.
func (b *base) toLive(raw *big.Int, i int, roundUp bool) (*big.Int, error) {
	scalar, err := fixedpoint.Scalar(b.decimals(i))
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	scaled := c.Mul(raw, scalar)
	var out *big.Int
	if roundUp {
		out = c.MulUp(scaled, b.rate(i))
	} else {
		out = c.MulDown(scaled, b.rate(i))
	}
	return out, c.Err()
}

// fromLive converts a live amount of token index i back to raw units.
func (b *base) fromLive(live *big.Int, i int, roundUp bool) (*big.Int, error) {
	scalar, err := fixedpoint.Scalar(b.decimals(i))
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	var out *big.Int
	if roundUp {
		out = c.DivUpRaw(c.DivUp(live, b.rate(i)), scalar)
	} else {
		out = c.DivDownRaw(c.DivDown(live, b.rate(i)), scalar)
	}
	return out, c.Err()
}

func (b *base) SwapGivenIn(a *Arena, tokenIn, tokenOut token.Token, amountIn token.Amount, mutate bool) (token.Amount, error) {
	return b.swap(a, tokenIn, tokenOut, amountIn, GivenIn, mutate)
}

func (b *base) SwapGivenOut(a *Arena, tokenIn, tokenOut token.Token, amountOut token.Amount, mutate bool) (token.Amount, error) {
	return b.swap(a, tokenIn, tokenOut, amountOut, GivenOut, mutate)
}

func (b *base) swap(a *Arena, tokenIn, tokenOut token.Token, given token.Amount, kind SwapKind, mutate bool) (token.Amount, error) {
	givenToken, resultToken := tokenIn, tokenOut
	if kind == GivenOut {
		givenToken, resultToken = tokenOut, tokenIn
	}
	if given.Amount == nil || !given.Token.IsUnderlyingEqual(givenToken) {
		return token.Amount{}, fmt.Errorf("%w: swap amount is %s, expected %s", token.ErrTokenMismatch, given.Token, givenToken)
	}

	st, err := b.state(a, tokenIn, tokenOut)
	if err != nil {
		return token.Amount{}, err
	}
	if st.leg != legSwap && b.lm.DisableUnbalancedLiquidity {
		return token.Zero(resultToken), nil
	}

	limit, err := b.curve.limit(st, kind)
	if err != nil {
		return token.Amount{}, err
	}
	if given.Amount.Cmp(limit) > 0 {
		return token.Amount{}, fmt.Errorf("%w: %s > %s in pool %s", ErrSwapLimitExceeded, given.Amount, limit, b.id)
	}

	givenIdx, resultIdx := st.in, st.out
	if kind == GivenOut {
		givenIdx, resultIdx = st.out, st.in
	}
	givenLive, err := b.toLive(given.Amount, givenIdx, kind == GivenOut)
	if err != nil {
		return token.Amount{}, err
	}

	var resultLive *big.Int
	switch st.leg {
	case legSwap:
		resultLive, err = b.swapLive(st, kind, givenLive)
	case legJoin:
		resultLive, err = b.curve.calc(st, kind, givenLive)
	case legExit:
		resultLive, err = b.exitLive(st, kind, givenLive)
	}
	if err != nil {
		return token.Amount{}, err
	}

	resultRaw, err := b.fromLive(resultLive, resultIdx, kind == GivenOut)
	if err != nil {
		return token.Amount{}, err
	}
	result, err := token.FromRawAmount(resultToken, resultRaw)
	if err != nil {
		return token.Amount{}, err
	}

	if mutate {
		amountIn, amountOut := given.Amount, resultRaw
		if kind == GivenOut {
			amountIn, amountOut = resultRaw, given.Amount
		}
		if err := b.mutate(st, amountIn, amountOut); err != nil {
			return token.Amount{}, err
		}
	}
	return result, nil
}

// swapLive prices a token to token leg with the static or hook-provided fee.
func (b *base) swapLive(st *swapState, kind SwapKind, givenLive *big.Int) (*big.Int, error) {
	fee, err := b.swapFeeFor(st, kind, givenLive)
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	if kind == GivenIn {
		net := c.Sub(givenLive, c.MulUp(givenLive, fee))
		if err := c.Err(); err != nil {
			return nil, err
		}
		return b.curve.calc(st, kind, net)
	}
	in, err := b.curve.calc(st, kind, givenLive)
	if err != nil {
		return nil, err
	}
	gross := c.DivUp(in, c.Complement(fee))
	return gross, c.Err()
}

// exitLive prices a BPT to token leg, applying any exit fee hook to the token side.
func (b *base) exitLive(st *swapState, kind SwapKind, givenLive *big.Int) (*big.Int, error) {
	if kind == GivenIn {
		out, err := b.curve.calc(st, kind, givenLive)
		if err != nil {
			return nil, err
		}
		return b.hook.ApplyExitFee(out)
	}
	gross, err := b.hook.GrossUpExitFee(givenLive)
	if err != nil {
		return nil, err
	}
	return b.curve.calc(st, kind, gross)
}

func (b *base) swapFeeFor(st *swapState, kind SwapKind, givenLive *big.Int) (*big.Int, error) {
	if !b.hook.IsDynamicFee() {
		return b.swapFee, nil
	}
	balances, in, out := b.dropBpt(st.live, st.in, st.out)
	q := FeeQuery{
		Balances:    balances,
		IndexIn:     in,
		IndexOut:    out,
		Kind:        kind,
		AmountGiven: givenLive,
		AmountCalculated: func() (*big.Int, error) {
			return b.curve.calc(st, kind, givenLive)
		},
	}
	return b.hook.SwapFee(b.swapFee, q)
}

// dropBpt removes the BPT entry from a token-order vector and shifts indices.
func (b *base) dropBpt(values []*big.Int, in, out int) ([]*big.Int, int, int) {
	if b.bptIndex < 0 {
		return values, in, out
	}
	return dropItem(values, b.bptIndex), skipIndex(in, b.bptIndex), skipIndex(out, b.bptIndex)
}

func dropItem(values []*big.Int, drop int) []*big.Int {
	out := make([]*big.Int, 0, len(values)-1)
	for i, v := range values {
		if i != drop {
			out = append(out, v)
		}
	}
	return out
}

func skipIndex(i, skip int) int {
	if i > skip {
		return i - 1
	}
	return i
}

// mutate applies raw in/out amounts to the arena balances.
func (b *base) mutate(st *swapState, amountIn, amountOut *big.Int) error {
	bal := st.balances
	var c fixedpoint.Calc
	if st.in >= 0 {
		bal.Amounts[st.in] = c.Add(bal.Amounts[st.in], amountIn)
	}
	if st.out >= 0 {
		bal.Amounts[st.out] = c.Sub(bal.Amounts[st.out], amountOut)
	}
	switch st.leg {
	case legExit:
		bal.TotalShares = c.Sub(bal.TotalShares, amountIn)
	case legJoin:
		bal.TotalShares = c.Add(bal.TotalShares, amountOut)
	}
	return c.Err()
}

func (b *base) LimitAmountSwap(a *Arena, tokenIn, tokenOut token.Token, kind SwapKind) (*big.Int, error) {
	st, err := b.state(a, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	if st.leg != legSwap && b.lm.DisableUnbalancedLiquidity {
		return new(big.Int), nil
	}
	return b.curve.limit(st, kind)
}

func (b *base) NormalizedLiquidity(a *Arena, tokenIn, tokenOut token.Token) (*big.Int, error) {
	st, err := b.state(a, tokenIn, tokenOut)
	if err != nil {
		return nil, err
	}
	if st.leg != legSwap && b.lm.DisableUnbalancedLiquidity {
		return new(big.Int), nil
	}
	return b.curve.normalizedLiquidity(st)
}

func (b *base) SubtractSwapFeeAmount(amount token.Amount) (token.Amount, error) {
	fee, err := amount.MulUpFixed(b.swapFee)
	if err != nil {
		return token.Amount{}, err
	}
	return amount.Sub(fee)
}

func (b *base) AddSwapFeeAmount(amount token.Amount) (token.Amount, error) {
	return amount.DivUpFixed(fixedpoint.Complement(b.swapFee))
}

// liveOrShares returns the live balance at i, or the total supply for a BPT outside the list.
func (st *swapState) liveOrShares(i int) *big.Int {
	if i < 0 {
		return st.totalShares
	}
	return st.live[i]
}

// rawOrShares returns the raw balance at i, or the total supply for a BPT outside the list.
func (st *swapState) rawOrShares(i int) *big.Int {
	if i < 0 {
		return st.totalShares
	}
	return st.balances.Amounts[i]
}
