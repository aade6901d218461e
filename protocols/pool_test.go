package protocols

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/protocols/calculator/gyro"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = mustToken(common.HexToAddress("0x000000000000000000000000000000000000000a"), 18, "A")
	tokenB = mustToken(common.HexToAddress("0x000000000000000000000000000000000000000b"), 18, "B")
	usdc   = mustToken(common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), 6, "USDC")

	weightedAddress = common.HexToAddress("0x1000000000000000000000000000000000000001")
	stableAddress   = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

func mustToken(addr common.Address, decimals uint8, symbol string) token.Token {
	t, err := token.New(1, addr, decimals, symbol)
	if err != nil {
		panic(err)
	}
	return t
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixedpoint.One)
}

func amount(t *testing.T, tok token.Token, raw *big.Int) token.Amount {
	t.Helper()
	a, err := token.FromRawAmount(tok, raw)
	require.NoError(t, err)
	return a
}

func newWeighted5050(t *testing.T, fee *big.Int, hook Hook, lm LiquidityManagement) *Weighted {
	t.Helper()
	p, err := NewWeighted(Config{
		ID:      "weighted-ab",
		Address: weightedAddress,
		Tokens: []PoolToken{
			{Token: tokenA, Weight: big.NewInt(5e17)},
			{Token: tokenB, Weight: big.NewInt(5e17)},
		},
		Balances:            []*big.Int{wad(1000), wad(1000)},
		TotalShares:         wad(1000),
		SwapFee:             fee,
		Hook:                hook,
		LiquidityManagement: lm,
	})
	require.NoError(t, err)
	return p
}

func newStable(t *testing.T, fee *big.Int) *Stable {
	t.Helper()
	p, err := NewStable(Config{
		ID:          "stable-ab",
		Address:     stableAddress,
		Tokens:      []PoolToken{{Token: tokenA}, {Token: tokenB}},
		Balances:    []*big.Int{wad(1000), wad(1000)},
		TotalShares: wad(2000),
		SwapFee:     fee,
	}, big.NewInt(100_000), 0)
	require.NoError(t, err)
	return p
}

func TestWeightedKnownValue(t *testing.T) {
	p := newWeighted5050(t, big.NewInt(0), Hook{}, LiquidityManagement{})

	out, err := p.SwapGivenIn(NewArena(), tokenA, tokenB, amount(t, tokenA, wad(100)), false)
	require.NoError(t, err)
	// 1000 - 1000*1000/1100 with on-chain rounding of the base
	assert.Equal(t, "90909090909090909000", out.Amount.String())
	assert.True(t, out.Token.IsEqual(tokenB))
}

func TestWeightedSwapFee(t *testing.T) {
	noFee := newWeighted5050(t, big.NewInt(0), Hook{}, LiquidityManagement{})
	withFee := newWeighted5050(t, big.NewInt(1e16), Hook{}, LiquidityManagement{})
	in := amount(t, tokenA, wad(100))

	a, err := noFee.SwapGivenIn(nil, tokenA, tokenB, in, false)
	require.NoError(t, err)
	b, err := withFee.SwapGivenIn(nil, tokenA, tokenB, in, false)
	require.NoError(t, err)
	assert.True(t, b.Amount.Cmp(a.Amount) < 0)

	// GivenOut grosses the fee back up
	needed, err := withFee.SwapGivenOut(nil, tokenA, tokenB, b, false)
	require.NoError(t, err)
	diff := new(big.Int).Sub(needed.Amount, in.Amount)
	assert.True(t, diff.CmpAbs(big.NewInt(1e9)) <= 0, "needed %s", needed.Amount)
}

func TestSwapMutatesOnlyArena(t *testing.T) {
	p := newWeighted5050(t, big.NewInt(0), Hook{}, LiquidityManagement{})
	arena := NewArena()
	in := amount(t, tokenA, wad(100))

	first, err := p.SwapGivenIn(arena, tokenA, tokenB, in, true)
	require.NoError(t, err)
	second, err := p.SwapGivenIn(arena, tokenA, tokenB, in, true)
	require.NoError(t, err)
	assert.True(t, second.Amount.Cmp(first.Amount) < 0, "diminished liquidity must lower the second output")

	bal := arena.Balances(p)
	assert.Equal(t, wad(1200).String(), bal.Amounts[0].String())
	expectedOut := new(big.Int).Sub(wad(1000), first.Amount)
	expectedOut.Sub(expectedOut, second.Amount)
	assert.Equal(t, expectedOut.String(), bal.Amounts[1].String())

	// the snapshot state is untouched
	assert.Equal(t, wad(1000).String(), p.InitialBalances().Amounts[0].String())
	assert.Equal(t, []string{"weighted-ab"}, arena.Touched())

	// a clone is independent
	clone := arena.Clone()
	_, err = p.SwapGivenIn(clone, tokenA, tokenB, in, true)
	require.NoError(t, err)
	assert.Equal(t, wad(1200).String(), arena.Balances(p).Amounts[0].String())
	assert.Equal(t, wad(1300).String(), clone.Balances(p).Amounts[0].String())
}

func TestSwapErrors(t *testing.T) {
	p := newWeighted5050(t, big.NewInt(0), Hook{}, LiquidityManagement{})

	_, err := p.SwapGivenIn(nil, tokenA, tokenB, amount(t, tokenA, wad(301)), false)
	assert.ErrorIs(t, err, ErrSwapLimitExceeded)

	_, err = p.SwapGivenIn(nil, tokenA, usdc, amount(t, tokenA, wad(1)), false)
	assert.ErrorIs(t, err, ErrTokenNotInPool)

	_, err = p.SwapGivenIn(nil, tokenA, tokenB, amount(t, tokenB, wad(1)), false)
	assert.ErrorIs(t, err, token.ErrTokenMismatch)

	limit, err := p.LimitAmountSwap(nil, tokenA, tokenB, GivenIn)
	require.NoError(t, err)
	assert.Equal(t, wad(300).String(), limit.String())
}

func TestWeightedJoinExit(t *testing.T) {
	p := newWeighted5050(t, big.NewInt(0), Hook{}, LiquidityManagement{})
	bpt, ok := p.BPT()
	require.True(t, ok)
	assert.True(t, p.IsUnbalancedLeg(tokenA, bpt))
	assert.False(t, p.IsUnbalancedLeg(tokenA, tokenB))

	arena := NewArena()
	in := amount(t, tokenA, wad(10))
	minted, err := p.SwapGivenIn(arena, tokenA, bpt, in, true)
	require.NoError(t, err)
	require.True(t, minted.Amount.Sign() > 0)
	assert.Equal(t, new(big.Int).Add(wad(1000), minted.Amount).String(), arena.Balances(p).TotalShares.String())

	back, err := p.SwapGivenIn(arena, bpt, tokenA, minted, true)
	require.NoError(t, err)
	assert.True(t, back.Amount.Cmp(in.Amount) <= 0)
	assert.Equal(t, wad(1000).String(), arena.Balances(p).TotalShares.String())
}

func TestDisableUnbalancedLiquidity(t *testing.T) {
	hook, err := ResolveHook("ExitFee", map[string]*big.Int{ParamRemoveLiquidityFeePercentage: big.NewInt(5e16)})
	require.NoError(t, err)
	p := newWeighted5050(t, big.NewInt(1e16), hook, LiquidityManagement{DisableUnbalancedLiquidity: true})
	bpt, _ := p.BPT()

	out, err := p.SwapGivenIn(NewArena(), bpt, tokenA, amount(t, bpt, wad(1)), true)
	require.NoError(t, err)
	assert.Zero(t, out.Amount.Sign())
	assert.True(t, out.Token.IsEqual(tokenA))

	limit, err := p.LimitAmountSwap(nil, bpt, tokenA, GivenIn)
	require.NoError(t, err)
	assert.Zero(t, limit.Sign())

	// token to token swaps are unaffected
	out, err = p.SwapGivenIn(nil, tokenA, tokenB, amount(t, tokenA, wad(1)), false)
	require.NoError(t, err)
	assert.True(t, out.Amount.Sign() > 0)
}

func TestExitFeeReducesExit(t *testing.T) {
	hook, err := ResolveHook("ExitFee", map[string]*big.Int{ParamRemoveLiquidityFeePercentage: big.NewInt(5e16)})
	require.NoError(t, err)
	plain := newWeighted5050(t, big.NewInt(0), Hook{}, LiquidityManagement{})
	fee := newWeighted5050(t, big.NewInt(0), hook, LiquidityManagement{})
	bpt, _ := plain.BPT()
	in := amount(t, bpt, wad(10))

	a, err := plain.SwapGivenIn(nil, bpt, tokenA, in, false)
	require.NoError(t, err)
	b, err := fee.SwapGivenIn(nil, bpt, tokenA, in, false)
	require.NoError(t, err)

	expected, err := fixedpoint.MulDown(a.Amount, big.NewInt(95e16))
	require.NoError(t, err)
	diff := new(big.Int).Sub(expected, b.Amount)
	assert.True(t, diff.CmpAbs(big.NewInt(1)) <= 0, "expected %s, got %s", expected, b.Amount)
}

func TestStableRoundTrip(t *testing.T) {
	for _, fee := range []*big.Int{big.NewInt(0), big.NewInt(4e14)} {
		p := newStable(t, fee)
		in := amount(t, tokenA, wad(10))

		out, err := p.SwapGivenIn(NewArena(), tokenA, tokenB, in, false)
		require.NoError(t, err)

		// the exact output priced on untouched state costs the original input
		needed, err := p.SwapGivenOut(NewArena(), tokenA, tokenB, out, false)
		require.NoError(t, err)
		diff := new(big.Int).Sub(needed.Amount, in.Amount)
		assert.True(t, diff.CmpAbs(big.NewInt(10)) <= 0, "fee %s: needed %s", fee, needed.Amount)

		// swapping the output straight back never gains
		arena := NewArena()
		out, err = p.SwapGivenIn(arena, tokenA, tokenB, in, true)
		require.NoError(t, err)
		back, err := p.SwapGivenIn(arena, tokenB, tokenA, out, true)
		require.NoError(t, err)
		assert.True(t, back.Amount.Cmp(in.Amount) <= 0, "fee %s: back %s", fee, back.Amount)
	}
}

func TestComposableStable(t *testing.T) {
	bptToken := mustToken(stableAddress, 18, "BPT")
	p, err := NewStable(Config{
		ID:      "composable",
		Address: stableAddress,
		Tokens: []PoolToken{
			{Token: tokenA},
			{Token: bptToken},
			{Token: usdc, Rate: big.NewInt(1e18)},
		},
		Balances:    []*big.Int{wad(1000), wad(1_000_000), big.NewInt(1000_000_000)},
		TotalShares: wad(2000),
	}, big.NewInt(200_000), 0)
	require.NoError(t, err)

	arena := NewArena()
	out, err := p.SwapGivenIn(arena, tokenA, usdc, amount(t, tokenA, wad(10)), true)
	require.NoError(t, err)
	// about 10 USDC at 6 decimals
	assert.True(t, out.Amount.Cmp(big.NewInt(9_900_000)) > 0 && out.Amount.Cmp(big.NewInt(10_000_000)) < 0, "out %s", out.Amount)

	minted, err := p.SwapGivenIn(arena, usdc, bptToken, amount(t, usdc, big.NewInt(5_000_000)), true)
	require.NoError(t, err)
	require.True(t, minted.Amount.Sign() > 0)

	bal := arena.Balances(p)
	assert.Equal(t, new(big.Int).Add(wad(2000), minted.Amount).String(), bal.TotalShares.String())
	assert.Equal(t, new(big.Int).Sub(wad(1_000_000), minted.Amount).String(), bal.Amounts[1].String())

	liquidity, err := p.NormalizedLiquidity(nil, tokenA, usdc)
	require.NoError(t, err)
	// balanceOut * amp: 1000 * 200
	assert.Equal(t, wad(200_000).String(), liquidity.String())
}

func TestBuffer(t *testing.T) {
	wrapped := mustToken(common.HexToAddress("0xD4fa2D31b7968E448877f69A96DE69f5de8cD23E"), 6, "waUSDC")
	p, err := NewBuffer(BufferConfig{Wrapped: wrapped, Underlying: usdc, Rate: big.NewInt(11e17)})
	require.NoError(t, err)
	assert.Equal(t, KindBuffer, p.Kind())
	_, tradeable := p.BPT()
	assert.False(t, tradeable)

	in := amount(t, wrapped, big.NewInt(1_000_000))
	underlying, err := p.SwapGivenIn(nil, wrapped, usdc, in, false)
	require.NoError(t, err)
	assert.Equal(t, "1100000", underlying.Amount.String())

	wrappedBack, err := p.SwapGivenIn(nil, usdc, wrapped, underlying, false)
	require.NoError(t, err)
	assert.True(t, wrappedBack.Amount.Cmp(in.Amount) <= 0)

	needed, err := p.SwapGivenOut(nil, wrapped, usdc, amount(t, usdc, big.NewInt(1_100_001)), false)
	require.NoError(t, err)
	assert.Equal(t, "1000001", needed.Amount.String())

	limit, err := p.LimitAmountSwap(nil, wrapped, usdc, GivenOut)
	require.NoError(t, err)
	assert.Equal(t, UnboundedBufferBalance.String(), limit.String())
}

func TestGyro2CLP(t *testing.T) {
	p, err := NewGyro2CLP(Config{
		ID:          "gyro",
		Address:     common.HexToAddress("0x3000000000000000000000000000000000000003"),
		Tokens:      []PoolToken{{Token: tokenA}, {Token: usdc}},
		Balances:    []*big.Int{wad(1000), big.NewInt(1000_000_000)},
		TotalShares: wad(2000),
		SwapFee:     big.NewInt(1e15),
	}, gyro.Params{
		SqrtAlpha: fixedpoint.MustParse("948683298050513799"),
		SqrtBeta:  fixedpoint.MustParse("1048808848170151546"),
	})
	require.NoError(t, err)
	_, tradeable := p.BPT()
	assert.False(t, tradeable)

	out, err := p.SwapGivenIn(nil, tokenA, usdc, amount(t, tokenA, wad(10)), false)
	require.NoError(t, err)
	assert.True(t, out.Amount.Cmp(big.NewInt(9_800_000)) > 0 && out.Amount.Cmp(big.NewInt(10_000_000)) < 0, "out %s", out.Amount)

	limit, err := p.LimitAmountSwap(nil, tokenA, usdc, GivenOut)
	require.NoError(t, err)
	assert.Equal(t, "1000000000", limit.String())

	limitIn, err := p.LimitAmountSwap(nil, tokenA, usdc, GivenIn)
	require.NoError(t, err)
	_, err = p.SwapGivenIn(nil, tokenA, usdc, amount(t, tokenA, limitIn), false)
	require.NoError(t, err)
}

func TestConstructorValidation(t *testing.T) {
	_, err := NewWeighted(Config{
		ID:       "bad-weights",
		Address:  weightedAddress,
		Tokens:   []PoolToken{{Token: tokenA, Weight: big.NewInt(6e17)}, {Token: tokenB, Weight: big.NewInt(6e17)}},
		Balances: []*big.Int{wad(1), wad(1)},
	})
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = NewStable(Config{
		ID:       "one-token",
		Address:  stableAddress,
		Tokens:   []PoolToken{{Token: tokenA}},
		Balances: []*big.Int{wad(1)},
	}, big.NewInt(100_000), 0)
	assert.ErrorIs(t, err, ErrInvalidPool)

	_, err = ParseKind("FX")
	assert.ErrorIs(t, err, ErrUnsupportedPoolType)
}
