package stable

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixedpoint.One)
}

// amp 100 with three decimals of precision
var amp100 = big.NewInt(100_000)

func balancedPool() []*big.Int {
	return []*big.Int{wad(1000), wad(1000)}
}

func TestCalculateInvariant(t *testing.T) {
	var m Math

	testCases := []struct {
		name     string
		balances []*big.Int
		check    func(t *testing.T, inv *big.Int)
	}{
		{
			name:     "balanced pool equals sum",
			balances: balancedPool(),
			check: func(t *testing.T, inv *big.Int) {
				assert.Equal(t, wad(2000).String(), inv.String())
			},
		},
		{
			name:     "imbalanced pool is below sum",
			balances: []*big.Int{wad(1500), wad(500)},
			check: func(t *testing.T, inv *big.Int) {
				assert.True(t, inv.Cmp(wad(2000)) < 0)
				assert.True(t, inv.Cmp(wad(1900)) > 0)
			},
		},
		{
			name:     "empty pool",
			balances: []*big.Int{big.NewInt(0), big.NewInt(0)},
			check: func(t *testing.T, inv *big.Int) {
				assert.Zero(t, inv.Sign())
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inv, err := m.CalculateInvariant(amp100, tc.balances)
			require.NoError(t, err)
			tc.check(t, inv)
		})
	}
}

func TestCalculateInvariantIterationBound(t *testing.T) {
	m := Math{MaxIterations: 1}
	_, err := m.CalculateInvariant(amp100, []*big.Int{wad(1000), wad(1)})
	assert.ErrorIs(t, err, ErrInvariantDidNotConverge)
	assert.ErrorIs(t, err, fixedpoint.ErrArithmetic)
}

func TestSwapRoundTrip(t *testing.T) {
	var m Math
	balances := balancedPool()
	inv, err := m.CalculateInvariant(amp100, balances)
	require.NoError(t, err)

	amountIn := wad(10)
	out, err := m.CalcOutGivenIn(amp100, balances, 0, 1, amountIn, inv)
	require.NoError(t, err)
	// close to 1:1 near balance, never above it
	assert.True(t, out.Cmp(amountIn) < 0)
	assert.True(t, out.Cmp(wad(9)) > 0)

	in, err := m.CalcInGivenOut(amp100, balances, 0, 1, out, inv)
	require.NoError(t, err)
	diff := new(big.Int).Sub(in, amountIn)
	assert.True(t, diff.CmpAbs(big.NewInt(2)) <= 0, "in %s, amountIn %s", in, amountIn)

	// inputs are never mutated
	assert.Equal(t, wad(1000).String(), balances[0].String())
	assert.Equal(t, wad(1000).String(), balances[1].String())
}

func TestSwapBackNeverGains(t *testing.T) {
	var m Math
	balances := balancedPool()
	inv, err := m.CalculateInvariant(amp100, balances)
	require.NoError(t, err)

	amountIn := wad(25)
	out, err := m.CalcOutGivenIn(amp100, balances, 0, 1, amountIn, inv)
	require.NoError(t, err)

	after := []*big.Int{new(big.Int).Add(balances[0], amountIn), new(big.Int).Sub(balances[1], out)}
	invAfter, err := m.CalculateInvariant(amp100, after)
	require.NoError(t, err)

	back, err := m.CalcOutGivenIn(amp100, after, 1, 0, out, invAfter)
	require.NoError(t, err)
	assert.True(t, back.Cmp(amountIn) <= 0, "back %s > in %s", back, amountIn)
}

func TestCalcInGivenOutExceedsBalance(t *testing.T) {
	var m Math
	balances := balancedPool()
	inv, err := m.CalculateInvariant(amp100, balances)
	require.NoError(t, err)

	_, err = m.CalcInGivenOut(amp100, balances, 0, 1, wad(1001), inv)
	assert.ErrorIs(t, err, fixedpoint.ErrNegativeAmount)
}

func TestJoinExit(t *testing.T) {
	var m Math
	balances := balancedPool()
	supply := wad(2000)
	noFee := big.NewInt(0)
	inv, err := m.CalculateInvariant(amp100, balances)
	require.NoError(t, err)

	amountIn := wad(10)
	bptOut, err := m.CalcBptOutGivenExactTokensIn(amp100, balances, []*big.Int{amountIn, big.NewInt(0)}, supply, inv, noFee)
	require.NoError(t, err)
	require.True(t, bptOut.Sign() > 0)
	// an unbalanced join mints less than the proportional share
	assert.True(t, bptOut.Cmp(wad(10)) < 0)

	tokenIn, err := m.CalcTokenInGivenExactBptOut(amp100, balances, 0, bptOut, supply, inv, noFee)
	require.NoError(t, err)
	diff := new(big.Int).Sub(tokenIn, amountIn)
	assert.True(t, diff.CmpAbs(big.NewInt(1e6)) <= 0, "tokenIn %s", tokenIn)

	after := []*big.Int{new(big.Int).Add(balances[0], amountIn), new(big.Int).Set(balances[1])}
	supplyAfter := new(big.Int).Add(supply, bptOut)
	invAfter, err := m.CalculateInvariant(amp100, after)
	require.NoError(t, err)

	tokenOut, err := m.CalcTokenOutGivenExactBptIn(amp100, after, 0, bptOut, supplyAfter, invAfter, noFee)
	require.NoError(t, err)
	assert.True(t, tokenOut.Cmp(amountIn) <= 0, "exit %s > join %s", tokenOut, amountIn)

	bptIn, err := m.CalcBptInGivenExactTokensOut(amp100, after, []*big.Int{tokenOut, big.NewInt(0)}, supplyAfter, invAfter, noFee)
	require.NoError(t, err)
	diff = new(big.Int).Sub(bptIn, bptOut)
	assert.True(t, diff.CmpAbs(big.NewInt(1e6)) <= 0, "bptIn %s bptOut %s", bptIn, bptOut)
}

func TestJoinWithFeeMintsLess(t *testing.T) {
	var m Math
	balances := balancedPool()
	supply := wad(2000)
	inv, err := m.CalculateInvariant(amp100, balances)
	require.NoError(t, err)

	amounts := []*big.Int{wad(100), big.NewInt(0)}
	noFee, err := m.CalcBptOutGivenExactTokensIn(amp100, balances, amounts, supply, inv, big.NewInt(0))
	require.NoError(t, err)
	withFee, err := m.CalcBptOutGivenExactTokensIn(amp100, balances, amounts, supply, inv, big.NewInt(1e16))
	require.NoError(t, err)
	assert.True(t, withFee.Cmp(noFee) < 0)
}
