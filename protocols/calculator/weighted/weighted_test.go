package weighted

import (
	"math/big"
	"testing"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBigIntFromString(s string) *big.Int {
	n, _ := new(big.Int).SetString(s, 10)
	return n
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), fixedpoint.One)
}

// assertRelClose checks got is within 1e-12 of want, the accumulated pow error bound.
func assertRelClose(t *testing.T, want, got *big.Int) {
	t.Helper()
	diff := new(big.Int).Sub(want, got)
	diff.Abs(diff)
	tolerance := new(big.Int).Quo(want, big.NewInt(1e12))
	assert.True(t, diff.Cmp(tolerance) <= 0, "expected %s, got %s (diff %s)", want, got, diff)
}

func TestCalcOutGivenIn(t *testing.T) {
	half := big.NewInt(5e17)

	testCases := []struct {
		name        string
		balanceIn   *big.Int
		weightIn    *big.Int
		balanceOut  *big.Int
		weightOut   *big.Int
		amountIn    *big.Int
		expectedOut *big.Int
		expectedErr error
	}{
		{
			name:       "50/50 pool, 100 in",
			balanceIn:  wad(1000),
			weightIn:   half,
			balanceOut: wad(1000),
			weightOut:  half,
			amountIn:   wad(100),
			// balanceOut * (1 - divUp(1000, 1100)); divUp rounds the base up by one wei
			expectedOut: newBigIntFromString("90909090909090909000"),
		},
		{
			name:        "zero in",
			balanceIn:   wad(1000),
			weightIn:    half,
			balanceOut:  wad(1000),
			weightOut:   half,
			amountIn:    big.NewInt(0),
			expectedOut: big.NewInt(0),
		},
		{
			name:        "above max in ratio",
			balanceIn:   wad(1000),
			weightIn:    half,
			balanceOut:  wad(1000),
			weightOut:   half,
			amountIn:    wad(301),
			expectedErr: ErrMaxInRatio,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := CalcOutGivenIn(tc.balanceIn, tc.weightIn, tc.balanceOut, tc.weightOut, tc.amountIn)
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Zero(t, tc.expectedOut.Cmp(out), "expected %s, got %s", tc.expectedOut, out)
		})
	}
}

func TestCalcOutGivenInMatchesRationalValue(t *testing.T) {
	half := big.NewInt(5e17)
	out, err := CalcOutGivenIn(wad(1000), half, wad(1000), half, wad(100))
	require.NoError(t, err)

	// 1000 - 1000*1000/1100 = 90.909090909090909090...
	rational := newBigIntFromString("90909090909090909090")
	diff := new(big.Int).Sub(rational, out)
	assert.True(t, diff.Sign() >= 0, "on-chain rounding must favour the pool")
	// the single wei of rounding in the base is scaled by balanceOut
	assert.True(t, diff.Cmp(big.NewInt(1000)) <= 0, "diff %s", diff)
}

func TestCalcInGivenOutRoundTrip(t *testing.T) {
	weightIn := big.NewInt(8e17)
	weightOut := big.NewInt(2e17)
	balanceIn := wad(2500)
	balanceOut := wad(400)
	amountIn := wad(37)

	out, err := CalcOutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn)
	require.NoError(t, err)
	require.True(t, out.Sign() > 0)

	in, err := CalcInGivenOut(balanceIn, weightIn, balanceOut, weightOut, out)
	require.NoError(t, err)
	assertRelClose(t, amountIn, in)

	_, err = CalcInGivenOut(balanceIn, weightIn, balanceOut, weightOut, wad(121))
	assert.ErrorIs(t, err, ErrMaxOutRatio)
}

func TestSingleTokenJoinExit(t *testing.T) {
	balance := wad(1000)
	weight := big.NewInt(5e17)
	supply := wad(1000)
	amountIn := wad(10)
	noFee := big.NewInt(0)

	bptOut, err := CalcBptOutGivenExactTokenIn(balance, weight, amountIn, supply, noFee)
	require.NoError(t, err)
	require.True(t, bptOut.Sign() > 0)

	// exiting the freshly minted BPT must not return more than was deposited
	newBalance := new(big.Int).Add(balance, amountIn)
	newSupply := new(big.Int).Add(supply, bptOut)
	tokenOut, err := CalcTokenOutGivenExactBptIn(newBalance, weight, bptOut, newSupply, noFee)
	require.NoError(t, err)
	assert.True(t, tokenOut.Cmp(amountIn) <= 0, "exit %s > join %s", tokenOut, amountIn)

	// the exact-out forms bracket the exact-in forms
	tokenIn, err := CalcTokenInGivenExactBptOut(balance, weight, bptOut, supply, noFee)
	require.NoError(t, err)
	assert.True(t, tokenIn.Cmp(amountIn) <= 0)

	bptIn, err := CalcBptInGivenExactTokenOut(newBalance, weight, tokenOut, newSupply, noFee)
	require.NoError(t, err)
	assertRelClose(t, bptOut, bptIn)
}

func TestSingleTokenJoinChargesFee(t *testing.T) {
	balance := wad(1000)
	weight := big.NewInt(5e17)
	supply := wad(1000)
	amountIn := wad(50)

	withoutFee, err := CalcBptOutGivenExactTokenIn(balance, weight, amountIn, supply, big.NewInt(0))
	require.NoError(t, err)
	withFee, err := CalcBptOutGivenExactTokenIn(balance, weight, amountIn, supply, big.NewInt(1e16))
	require.NoError(t, err)
	assert.True(t, withFee.Cmp(withoutFee) < 0)
}

func TestInvariantRatioBounds(t *testing.T) {
	weight := big.NewInt(5e17)
	_, err := CalcTokenOutGivenExactBptIn(wad(1000), weight, wad(400), wad(1000), big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvariantRatio)

	_, err = CalcTokenInGivenExactBptOut(wad(1000), weight, wad(2500), wad(1000), big.NewInt(0))
	assert.ErrorIs(t, err, ErrInvariantRatio)
}
