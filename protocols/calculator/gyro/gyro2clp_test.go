package gyro

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

// price range [0.9, 1.1]
var testParams = Params{
	SqrtAlpha: newBigIntFromString("948683298050513799"),
	SqrtBeta:  newBigIntFromString("1048808848170151546"),
}

func assertRelClose(t *testing.T, want, got *big.Int, divisor int64) {
	t.Helper()
	diff := new(big.Int).Sub(want, got)
	diff.Abs(diff)
	tolerance := new(big.Int).Quo(want, big.NewInt(divisor))
	assert.True(t, diff.Cmp(tolerance) <= 0, "expected %s, got %s (diff %s)", want, got, diff)
}

func TestSqrt(t *testing.T) {
	assert.Equal(t, "2000000000000000000", Sqrt(big.NewInt(4e18), RoundDown).String())
	assert.Equal(t, "2000000000000000000", Sqrt(big.NewInt(4e18), RoundUp).String())
	assert.Equal(t, "1414213562373095048", Sqrt(big.NewInt(2e18), RoundDown).String())
	assert.Equal(t, "1414213562373095049", Sqrt(big.NewInt(2e18), RoundUp).String())
	assert.Zero(t, Sqrt(big.NewInt(0), RoundUp).Sign())
}

func TestCalculateInvariant(t *testing.T) {
	balances := [2]*big.Int{wad(1000), wad(1000)}

	down, err := CalculateInvariant(balances, testParams, RoundDown)
	require.NoError(t, err)
	up, err := CalculateInvariant(balances, testParams, RoundUp)
	require.NoError(t, err)

	// (x + L/sqrtBeta)(y + L*sqrtAlpha) = L^2 gives L = 20437.396437136325955...
	assertRelClose(t, newBigIntFromString("20437396437136325955487"), down, 1e12)
	assert.True(t, up.Cmp(down) >= 0)

	_, err = CalculateInvariant(balances, Params{SqrtAlpha: testParams.SqrtBeta, SqrtBeta: testParams.SqrtAlpha}, RoundDown)
	assert.ErrorIs(t, err, ErrInvalidPriceRange)
}

func TestSwap(t *testing.T) {
	balances := [2]*big.Int{wad(1000), wad(1000)}
	invariant, err := CalculateInvariant(balances, testParams, RoundDown)
	require.NoError(t, err)

	virtualIn, virtualOut, err := VirtualOffsets(invariant, testParams, true)
	require.NoError(t, err)

	amountIn := wad(10)
	out, err := CalcOutGivenIn(balances[0], balances[1], amountIn, virtualIn, virtualOut)
	require.NoError(t, err)
	assertRelClose(t, newBigIntFromString("9947465490838004359"), out, 1e10)

	in, err := CalcInGivenOut(balances[0], balances[1], out, virtualIn, virtualOut)
	require.NoError(t, err)
	assertRelClose(t, amountIn, in, 1e10)
}

func TestSwapAssetBounds(t *testing.T) {
	balances := [2]*big.Int{wad(1000), wad(1000)}
	invariant, err := CalculateInvariant(balances, testParams, RoundDown)
	require.NoError(t, err)
	virtualIn, virtualOut, err := VirtualOffsets(invariant, testParams, false)
	require.NoError(t, err)

	_, err = CalcOutGivenIn(balances[1], balances[0], wad(1_000_000), virtualIn, virtualOut)
	assert.ErrorIs(t, err, ErrAssetBoundsExceeded)

	_, err = CalcInGivenOut(balances[1], balances[0], wad(1001), virtualIn, virtualOut)
	assert.ErrorIs(t, err, ErrAssetBoundsExceeded)
}
