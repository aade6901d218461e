package stable

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
)

// DefaultMaxIterations is the Newton iteration bound used on chain.
const DefaultMaxIterations = 255

var (
	// AmpPrecision is the fixed-point precision of the amplification parameter.
	AmpPrecision = big.NewInt(1000)

	// ErrInvariantDidNotConverge is returned when Newton iteration exceeds its bound.
	ErrInvariantDidNotConverge = fmt.Errorf("%w: stable invariant did not converge", fixedpoint.ErrArithmetic)
	// ErrBalanceDidNotConverge is returned when the token balance solve exceeds its bound.
	ErrBalanceDidNotConverge = fmt.Errorf("%w: stable balance did not converge", fixedpoint.ErrArithmetic)
	// ErrInvalidBalances is returned for empty balance vectors or out-of-range indices.
	ErrInvalidBalances = errors.New("invalid stable balances")

	one = big.NewInt(1)
	two = big.NewInt(2)
)

// Math evaluates stable-swap formulas with a configurable Newton iteration bound.
// The zero value uses DefaultMaxIterations.
type Math struct {
	MaxIterations int
}

func (m Math) iterations() int {
	if m.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return m.MaxIterations
}

func withinOne(a, b *big.Int) bool {
	d := new(big.Int).Sub(a, b)
	return d.CmpAbs(one) <= 0
}

// CalculateInvariant solves the StableSwap invariant D for the given balances.
// amp carries AmpPrecision; balances are 18 decimal scaled and rate adjusted.
func (m Math) CalculateInvariant(amp *big.Int, balances []*big.Int) (*big.Int, error) {
	if len(balances) == 0 {
		return nil, ErrInvalidBalances
	}
	var c fixedpoint.Calc

	sum := new(big.Int)
	for _, b := range balances {
		sum = c.Add(sum, b)
	}
	if sum.Sign() == 0 {
		return new(big.Int), c.Err()
	}

	n := big.NewInt(int64(len(balances)))
	nPlusOne := big.NewInt(int64(len(balances) + 1))
	ampTimesTotal := c.Mul(amp, n)
	ampTimesTotalMinusPrecision := c.Sub(ampTimesTotal, AmpPrecision)
	invariant := new(big.Int).Set(sum)

	for i := 0; i < m.iterations(); i++ {
		dP := new(big.Int).Set(invariant)
		for _, b := range balances {
			dP = c.DivDownRaw(c.Mul(dP, invariant), c.Mul(b, n))
		}
		prev := invariant

		numerator := c.Mul(
			c.Add(c.DivDownRaw(c.Mul(ampTimesTotal, sum), AmpPrecision), c.Mul(dP, n)),
			invariant,
		)
		denominator := c.Add(
			c.DivDownRaw(c.Mul(ampTimesTotalMinusPrecision, invariant), AmpPrecision),
			c.Mul(nPlusOne, dP),
		)
		invariant = c.DivDownRaw(numerator, denominator)
		if err := c.Err(); err != nil {
			return nil, err
		}
		if withinOne(invariant, prev) {
			return invariant, nil
		}
	}
	return nil, ErrInvariantDidNotConverge
}

// TokenBalanceGivenInvariantAndAllOtherBalances solves for balances[tokenIndex]
// such that the pool invariant equals invariant. The value of balances[tokenIndex]
// on input is ignored except for the product seed.
func (m Math) TokenBalanceGivenInvariantAndAllOtherBalances(amp *big.Int, balances []*big.Int, invariant *big.Int, tokenIndex int) (*big.Int, error) {
	if tokenIndex < 0 || tokenIndex >= len(balances) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrInvalidBalances, tokenIndex, len(balances))
	}
	var c fixedpoint.Calc

	n := big.NewInt(int64(len(balances)))
	ampTimesTotal := c.Mul(amp, n)
	sum := new(big.Int).Set(balances[0])
	pD := c.Mul(balances[0], n)
	for j := 1; j < len(balances); j++ {
		pD = c.DivDownRaw(c.Mul(c.Mul(pD, balances[j]), n), invariant)
		sum = c.Add(sum, balances[j])
	}
	sum = c.Sub(sum, balances[tokenIndex])

	inv2 := c.Mul(invariant, invariant)
	cTerm := c.Mul(
		c.Mul(c.DivUpRaw(inv2, c.Mul(ampTimesTotal, pD)), AmpPrecision),
		balances[tokenIndex],
	)
	b := c.Add(sum, c.Mul(c.DivDownRaw(invariant, ampTimesTotal), AmpPrecision))

	tokenBalance := c.DivUpRaw(c.Add(inv2, cTerm), c.Add(invariant, b))
	if err := c.Err(); err != nil {
		return nil, err
	}

	for i := 0; i < m.iterations(); i++ {
		prev := tokenBalance
		tokenBalance = c.DivUpRaw(
			c.Add(c.Mul(tokenBalance, tokenBalance), cTerm),
			c.Sub(c.Add(c.Mul(tokenBalance, two), b), invariant),
		)
		if err := c.Err(); err != nil {
			return nil, err
		}
		if withinOne(tokenBalance, prev) {
			return tokenBalance, nil
		}
	}
	return nil, ErrBalanceDidNotConverge
}

func copyBalances(balances []*big.Int) []*big.Int {
	out := make([]*big.Int, len(balances))
	for i, b := range balances {
		out[i] = new(big.Int).Set(b)
	}
	return out
}

func sumOf(c *fixedpoint.Calc, balances []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, b := range balances {
		sum = c.Add(sum, b)
	}
	return sum
}

// CalcOutGivenIn returns the amount of token j received for amountIn of token i.
// amountIn must already exclude the swap fee.
func (m Math) CalcOutGivenIn(amp *big.Int, balances []*big.Int, i, j int, amountIn, invariant *big.Int) (*big.Int, error) {
	if i == j || j < 0 || j >= len(balances) || i < 0 || i >= len(balances) {
		return nil, fmt.Errorf("%w: indices %d,%d", ErrInvalidBalances, i, j)
	}
	work := copyBalances(balances)
	work[i].Add(work[i], amountIn)

	finalBalanceOut, err := m.TokenBalanceGivenInvariantAndAllOtherBalances(amp, work, invariant, j)
	if err != nil {
		return nil, err
	}

	var c fixedpoint.Calc
	out := c.Sub(c.Sub(balances[j], finalBalanceOut), one)
	return out, c.Err()
}

// CalcInGivenOut returns the amount of token i needed to receive amountOut of
// token j, before the swap fee is added.
func (m Math) CalcInGivenOut(amp *big.Int, balances []*big.Int, i, j int, amountOut, invariant *big.Int) (*big.Int, error) {
	if i == j || j < 0 || j >= len(balances) || i < 0 || i >= len(balances) {
		return nil, fmt.Errorf("%w: indices %d,%d", ErrInvalidBalances, i, j)
	}
	var c fixedpoint.Calc
	work := copyBalances(balances)
	work[j] = c.Sub(work[j], amountOut)
	if err := c.Err(); err != nil {
		return nil, err
	}

	finalBalanceIn, err := m.TokenBalanceGivenInvariantAndAllOtherBalances(amp, work, invariant, i)
	if err != nil {
		return nil, err
	}

	in := c.Add(c.Sub(finalBalanceIn, balances[i]), one)
	return in, c.Err()
}

// CalcBptOutGivenExactTokensIn returns the BPT minted for an unbalanced join.
func (m Math) CalcBptOutGivenExactTokensIn(amp *big.Int, balances, amountsIn []*big.Int, bptTotalSupply, currentInvariant, swapFee *big.Int) (*big.Int, error) {
	if len(amountsIn) != len(balances) {
		return nil, fmt.Errorf("%w: %d amounts for %d balances", ErrInvalidBalances, len(amountsIn), len(balances))
	}
	var c fixedpoint.Calc
	sum := sumOf(&c, balances)

	ratiosWithFee := make([]*big.Int, len(balances))
	invariantRatioWithFees := new(big.Int)
	for i := range balances {
		currentWeight := c.DivDown(balances[i], sum)
		ratiosWithFee[i] = c.DivDown(c.Add(balances[i], amountsIn[i]), balances[i])
		invariantRatioWithFees = c.Add(invariantRatioWithFees, c.MulDown(ratiosWithFee[i], currentWeight))
	}

	newBalances := make([]*big.Int, len(balances))
	for i := range balances {
		amountInWithoutFee := amountsIn[i]
		if ratiosWithFee[i].Cmp(invariantRatioWithFees) > 0 {
			nonTaxable := c.MulDown(balances[i], c.Sub(invariantRatioWithFees, fixedpoint.One))
			taxable := c.Sub(amountsIn[i], nonTaxable)
			amountInWithoutFee = c.Add(nonTaxable, c.MulDown(taxable, c.Complement(swapFee)))
		}
		newBalances[i] = c.Add(balances[i], amountInWithoutFee)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	newInvariant, err := m.CalculateInvariant(amp, newBalances)
	if err != nil {
		return nil, err
	}
	invariantRatio := c.DivDown(newInvariant, currentInvariant)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if invariantRatio.Cmp(fixedpoint.One) <= 0 {
		return new(big.Int), nil
	}
	out := c.MulDown(bptTotalSupply, c.Sub(invariantRatio, fixedpoint.One))
	return out, c.Err()
}

// CalcTokenInGivenExactBptOut returns the amount of token tokenIndex needed to
// mint exactly bptAmountOut.
func (m Math) CalcTokenInGivenExactBptOut(amp *big.Int, balances []*big.Int, tokenIndex int, bptAmountOut, bptTotalSupply, currentInvariant, swapFee *big.Int) (*big.Int, error) {
	if tokenIndex < 0 || tokenIndex >= len(balances) {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidBalances, tokenIndex)
	}
	var c fixedpoint.Calc
	newInvariant := c.MulUp(c.DivUp(c.Add(bptTotalSupply, bptAmountOut), bptTotalSupply), currentInvariant)
	if err := c.Err(); err != nil {
		return nil, err
	}

	newBalance, err := m.TokenBalanceGivenInvariantAndAllOtherBalances(amp, balances, newInvariant, tokenIndex)
	if err != nil {
		return nil, err
	}
	amountInWithoutFee := c.Sub(newBalance, balances[tokenIndex])

	currentWeight := c.DivDown(balances[tokenIndex], sumOf(&c, balances))
	taxable := c.MulUp(amountInWithoutFee, c.Complement(currentWeight))
	nonTaxable := c.Sub(amountInWithoutFee, taxable)

	in := c.Add(nonTaxable, c.DivUp(taxable, c.Complement(swapFee)))
	return in, c.Err()
}

// CalcBptInGivenExactTokensOut returns the BPT burned for an unbalanced exit.
func (m Math) CalcBptInGivenExactTokensOut(amp *big.Int, balances, amountsOut []*big.Int, bptTotalSupply, currentInvariant, swapFee *big.Int) (*big.Int, error) {
	if len(amountsOut) != len(balances) {
		return nil, fmt.Errorf("%w: %d amounts for %d balances", ErrInvalidBalances, len(amountsOut), len(balances))
	}
	var c fixedpoint.Calc
	sum := sumOf(&c, balances)

	ratiosWithoutFee := make([]*big.Int, len(balances))
	invariantRatioWithoutFees := new(big.Int)
	for i := range balances {
		currentWeight := c.DivUp(balances[i], sum)
		ratiosWithoutFee[i] = c.DivUp(c.Sub(balances[i], amountsOut[i]), balances[i])
		invariantRatioWithoutFees = c.Add(invariantRatioWithoutFees, c.MulUp(ratiosWithoutFee[i], currentWeight))
	}

	newBalances := make([]*big.Int, len(balances))
	for i := range balances {
		amountOutWithFee := amountsOut[i]
		if invariantRatioWithoutFees.Cmp(ratiosWithoutFee[i]) > 0 {
			nonTaxable := c.MulDown(balances[i], c.Complement(invariantRatioWithoutFees))
			taxable := c.Sub(amountsOut[i], nonTaxable)
			amountOutWithFee = c.Add(nonTaxable, c.DivUp(taxable, c.Complement(swapFee)))
		}
		newBalances[i] = c.Sub(balances[i], amountOutWithFee)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	newInvariant, err := m.CalculateInvariant(amp, newBalances)
	if err != nil {
		return nil, err
	}
	invariantRatio := c.DivDown(newInvariant, currentInvariant)
	in := c.MulUp(bptTotalSupply, c.Complement(invariantRatio))
	return in, c.Err()
}

// CalcTokenOutGivenExactBptIn returns the amount of token tokenIndex received
// for burning bptAmountIn.
func (m Math) CalcTokenOutGivenExactBptIn(amp *big.Int, balances []*big.Int, tokenIndex int, bptAmountIn, bptTotalSupply, currentInvariant, swapFee *big.Int) (*big.Int, error) {
	if tokenIndex < 0 || tokenIndex >= len(balances) {
		return nil, fmt.Errorf("%w: index %d", ErrInvalidBalances, tokenIndex)
	}
	var c fixedpoint.Calc
	newInvariant := c.MulUp(c.DivUp(c.Sub(bptTotalSupply, bptAmountIn), bptTotalSupply), currentInvariant)
	if err := c.Err(); err != nil {
		return nil, err
	}

	newBalance, err := m.TokenBalanceGivenInvariantAndAllOtherBalances(amp, balances, newInvariant, tokenIndex)
	if err != nil {
		return nil, err
	}
	amountOutWithoutFee := c.Sub(balances[tokenIndex], newBalance)

	currentWeight := c.DivDown(balances[tokenIndex], sumOf(&c, balances))
	taxable := c.MulUp(amountOutWithoutFee, c.Complement(currentWeight))
	nonTaxable := c.Sub(amountOutWithoutFee, taxable)

	out := c.Add(nonTaxable, c.MulDown(taxable, c.Complement(swapFee)))
	return out, c.Err()
}
