package weighted

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
)

var (
	// MaxInRatio bounds amountIn relative to balanceIn.
	MaxInRatio = big.NewInt(3e17)
	// MaxOutRatio bounds amountOut relative to balanceOut.
	MaxOutRatio = big.NewInt(3e17)
	// MaxInvariantRatio bounds single-token joins.
	MaxInvariantRatio = big.NewInt(3e18)
	// MinInvariantRatio bounds single-token exits.
	MinInvariantRatio = big.NewInt(7e17)

	// ErrMaxInRatio is returned when amountIn exceeds MaxInRatio of the balance.
	ErrMaxInRatio = errors.New("max in ratio exceeded")
	// ErrMaxOutRatio is returned when amountOut exceeds MaxOutRatio of the balance.
	ErrMaxOutRatio = errors.New("max out ratio exceeded")
	// ErrInvariantRatio is returned when a join or exit moves the invariant out of bounds.
	ErrInvariantRatio = errors.New("invariant ratio out of bounds")
)

// CalcOutGivenIn returns the amount of tokenOut received for amountIn of tokenIn.
// All values are 18 decimal scaled; amountIn must already exclude the swap fee.
func CalcOutGivenIn(balanceIn, weightIn, balanceOut, weightOut, amountIn *big.Int) (*big.Int, error) {
	var c fixedpoint.Calc
	if amountIn.Cmp(c.MulDown(balanceIn, MaxInRatio)) > 0 {
		return nil, fmt.Errorf("%w: %s > 0.3 * %s", ErrMaxInRatio, amountIn, balanceIn)
	}

	denominator := c.Add(balanceIn, amountIn)
	base := c.DivUp(balanceIn, denominator)
	exponent := c.DivDown(weightIn, weightOut)
	power := c.PowUp(base, exponent)

	out := c.MulDown(balanceOut, c.Complement(power))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CalcInGivenOut returns the amount of tokenIn required to receive amountOut of
// tokenOut, before the swap fee is added.
func CalcInGivenOut(balanceIn, weightIn, balanceOut, weightOut, amountOut *big.Int) (*big.Int, error) {
	var c fixedpoint.Calc
	if amountOut.Cmp(c.MulDown(balanceOut, MaxOutRatio)) > 0 {
		return nil, fmt.Errorf("%w: %s > 0.3 * %s", ErrMaxOutRatio, amountOut, balanceOut)
	}

	base := c.DivUp(balanceOut, c.Sub(balanceOut, amountOut))
	exponent := c.DivUp(weightOut, weightIn)
	power := c.PowUp(base, exponent)

	in := c.MulUp(balanceIn, c.Sub(power, fixedpoint.One))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return in, nil
}

// CalcBptOutGivenExactTokenIn returns the BPT minted for a single-token join.
// The swap fee is charged only on the part of amountIn that unbalances the pool.
func CalcBptOutGivenExactTokenIn(balance, normalizedWeight, amountIn, bptTotalSupply, swapFee *big.Int) (*big.Int, error) {
	var c fixedpoint.Calc

	balanceRatioWithFee := c.DivDown(c.Add(balance, amountIn), balance)
	invariantRatioWithFees := c.Add(c.MulDown(balanceRatioWithFee, normalizedWeight), c.Complement(normalizedWeight))

	amountInWithoutFee := new(big.Int).Set(amountIn)
	if balanceRatioWithFee.Cmp(invariantRatioWithFees) > 0 {
		nonTaxable := new(big.Int)
		if invariantRatioWithFees.Cmp(fixedpoint.One) > 0 {
			nonTaxable = c.MulDown(balance, c.Sub(invariantRatioWithFees, fixedpoint.One))
		}
		taxable := c.Sub(amountIn, nonTaxable)
		fee := c.MulUp(taxable, swapFee)
		amountInWithoutFee = c.Add(nonTaxable, c.Sub(taxable, fee))
	} else if amountInWithoutFee.Sign() == 0 {
		return new(big.Int), c.Err()
	}

	balanceRatio := c.DivDown(c.Add(balance, amountInWithoutFee), balance)
	invariantRatio := c.PowDown(balanceRatio, normalizedWeight)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if invariantRatio.Cmp(MaxInvariantRatio) > 0 {
		return nil, fmt.Errorf("%w: %s > 3", ErrInvariantRatio, invariantRatio)
	}
	if invariantRatio.Cmp(fixedpoint.One) <= 0 {
		return new(big.Int), nil
	}
	out := c.MulDown(bptTotalSupply, c.Sub(invariantRatio, fixedpoint.One))
	return out, c.Err()
}

// CalcTokenInGivenExactBptOut returns the token amount needed to mint exactly bptAmountOut.
func CalcTokenInGivenExactBptOut(balance, normalizedWeight, bptAmountOut, bptTotalSupply, swapFee *big.Int) (*big.Int, error) {
	var c fixedpoint.Calc

	invariantRatio := c.DivUp(c.Add(bptTotalSupply, bptAmountOut), bptTotalSupply)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if invariantRatio.Cmp(MaxInvariantRatio) > 0 {
		return nil, fmt.Errorf("%w: %s > 3", ErrInvariantRatio, invariantRatio)
	}

	balanceRatio := c.PowUp(invariantRatio, c.DivUp(fixedpoint.One, normalizedWeight))
	amountInWithoutFee := c.MulUp(balance, c.Sub(balanceRatio, fixedpoint.One))

	taxable := c.MulUp(amountInWithoutFee, c.Complement(normalizedWeight))
	nonTaxable := c.Sub(amountInWithoutFee, taxable)
	taxablePlusFees := c.DivUp(taxable, c.Complement(swapFee))

	in := c.Add(nonTaxable, taxablePlusFees)
	return in, c.Err()
}

// CalcTokenOutGivenExactBptIn returns the token amount received for burning bptAmountIn.
func CalcTokenOutGivenExactBptIn(balance, normalizedWeight, bptAmountIn, bptTotalSupply, swapFee *big.Int) (*big.Int, error) {
	var c fixedpoint.Calc

	invariantRatio := c.DivUp(c.Sub(bptTotalSupply, bptAmountIn), bptTotalSupply)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if invariantRatio.Cmp(MinInvariantRatio) < 0 {
		return nil, fmt.Errorf("%w: %s < 0.7", ErrInvariantRatio, invariantRatio)
	}

	balanceRatio := c.PowUp(invariantRatio, c.DivDown(fixedpoint.One, normalizedWeight))
	amountOutWithoutFee := c.MulDown(balance, c.Complement(balanceRatio))

	taxable := c.MulUp(amountOutWithoutFee, c.Complement(normalizedWeight))
	nonTaxable := c.Sub(amountOutWithoutFee, taxable)
	taxableMinusFees := c.MulUp(taxable, c.Complement(swapFee))

	out := c.Add(nonTaxable, taxableMinusFees)
	return out, c.Err()
}

// CalcBptInGivenExactTokenOut returns the BPT that must be burned to withdraw exactly amountOut.
func CalcBptInGivenExactTokenOut(balance, normalizedWeight, amountOut, bptTotalSupply, swapFee *big.Int) (*big.Int, error) {
	var c fixedpoint.Calc

	balanceRatioWithoutFee := c.DivUp(c.Sub(balance, amountOut), balance)
	invariantRatioWithoutFees := c.Add(c.MulUp(balanceRatioWithoutFee, normalizedWeight), c.Complement(normalizedWeight))

	amountOutWithFee := new(big.Int).Set(amountOut)
	if invariantRatioWithoutFees.Cmp(balanceRatioWithoutFee) > 0 {
		nonTaxable := c.MulDown(balance, c.Complement(invariantRatioWithoutFees))
		taxable := c.Sub(amountOut, nonTaxable)
		taxablePlusFees := c.DivUp(taxable, c.Complement(swapFee))
		amountOutWithFee = c.Add(nonTaxable, taxablePlusFees)
	} else if amountOutWithFee.Sign() == 0 {
		return new(big.Int), c.Err()
	}

	balanceRatio := c.DivDown(c.Sub(balance, amountOutWithFee), balance)
	invariantRatio := c.PowDown(balanceRatio, normalizedWeight)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if invariantRatio.Cmp(MinInvariantRatio) < 0 {
		return nil, fmt.Errorf("%w: %s < 0.7", ErrInvariantRatio, invariantRatio)
	}
	in := c.MulUp(bptTotalSupply, c.Complement(invariantRatio))
	return in, c.Err()
}
