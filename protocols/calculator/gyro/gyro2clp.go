package gyro

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
)

// Rounding selects the direction of every intermediate step of the invariant.
type Rounding int

const (
	RoundDown Rounding = iota
	RoundUp
)

var (
	// ErrAssetBoundsExceeded is returned when a swap would take more than the real balance.
	ErrAssetBoundsExceeded = errors.New("gyro asset bounds exceeded")
	// ErrInvalidPriceRange is returned unless 0 < sqrtAlpha < sqrtBeta.
	ErrInvalidPriceRange = errors.New("gyro sqrt price range invalid")

	onePlusTwo  = new(big.Int).Add(fixedpoint.One, big.NewInt(2))
	oneMinusOne = new(big.Int).Sub(fixedpoint.One, big.NewInt(1))
	twoWad      = big.NewInt(2e18)
	fourWad     = big.NewInt(4e18)
)

// Params holds the square roots of the 2-CLP price bounds.
type Params struct {
	SqrtAlpha *big.Int
	SqrtBeta  *big.Int
}

// Validate checks 0 < SqrtAlpha < SqrtBeta.
func (p Params) Validate() error {
	if p.SqrtAlpha == nil || p.SqrtBeta == nil || p.SqrtAlpha.Sign() <= 0 || p.SqrtAlpha.Cmp(p.SqrtBeta) >= 0 {
		return ErrInvalidPriceRange
	}
	return nil
}

type roundingOps struct {
	divUpOrDown func(a, b *big.Int) *big.Int
	divDownOrUp func(a, b *big.Int) *big.Int
	mulUpOrDown func(a, b *big.Int) *big.Int
	mulDownOrUp func(a, b *big.Int) *big.Int
}

func opsFor(c *fixedpoint.Calc, r Rounding) roundingOps {
	if r == RoundDown {
		return roundingOps{c.DivDown, c.DivUp, c.MulDown, c.MulUp}
	}
	return roundingOps{c.DivUp, c.DivDown, c.MulUp, c.MulDown}
}

// CalculateInvariant solves the 2-CLP quadratic for L given balances [x, y].
func CalculateInvariant(balances [2]*big.Int, p Params, r Rounding) (*big.Int, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	ops := opsFor(&c, r)

	// a follows the opposite rounding since it sits in the denominator
	a := c.Sub(fixedpoint.One, ops.divDownOrUp(p.SqrtAlpha, p.SqrtBeta))
	mb := c.Add(ops.divUpOrDown(balances[1], p.SqrtBeta), ops.mulUpOrDown(balances[0], p.SqrtAlpha))
	mc := ops.mulUpOrDown(balances[0], balances[1])

	bSquare := ops.mulUpOrDown(ops.mulUpOrDown(balances[0], balances[0]), ops.mulUpOrDown(p.SqrtAlpha, p.SqrtAlpha))
	bSq2 := ops.divUpOrDown(c.Mul(big.NewInt(2), ops.mulUpOrDown(ops.mulUpOrDown(balances[0], balances[1]), p.SqrtAlpha)), p.SqrtBeta)
	bSq3 := ops.divUpOrDown(ops.mulUpOrDown(balances[1], balances[1]), ops.mulDownOrUp(p.SqrtBeta, p.SqrtBeta))
	bSquare = c.Add(c.Add(bSquare, bSq2), bSq3)

	denominator := ops.mulDownOrUp(a, twoWad)
	addTerm := ops.mulUpOrDown(mc, fourWad)
	radicand := c.Add(bSquare, ops.mulUpOrDown(addTerm, a))
	if err := c.Err(); err != nil {
		return nil, err
	}

	root := Sqrt(radicand, r)
	invariant := ops.divUpOrDown(c.Add(mb, root), denominator)
	return invariant, c.Err()
}

// Sqrt returns the WAD square root of x, i.e. sqrt(x * 1e18), rounded as requested.
func Sqrt(x *big.Int, r Rounding) *big.Int {
	if x.Sign() <= 0 {
		return new(big.Int)
	}
	scaled := new(big.Int).Mul(x, fixedpoint.One)
	root := new(big.Int).Sqrt(scaled)
	if r == RoundUp && new(big.Int).Mul(root, root).Cmp(scaled) != 0 {
		root.Add(root, big.NewInt(1))
	}
	return root
}

// VirtualOffsets returns the virtual balance offsets for the input and output
// tokens. tokenInIsToken0 orders the pair.
func VirtualOffsets(invariant *big.Int, p Params, tokenInIsToken0 bool) (in, out *big.Int, err error) {
	var c fixedpoint.Calc
	// offset of token0 is L/sqrtBeta, of token1 is L*sqrtAlpha
	offset0 := c.DivDown(invariant, p.SqrtBeta)
	offset1 := c.MulDown(invariant, p.SqrtAlpha)
	if err := c.Err(); err != nil {
		return nil, nil, err
	}
	if tokenInIsToken0 {
		return offset0, offset1, nil
	}
	return offset1, offset0, nil
}

// CalcOutGivenIn returns the amount out for amountIn, which must already exclude the fee.
func CalcOutGivenIn(balanceIn, balanceOut, amountIn, virtualIn, virtualOut *big.Int) (*big.Int, error) {
	var c fixedpoint.Calc
	virtInOver := c.Add(balanceIn, c.MulUp(virtualIn, onePlusTwo))
	virtOutUnder := c.Add(balanceOut, c.MulDown(virtualOut, oneMinusOne))

	out := c.DivDown(c.MulDown(virtOutUnder, amountIn), c.Add(virtInOver, amountIn))
	if err := c.Err(); err != nil {
		return nil, err
	}
	if out.Cmp(balanceOut) > 0 {
		return nil, fmt.Errorf("%w: out %s > balance %s", ErrAssetBoundsExceeded, out, balanceOut)
	}
	return out, nil
}

// CalcInGivenOut returns the amount in required for amountOut, before the fee is added.
func CalcInGivenOut(balanceIn, balanceOut, amountOut, virtualIn, virtualOut *big.Int) (*big.Int, error) {
	if amountOut.Cmp(balanceOut) > 0 {
		return nil, fmt.Errorf("%w: out %s > balance %s", ErrAssetBoundsExceeded, amountOut, balanceOut)
	}
	var c fixedpoint.Calc
	virtInOver := c.Add(balanceIn, c.MulUp(virtualIn, onePlusTwo))
	virtOutUnder := c.Add(balanceOut, c.MulDown(virtualOut, oneMinusOne))

	in := c.DivUp(c.MulUp(virtInOver, amountOut), c.Sub(virtOutUnder, amountOut))
	return in, c.Err()
}
