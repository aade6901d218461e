package protocols

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/protocols/calculator/stable"
)

// bptLimitRatio caps BPT given amounts on stable pools.
var bptLimitRatio = big.NewInt(3e17)

// Stable is a StableSwap pool. When its own BPT appears in the token list
// (composable stable) that entry is excluded from the curve.
type Stable struct {
	base
	amp  *big.Int
	math stable.Math
}

// NewStable builds a stable pool. amp carries three decimals of precision;
// maxIterations bounds the Newton solves (0 uses the on-chain default).
func NewStable(cfg Config, amp *big.Int, maxIterations int) (*Stable, error) {
	if amp == nil || amp.Cmp(stable.AmpPrecision) < 0 {
		return nil, fmt.Errorf("%w: %s amp must be >= 1", ErrInvalidPool, cfg.ID)
	}
	p := &Stable{
		amp:  new(big.Int).Set(amp),
		math: stable.Math{MaxIterations: maxIterations},
	}
	b, err := newBase(KindStable, cfg, p)
	if err != nil {
		return nil, err
	}
	if b.bptIndex >= 0 && len(b.tokens) < 3 {
		return nil, fmt.Errorf("%w: %s composable pool needs two tokens besides its BPT", ErrInvalidPool, cfg.ID)
	}
	b.bptTradeable = true
	p.base = b
	return p, nil
}

// Amp returns the amplification parameter with its three decimal precision.
func (p *Stable) Amp() *big.Int {
	return new(big.Int).Set(p.amp)
}

func (p *Stable) calc(st *swapState, kind SwapKind, given *big.Int) (*big.Int, error) {
	balances, in, out := p.dropBpt(st.live, st.in, st.out)
	invariant, err := p.math.CalculateInvariant(p.amp, balances)
	if err != nil {
		return nil, err
	}

	switch st.leg {
	case legJoin:
		if kind == GivenIn {
			amountsIn := zeros(len(balances))
			amountsIn[in] = given
			return p.math.CalcBptOutGivenExactTokensIn(p.amp, balances, amountsIn, st.totalShares, invariant, p.swapFee)
		}
		return p.math.CalcTokenInGivenExactBptOut(p.amp, balances, in, given, st.totalShares, invariant, p.swapFee)
	case legExit:
		if kind == GivenIn {
			return p.math.CalcTokenOutGivenExactBptIn(p.amp, balances, out, given, st.totalShares, invariant, p.swapFee)
		}
		amountsOut := zeros(len(balances))
		amountsOut[out] = given
		return p.math.CalcBptInGivenExactTokensOut(p.amp, balances, amountsOut, st.totalShares, invariant, p.swapFee)
	}
	if kind == GivenIn {
		return p.math.CalcOutGivenIn(p.amp, balances, in, out, given, invariant)
	}
	return p.math.CalcInGivenOut(p.amp, balances, in, out, given, invariant)
}

func zeros(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = new(big.Int)
	}
	return out
}

// limit is the whole balance of the given token expressed at its rate, or 30%
// of the BPT supply when the given token is the BPT.
func (p *Stable) limit(st *swapState, kind SwapKind) (*big.Int, error) {
	idx := st.in
	if kind == GivenOut {
		idx = st.out
	}
	if (st.leg == legExit && kind == GivenIn) || (st.leg == legJoin && kind == GivenOut) {
		return fixedpoint.MulDown(st.totalShares, bptLimitRatio)
	}
	return fixedpoint.DivDown(st.balances.Amounts[idx], p.rate(idx))
}

// normalizedLiquidity is balanceOut * amp, with amp taken at full precision.
func (p *Stable) normalizedLiquidity(st *swapState) (*big.Int, error) {
	balanceOut := st.liveOrShares(st.out)
	if st.leg == legJoin {
		balanceOut = st.totalShares
	}
	var c fixedpoint.Calc
	out := c.DivDownRaw(c.Mul(balanceOut, p.amp), stable.AmpPrecision)
	return out, c.Err()
}
