package protocols

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/protocols/calculator/weighted"
)

// weightSumTolerance allows for weights published with rounding.
var weightSumTolerance = big.NewInt(1e6)

// Weighted is a constant-weighted-product pool. Its BPT trades against any
// pool token through single-token joins and exits.
type Weighted struct {
	base
}

// NewWeighted validates cfg and builds a weighted pool. Weights must be set on
// every token and sum to 1.
func NewWeighted(cfg Config) (*Weighted, error) {
	p := &Weighted{}
	b, err := newBase(KindWeighted, cfg, p)
	if err != nil {
		return nil, err
	}
	sum := new(big.Int)
	for _, pt := range b.tokens {
		if pt.Weight == nil || pt.Weight.Sign() <= 0 || pt.Weight.Cmp(fixedpoint.One) >= 0 {
			return nil, fmt.Errorf("%w: %s token %s needs a weight in (0, 1)", ErrInvalidPool, cfg.ID, pt.Token)
		}
		sum.Add(sum, pt.Weight)
	}
	if new(big.Int).Sub(sum, fixedpoint.One).CmpAbs(weightSumTolerance) > 0 {
		return nil, fmt.Errorf("%w: %s weights sum to %s", ErrInvalidPool, cfg.ID, sum)
	}
	b.bptTradeable = true
	p.base = b
	return p, nil
}

func (p *Weighted) weight(i int) *big.Int {
	return p.tokens[i].Weight
}

func (p *Weighted) calc(st *swapState, kind SwapKind, given *big.Int) (*big.Int, error) {
	switch st.leg {
	case legJoin:
		balance, w := st.live[st.in], p.weight(st.in)
		if kind == GivenIn {
			return weighted.CalcBptOutGivenExactTokenIn(balance, w, given, st.totalShares, p.swapFee)
		}
		return weighted.CalcTokenInGivenExactBptOut(balance, w, given, st.totalShares, p.swapFee)
	case legExit:
		balance, w := st.live[st.out], p.weight(st.out)
		if kind == GivenIn {
			return weighted.CalcTokenOutGivenExactBptIn(balance, w, given, st.totalShares, p.swapFee)
		}
		return weighted.CalcBptInGivenExactTokenOut(balance, w, given, st.totalShares, p.swapFee)
	}
	if kind == GivenIn {
		return weighted.CalcOutGivenIn(st.live[st.in], p.weight(st.in), st.live[st.out], p.weight(st.out), given)
	}
	return weighted.CalcInGivenOut(st.live[st.in], p.weight(st.in), st.live[st.out], p.weight(st.out), given)
}

// limit caps the given token at 30% of its pool balance, or of the BPT supply
// when the given token is the BPT.
func (p *Weighted) limit(st *swapState, kind SwapKind) (*big.Int, error) {
	idx, ratio := st.in, weighted.MaxInRatio
	if kind == GivenOut {
		idx, ratio = st.out, weighted.MaxOutRatio
	}
	return fixedpoint.MulDown(st.rawOrShares(idx), ratio)
}

// normalizedLiquidity is balanceOut * weightIn / (weightIn + weightOut). The
// BPT side of a join or exit counts with the full weight of one.
func (p *Weighted) normalizedLiquidity(st *swapState) (*big.Int, error) {
	var c fixedpoint.Calc
	var out *big.Int
	switch st.leg {
	case legJoin:
		w := p.weight(st.in)
		out = c.MulDown(st.totalShares, c.DivDown(w, c.Add(w, fixedpoint.One)))
	case legExit:
		out = c.MulDown(st.live[st.out], c.DivDown(fixedpoint.One, c.Add(fixedpoint.One, p.weight(st.out))))
	default:
		wIn, wOut := p.weight(st.in), p.weight(st.out)
		out = c.MulDown(st.live[st.out], c.DivDown(wIn, c.Add(wIn, wOut)))
	}
	return out, c.Err()
}
