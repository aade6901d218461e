package protocols

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/protocols/calculator/gyro"
)

// Gyro2CLP is a two-token concentrated constant-product pool. Its BPT only
// supports proportional liquidity, so it is not a routable token.
type Gyro2CLP struct {
	base
	params gyro.Params
}

// NewGyro2CLP builds a 2-CLP pool over exactly two tokens.
func NewGyro2CLP(cfg Config, params gyro.Params) (*Gyro2CLP, error) {
	if len(cfg.Tokens) != 2 {
		return nil, fmt.Errorf("%w: %s 2-CLP needs exactly two tokens", ErrInvalidPool, cfg.ID)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPool, cfg.ID, err)
	}
	p := &Gyro2CLP{params: params}
	b, err := newBase(KindGyro2CLP, cfg, p)
	if err != nil {
		return nil, err
	}
	p.base = b
	return p, nil
}

func (p *Gyro2CLP) offsets(st *swapState) (virtualIn, virtualOut *big.Int, err error) {
	invariant, err := gyro.CalculateInvariant([2]*big.Int{st.live[0], st.live[1]}, p.params, gyro.RoundDown)
	if err != nil {
		return nil, nil, err
	}
	return gyro.VirtualOffsets(invariant, p.params, st.in == 0)
}

func (p *Gyro2CLP) calc(st *swapState, kind SwapKind, given *big.Int) (*big.Int, error) {
	virtualIn, virtualOut, err := p.offsets(st)
	if err != nil {
		return nil, err
	}
	if kind == GivenIn {
		return gyro.CalcOutGivenIn(st.live[st.in], st.live[st.out], given, virtualIn, virtualOut)
	}
	return gyro.CalcInGivenOut(st.live[st.in], st.live[st.out], given, virtualIn, virtualOut)
}

// limit is the full out balance for GivenOut, and the fee-inclusive input that
// would drain it for GivenIn.
func (p *Gyro2CLP) limit(st *swapState, kind SwapKind) (*big.Int, error) {
	if kind == GivenOut {
		return new(big.Int).Set(st.balances.Amounts[st.out]), nil
	}
	virtualIn, virtualOut, err := p.offsets(st)
	if err != nil {
		return nil, err
	}
	in, err := gyro.CalcInGivenOut(st.live[st.in], st.live[st.out], st.live[st.out], virtualIn, virtualOut)
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	gross := c.DivDown(in, c.Complement(p.swapFee))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return p.fromLive(gross, st.in, false)
}

// normalizedLiquidity is half the virtual out balance.
func (p *Gyro2CLP) normalizedLiquidity(st *swapState) (*big.Int, error) {
	_, virtualOut, err := p.offsets(st)
	if err != nil {
		return nil, err
	}
	var c fixedpoint.Calc
	out := c.DivDownRaw(c.Add(st.live[st.out], virtualOut), big.NewInt(2))
	return out, c.Err()
}
