package protocols

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/token"
)

// UnboundedBufferBalance stands in for buffer balances the snapshot omits.
var UnboundedBufferBalance = new(big.Int).Lsh(big.NewInt(1), 128)

const (
	bufferWrapped    = 0
	bufferUnderlying = 1
)

// Buffer converts between an ERC4626 wrapped token and its underlying asset at
// the vault rate, with no fee and no curve.
type Buffer struct {
	base
	rate *big.Int
}

// BufferConfig describes one ERC4626 buffer. Rate is the underlying value of
// one wrapped unit in WAD. Nil balances are treated as unbounded.
type BufferConfig struct {
	Wrapped           token.Token
	Underlying        token.Token
	Rate              *big.Int
	WrappedBalance    *big.Int
	UnderlyingBalance *big.Int
}

// BufferID returns the pool id used for the buffer of wrapped.
func BufferID(wrapped token.Token) string {
	return "buffer:" + wrapped.Address.Hex()
}

// NewBuffer builds the buffer edge pair between a wrapped token and its underlying.
func NewBuffer(cfg BufferConfig) (*Buffer, error) {
	if cfg.Rate == nil || cfg.Rate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: buffer %s needs a positive rate", ErrInvalidPool, cfg.Wrapped)
	}
	balance := func(b *big.Int) *big.Int {
		if b == nil {
			return UnboundedBufferBalance
		}
		return b
	}
	p := &Buffer{rate: new(big.Int).Set(cfg.Rate)}
	b, err := newBase(KindBuffer, Config{
		ID:      BufferID(cfg.Wrapped),
		Address: cfg.Wrapped.Address,
		Tokens: []PoolToken{
			{Token: cfg.Wrapped},
			{Token: cfg.Underlying},
		},
		Balances: []*big.Int{balance(cfg.WrappedBalance), balance(cfg.UnderlyingBalance)},
	}, p)
	if err != nil {
		return nil, err
	}
	// the buffer is addressed by its wrapped token, which is not a BPT
	b.bptIndex = -1
	p.base = b
	return p, nil
}

// Rate returns the unwrap rate.
func (p *Buffer) Rate() *big.Int {
	return new(big.Int).Set(p.rate)
}

func (p *Buffer) calc(st *swapState, kind SwapKind, given *big.Int) (*big.Int, error) {
	unwrap := st.in == bufferWrapped
	switch {
	case unwrap && kind == GivenIn:
		return fixedpoint.MulDown(given, p.rate)
	case unwrap && kind == GivenOut:
		return fixedpoint.DivUp(given, p.rate)
	case kind == GivenIn:
		return fixedpoint.DivDown(given, p.rate)
	default:
		return fixedpoint.MulUp(given, p.rate)
	}
}

// limit is bounded by what the buffer can pay out of the result side.
func (p *Buffer) limit(st *swapState, kind SwapKind) (*big.Int, error) {
	outBalance := st.balances.Amounts[st.out]
	if kind == GivenOut {
		return new(big.Int).Set(outBalance), nil
	}
	outLive, err := p.toLive(outBalance, st.out, false)
	if err != nil {
		return nil, err
	}
	var in *big.Int
	if st.in == bufferWrapped {
		in, err = fixedpoint.DivDown(outLive, p.rate)
	} else {
		in, err = fixedpoint.MulDown(outLive, p.rate)
	}
	if err != nil {
		return nil, err
	}
	return p.fromLive(in, st.in, false)
}

func (p *Buffer) normalizedLiquidity(st *swapState) (*big.Int, error) {
	return new(big.Int).Set(st.live[st.out]), nil
}
