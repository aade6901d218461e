package token

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned for nil, negative or unparsable amounts.
var ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")

// Amount is a raw token amount together with its 18 decimal scaled value.
// Invariant: Scale18 == Amount * 10^(18-decimals).
type Amount struct {
	Token   Token
	Amount  *big.Int
	Scale18 *big.Int
}

// FromRawAmount builds an Amount from a value in the token's native decimals.
func FromRawAmount(t Token, raw *big.Int) (Amount, error) {
	if raw == nil || raw.Sign() < 0 {
		return Amount{}, ErrInvalidAmount
	}
	scalar, err := fixedpoint.Scalar(t.Decimals)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidDecimals, err)
	}
	return Amount{
		Token:   t,
		Amount:  new(big.Int).Set(raw),
		Scale18: new(big.Int).Mul(raw, scalar),
	}, nil
}

// FromHumanAmount parses a decimal string such as "1.5" into an Amount. Digits
// beyond the token's precision are truncated.
func FromHumanAmount(t Token, human string) (Amount, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, human, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, human)
	}
	raw := d.Shift(int32(t.Decimals)).Truncate(0).BigInt()
	return FromRawAmount(t, raw)
}

// FromScale18Amount converts an 18 decimal value back to raw units, rounding up
// when divUp is set.
func FromScale18Amount(t Token, scale18 *big.Int, divUp bool) (Amount, error) {
	if scale18 == nil || scale18.Sign() < 0 {
		return Amount{}, ErrInvalidAmount
	}
	scalar, err := fixedpoint.Scalar(t.Decimals)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidDecimals, err)
	}
	var c fixedpoint.Calc
	var raw *big.Int
	if divUp {
		raw = c.DivUpRaw(scale18, scalar)
	} else {
		raw = c.DivDownRaw(scale18, scalar)
	}
	if err := c.Err(); err != nil {
		return Amount{}, err
	}
	return FromRawAmount(t, raw)
}

// Zero returns a zero Amount of t.
func Zero(t Token) Amount {
	a, _ := FromRawAmount(t, new(big.Int))
	return a
}

// Add returns a+b. Both must be of the same token.
func (a Amount) Add(b Amount) (Amount, error) {
	if !a.Token.IsEqual(b.Token) {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrTokenMismatch, a.Token, b.Token)
	}
	return FromRawAmount(a.Token, new(big.Int).Add(a.Amount, b.Amount))
}

// Sub returns a-b. Both must be of the same token and the result non-negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if !a.Token.IsEqual(b.Token) {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrTokenMismatch, a.Token, b.Token)
	}
	if a.Amount.Cmp(b.Amount) < 0 {
		return Amount{}, fmt.Errorf("%w: %s - %s", fixedpoint.ErrNegativeAmount, a.Amount, b.Amount)
	}
	return FromRawAmount(a.Token, new(big.Int).Sub(a.Amount, b.Amount))
}

// MulDownFixed multiplies the scaled value by a WAD factor and rounds down.
func (a Amount) MulDownFixed(f *big.Int) (Amount, error) {
	s, err := fixedpoint.MulDown(a.Scale18, f)
	if err != nil {
		return Amount{}, err
	}
	return FromScale18Amount(a.Token, s, false)
}

// MulUpFixed multiplies the scaled value by a WAD factor and rounds up.
func (a Amount) MulUpFixed(f *big.Int) (Amount, error) {
	s, err := fixedpoint.MulUp(a.Scale18, f)
	if err != nil {
		return Amount{}, err
	}
	return FromScale18Amount(a.Token, s, true)
}

// DivDownFixed divides the scaled value by a WAD factor and rounds down.
func (a Amount) DivDownFixed(f *big.Int) (Amount, error) {
	s, err := fixedpoint.DivDown(a.Scale18, f)
	if err != nil {
		return Amount{}, err
	}
	return FromScale18Amount(a.Token, s, false)
}

// DivUpFixed divides the scaled value by a WAD factor and rounds up.
func (a Amount) DivUpFixed(f *big.Int) (Amount, error) {
	s, err := fixedpoint.DivUp(a.Scale18, f)
	if err != nil {
		return Amount{}, err
	}
	return FromScale18Amount(a.Token, s, true)
}

// IsZero reports whether the raw amount is zero.
func (a Amount) IsZero() bool {
	return fixedpoint.IsZero(a.Amount)
}

// Cmp compares raw amounts. Callers are responsible for comparing same-token amounts.
func (a Amount) Cmp(b Amount) int {
	return a.Amount.Cmp(b.Amount)
}

// Human renders the amount as a decimal string in whole-token units.
func (a Amount) Human() string {
	if a.Amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(a.Amount, -int32(a.Token.Decimals)).String()
}

func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Human(), a.Token)
}
