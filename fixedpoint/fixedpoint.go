package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrArithmetic is returned for division by zero, uint256 overflow and
	// out-of-bounds exponentials.
	ErrArithmetic = errors.New("arithmetic error")
	// ErrNegativeAmount is returned when a subtraction would produce a negative value.
	ErrNegativeAmount = errors.New("negative amount")
)

var (
	// One is 1.0 in WAD (18 decimal) fixed point.
	One  = big.NewInt(1e18)
	Two  = big.NewInt(2e18)
	Four = big.NewInt(4e18)

	one = big.NewInt(1)
	ten = big.NewInt(10)

	// maxPowRelativeError is 1e-14 in WAD.
	maxPowRelativeError = big.NewInt(10000)

	precomputedScalars [19]*big.Int
)

func init() {
	precomputedScalars[0] = big.NewInt(1)
	for i := 1; i < len(precomputedScalars); i++ {
		precomputedScalars[i] = new(big.Int).Mul(precomputedScalars[i-1], ten)
	}
}

// Scalar returns 10^(18-decimals). The returned value MUST NOT be modified.
func Scalar(decimals uint8) (*big.Int, error) {
	if decimals > 18 {
		return nil, fmt.Errorf("%w: decimals %d exceed 18", ErrArithmetic, decimals)
	}
	return precomputedScalars[18-decimals], nil
}

// Pow10 returns 10^n for n <= 18. The returned value MUST NOT be modified.
func Pow10(n uint8) *big.Int {
	if int(n) < len(precomputedScalars) {
		return precomputedScalars[n]
	}
	return new(big.Int).Exp(ten, big.NewInt(int64(n)), nil)
}

// Calc performs WAD arithmetic with a sticky error. Once an operation fails every
// subsequent call returns zero and Err reports the first failure, so long formulas
// can be written without checking each step.
type Calc struct {
	err error
}

// Err returns the first error encountered by c.
func (c *Calc) Err() error {
	return c.err
}

func (c *Calc) fail(err error) *big.Int {
	if c.err == nil {
		c.err = err
	}
	return new(big.Int)
}

// guard enforces the on-chain uint256 domain on x.
func (c *Calc) guard(x *big.Int) *big.Int {
	if x.Sign() < 0 {
		return c.fail(ErrNegativeAmount)
	}
	if _, overflow := uint256.FromBig(x); overflow {
		return c.fail(fmt.Errorf("%w: uint256 overflow", ErrArithmetic))
	}
	return x
}

func (c *Calc) Add(a, b *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	return c.guard(new(big.Int).Add(a, b))
}

// Sub returns a-b and fails with ErrNegativeAmount when b > a.
func (c *Calc) Sub(a, b *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	if a.Cmp(b) < 0 {
		return c.fail(fmt.Errorf("%w: %s - %s", ErrNegativeAmount, a.String(), b.String()))
	}
	return new(big.Int).Sub(a, b)
}

// Mul returns the raw integer product a*b.
func (c *Calc) Mul(a, b *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	return c.guard(new(big.Int).Mul(a, b))
}

// DivDownRaw returns floor(a/b) without WAD scaling.
func (c *Calc) DivDownRaw(a, b *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	if b.Sign() == 0 {
		return c.fail(fmt.Errorf("%w: division by zero", ErrArithmetic))
	}
	return new(big.Int).Quo(a, b)
}

// DivUpRaw returns ceil(a/b) without WAD scaling.
func (c *Calc) DivUpRaw(a, b *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	if b.Sign() == 0 {
		return c.fail(fmt.Errorf("%w: division by zero", ErrArithmetic))
	}
	if a.Sign() == 0 {
		return new(big.Int)
	}
	q, r := new(big.Int).QuoRem(a, b, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, one)
	}
	return q
}

// MulDown returns floor(a*b/1e18).
func (c *Calc) MulDown(a, b *big.Int) *big.Int {
	p := c.Mul(a, b)
	if c.err != nil {
		return new(big.Int)
	}
	return p.Quo(p, One)
}

// MulUp returns ceil(a*b/1e18).
func (c *Calc) MulUp(a, b *big.Int) *big.Int {
	p := c.Mul(a, b)
	if c.err != nil {
		return new(big.Int)
	}
	return c.DivUpRaw(p, One)
}

// DivDown returns floor(a*1e18/b).
func (c *Calc) DivDown(a, b *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	if b.Sign() == 0 {
		return c.fail(fmt.Errorf("%w: division by zero", ErrArithmetic))
	}
	return c.DivDownRaw(c.Mul(a, One), b)
}

// DivUp returns ceil(a*1e18/b).
func (c *Calc) DivUp(a, b *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	if b.Sign() == 0 {
		return c.fail(fmt.Errorf("%w: division by zero", ErrArithmetic))
	}
	return c.DivUpRaw(c.Mul(a, One), b)
}

// Complement returns 1-x for x < 1, otherwise 0.
func (c *Calc) Complement(x *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	if x.Cmp(One) < 0 {
		return new(big.Int).Sub(One, x)
	}
	return new(big.Int)
}

// PowDown returns x^y rounded down, mirroring FixedPoint.powDown.
func (c *Calc) PowDown(x, y *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	switch {
	case y.Cmp(One) == 0:
		return new(big.Int).Set(x)
	case y.Cmp(Two) == 0:
		return c.MulDown(x, x)
	case y.Cmp(Four) == 0:
		square := c.MulDown(x, x)
		return c.MulDown(square, square)
	}
	raw, err := Pow(x, y)
	if err != nil {
		return c.fail(err)
	}
	maxError := c.Add(c.MulUp(raw, maxPowRelativeError), one)
	if raw.Cmp(maxError) < 0 {
		return new(big.Int)
	}
	return c.Sub(raw, maxError)
}

// PowUp returns x^y rounded up, mirroring FixedPoint.powUp.
func (c *Calc) PowUp(x, y *big.Int) *big.Int {
	if c.err != nil {
		return new(big.Int)
	}
	switch {
	case y.Cmp(One) == 0:
		return new(big.Int).Set(x)
	case y.Cmp(Two) == 0:
		return c.MulUp(x, x)
	case y.Cmp(Four) == 0:
		square := c.MulUp(x, x)
		return c.MulUp(square, square)
	}
	raw, err := Pow(x, y)
	if err != nil {
		return c.fail(err)
	}
	maxError := c.Add(c.MulUp(raw, maxPowRelativeError), one)
	return c.Add(raw, maxError)
}

// MulDown returns floor(a*b/1e18).
func MulDown(a, b *big.Int) (*big.Int, error) {
	var c Calc
	r := c.MulDown(a, b)
	return r, c.Err()
}

// MulUp returns ceil(a*b/1e18).
func MulUp(a, b *big.Int) (*big.Int, error) {
	var c Calc
	r := c.MulUp(a, b)
	return r, c.Err()
}

// DivDown returns floor(a*1e18/b).
func DivDown(a, b *big.Int) (*big.Int, error) {
	var c Calc
	r := c.DivDown(a, b)
	return r, c.Err()
}

// DivUp returns ceil(a*1e18/b).
func DivUp(a, b *big.Int) (*big.Int, error) {
	var c Calc
	r := c.DivUp(a, b)
	return r, c.Err()
}

// Complement returns 1-x for x < 1, otherwise 0.
func Complement(x *big.Int) *big.Int {
	var c Calc
	return c.Complement(x)
}

// PowDown returns x^y rounded down.
func PowDown(x, y *big.Int) (*big.Int, error) {
	var c Calc
	r := c.PowDown(x, y)
	return r, c.Err()
}

// PowUp returns x^y rounded up.
func PowUp(x, y *big.Int) (*big.Int, error) {
	var c Calc
	r := c.PowUp(x, y)
	return r, c.Err()
}

// Min returns a fresh copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Max returns a fresh copy of the larger of a and b.
func Max(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// IsZero reports whether x is nil or zero.
func IsZero(x *big.Int) bool {
	return x == nil || x.Sign() == 0
}

// MustParse parses a base-10 integer and panics on failure. Intended for constants.
func MustParse(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(fmt.Sprintf("fixedpoint: invalid integer %q", s))
	}
	return n
}
