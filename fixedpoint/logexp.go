package fixedpoint

import (
	"fmt"
	"math/big"
)

// Exponentiation and logarithm with 18 decimal fixed point, ported from the
// Balancer LogExpMath library. All divisions truncate toward zero like
// Solidity's signed integer division, which is why Quo/Rem are used throughout.

var (
	one18 = big.NewInt(1e18)
	one20 = MustParse("100000000000000000000")
	one36 = MustParse("1000000000000000000000000000000000000")

	maxNaturalExponent = MustParse("130000000000000000000")
	minNaturalExponent = MustParse("-41000000000000000000")

	ln36LowerBound = big.NewInt(1e18 - 1e17)
	ln36UpperBound = big.NewInt(1e18 + 1e17)

	// 2^254 / 1e20
	mildExponentBound = new(big.Int).Quo(new(big.Int).Lsh(big.NewInt(1), 254), one20)
	// 2^255
	int256Bound = new(big.Int).Lsh(big.NewInt(1), 255)

	hundred = big.NewInt(100)

	// 18 decimal constants
	x0 = MustParse("128000000000000000000")
	a0 = MustParse("38877084059945950922200000000000000000000000000000000000")
	x1 = MustParse("64000000000000000000")
	a1 = MustParse("6235149080811616882910000000")

	// 20 decimal constants
	x2  = MustParse("3200000000000000000000")
	a2  = MustParse("7896296018268069516100000000000000")
	x3  = MustParse("1600000000000000000000")
	a3  = MustParse("888611052050787263676000000")
	x4  = MustParse("800000000000000000000")
	a4  = MustParse("298095798704172827474000")
	x5  = MustParse("400000000000000000000")
	a5  = MustParse("5459815003314423907810")
	x6  = MustParse("200000000000000000000")
	a6  = MustParse("738905609893065022723")
	x7  = MustParse("100000000000000000000")
	a7  = MustParse("271828182845904523536")
	x8  = MustParse("50000000000000000000")
	a8  = MustParse("164872127070012814685")
	x9  = MustParse("25000000000000000000")
	a9  = MustParse("128402541668774148407")
	x10 = MustParse("12500000000000000000")
	a10 = MustParse("113314845306682631683")
	x11 = MustParse("6250000000000000000")
	a11 = MustParse("106449445891785942956")

	expSteps = []struct{ x, a *big.Int }{
		{x2, a2}, {x3, a3}, {x4, a4}, {x5, a5}, {x6, a6}, {x7, a7}, {x8, a8}, {x9, a9},
	}
	lnSteps = []struct{ x, a *big.Int }{
		{x2, a2}, {x3, a3}, {x4, a4}, {x5, a5}, {x6, a6}, {x7, a7}, {x8, a8}, {x9, a9}, {x10, a10}, {x11, a11},
	}
)

// Pow returns x^y where both are 18 decimal fixed point numbers.
func Pow(x, y *big.Int) (*big.Int, error) {
	if y.Sign() == 0 {
		return new(big.Int).Set(one18), nil
	}
	if x.Sign() == 0 {
		return new(big.Int), nil
	}
	if x.Sign() < 0 || x.Cmp(int256Bound) >= 0 {
		return nil, fmt.Errorf("%w: pow base out of bounds", ErrArithmetic)
	}
	if y.Sign() < 0 || y.Cmp(mildExponentBound) >= 0 {
		return nil, fmt.Errorf("%w: pow exponent out of bounds", ErrArithmetic)
	}

	var logxTimesY *big.Int
	if ln36LowerBound.Cmp(x) < 0 && x.Cmp(ln36UpperBound) < 0 {
		ln36x := ln36(x)
		// (ln36x / 1e18) * y + ((ln36x % 1e18) * y) / 1e18
		hi := new(big.Int).Quo(ln36x, one18)
		hi.Mul(hi, y)
		lo := new(big.Int).Rem(ln36x, one18)
		lo.Mul(lo, y)
		lo.Quo(lo, one18)
		logxTimesY = hi.Add(hi, lo)
	} else {
		lnx, err := ln(x)
		if err != nil {
			return nil, err
		}
		logxTimesY = lnx.Mul(lnx, y)
	}
	logxTimesY.Quo(logxTimesY, one18)

	if logxTimesY.Cmp(minNaturalExponent) < 0 || logxTimesY.Cmp(maxNaturalExponent) > 0 {
		return nil, fmt.Errorf("%w: pow product out of bounds", ErrArithmetic)
	}
	return Exp(logxTimesY)
}

// Exp returns e^x for an 18 decimal fixed point x within [-41, 130].
func Exp(x *big.Int) (*big.Int, error) {
	if x.Cmp(minNaturalExponent) < 0 || x.Cmp(maxNaturalExponent) > 0 {
		return nil, fmt.Errorf("%w: exp argument out of bounds", ErrArithmetic)
	}

	if x.Sign() < 0 {
		inv, err := Exp(new(big.Int).Neg(x))
		if err != nil {
			return nil, err
		}
		num := new(big.Int).Mul(one18, one18)
		return num.Quo(num, inv), nil
	}

	x = new(big.Int).Set(x)
	firstAN := big.NewInt(1)
	if x.Cmp(x0) >= 0 {
		x.Sub(x, x0)
		firstAN = a0
	} else if x.Cmp(x1) >= 0 {
		x.Sub(x, x1)
		firstAN = a1
	}

	// switch to 20 decimals
	x.Mul(x, hundred)

	product := new(big.Int).Set(one20)
	for _, step := range expSteps {
		if x.Cmp(step.x) >= 0 {
			x.Sub(x, step.x)
			product.Mul(product, step.a)
			product.Quo(product, one20)
		}
	}

	// Taylor series for the remaining x < 0.25
	seriesSum := new(big.Int).Set(one20)
	term := new(big.Int).Set(x)
	seriesSum.Add(seriesSum, term)
	for i := int64(2); i <= 12; i++ {
		term.Mul(term, x)
		term.Quo(term, one20)
		term.Quo(term, big.NewInt(i))
		seriesSum.Add(seriesSum, term)
	}

	result := product.Mul(product, seriesSum)
	result.Quo(result, one20)
	result.Mul(result, firstAN)
	return result.Quo(result, hundred), nil
}

// Ln returns the natural logarithm of a positive 18 decimal fixed point number.
func Ln(a *big.Int) (*big.Int, error) {
	if a.Sign() <= 0 {
		return nil, fmt.Errorf("%w: ln of non-positive value", ErrArithmetic)
	}
	if ln36LowerBound.Cmp(a) < 0 && a.Cmp(ln36UpperBound) < 0 {
		r := ln36(a)
		return r.Quo(r, one18), nil
	}
	return ln(a)
}

func ln(a *big.Int) (*big.Int, error) {
	if a.Sign() <= 0 {
		return nil, fmt.Errorf("%w: ln of non-positive value", ErrArithmetic)
	}
	if a.Cmp(one18) < 0 {
		inv := new(big.Int).Mul(one18, one18)
		inv.Quo(inv, a)
		r, err := ln(inv)
		if err != nil {
			return nil, err
		}
		return r.Neg(r), nil
	}

	a = new(big.Int).Set(a)
	sum := new(big.Int)
	if a.Cmp(new(big.Int).Mul(a0, one18)) >= 0 {
		a.Quo(a, a0)
		sum.Add(sum, x0)
	}
	if a.Cmp(new(big.Int).Mul(a1, one18)) >= 0 {
		a.Quo(a, a1)
		sum.Add(sum, x1)
	}

	sum.Mul(sum, hundred)
	a.Mul(a, hundred)

	for _, step := range lnSteps {
		if a.Cmp(step.a) >= 0 {
			a.Mul(a, one20)
			a.Quo(a, step.a)
			sum.Add(sum, step.x)
		}
	}

	// z = (a - 1) / (a + 1) in 20 decimals
	num := new(big.Int).Sub(a, one20)
	num.Mul(num, one20)
	den := new(big.Int).Add(a, one20)
	z := num.Quo(num, den)
	zSquared := new(big.Int).Mul(z, z)
	zSquared.Quo(zSquared, one20)

	term := new(big.Int).Set(z)
	seriesSum := new(big.Int).Set(term)
	for _, d := range []int64{3, 5, 7, 9, 11} {
		term.Mul(term, zSquared)
		term.Quo(term, one20)
		seriesSum.Add(seriesSum, new(big.Int).Quo(term, big.NewInt(d)))
	}
	seriesSum.Mul(seriesSum, big.NewInt(2))

	sum.Add(sum, seriesSum)
	return sum.Quo(sum, hundred), nil
}

// ln36 returns ln(x) with 36 decimals of precision for x close to one.
func ln36(x *big.Int) *big.Int {
	x36 := new(big.Int).Mul(x, one18)

	num := new(big.Int).Sub(x36, one36)
	num.Mul(num, one36)
	den := new(big.Int).Add(x36, one36)
	z := num.Quo(num, den)
	zSquared := new(big.Int).Mul(z, z)
	zSquared.Quo(zSquared, one36)

	term := new(big.Int).Set(z)
	seriesSum := new(big.Int).Set(term)
	for _, d := range []int64{3, 5, 7, 9, 11, 13, 15} {
		term.Mul(term, zSquared)
		term.Quo(term, one36)
		seriesSum.Add(seriesSum, new(big.Int).Quo(term, big.NewInt(d)))
	}
	return seriesSum.Mul(seriesSum, big.NewInt(2))
}

