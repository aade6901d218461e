package router

import (
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/path"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/token"
)

// spotDivisor sizes the probe trade used for spot rates: amount / spotDivisor.
const spotDivisor = 10_000

// InputAmount sums the inputs of paths, which must share one input token.
func InputAmount(paths []path.WithAmount) (token.Amount, error) {
	return sum(paths, func(p path.WithAmount) token.Amount { return p.InputAmount })
}

// OutputAmount sums the outputs of paths, which must share one output token.
func OutputAmount(paths []path.WithAmount) (token.Amount, error) {
	return sum(paths, func(p path.WithAmount) token.Amount { return p.OutputAmount })
}

func sum(paths []path.WithAmount, pick func(path.WithAmount) token.Amount) (token.Amount, error) {
	if len(paths) == 0 {
		return token.Amount{}, fmt.Errorf("%w: no paths", ErrInconsistentPathTokens)
	}
	total := pick(paths[0])
	for _, p := range paths[1:] {
		next, err := total.Add(pick(p))
		if err != nil {
			return token.Amount{}, fmt.Errorf("%w: %v", ErrInconsistentPathTokens, err)
		}
		total = next
	}
	return total, nil
}

// PriceImpact compares the executed trade with a linear extrapolation of the
// best spot rate among the paths. It is 1 - actual/ideal for GivenIn and
// 1 - ideal/actual for GivenOut, in WAD, and never negative.
func PriceImpact(paths []path.WithAmount, kind protocols.SwapKind, input, output token.Amount) (*big.Int, error) {
	given, actual := input, output
	if kind == protocols.GivenOut {
		given, actual = output, input
	}
	if given.Amount.Sign() == 0 || actual.Amount.Sign() == 0 {
		return new(big.Int), nil
	}
	probe := new(big.Int).Div(given.Amount, big.NewInt(spotDivisor))
	if probe.Sign() == 0 {
		probe.SetInt64(1)
	}
	probeAmount, err := token.FromRawAmount(given.Token, probe)
	if err != nil {
		return nil, err
	}

	// best is the spot rate in WAD: output per input for GivenIn, input per
	// output for GivenOut.
	var best *big.Int
	for _, p := range paths {
		res, err := p.Path.Execute(nil, kind, probeAmount, false)
		if err != nil {
			continue
		}
		var rate *big.Int
		if kind == protocols.GivenIn {
			rate, err = fixedpoint.DivDown(res.OutputAmount.Scale18, res.InputAmount.Scale18)
		} else {
			rate, err = fixedpoint.DivUp(res.InputAmount.Scale18, res.OutputAmount.Scale18)
		}
		if err != nil {
			continue
		}
		if best == nil || (kind == protocols.GivenIn && rate.Cmp(best) > 0) || (kind == protocols.GivenOut && rate.Cmp(best) < 0) {
			best = rate
		}
	}
	if best == nil || best.Sign() == 0 {
		return new(big.Int), nil
	}

	var c fixedpoint.Calc
	ideal := c.MulDown(given.Scale18, best)
	var ratio *big.Int
	if kind == protocols.GivenIn {
		ratio = c.DivDown(actual.Scale18, ideal)
	} else {
		ratio = c.DivDown(ideal, actual.Scale18)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return fixedpoint.Complement(ratio), nil
}

// RoundTripPriceImpact trades every path's result back along the reversed
// path and reports half the relative loss, in WAD.
func RoundTripPriceImpact(paths []path.WithAmount, kind protocols.SwapKind) (*big.Int, error) {
	reversed := make([]path.WithAmount, 0, len(paths))
	for _, p := range paths {
		given := p.OutputAmount
		if kind == protocols.GivenOut {
			given = p.InputAmount
		}
		back, err := p.Path.Reverse().Execute(nil, kind, given, false)
		if err != nil {
			return nil, fmt.Errorf("reversing %s: %w", p.Path.Key(), err)
		}
		reversed = append(reversed, back)
	}

	var initial, final token.Amount
	var err error
	if kind == protocols.GivenIn {
		if initial, err = InputAmount(paths); err != nil {
			return nil, err
		}
		final, err = OutputAmount(reversed)
	} else {
		if initial, err = InputAmount(reversed); err != nil {
			return nil, err
		}
		final, err = OutputAmount(paths)
	}
	if err != nil {
		return nil, err
	}

	if initial.Amount.Sign() == 0 || final.Amount.Cmp(initial.Amount) >= 0 {
		return new(big.Int), nil
	}
	var c fixedpoint.Calc
	diff := c.Sub(initial.Amount, final.Amount)
	impact := c.DivDown(diff, c.Mul(initial.Amount, fixedpoint.Two))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return impact, nil
}
