package protocols

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/defistate/defistate-sor-go/fixedpoint"
)

// HookKind identifies the hook variants the router models.
type HookKind uint8

const (
	HookNone HookKind = iota
	HookExitFee
	HookDirectionalFee
	HookStableSurge
)

func (k HookKind) String() string {
	switch k {
	case HookExitFee:
		return "ExitFee"
	case HookDirectionalFee:
		return "DirectionalFee"
	case HookStableSurge:
		return "StableSurge"
	}
	return "None"
}

// Hook is a pool hook resolved once at construction. Only the fields of the
// active Kind are set.
type Hook struct {
	Kind HookKind

	// ExitFee
	RemoveLiquidityFeePercentage *big.Int

	// StableSurge
	SurgeThresholdPercentage *big.Int
	MaxSurgeFeePercentage    *big.Int
}

// Hook parameter names as published in pool snapshots.
const (
	ParamRemoveLiquidityFeePercentage = "removeLiquidityFeePercentage"
	ParamSurgeThresholdPercentage     = "surgeThresholdPercentage"
	ParamMaxSurgeFeePercentage        = "maxSurgeFeePercentage"
)

// ResolveHook maps a hook name and its WAD parameters onto a Hook. An empty
// name yields HookNone; unknown names fail with ErrHookNotImplemented.
func ResolveHook(name string, params map[string]*big.Int) (Hook, error) {
	switch name {
	case "":
		return Hook{}, nil
	case "ExitFee":
		fee, ok := params[ParamRemoveLiquidityFeePercentage]
		if !ok || fee == nil || fee.Sign() < 0 || fee.Cmp(fixedpoint.One) > 0 {
			return Hook{}, fmt.Errorf("%w: ExitFee requires %s in [0, 1]", ErrInvalidHookParams, ParamRemoveLiquidityFeePercentage)
		}
		return Hook{Kind: HookExitFee, RemoveLiquidityFeePercentage: new(big.Int).Set(fee)}, nil
	case "DirectionalFee":
		return Hook{Kind: HookDirectionalFee}, nil
	case "StableSurge":
		threshold, ok := params[ParamSurgeThresholdPercentage]
		if !ok || threshold == nil || threshold.Sign() < 0 || threshold.Cmp(fixedpoint.One) >= 0 {
			return Hook{}, fmt.Errorf("%w: StableSurge requires %s in [0, 1)", ErrInvalidHookParams, ParamSurgeThresholdPercentage)
		}
		maxFee, ok := params[ParamMaxSurgeFeePercentage]
		if !ok || maxFee == nil || maxFee.Sign() < 0 || maxFee.Cmp(fixedpoint.One) > 0 {
			return Hook{}, fmt.Errorf("%w: StableSurge requires %s in [0, 1]", ErrInvalidHookParams, ParamMaxSurgeFeePercentage)
		}
		return Hook{
			Kind:                     HookStableSurge,
			SurgeThresholdPercentage: new(big.Int).Set(threshold),
			MaxSurgeFeePercentage:    new(big.Int).Set(maxFee),
		}, nil
	}
	return Hook{}, fmt.Errorf("%w: %s", ErrHookNotImplemented, name)
}

// FeeQuery is the swap context a dynamic fee hook sees. Balances are 18 decimal
// live balances with any BPT entry removed; IndexIn and IndexOut address them.
type FeeQuery struct {
	Balances          []*big.Int
	IndexIn, IndexOut int
	Kind              SwapKind
	AmountGiven       *big.Int
	// AmountCalculated computes the fee-less counter amount of the swap.
	AmountCalculated func() (*big.Int, error)
}

// IsDynamicFee reports whether the hook overrides the static swap fee.
func (h Hook) IsDynamicFee() bool {
	return h.Kind == HookDirectionalFee || h.Kind == HookStableSurge
}

// SwapFee returns the fee percentage for a token to token swap.
func (h Hook) SwapFee(static *big.Int, q FeeQuery) (*big.Int, error) {
	switch h.Kind {
	case HookDirectionalFee:
		return directionalFee(static, q)
	case HookStableSurge:
		return h.surgeFee(static, q)
	}
	return new(big.Int).Set(static), nil
}

// directionalFee charges the relative imbalance a swap would leave behind
// when it pushes the pool further apart than the static fee.
func directionalFee(static *big.Int, q FeeQuery) (*big.Int, error) {
	var c fixedpoint.Calc
	finalIn := c.Add(q.Balances[q.IndexIn], q.AmountGiven)
	finalOut := c.Sub(q.Balances[q.IndexOut], q.AmountGiven)
	if err := c.Err(); err != nil {
		return nil, err
	}
	if finalIn.Cmp(finalOut) <= 0 {
		return new(big.Int).Set(static), nil
	}
	fee := c.DivDown(c.Sub(finalIn, finalOut), c.Add(finalIn, finalOut))
	if err := c.Err(); err != nil {
		return nil, err
	}
	return fixedpoint.Max(static, fee), nil
}

func (h Hook) surgeFee(static *big.Int, q FeeQuery) (*big.Int, error) {
	if h.MaxSurgeFeePercentage.Cmp(static) < 0 {
		return new(big.Int).Set(static), nil
	}
	calculated, err := q.AmountCalculated()
	if err != nil {
		return nil, err
	}

	var c fixedpoint.Calc
	after := make([]*big.Int, len(q.Balances))
	for i, b := range q.Balances {
		after[i] = new(big.Int).Set(b)
	}
	if q.Kind == GivenIn {
		after[q.IndexIn] = c.Add(after[q.IndexIn], q.AmountGiven)
		after[q.IndexOut] = c.Sub(after[q.IndexOut], calculated)
	} else {
		after[q.IndexIn] = c.Add(after[q.IndexIn], calculated)
		after[q.IndexOut] = c.Sub(after[q.IndexOut], q.AmountGiven)
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	newImbalance, err := Imbalance(after)
	if err != nil {
		return nil, err
	}
	if newImbalance.Sign() == 0 {
		return new(big.Int).Set(static), nil
	}
	oldImbalance, err := Imbalance(q.Balances)
	if err != nil {
		return nil, err
	}
	threshold := h.SurgeThresholdPercentage
	if newImbalance.Cmp(oldImbalance) <= 0 || newImbalance.Cmp(threshold) <= 0 {
		return new(big.Int).Set(static), nil
	}

	surge := c.MulDown(
		c.Sub(h.MaxSurgeFeePercentage, static),
		c.DivDown(c.Sub(newImbalance, threshold), c.Complement(threshold)),
	)
	fee := c.Add(static, surge)
	return fee, c.Err()
}

// Imbalance returns sum(|b - median|) / sum(b) in WAD.
func Imbalance(balances []*big.Int) (*big.Int, error) {
	if len(balances) == 0 {
		return new(big.Int), nil
	}
	median := Median(balances)

	var c fixedpoint.Calc
	total := new(big.Int)
	diff := new(big.Int)
	for _, b := range balances {
		total = c.Add(total, b)
		d := new(big.Int).Sub(b, median)
		diff = c.Add(diff, d.Abs(d))
	}
	if total.Sign() == 0 {
		return new(big.Int), c.Err()
	}
	out := c.DivDown(diff, total)
	return out, c.Err()
}

// Median returns the median of balances, averaging the middle pair for even lengths.
func Median(balances []*big.Int) *big.Int {
	sorted := make([]*big.Int, len(balances))
	copy(sorted, balances)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	n := len(sorted)
	if n%2 == 1 {
		return new(big.Int).Set(sorted[n/2])
	}
	sum := new(big.Int).Add(sorted[n/2-1], sorted[n/2])
	return sum.Quo(sum, big.NewInt(2))
}

// ApplyExitFee deducts the ExitFee percentage from a remove-liquidity output.
func (h Hook) ApplyExitFee(amountOut *big.Int) (*big.Int, error) {
	if h.Kind != HookExitFee {
		return new(big.Int).Set(amountOut), nil
	}
	var c fixedpoint.Calc
	out := c.Sub(amountOut, c.MulDown(amountOut, h.RemoveLiquidityFeePercentage))
	return out, c.Err()
}

// GrossUpExitFee returns the pre-fee amount whose ApplyExitFee result covers amountOut.
func (h Hook) GrossUpExitFee(amountOut *big.Int) (*big.Int, error) {
	if h.Kind != HookExitFee {
		return new(big.Int).Set(amountOut), nil
	}
	var c fixedpoint.Calc
	out := c.DivUp(amountOut, c.Complement(h.RemoveLiquidityFeePercentage))
	return out, c.Err()
}
