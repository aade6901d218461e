package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/fixedpoint"
	"github.com/defistate/defistate-sor-go/path"
	"github.com/defistate/defistate-sor-go/pathfinder"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/token"
)

const (
	DefaultMaxIterations = 100
	// initialStepDivisor sets the first shift to an eighth of the amount.
	initialStepDivisor = 8
)

// DefaultTolerance is a relative marginal spread of 1e-4.
var DefaultTolerance = big.NewInt(1e14)

var (
	// ErrNoCapacity is returned when no candidate can carry any amount.
	ErrNoCapacity = errors.New("no candidate path has capacity")
	// ErrInsufficientCapacity reports a request larger than all candidates combined.
	ErrInsufficientCapacity = errors.New("insufficient path capacity")
	ErrTimeout              = errors.New("optimization timed out")
)

type Config struct {
	MaxIterations int
	// Tolerance is the relative marginal spread, in WAD, below which shifting stops.
	Tolerance *big.Int
}

func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Tolerance == nil || c.Tolerance.Sign() <= 0 {
		c.Tolerance = DefaultTolerance
	}
	return c
}

// Result is the split chosen for one request.
type Result struct {
	// Paths holds the executed paths with a non-zero share, in candidate order.
	Paths []path.WithAmount
	// Shortfall is the raw amount of the given token left unrouted.
	Shortfall  *big.Int
	Iterations int
	// Dropped holds the keys of candidates without usable capacity.
	Dropped []string
}

// Err reports a shortfall as ErrInsufficientCapacity.
func (r *Result) Err() error {
	if r.Shortfall == nil || r.Shortfall.Sign() == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s short", ErrInsufficientCapacity, r.Shortfall)
}

// route is a candidate with its capacity and current allocation.
type route struct {
	path     path.Path
	score    *big.Int
	capacity *big.Int
	alloc    *big.Int
}

// Optimizer splits an amount across candidate paths.
type Optimizer struct {
	cfg Config
}

func New(cfg Config) *Optimizer {
	return &Optimizer{cfg: cfg.withDefaults()}
}

// Optimize distributes amount, given in the token the swap kind fixes, across
// candidates. Candidates must be in canonical order; that order breaks ties.
func (o *Optimizer) Optimize(ctx context.Context, candidates []pathfinder.Candidate, kind protocols.SwapKind, amount token.Amount) (*Result, error) {
	res := &Result{Shortfall: new(big.Int)}
	routes := make([]*route, 0, len(candidates))
	for _, c := range candidates {
		capacity, err := c.Path.Capacity(nil, kind)
		if err != nil || capacity.Sign() == 0 {
			res.Dropped = append(res.Dropped, c.Key)
			continue
		}
		routes = append(routes, &route{path: c.Path, score: c.Score, capacity: capacity, alloc: new(big.Int)})
	}
	if len(routes) == 0 {
		return nil, ErrNoCapacity
	}

	target := new(big.Int).Set(amount.Amount)
	total := new(big.Int)
	for _, r := range routes {
		total.Add(total, r.capacity)
	}
	if total.Cmp(target) < 0 {
		res.Shortfall.Sub(target, total)
		target.Set(total)
	}

	split(routes, target)
	current, err := objective(routes, kind)
	if err != nil {
		// independent capacities overcommit pools shared between paths
		allocated := fill(routes, kind, target)
		res.Shortfall.Add(res.Shortfall, new(big.Int).Sub(target, allocated))
		target = allocated
		if current, err = objective(routes, kind); err != nil {
			return nil, err
		}
	}

	if res.Iterations, err = o.equalize(ctx, routes, kind, current, target); err != nil {
		return nil, err
	}
	if res.Paths, err = execute(routes, kind); err != nil {
		return nil, err
	}
	return res, nil
}

// split assigns target proportionally to score, capped at capacity, and
// spreads the remainder over paths with room in order.
func split(routes []*route, target *big.Int) {
	scores := new(big.Int)
	for _, r := range routes {
		if r.score != nil {
			scores.Add(scores, r.score)
		}
	}
	assigned := new(big.Int)
	for _, r := range routes {
		share := new(big.Int)
		switch {
		case scores.Sign() == 0:
			share.Div(target, big.NewInt(int64(len(routes))))
		case r.score != nil:
			share.Mul(target, r.score)
			share.Div(share, scores)
		}
		r.alloc = minInt(share, r.capacity)
		assigned.Add(assigned, r.alloc)
	}

	leftover := new(big.Int).Sub(target, assigned)
	for _, r := range routes {
		if leftover.Sign() == 0 {
			break
		}
		room := new(big.Int).Sub(r.capacity, r.alloc)
		take := minInt(room, leftover)
		r.alloc.Add(r.alloc, take)
		leftover.Sub(leftover, take)
	}
}

// fill allocates greedily in order, sizing each path against the liquidity
// the earlier paths left behind. It returns the amount placed.
func fill(routes []*route, kind protocols.SwapKind, target *big.Int) *big.Int {
	arena := protocols.NewArena()
	remaining := new(big.Int).Set(target)
	for _, r := range routes {
		r.alloc = new(big.Int)
		if remaining.Sign() == 0 {
			continue
		}
		capacity, err := r.path.Capacity(arena, kind)
		if err != nil || capacity.Sign() == 0 {
			continue
		}
		take := minInt(capacity, remaining)
		trial := arena.Clone()
		if _, err := run(trial, r.path, kind, take, true); err != nil {
			continue
		}
		arena = trial
		r.alloc = take
		remaining.Sub(remaining, take)
	}
	return new(big.Int).Sub(target, remaining)
}

// equalize shifts allocation from the path losing least to the path gaining
// most until the marginal spread falls under tolerance, the step cannot
// shrink further or the iteration cap is hit.
func (o *Optimizer) equalize(ctx context.Context, routes []*route, kind protocols.SwapKind, current, target *big.Int) (int, error) {
	if len(routes) < 2 || target.Sign() == 0 {
		return 0, nil
	}
	minStep := new(big.Int).Mul(target, o.cfg.Tolerance)
	minStep.Div(minStep, fixedpoint.One)
	if minStep.Sign() == 0 {
		minStep.SetInt64(1)
	}
	step := new(big.Int).Div(target, big.NewInt(initialStepDivisor))
	if step.Cmp(minStep) < 0 {
		step.Set(minStep)
	}

	for i := 0; i < o.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return i, fmt.Errorf("%w: %w", ErrTimeout, err)
		}

		s, ok := o.bestShift(routes, kind, step)
		if !ok || s.improvement.Sign() <= 0 {
			if step.Cmp(minStep) <= 0 {
				return i + 1, nil
			}
			step = halve(step, minStep)
			continue
		}
		if o.withinTolerance(s.improvement, s.loss) {
			return i + 1, nil
		}

		receiver, giver := routes[s.receiver], routes[s.giver]
		receiver.alloc.Add(receiver.alloc, step)
		giver.alloc.Sub(giver.alloc, step)
		next, err := objective(routes, kind)
		if err != nil || next.Cmp(current) <= 0 {
			receiver.alloc.Sub(receiver.alloc, step)
			giver.alloc.Add(giver.alloc, step)
			if step.Cmp(minStep) <= 0 {
				return i + 1, nil
			}
			step = halve(step, minStep)
			continue
		}
		current = next
	}
	return o.cfg.MaxIterations, nil
}

// shift is a candidate move of one step from giver to receiver.
type shift struct {
	receiver, giver int
	loss            *big.Int
	improvement     *big.Int
}

// bestShift evaluates every receiver and giver pair at step. Among moves whose
// improvement is equal within tolerance the receiver with fewer hops wins,
// then the lower index.
func (o *Optimizer) bestShift(routes []*route, kind protocols.SwapKind, step *big.Int) (shift, bool) {
	gains := make([]*big.Int, len(routes))
	losses := make([]*big.Int, len(routes))
	for i, r := range routes {
		at, err := value(r.path, kind, r.alloc)
		if err != nil {
			continue
		}
		up := new(big.Int).Add(r.alloc, step)
		if up.Cmp(r.capacity) <= 0 {
			if v, err := value(r.path, kind, up); err == nil {
				gains[i] = v.Sub(v, at)
			}
		}
		if r.alloc.Cmp(step) >= 0 {
			down := new(big.Int).Sub(r.alloc, step)
			if v, err := value(r.path, kind, down); err == nil {
				losses[i] = v.Sub(at, v)
			}
		}
	}

	var best shift
	found := false
	for i := range routes {
		if gains[i] == nil {
			continue
		}
		for j := range routes {
			if i == j || losses[j] == nil {
				continue
			}
			improvement := new(big.Int).Sub(gains[i], losses[j])
			if !found {
				best, found = shift{receiver: i, giver: j, loss: losses[j], improvement: improvement}, true
				continue
			}
			if o.tied(improvement, best.improvement) {
				if routes[i].path.Hops() < routes[best.receiver].path.Hops() {
					best = shift{receiver: i, giver: j, loss: losses[j], improvement: improvement}
				}
				continue
			}
			if improvement.Cmp(best.improvement) > 0 {
				best = shift{receiver: i, giver: j, loss: losses[j], improvement: improvement}
			}
		}
	}
	return best, found
}

// withinTolerance reports whether improvement is negligible next to loss.
func (o *Optimizer) withinTolerance(improvement, loss *big.Int) bool {
	scale := new(big.Int).Abs(loss)
	if scale.Sign() == 0 {
		return improvement.Sign() == 0
	}
	lhs := new(big.Int).Mul(new(big.Int).Abs(improvement), fixedpoint.One)
	return lhs.Cmp(new(big.Int).Mul(scale, o.cfg.Tolerance)) < 0
}

func (o *Optimizer) tied(a, b *big.Int) bool {
	scale := new(big.Int).Abs(a)
	if bAbs := new(big.Int).Abs(b); bAbs.Cmp(scale) > 0 {
		scale = bAbs
	}
	diff := new(big.Int).Sub(a, b)
	diff.Abs(diff).Mul(diff, fixedpoint.One)
	return diff.Cmp(new(big.Int).Mul(scale, o.cfg.Tolerance)) <= 0
}

// value is the output for GivenIn and the negated input for GivenOut, so a
// larger value is always better.
func value(p path.Path, kind protocols.SwapKind, raw *big.Int) (*big.Int, error) {
	if raw.Sign() == 0 {
		return new(big.Int), nil
	}
	return run(nil, p, kind, raw, false)
}

func run(a *protocols.Arena, p path.Path, kind protocols.SwapKind, raw *big.Int, mutate bool) (*big.Int, error) {
	res, err := executeRaw(a, p, kind, raw, mutate)
	if err != nil {
		return nil, err
	}
	if kind == protocols.GivenIn {
		return new(big.Int).Set(res.OutputAmount.Amount), nil
	}
	return new(big.Int).Neg(res.InputAmount.Amount), nil
}

func executeRaw(a *protocols.Arena, p path.Path, kind protocols.SwapKind, raw *big.Int, mutate bool) (path.WithAmount, error) {
	given := p.TokenIn()
	if kind == protocols.GivenOut {
		given = p.TokenOut()
	}
	amount, err := token.FromRawAmount(given, raw)
	if err != nil {
		return path.WithAmount{}, err
	}
	return p.Execute(a, kind, amount, mutate)
}

// objective is the summed value of every allocation executed in order on a
// fresh arena, so paths sharing a pool see each other's trades.
func objective(routes []*route, kind protocols.SwapKind) (*big.Int, error) {
	arena := protocols.NewArena()
	total := new(big.Int)
	for _, r := range routes {
		if r.alloc.Sign() == 0 {
			continue
		}
		v, err := run(arena, r.path, kind, r.alloc, true)
		if err != nil {
			return nil, err
		}
		total.Add(total, v)
	}
	return total, nil
}

func execute(routes []*route, kind protocols.SwapKind) ([]path.WithAmount, error) {
	arena := protocols.NewArena()
	var out []path.WithAmount
	for _, r := range routes {
		if r.alloc.Sign() == 0 {
			continue
		}
		res, err := executeRaw(arena, r.path, kind, r.alloc, true)
		if err != nil {
			return nil, fmt.Errorf("executing %s: %w", r.path.Key(), err)
		}
		out = append(out, res)
	}
	return out, nil
}

func halve(step, floor *big.Int) *big.Int {
	next := new(big.Int).Rsh(step, 1)
	if next.Cmp(floor) < 0 {
		return new(big.Int).Set(floor)
	}
	return next
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
