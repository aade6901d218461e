package path

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidPath is returned for paths whose tokens and pools do not line up.
var ErrInvalidPath = errors.New("invalid path")

// maxHaircuts bounds the capacity refinement loop.
const maxHaircuts = 64

// Path is a token route: Pools[i] swaps Tokens[i] into Tokens[i+1].
type Path struct {
	Tokens   []token.Token
	Pools    []protocols.Pool
	IsBuffer []bool
}

// New validates and returns a path.
func New(tokens []token.Token, pools []protocols.Pool, isBuffer []bool) (Path, error) {
	if len(pools) == 0 || len(tokens) != len(pools)+1 || len(isBuffer) != len(pools) {
		return Path{}, fmt.Errorf("%w: %d tokens, %d pools, %d buffer flags", ErrInvalidPath, len(tokens), len(pools), len(isBuffer))
	}
	return Path{Tokens: tokens, Pools: pools, IsBuffer: isBuffer}, nil
}

func (p Path) Hops() int {
	return len(p.Pools)
}

func (p Path) TokenIn() token.Token {
	return p.Tokens[0]
}

func (p Path) TokenOut() token.Token {
	return p.Tokens[len(p.Tokens)-1]
}

// Key identifies the path topology. Equal keys mean equal routes.
func (p Path) Key() string {
	var sb strings.Builder
	sb.WriteString(p.Tokens[0].PoolAddress().Hex())
	for i, pool := range p.Pools {
		sb.WriteByte('/')
		sb.WriteString(pool.ID())
		sb.WriteByte('/')
		sb.WriteString(p.Tokens[i+1].PoolAddress().Hex())
	}
	return sb.String()
}

// Reverse returns the same route traversed from TokenOut to TokenIn.
func (p Path) Reverse() Path {
	n := len(p.Pools)
	r := Path{
		Tokens:   make([]token.Token, n+1),
		Pools:    make([]protocols.Pool, n),
		IsBuffer: make([]bool, n),
	}
	for i, t := range p.Tokens {
		r.Tokens[n-i] = t
	}
	for i := range p.Pools {
		r.Pools[n-1-i] = p.Pools[i]
		r.IsBuffer[n-1-i] = p.IsBuffer[i]
	}
	return r
}

// sub returns the hops [from, to) as a path.
func (p Path) sub(from, to int) Path {
	return Path{
		Tokens:   p.Tokens[from : to+1],
		Pools:    p.Pools[from:to],
		IsBuffer: p.IsBuffer[from:to],
	}
}

// Execute swaps amount along the path. For GivenIn amount is of TokenIn and
// the hops run forward; for GivenOut it is of TokenOut and the hops run
// backward. With mutate set each hop updates the arena balances.
func (p Path) Execute(a *protocols.Arena, kind protocols.SwapKind, amount token.Amount, mutate bool) (WithAmount, error) {
	given := p.TokenIn()
	if kind == protocols.GivenOut {
		given = p.TokenOut()
	}
	if !amount.Token.IsUnderlyingEqual(given) {
		return WithAmount{}, fmt.Errorf("%w: path %s takes %s, got %s", token.ErrTokenMismatch, p.Key(), given, amount.Token)
	}

	var err error
	result := amount
	if kind == protocols.GivenIn {
		for i, pool := range p.Pools {
			if result, err = pool.SwapGivenIn(a, p.Tokens[i], p.Tokens[i+1], result, mutate); err != nil {
				return WithAmount{}, fmt.Errorf("hop %d (%s): %w", i, pool.ID(), err)
			}
		}
		return WithAmount{Path: p, SwapKind: kind, InputAmount: amount, OutputAmount: result}, nil
	}
	for i := len(p.Pools) - 1; i >= 0; i-- {
		pool := p.Pools[i]
		if result, err = pool.SwapGivenOut(a, p.Tokens[i], p.Tokens[i+1], result, mutate); err != nil {
			return WithAmount{}, fmt.Errorf("hop %d (%s): %w", i, pool.ID(), err)
		}
	}
	return WithAmount{Path: p, SwapKind: kind, InputAmount: result, OutputAmount: amount}, nil
}

// quote executes raw amounts without mutating the arena.
func (p Path) quote(a *protocols.Arena, kind protocols.SwapKind, raw *big.Int) (*big.Int, error) {
	given := p.TokenIn()
	if kind == protocols.GivenOut {
		given = p.TokenOut()
	}
	amount, err := token.FromRawAmount(given, raw)
	if err != nil {
		return nil, err
	}
	res, err := p.Execute(a, kind, amount, false)
	if err != nil {
		return nil, err
	}
	if kind == protocols.GivenIn {
		return res.OutputAmount.Amount, nil
	}
	return res.InputAmount.Amount, nil
}

// Capacity returns the largest raw amount of the given token (TokenIn for
// GivenIn, TokenOut for GivenOut) every hop accepts.
func (p Path) Capacity(a *protocols.Arena, kind protocols.SwapKind) (*big.Int, error) {
	if kind == protocols.GivenIn {
		return p.capacityIn(a)
	}
	return p.capacityOut(a)
}

func (p Path) capacityIn(a *protocols.Arena) (*big.Int, error) {
	capacity, err := p.Pools[0].LimitAmountSwap(a, p.Tokens[0], p.Tokens[1], protocols.GivenIn)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(p.Pools) && capacity.Sign() > 0; i++ {
		prefix := p.sub(0, i)
		limit, err := p.Pools[i].LimitAmountSwap(a, p.Tokens[i], p.Tokens[i+1], protocols.GivenIn)
		if err != nil {
			return nil, err
		}
		reach, err := prefix.quote(a, protocols.GivenIn, capacity)
		if err != nil {
			return nil, err
		}
		if reach.Cmp(limit) <= 0 {
			continue
		}
		needed, err := prefix.quote(a, protocols.GivenOut, limit)
		if err != nil {
			return nil, err
		}
		capacity, err = haircut(needed, func(x *big.Int) (bool, error) {
			out, err := prefix.quote(a, protocols.GivenIn, x)
			if err != nil {
				return false, err
			}
			return out.Cmp(limit) <= 0, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return capacity, nil
}

func (p Path) capacityOut(a *protocols.Arena) (*big.Int, error) {
	last := len(p.Pools) - 1
	capacity, err := p.Pools[last].LimitAmountSwap(a, p.Tokens[last], p.Tokens[last+1], protocols.GivenOut)
	if err != nil {
		return nil, err
	}
	for i := last - 1; i >= 0 && capacity.Sign() > 0; i-- {
		suffix := p.sub(i+1, len(p.Pools))
		limit, err := p.Pools[i].LimitAmountSwap(a, p.Tokens[i], p.Tokens[i+1], protocols.GivenOut)
		if err != nil {
			return nil, err
		}
		need, err := suffix.quote(a, protocols.GivenOut, capacity)
		if err != nil {
			return nil, err
		}
		if need.Cmp(limit) <= 0 {
			continue
		}
		reachable, err := suffix.quote(a, protocols.GivenIn, limit)
		if err != nil {
			return nil, err
		}
		capacity, err = haircut(reachable, func(x *big.Int) (bool, error) {
			in, err := suffix.quote(a, protocols.GivenOut, x)
			if err != nil {
				return false, err
			}
			return in.Cmp(limit) <= 0, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return capacity, nil
}

// haircut lowers x by a doubling decrement until fits accepts it. Limit
// checks inside fits are treated as a miss.
func haircut(x *big.Int, fits func(*big.Int) (bool, error)) (*big.Int, error) {
	candidate := new(big.Int).Set(x)
	step := big.NewInt(1)
	for i := 0; i < maxHaircuts && candidate.Sign() > 0; i++ {
		ok, err := fits(candidate)
		if err != nil && !errors.Is(err, protocols.ErrSwapLimitExceeded) {
			return nil, err
		}
		if ok {
			return candidate, nil
		}
		candidate.Sub(candidate, step)
		step.Lsh(step, 1)
	}
	if candidate.Sign() <= 0 {
		return new(big.Int), nil
	}
	return nil, fmt.Errorf("%w: capacity did not settle", ErrInvalidPath)
}

// WithAmount is a path with the amounts it was executed with.
type WithAmount struct {
	Path
	SwapKind     protocols.SwapKind
	InputAmount  token.Amount
	OutputAmount token.Amount
}

type withAmountJSON struct {
	Tokens       []common.Address   `json:"tokens"`
	Pools        []string           `json:"pools"`
	IsBuffer     []bool             `json:"isBuffer"`
	SwapKind     protocols.SwapKind `json:"swapKind"`
	InputAmount  string             `json:"inputAmount"`
	OutputAmount string             `json:"outputAmount"`
}

func (w WithAmount) MarshalJSON() ([]byte, error) {
	out := withAmountJSON{
		Tokens:       make([]common.Address, len(w.Tokens)),
		Pools:        make([]string, len(w.Pools)),
		IsBuffer:     w.IsBuffer,
		SwapKind:     w.SwapKind,
		InputAmount:  w.InputAmount.Amount.String(),
		OutputAmount: w.OutputAmount.Amount.String(),
	}
	for i, t := range w.Tokens {
		out.Tokens[i] = t.Address
	}
	for i, p := range w.Pools {
		out.Pools[i] = p.ID()
	}
	return json.Marshal(out)
}
