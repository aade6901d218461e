package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defistate-sor-go/path"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var (
	// ErrNoRouteFound is reported when no candidate path can carry the swap.
	ErrNoRouteFound = errors.New("no route found")
	// ErrInconsistentPathTokens means paths with different endpoints were aggregated.
	ErrInconsistentPathTokens = errors.New("inconsistent path tokens")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrTimeout                = errors.New("quote timed out")
)

// QuoteError is a structural failure of a quote, returned instead of a Result.
type QuoteError struct {
	Reason string
	Err    error
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("quote failed: %s: %v", e.Reason, e.Err)
}

func (e *QuoteError) Unwrap() error {
	return e.Err
}

// Status classifies the outcome of a quote.
type Status string

const (
	StatusOK = Status("OK")
	// StatusNoRoute means the tokens are not connected.
	StatusNoRoute = Status("NO_ROUTE")
	// StatusNoLiquidity means routes exist but none can carry any amount.
	StatusNoLiquidity = Status("NO_LIQUIDITY")
	StatusTimeout     = Status("TIMEOUT")
	// StatusShortfall means only part of the amount could be routed.
	StatusShortfall = Status("SHORTFALL")
)

// Request is a single swap quote request.
type Request struct {
	TokenIn  common.Address
	TokenOut common.Address
	SwapKind protocols.SwapKind
	// SwapAmount is raw, in TokenIn for GivenIn and TokenOut for GivenOut.
	SwapAmount *big.Int
	// PoolIDs restricts routing to the listed pools when non-empty.
	PoolIDs []string
}

// Result is a routed swap.
type Result struct {
	SwapKind     protocols.SwapKind
	TokenIn      token.Token
	TokenOut     token.Token
	InputAmount  token.Amount
	OutputAmount token.Amount
	Paths        []path.WithAmount
	// PriceImpact is in WAD.
	PriceImpact *big.Int
	Status      Status
	// Shortfall is the raw amount of the given token left unrouted.
	Shortfall *big.Int

	err error
}

// Err returns the reason a quote is not StatusOK, or nil.
func (r *Result) Err() error {
	return r.err
}

type resultJSON struct {
	Status       Status             `json:"status"`
	SwapKind     protocols.SwapKind `json:"swapKind"`
	TokenIn      common.Address     `json:"tokenIn"`
	TokenOut     common.Address     `json:"tokenOut"`
	InputAmount  string             `json:"inputAmount"`
	OutputAmount string             `json:"outputAmount"`
	PriceImpact  string             `json:"priceImpact"`
	Shortfall    string             `json:"shortfall,omitempty"`
	Paths        []path.WithAmount  `json:"paths"`
	Error        string             `json:"error,omitempty"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Status:       r.Status,
		SwapKind:     r.SwapKind,
		TokenIn:      r.TokenIn.Address,
		TokenOut:     r.TokenOut.Address,
		InputAmount:  amountString(r.InputAmount.Amount),
		OutputAmount: amountString(r.OutputAmount.Amount),
		PriceImpact:  amountString(r.PriceImpact),
		Paths:        r.Paths,
	}
	if out.Paths == nil {
		out.Paths = []path.WithAmount{}
	}
	if r.Shortfall != nil && r.Shortfall.Sign() > 0 {
		out.Shortfall = r.Shortfall.String()
	}
	if r.err != nil {
		out.Error = r.err.Error()
	}
	return json.Marshal(out)
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
