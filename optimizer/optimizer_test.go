package optimizer

import (
	"context"
	"math/big"
	"testing"

	"github.com/defistate/defistate-sor-go/path"
	"github.com/defistate/defistate-sor-go/pathfinder"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokA = mustToken("0xa", "A")
	tokB = mustToken("0xb", "B")
)

func mustToken(hex, symbol string) token.Token {
	tok, err := token.New(1, common.HexToAddress(hex), 18, symbol)
	if err != nil {
		panic(err)
	}
	return tok
}

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func pool(t *testing.T, id, address string, depth int64, fee int64, lm protocols.LiquidityManagement) *protocols.Weighted {
	t.Helper()
	p, err := protocols.NewWeighted(protocols.Config{
		ID:      id,
		Address: common.HexToAddress(address),
		Tokens: []protocols.PoolToken{
			{Token: tokA, Weight: big.NewInt(5e17)},
			{Token: tokB, Weight: big.NewInt(5e17)},
		},
		Balances:            []*big.Int{wad(depth), wad(depth)},
		TotalShares:         wad(depth),
		SwapFee:             big.NewInt(fee),
		LiquidityManagement: lm,
	})
	require.NoError(t, err)
	return p
}

func direct(t *testing.T, p protocols.Pool, from, to token.Token) pathfinder.Candidate {
	t.Helper()
	pth, err := path.New([]token.Token{from, to}, []protocols.Pool{p}, []bool{false})
	require.NoError(t, err)
	score := pathfinder.Score(pth)
	require.NotNil(t, score)
	return pathfinder.Candidate{Path: pth, Score: score, Key: pth.Key()}
}

func amount(t *testing.T, tok token.Token, raw *big.Int) token.Amount {
	t.Helper()
	a, err := token.FromRawAmount(tok, raw)
	require.NoError(t, err)
	return a
}

func singleOut(t *testing.T, p protocols.Pool, raw *big.Int) *big.Int {
	t.Helper()
	out, err := p.SwapGivenIn(nil, tokA, tokB, amount(t, tokA, raw), false)
	require.NoError(t, err)
	return out.Amount
}

func totals(paths []path.WithAmount) (in, out *big.Int) {
	in, out = new(big.Int), new(big.Int)
	for _, p := range paths {
		in.Add(in, p.InputAmount.Amount)
		out.Add(out, p.OutputAmount.Amount)
	}
	return in, out
}

// assertNear checks got is within tol of want, both in raw units.
func assertNear(t *testing.T, want, got, tol *big.Int) {
	t.Helper()
	diff := new(big.Int).Sub(want, got)
	assert.True(t, diff.CmpAbs(tol) <= 0, "want %s got %s", want, got)
}

func TestOptimizeSplitsEqualPools(t *testing.T) {
	p1 := pool(t, "p1", "0x1001", 1000, 3e15, protocols.LiquidityManagement{})
	p2 := pool(t, "p2", "0x1002", 1000, 3e15, protocols.LiquidityManagement{})
	candidates := []pathfinder.Candidate{direct(t, p1, tokA, tokB), direct(t, p2, tokA, tokB)}

	t.Run("given in", func(t *testing.T) {
		res, err := New(Config{}).Optimize(context.Background(), candidates, protocols.GivenIn, amount(t, tokA, wad(100)))
		require.NoError(t, err)
		require.NoError(t, res.Err())
		require.Len(t, res.Paths, 2)

		onePercent := wad(1)
		assertNear(t, wad(50), res.Paths[0].InputAmount.Amount, onePercent)
		assertNear(t, wad(50), res.Paths[1].InputAmount.Amount, onePercent)

		in, out := totals(res.Paths)
		assert.Equal(t, wad(100).String(), in.String())
		assert.True(t, out.Cmp(singleOut(t, p1, wad(100))) > 0)
	})

	t.Run("given out", func(t *testing.T) {
		res, err := New(Config{}).Optimize(context.Background(), candidates, protocols.GivenOut, amount(t, tokB, wad(100)))
		require.NoError(t, err)
		require.Len(t, res.Paths, 2)

		in, out := totals(res.Paths)
		assert.Equal(t, wad(100).String(), out.String())

		single, err := p1.SwapGivenOut(nil, tokA, tokB, amount(t, tokB, wad(100)), false)
		require.NoError(t, err)
		assert.True(t, in.Cmp(single.Amount) < 0)
	})
}

func TestOptimizeShiftsTowardCheaperPath(t *testing.T) {
	cheap := pool(t, "cheap", "0x1001", 1000, 1e15, protocols.LiquidityManagement{})
	// equal depth gives equal scores, so the initial split is even
	dear := pool(t, "dear", "0x1002", 1000, 3e16, protocols.LiquidityManagement{})
	candidates := []pathfinder.Candidate{direct(t, cheap, tokA, tokB), direct(t, dear, tokA, tokB)}

	res, err := New(Config{}).Optimize(context.Background(), candidates, protocols.GivenIn, amount(t, tokA, wad(100)))
	require.NoError(t, err)
	require.NotEmpty(t, res.Paths)
	assert.Positive(t, res.Iterations)
	assert.Equal(t, "cheap", res.Paths[0].Pools[0].ID())
	assert.True(t, res.Paths[0].InputAmount.Amount.Cmp(wad(50)) > 0)

	_, out := totals(res.Paths)
	even := new(big.Int).Add(singleOut(t, cheap, wad(50)), singleOut(t, dear, wad(50)))
	assert.True(t, out.Cmp(even) > 0, "split %s, even %s", out, even)
}

func TestOptimizeShortfall(t *testing.T) {
	p := pool(t, "p1", "0x1001", 1000, 3e15, protocols.LiquidityManagement{})
	candidates := []pathfinder.Candidate{direct(t, p, tokA, tokB)}

	res, err := New(Config{}).Optimize(context.Background(), candidates, protocols.GivenIn, amount(t, tokA, wad(500)))
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err(), ErrInsufficientCapacity)
	// a weighted pool takes at most 30% of its balance in
	assert.Equal(t, wad(200).String(), res.Shortfall.String())
	require.Len(t, res.Paths, 1)
	assert.Equal(t, wad(300).String(), res.Paths[0].InputAmount.Amount.String())
}

func TestOptimizeNoCapacity(t *testing.T) {
	restricted := pool(t, "restricted", "0x1001", 1000, 3e15, protocols.LiquidityManagement{DisableUnbalancedLiquidity: true})
	bpt, ok := restricted.BPT()
	require.True(t, ok)
	candidates := []pathfinder.Candidate{direct(t, restricted, tokA, bpt)}

	_, err := New(Config{}).Optimize(context.Background(), candidates, protocols.GivenIn, amount(t, tokA, wad(1)))
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestOptimizeTimeout(t *testing.T) {
	p1 := pool(t, "p1", "0x1001", 1000, 1e15, protocols.LiquidityManagement{})
	p2 := pool(t, "p2", "0x1002", 1000, 3e16, protocols.LiquidityManagement{})
	candidates := []pathfinder.Candidate{direct(t, p1, tokA, tokB), direct(t, p2, tokA, tokB)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Optimize(ctx, candidates, protocols.GivenIn, amount(t, tokA, wad(100)))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimizeIsDeterministic(t *testing.T) {
	p1 := pool(t, "p1", "0x1001", 1000, 1e15, protocols.LiquidityManagement{})
	p2 := pool(t, "p2", "0x1002", 700, 3e15, protocols.LiquidityManagement{})
	candidates := []pathfinder.Candidate{direct(t, p1, tokA, tokB), direct(t, p2, tokA, tokB)}

	first, err := New(Config{}).Optimize(context.Background(), candidates, protocols.GivenIn, amount(t, tokA, wad(80)))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := New(Config{}).Optimize(context.Background(), candidates, protocols.GivenIn, amount(t, tokA, wad(80)))
		require.NoError(t, err)
		require.Len(t, again.Paths, len(first.Paths))
		for j := range first.Paths {
			assert.Equal(t, first.Paths[j].InputAmount.Amount.String(), again.Paths[j].InputAmount.Amount.String())
			assert.Equal(t, first.Paths[j].OutputAmount.Amount.String(), again.Paths[j].OutputAmount.Amount.String())
		}
	}
}
