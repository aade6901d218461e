package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-sor-go/optimizer"
	"github.com/defistate/defistate-sor-go/protocols"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	addrC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	addrD = common.HexToAddress("0x000000000000000000000000000000000000000d")
)

func wad(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func weightedPool(id string, address common.Address, a, b common.Address, balance, fee string) snapshot.Pool {
	return snapshot.Pool{
		ID:          id,
		Address:     address,
		Type:        "WEIGHTED",
		SwapFee:     fee,
		TotalShares: balance,
		Tokens: []snapshot.PoolToken{
			{Address: a, Decimals: 18, Balance: balance, Weight: "0.5"},
			{Address: b, Decimals: 18, Balance: balance, Weight: "0.5"},
		},
	}
}

func newRouter(t *testing.T, cacheSize int) *Router {
	t.Helper()
	r, err := New(Config{
		CacheSize: cacheSize,
		Registry:  prometheus.NewRegistry(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return r
}

func givenIn(in, out common.Address, amount *big.Int) Request {
	return Request{TokenIn: in, TokenOut: out, SwapKind: protocols.GivenIn, SwapAmount: amount}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Logger: slog.Default()})
	assert.Error(t, err)
	_, err = New(Config{Registry: prometheus.NewRegistry()})
	assert.Error(t, err)
	_, err = New(Config{Registry: prometheus.NewRegistry(), Logger: slog.Default(), CacheSize: -1})
	assert.Error(t, err)
}

func TestQuoteWeightedKnownValue(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools:   []snapshot.Pool{weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0")},
	}
	res, err := newRouter(t, 0).Quote(context.Background(), s, givenIn(addrA, addrB, wad(100)))
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, StatusOK, res.Status)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, "90909090909090909000", res.OutputAmount.Amount.String())
	assert.Equal(t, wad(100).String(), res.InputAmount.Amount.String())
	// 100 into 1000 moves the price by roughly 9%
	assert.True(t, res.PriceImpact.Cmp(big.NewInt(8e16)) > 0)
	assert.True(t, res.PriceImpact.Cmp(big.NewInt(1e17)) < 0)
}

func TestQuoteNoRoute(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools: []snapshot.Pool{
			weightedPool("ab", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.003"),
			weightedPool("cd", common.HexToAddress("0x1002"), addrC, addrD, "1000", "0.003"),
		},
	}
	r := newRouter(t, 0)

	tests := []struct {
		name     string
		tokenOut common.Address
	}{
		{name: "disjoint pools", tokenOut: addrD},
		{name: "unknown token", tokenOut: common.HexToAddress("0xe")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Quote(context.Background(), s, givenIn(addrA, tt.tokenOut, wad(1)))
			require.NoError(t, err)
			assert.Equal(t, StatusNoRoute, res.Status)
			assert.ErrorIs(t, res.Err(), ErrNoRouteFound)
			assert.Empty(t, res.Paths)
			assert.Equal(t, 0, res.OutputAmount.Amount.Sign())
		})
	}
}

func TestQuoteDisallowedUnbalancedExit(t *testing.T) {
	poolAddress := common.HexToAddress("0x2001")
	restricted := weightedPool("exit-fee", poolAddress, addrA, addrB, "1000", "0.003")
	restricted.Hook = &snapshot.Hook{Name: "ExitFee", DynamicData: map[string]string{"removeLiquidityFeePercentage": "0.01"}}
	restricted.LiquidityManagement = protocols.LiquidityManagement{DisableUnbalancedLiquidity: true}
	s := &snapshot.Snapshot{ChainID: 1, Pools: []snapshot.Pool{restricted}}
	r := newRouter(t, 0)

	res, err := r.Quote(context.Background(), s, givenIn(poolAddress, addrA, wad(10)))
	require.NoError(t, err)
	assert.Equal(t, StatusNoLiquidity, res.Status)
	assert.ErrorIs(t, res.Err(), ErrNoRouteFound)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, 0, res.OutputAmount.Amount.Sign())
	assert.Equal(t, 0, res.Paths[0].OutputAmount.Amount.Sign())

	// balanced swaps through the same pool are unaffected
	res, err = r.Quote(context.Background(), s, givenIn(addrA, addrB, wad(10)))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Positive(t, res.OutputAmount.Amount.Sign())
}

func TestQuoteSplitsAcrossEqualPools(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools: []snapshot.Pool{
			weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.003"),
			weightedPool("p2", common.HexToAddress("0x1002"), addrA, addrB, "1000", "0.003"),
		},
	}
	r := newRouter(t, 0)

	split, err := r.Quote(context.Background(), s, givenIn(addrA, addrB, wad(100)))
	require.NoError(t, err)
	require.Equal(t, StatusOK, split.Status)
	require.Len(t, split.Paths, 2)
	for _, p := range split.Paths {
		diff := new(big.Int).Sub(p.InputAmount.Amount, wad(50))
		assert.True(t, diff.CmpAbs(wad(1)) <= 0, "path input %s", p.InputAmount.Amount)
	}

	single := givenIn(addrA, addrB, wad(100))
	single.PoolIDs = []string{"p1"}
	alone, err := r.Quote(context.Background(), s, single)
	require.NoError(t, err)
	require.Len(t, alone.Paths, 1)
	assert.True(t, split.OutputAmount.Amount.Cmp(alone.OutputAmount.Amount) > 0)

	impact, err := RoundTripPriceImpact(split.Paths, split.SwapKind)
	require.NoError(t, err)
	assert.Positive(t, impact.Sign())
	// each half moves its pool about 5%, and the reverse trade runs on the
	// untouched pools
	assert.True(t, impact.Cmp(big.NewInt(1e17)) < 0, "impact %s", impact)
}

func TestQuoteGivenOut(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools:   []snapshot.Pool{weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.003")},
	}
	req := Request{TokenIn: addrA, TokenOut: addrB, SwapKind: protocols.GivenOut, SwapAmount: wad(50)}
	res, err := newRouter(t, 0).Quote(context.Background(), s, req)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, wad(50).String(), res.OutputAmount.Amount.String())
	assert.True(t, res.InputAmount.Amount.Cmp(wad(50)) > 0)
	assert.Positive(t, res.PriceImpact.Sign())
}

func TestQuoteShortfall(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools:   []snapshot.Pool{weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.003")},
	}
	res, err := newRouter(t, 0).Quote(context.Background(), s, givenIn(addrA, addrB, wad(500)))
	require.NoError(t, err)
	assert.Equal(t, StatusShortfall, res.Status)
	assert.ErrorIs(t, res.Err(), optimizer.ErrInsufficientCapacity)
	assert.Equal(t, wad(200).String(), res.Shortfall.String())
	assert.Equal(t, wad(300).String(), res.InputAmount.Amount.String())
}

func TestQuoteInvalidRequest(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools:   []snapshot.Pool{weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.003")},
	}
	r := newRouter(t, 0)

	tests := []struct {
		name string
		req  Request
	}{
		{name: "zero amount", req: givenIn(addrA, addrB, new(big.Int))},
		{name: "nil amount", req: givenIn(addrA, addrB, nil)},
		{name: "same token", req: givenIn(addrA, addrA, wad(1))},
		{name: "bad kind", req: Request{TokenIn: addrA, TokenOut: addrB, SwapKind: protocols.SwapKind(7), SwapAmount: wad(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Quote(context.Background(), s, tt.req)
			var qe *QuoteError
			require.ErrorAs(t, err, &qe)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := r.Quote(context.Background(), &snapshot.Snapshot{}, givenIn(addrA, addrB, wad(1)))
	assert.ErrorIs(t, err, snapshot.ErrInvalidSnapshot)
}

func TestQuoteTimeout(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools: []snapshot.Pool{
			weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.003"),
			weightedPool("p2", common.HexToAddress("0x1002"), addrA, addrB, "1000", "0.003"),
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := newRouter(t, 0).Quote(ctx, s, givenIn(addrA, addrB, wad(1)))
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.ErrorIs(t, res.Err(), ErrTimeout)
}

func TestQuoteDrainedPool(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools:   []snapshot.Pool{weightedPool("drained", common.HexToAddress("0x1001"), addrA, addrB, "0", "0.003")},
	}
	res, err := newRouter(t, 0).Quote(context.Background(), s, givenIn(addrA, addrB, wad(1)))
	require.NoError(t, err)
	assert.Equal(t, StatusNoLiquidity, res.Status)
	assert.ErrorIs(t, res.Err(), ErrNoRouteFound)
	require.Len(t, res.Paths, 1)
	assert.Equal(t, 0, res.OutputAmount.Amount.Sign())
}

func TestQuoteCacheSeparatesSnapshotsAtSameBlock(t *testing.T) {
	snapshotWith := func(secondBalance string) *snapshot.Snapshot {
		return &snapshot.Snapshot{
			ChainID:     1,
			BlockNumber: 100,
			Pools: []snapshot.Pool{
				weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.003"),
				weightedPool("p2", common.HexToAddress("0x1002"), addrA, addrB, secondBalance, "0.003"),
			},
		}
	}
	req := givenIn(addrA, addrB, wad(100))
	r := newRouter(t, 8)

	before, err := r.Quote(context.Background(), snapshotWith("0"), req)
	require.NoError(t, err)
	require.Equal(t, StatusOK, before.Status)
	require.Len(t, before.Paths, 1)

	// p2 is refilled without a new block
	refilled := snapshotWith("1000")
	after, err := r.Quote(context.Background(), refilled, req)
	require.NoError(t, err)
	require.Equal(t, StatusOK, after.Status)
	assert.Len(t, after.Paths, 2)

	fresh, err := newRouter(t, 0).Quote(context.Background(), refilled, req)
	require.NoError(t, err)
	assert.Equal(t, fresh.OutputAmount.Amount.String(), after.OutputAmount.Amount.String())
	assert.Equal(t, float64(2), testutil.ToFloat64(r.metrics.cacheHits.WithLabelValues("miss")))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.metrics.cacheHits.WithLabelValues("hit")))
}

func TestQuoteIsDeterministic(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID:     1,
		BlockNumber: 100,
		Pools: []snapshot.Pool{
			weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0.001"),
			weightedPool("p2", common.HexToAddress("0x1002"), addrA, addrB, "700", "0.003"),
			weightedPool("ac", common.HexToAddress("0x1003"), addrA, addrC, "500", "0.003"),
			weightedPool("cb", common.HexToAddress("0x1004"), addrC, addrB, "500", "0.003"),
		},
	}
	r := newRouter(t, 8)
	req := givenIn(addrA, addrB, wad(120))

	first, err := r.Quote(context.Background(), s, req)
	require.NoError(t, err)
	want, err := json.Marshal(first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := r.Quote(context.Background(), s, req)
		require.NoError(t, err)
		got, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(got))
	}
	assert.Equal(t, float64(5), testutil.ToFloat64(r.metrics.cacheHits.WithLabelValues("hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.cacheHits.WithLabelValues("miss")))
	assert.Equal(t, float64(6), testutil.ToFloat64(r.metrics.quotes.WithLabelValues(string(StatusOK))))
}

func TestResultJSON(t *testing.T) {
	s := &snapshot.Snapshot{
		ChainID: 1,
		Pools:   []snapshot.Pool{weightedPool("p1", common.HexToAddress("0x1001"), addrA, addrB, "1000", "0")},
	}
	res, err := newRouter(t, 0).Quote(context.Background(), s, givenIn(addrA, addrB, wad(100)))
	require.NoError(t, err)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "OK", decoded["status"])
	assert.Equal(t, "GivenIn", decoded["swapKind"])
	assert.Equal(t, "90909090909090909000", decoded["outputAmount"])
	assert.NotContains(t, decoded, "error")
	assert.NotContains(t, decoded, "shortfall")
}
