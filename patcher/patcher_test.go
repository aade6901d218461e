package patcher

import (
	"io"
	"log/slog"
	"testing"

	"github.com/defistate/defistate-sor-go/differ"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --------------------------------------------------------------------------------
// --- Helpers ---
// --------------------------------------------------------------------------------

var (
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	waUSD = common.HexToAddress("0xD4fa2D31b7968E448877f69A96DE69f5de8cD23E")
)

func makePool(id, balance string) snapshot.Pool {
	return snapshot.Pool{
		ID:          id,
		Address:     common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Type:        "WEIGHTED",
		SwapFee:     "0.003",
		TotalShares: "100",
		Tokens: []snapshot.PoolToken{
			{Address: weth, Decimals: 18, Balance: balance, Weight: "0.5"},
			{Address: usdc, Decimals: 6, Balance: "1000", Weight: "0.5"},
		},
	}
}

func makeSnapshot(block uint64, pools ...snapshot.Pool) *snapshot.Snapshot {
	return &snapshot.Snapshot{ChainID: 1, BlockNumber: block, Pools: pools}
}

// --------------------------------------------------------------------------------
// --- Main Test Suite ---
// --------------------------------------------------------------------------------

func TestPatch_HappyPath(t *testing.T) {
	oldState := makeSnapshot(100, makePool("a", "10"), makePool("b", "50"), makePool("c", "1"))

	// "a" -> updated, "b" -> unchanged, "c" -> removed, "d" -> new
	diff := &differ.SnapshotDiff{
		ChainID:      1,
		FromBlock:    100,
		ToBlock:      101,
		Pools:        []snapshot.Pool{makePool("d", "100"), makePool("a", "15")},
		RemovedPools: []string{"c"},
		Tokens:       []snapshot.Token{{Address: waUSD, Decimals: 6}},
		Buffers: map[common.Address]snapshot.Buffer{
			waUSD: {UnderlyingToken: usdc, UnwrapRate: "1.05"},
		},
	}

	newState, err := Patch(oldState, diff)
	require.NoError(t, err)

	assert.Equal(t, uint64(101), newState.BlockNumber)
	require.Len(t, newState.Pools, 3)
	assert.Equal(t, "a", newState.Pools[0].ID)
	assert.Equal(t, "15", newState.Pools[0].Tokens[0].Balance)
	assert.Equal(t, "b", newState.Pools[1].ID)
	assert.Equal(t, "50", newState.Pools[1].Tokens[0].Balance)
	assert.Equal(t, "d", newState.Pools[2].ID)
	assert.Equal(t, []snapshot.Token{{Address: waUSD, Decimals: 6}}, newState.Tokens)
	assert.Equal(t, "1.05", newState.Buffers[waUSD].UnwrapRate)

	// the old snapshot is untouched
	require.Len(t, oldState.Pools, 3)
	assert.Equal(t, "10", oldState.Pools[0].Tokens[0].Balance)
	assert.Nil(t, oldState.Buffers)
}

func TestPatch_Errors(t *testing.T) {
	tests := []struct {
		name string
		diff *differ.SnapshotDiff
		want string
	}{
		{
			name: "block mismatch",
			diff: &differ.SnapshotDiff{ChainID: 1, FromBlock: 99},
			want: "mismatch fromBlock",
		},
		{
			name: "chain mismatch",
			diff: &differ.SnapshotDiff{ChainID: 10, FromBlock: 100},
			want: "mismatch chainId",
		},
		{
			name: "unknown removed pool",
			diff: &differ.SnapshotDiff{ChainID: 1, FromBlock: 100, RemovedPools: []string{"z"}},
			want: "removed pool z not in snapshot",
		},
		{
			name: "unknown removed buffer",
			diff: &differ.SnapshotDiff{ChainID: 1, FromBlock: 100, RemovedBuffers: []common.Address{waUSD}},
			want: "not in snapshot",
		},
		{
			name: "decimals conflict",
			diff: &differ.SnapshotDiff{ChainID: 1, FromBlock: 100, Tokens: []snapshot.Token{{Address: weth, Decimals: 6}}},
			want: "decimals",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Patch(makeSnapshot(100, makePool("a", "10")), tt.diff)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPatch_InvertsDiff(t *testing.T) {
	d, err := differ.NewSnapshotDiffer(&differ.SnapshotDifferConfig{
		Registry: prometheus.NewRegistry(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	oldState := makeSnapshot(7, makePool("a", "10"), makePool("b", "20"), makePool("c", "30"))
	newState := makeSnapshot(8, makePool("a", "12"), makePool("c", "30"), makePool("e", "1"))

	diff, err := d.Diff(oldState, newState)
	require.NoError(t, err)

	patched, err := Patch(oldState, diff)
	require.NoError(t, err)
	assert.Equal(t, newState, patched)
}
