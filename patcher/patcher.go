package patcher

import (
	"fmt"

	"github.com/defistate/defistate-sor-go/differ"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/ethereum/go-ethereum/common"
)

// Patch creates a new Snapshot by applying diff to old. Unchanged pools,
// tokens and buffers are shared with old, which is never mutated. Changed
// entries keep their position; new entries are appended in diff order.
func Patch(old *snapshot.Snapshot, diff *differ.SnapshotDiff) (*snapshot.Snapshot, error) {
	// 1. Integrity Check
	if old.ChainID != diff.ChainID {
		return nil, fmt.Errorf("patcher: mismatch chainId (snapshot=%d, diff=%d)", old.ChainID, diff.ChainID)
	}
	if old.BlockNumber != diff.FromBlock {
		return nil, fmt.Errorf("patcher: mismatch fromBlock (snapshot=%d, diff=%d)", old.BlockNumber, diff.FromBlock)
	}

	// 2. Pools
	pools, err := patchPools(old.Pools, diff)
	if err != nil {
		return nil, err
	}

	// 3. Tokens
	tokens, err := patchTokens(old.Tokens, diff)
	if err != nil {
		return nil, err
	}

	// 4. Buffers
	var buffers map[common.Address]snapshot.Buffer
	if len(old.Buffers) > 0 || len(diff.Buffers) > 0 {
		buffers = make(map[common.Address]snapshot.Buffer, len(old.Buffers)+len(diff.Buffers))
		for addr, b := range old.Buffers {
			buffers[addr] = b
		}
	}
	for _, addr := range diff.RemovedBuffers {
		if _, ok := buffers[addr]; !ok {
			return nil, fmt.Errorf("patcher: removed buffer %s not in snapshot", addr.Hex())
		}
		delete(buffers, addr)
	}
	for addr, b := range diff.Buffers {
		buffers[addr] = b
	}

	s := &snapshot.Snapshot{
		ChainID:     old.ChainID,
		BlockNumber: diff.ToBlock,
		Tokens:      tokens,
		Pools:       pools,
		Buffers:     buffers,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("patcher: %w", err)
	}
	return s, nil
}

func patchPools(old []snapshot.Pool, diff *differ.SnapshotDiff) ([]snapshot.Pool, error) {
	removed := make(map[string]bool, len(diff.RemovedPools))
	for _, id := range diff.RemovedPools {
		removed[id] = false
	}
	changed := make(map[string]int, len(diff.Pools))
	for i, p := range diff.Pools {
		changed[p.ID] = i
	}

	out := make([]snapshot.Pool, 0, len(old)+len(diff.Pools))
	for _, p := range old {
		if _, ok := removed[p.ID]; ok {
			removed[p.ID] = true
			continue
		}
		if i, ok := changed[p.ID]; ok {
			out = append(out, diff.Pools[i])
			delete(changed, p.ID)
			continue
		}
		out = append(out, p)
	}
	for _, id := range diff.RemovedPools {
		if !removed[id] {
			return nil, fmt.Errorf("patcher: removed pool %s not in snapshot", id)
		}
	}
	for _, p := range diff.Pools {
		if _, ok := changed[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func patchTokens(old []snapshot.Token, diff *differ.SnapshotDiff) ([]snapshot.Token, error) {
	removed := make(map[common.Address]bool, len(diff.RemovedTokens))
	for _, addr := range diff.RemovedTokens {
		removed[addr] = false
	}
	changed := make(map[common.Address]int, len(diff.Tokens))
	for i, t := range diff.Tokens {
		changed[t.Address] = i
	}

	var out []snapshot.Token
	for _, t := range old {
		if _, ok := removed[t.Address]; ok {
			removed[t.Address] = true
			continue
		}
		if i, ok := changed[t.Address]; ok {
			out = append(out, diff.Tokens[i])
			delete(changed, t.Address)
			continue
		}
		out = append(out, t)
	}
	for _, addr := range diff.RemovedTokens {
		if !removed[addr] {
			return nil, fmt.Errorf("patcher: removed token %s not in snapshot", addr.Hex())
		}
	}
	for _, t := range diff.Tokens {
		if _, ok := changed[t.Address]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}
