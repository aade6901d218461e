package differ

import (
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SnapshotDiff summarizes the changes FromBlock to ToBlock. Pools, Tokens and
// Buffers carry full replacements for every added or changed entry.
type SnapshotDiff struct {
	Timestamp uint64 `json:"timestamp"`
	ChainID   uint64 `json:"chainId"`
	FromBlock uint64 `json:"fromBlock"`
	ToBlock   uint64 `json:"toBlock"`

	Tokens        []snapshot.Token `json:"tokens,omitempty"`
	RemovedTokens []common.Address `json:"removedTokens,omitempty"`

	Pools        []snapshot.Pool `json:"pools,omitempty"`
	RemovedPools []string        `json:"removedPools,omitempty"`

	Buffers        map[common.Address]snapshot.Buffer `json:"buffers,omitempty"`
	RemovedBuffers []common.Address                   `json:"removedBuffers,omitempty"`
}

// IsEmpty reports whether the diff changes nothing but the block.
func (d *SnapshotDiff) IsEmpty() bool {
	return len(d.Tokens) == 0 && len(d.RemovedTokens) == 0 &&
		len(d.Pools) == 0 && len(d.RemovedPools) == 0 &&
		len(d.Buffers) == 0 && len(d.RemovedBuffers) == 0
}
