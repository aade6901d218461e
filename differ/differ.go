package differ

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrChainMismatch is returned when two snapshots belong to different chains.
var ErrChainMismatch = errors.New("snapshots are for different chains")

// SnapshotDifferConfig holds the differ's dependencies.
type SnapshotDifferConfig struct {
	Registry prometheus.Registerer
	Logger   Logger
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *SnapshotDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// SnapshotDiffer computes the changes between consecutive snapshots.
type SnapshotDiffer struct {
	metrics *Metrics
	logger  Logger
}

// NewSnapshotDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewSnapshotDiffer(cfg *SnapshotDifferConfig) (*SnapshotDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &SnapshotDiffer{
		metrics: NewMetrics(cfg.Registry),
		logger:  cfg.Logger,
	}, nil
}

// Diff returns the changes that turn old into new. Entries are listed in the
// order new holds them; removals are sorted.
func (d *SnapshotDiffer) Diff(old, new *snapshot.Snapshot) (*SnapshotDiff, error) {
	timer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer timer.ObserveDuration()

	if old.ChainID != new.ChainID {
		return nil, fmt.Errorf("%w: %d and %d", ErrChainMismatch, old.ChainID, new.ChainID)
	}

	diff := &SnapshotDiff{
		Timestamp: uint64(time.Now().UnixNano()),
		ChainID:   new.ChainID,
		FromBlock: old.BlockNumber,
		ToBlock:   new.BlockNumber,
	}

	// pools
	oldPools := make(map[string]snapshot.Pool, len(old.Pools))
	for _, p := range old.Pools {
		oldPools[p.ID] = p
	}
	var added, updated int
	for _, p := range new.Pools {
		prev, ok := oldPools[p.ID]
		delete(oldPools, p.ID)
		switch {
		case !ok:
			added++
		case reflect.DeepEqual(prev, p):
			continue
		default:
			updated++
		}
		diff.Pools = append(diff.Pools, p)
	}
	for id := range oldPools {
		diff.RemovedPools = append(diff.RemovedPools, id)
	}
	sort.Strings(diff.RemovedPools)

	// tokens
	oldTokens := make(map[common.Address]snapshot.Token, len(old.Tokens))
	for _, t := range old.Tokens {
		oldTokens[t.Address] = t
	}
	for _, t := range new.Tokens {
		prev, ok := oldTokens[t.Address]
		delete(oldTokens, t.Address)
		if !ok || prev != t {
			diff.Tokens = append(diff.Tokens, t)
		}
	}
	diff.RemovedTokens = sortedAddresses(oldTokens)

	// buffers
	oldBuffers := make(map[common.Address]snapshot.Buffer, len(old.Buffers))
	for addr, b := range old.Buffers {
		oldBuffers[addr] = b
	}
	for addr, b := range new.Buffers {
		prev, ok := oldBuffers[addr]
		delete(oldBuffers, addr)
		if ok && prev == b {
			continue
		}
		if diff.Buffers == nil {
			diff.Buffers = make(map[common.Address]snapshot.Buffer)
		}
		diff.Buffers[addr] = b
	}
	diff.RemovedBuffers = sortedAddresses(oldBuffers)

	d.metrics.poolChanges.WithLabelValues("added").Add(float64(added))
	d.metrics.poolChanges.WithLabelValues("updated").Add(float64(updated))
	d.metrics.poolChanges.WithLabelValues("removed").Add(float64(len(diff.RemovedPools)))
	d.logger.Debug("snapshot diff",
		"fromBlock", diff.FromBlock,
		"toBlock", diff.ToBlock,
		"poolsAdded", added,
		"poolsUpdated", updated,
		"poolsRemoved", len(diff.RemovedPools),
		"buffersChanged", len(diff.Buffers)+len(diff.RemovedBuffers),
	)
	return diff, nil
}

func sortedAddresses[V any](m map[common.Address]V) []common.Address {
	if len(m) == 0 {
		return nil
	}
	out := make([]common.Address, 0, len(m))
	for addr := range m {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
