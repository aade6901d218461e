package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-sor-go/differ"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the streamer is registered.
	RpcNamespace                     = "defi"
	SnapshotStreamSubscriptionMethod = "subscribeSnapshotStream"
)

// SnapshotPatcherFunc applies a diff to the previous snapshot without
// mutating it.
type SnapshotPatcherFunc func(prev *snapshot.Snapshot, diff *differ.SnapshotDiff) (*snapshot.Snapshot, error)

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
	Patcher    SnapshotPatcherFunc
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Patcher == nil {
		return errors.New("config: Patcher is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor parses events, maintains the latest snapshot, applies
// diffs and broadcasts updates. It is decoupled from the networking layer.
type StreamProcessor struct {
	last       *snapshot.Snapshot
	patcher    SnapshotPatcherFunc
	snapshotCh chan *snapshot.Snapshot
	logger     Logger
}

// NewStreamProcessor creates a pure logic processor without networking.
func NewStreamProcessor(logger Logger, bufferSize uint, patcher SnapshotPatcherFunc) *StreamProcessor {
	return &StreamProcessor{
		logger:     logger,
		snapshotCh: make(chan *snapshot.Snapshot, bufferSize),
		patcher:    patcher,
	}
}

// Snapshots returns a read-only channel for receiving new snapshots.
func (sp *StreamProcessor) Snapshots() <-chan *snapshot.Snapshot {
	return sp.snapshotCh
}

// ProcessMessage accepts a raw JSON message, processes it and updates the
// latest snapshot.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	processingStart := time.Now()
	var event SubscriptionEvent

	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case EventFull:
		return sp.handleFull(event, processingStart)
	case EventDiff:
		return sp.handleDiff(event, processingStart)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFull(event SubscriptionEvent, start time.Time) error {
	s, err := snapshot.Decode(bytes.NewReader(event.Payload))
	if err != nil {
		return fmt.Errorf("failed to decode full snapshot payload: %w", err)
	}

	sp.logEvent(s, time.Since(start), event.SentAt, EventFull)
	sp.publish(s)
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var diff differ.SnapshotDiff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	if sp.last == nil {
		return fmt.Errorf("received diff before full snapshot; from_block: %d, to_block: %d", diff.FromBlock, diff.ToBlock)
	}

	if diff.FromBlock != sp.last.BlockNumber {
		sp.logger.Warn(
			"Received out-of-order diff; snapshot may be out of sync. Discarding.",
			"last_known_block", sp.last.BlockNumber,
			"diff_from_block", diff.FromBlock,
			"diff_to_block", diff.ToBlock,
		)
		return nil
	}

	next, err := sp.patcher(sp.last, &diff)
	if err != nil {
		return fmt.Errorf("failed to patch snapshot: %w", err)
	}

	sp.logEvent(next, time.Since(start), event.SentAt, EventDiff)
	sp.publish(next)
	return nil
}

func (sp *StreamProcessor) publish(s *snapshot.Snapshot) {
	sp.last = s
	sp.snapshotCh <- s
}

func (sp *StreamProcessor) logEvent(s *snapshot.Snapshot, processingDur time.Duration, sentAt int64, eventType string) {
	clientStart := time.Now().Add(-processingDur)
	transport := clientStart.Sub(time.Unix(0, sentAt))

	sp.logger.Debug("Snapshot Processed",
		"block", s.BlockNumber,
		"type", eventType,
		"pools", len(s.Pools),
		"buffers", len(s.Buffers),
		"latency_transport_ms", transport.Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client manages the connection and uses StreamProcessor for logic.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient creates a new client with networking enabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.Patcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// Snapshots delegates to the processor's snapshot channel.
func (c *Client) Snapshots() <-chan *snapshot.Snapshot {
	return c.processor.Snapshots()
}

// Err returns a read-only channel for receiving fatal (unrecoverable) errors.
func (c *Client) Err() <-chan error {
	return c.errCh
}

// run keeps a subscription open until ctx ends, reconnecting with
// exponential backoff. The delay resets once a subscription is established.
func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	delay := initialReconnectDelay

	for ctx.Err() == nil {
		subscribed, err := c.stream(ctx, url)
		if ctx.Err() != nil {
			break
		}
		if subscribed {
			delay = initialReconnectDelay
		}
		c.logger.Warn("Snapshot stream interrupted, reconnecting", "url", url, "error", err, "delay", delay)
		if !sleep(ctx, delay) {
			break
		}
		delay = min(delay*2, maxReconnectDelay)
	}
	c.logger.Info("Snapshot stream stopped", "url", url)
}

// stream dials url and feeds every notification to the processor until the
// subscription fails. It reports whether the subscription was established.
func (c *Client) stream(ctx context.Context, url string) (bool, error) {
	c.logger.Debug("Dialing snapshot stream", "url", url)
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, SnapshotStreamSubscriptionMethod)
	if err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Subscribed to snapshot stream", "url", url)
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Dropping stream message", "error", err)
			}
		case err := <-sub.Err():
			return true, err
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
