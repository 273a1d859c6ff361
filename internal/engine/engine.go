// Package engine implements the notification dispatch pipeline: recipient
// resolution, message building, batched provider sends with bounded retry,
// receipt auditing, and pruning of permanently-dead tokens from the registry.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// Config carries the engine's tuning knobs. Zero values fall back to the
// provider defaults below.
type Config struct {
	// ChunkSize is the provider's maximum send batch size.
	ChunkSize int
	// ReceiptChunkSize is the provider's maximum receipt-query batch size.
	ReceiptChunkSize int
	// MaxAttempts bounds send retries per chunk.
	MaxAttempts int
	// InitialBackoff is the first inter-attempt delay; it doubles per retry.
	InitialBackoff time.Duration
	// ReceiptDelay is an optional pause between sending and auditing, giving
	// the provider time to produce receipts.
	ReceiptDelay time.Duration
	// PruneConcurrency bounds concurrent per-user registry updates.
	PruneConcurrency int
}

const (
	defaultChunkSize        = 100
	defaultReceiptChunkSize = 300
	defaultMaxAttempts      = 3
	defaultInitialBackoff   = 1000 * time.Millisecond
	defaultPruneConcurrency = 4
)

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.ReceiptChunkSize <= 0 {
		c.ReceiptChunkSize = defaultReceiptChunkSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.PruneConcurrency <= 0 {
		c.PruneConcurrency = defaultPruneConcurrency
	}
	return c
}

// Engine runs the full pipeline for one notification event. It holds no
// per-invocation state; a single Engine serves concurrent invocations.
type Engine struct {
	resolver     *Resolver
	dispatcher   *Dispatcher
	auditor      *Auditor
	pruner       *Pruner
	receiptDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *slog.Logger
}

func New(store dispatch.RegistryStore, provider dispatch.Provider, cfg Config, logger *slog.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		resolver:     NewResolver(store, provider.ValidToken, logger),
		dispatcher:   NewDispatcher(provider, cfg.ChunkSize, cfg.MaxAttempts, cfg.InitialBackoff, logger),
		auditor:      NewAuditor(provider, cfg.ReceiptChunkSize, logger),
		pruner:       NewPruner(store, cfg.PruneConcurrency, logger),
		receiptDelay: cfg.ReceiptDelay,
		sleep:        sleepCtx,
		logger:       logger.With("component", "Engine"),
	}
}

// Notify resolves, builds, dispatches, audits, and prunes for one event. It
// never returns an error and never panics across this boundary: every failure
// mode is terminal inside the pipeline and surfaces only as Outcome counters.
func (e *Engine) Notify(ctx context.Context, ev push.Event) *push.Outcome {
	resolution := e.resolver.Resolve(ctx, ev.Recipients)

	byScope := BuildMessages(resolution.MessagesByScope, ev)
	messages := 0
	for _, msgs := range byScope {
		messages += len(msgs)
	}

	result := e.dispatcher.Dispatch(ctx, byScope)

	if len(result.TicketIDs) > 0 && e.receiptDelay > 0 {
		_ = e.sleep(ctx, e.receiptDelay)
	}

	pruneSet, missing := e.auditor.Audit(ctx, result, resolution.TokenToUser)
	pruned := e.pruner.Prune(ctx, pruneSet, result.TokenToScope)

	outcome := &push.Outcome{
		Recipients:        resolution.Recipients,
		SkippedRecipients: resolution.Skipped,
		Messages:          messages,
		Chunks:            result.Chunks,
		DroppedChunks:     result.DroppedChunks,
		Tickets:           len(result.TicketIDs),
		FailedTickets:     result.FailedTickets,
		MissingReceipts:   missing,
		PrunedTokens:      pruned,
	}

	e.logger.Info("dispatch complete",
		"title", ev.Title,
		"recipients", outcome.Recipients,
		"skipped", outcome.SkippedRecipients,
		"messages", outcome.Messages,
		"chunks", outcome.Chunks,
		"dropped_chunks", outcome.DroppedChunks,
		"tickets", outcome.Tickets,
		"failed_tickets", outcome.FailedTickets,
		"missing_receipts", outcome.MissingReceipts,
		"pruned_tokens", outcome.PrunedTokens,
	)

	return outcome
}
