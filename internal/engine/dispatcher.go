package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// Dispatcher submits built messages to the provider in single-scope chunks,
// retrying transient failures with exponential backoff. A chunk that exhausts
// its attempts is dropped and logged; nothing escapes the dispatcher and no
// chunk failure blocks other chunks or scopes.
type Dispatcher struct {
	provider       dispatch.Provider
	chunkSize      int
	maxAttempts    int
	initialBackoff time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *slog.Logger
}

func NewDispatcher(provider dispatch.Provider, chunkSize, maxAttempts int, initialBackoff time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		provider:       provider,
		chunkSize:      chunkSize,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		sleep:          sleepCtx,
		logger:         logger.With("component", "Dispatcher"),
	}
}

// DispatchResult aggregates the ok ticket ids plus the correlation maps the
// auditor and pruner need: ticket id -> token and token -> scope.
type DispatchResult struct {
	TicketIDs     []string
	TicketToToken map[string]string
	TokenToScope  map[string]string
	Chunks        int
	DroppedChunks int
	FailedTickets int
}

// Dispatch processes scopes sequentially in sorted order. Tokens from two
// scopes are never present in the same provider call: each scope's messages
// are chunked and sent on their own.
func (d *Dispatcher) Dispatch(ctx context.Context, byScope map[string][]push.Message) *DispatchResult {
	res := &DispatchResult{
		TicketToToken: make(map[string]string),
		TokenToScope:  make(map[string]string),
	}

	scopes := make([]string, 0, len(byScope))
	for scope := range byScope {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	for _, scope := range scopes {
		msgs := byScope[scope]
		for start := 0; start < len(msgs); start += d.chunkSize {
			end := min(start+d.chunkSize, len(msgs))
			res.Chunks++
			d.sendChunk(ctx, scope, msgs[start:end], res)
		}
	}

	return res
}

// sendChunk attempts one chunk up to maxAttempts times. Backoff doubles from
// initialBackoff and is applied only between failed attempts: no delay before
// the first attempt and none after the last.
func (d *Dispatcher) sendChunk(ctx context.Context, scope string, chunk []push.Message, res *DispatchResult) {
	backoff := d.initialBackoff

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		tickets, err := d.provider.SendBatch(ctx, chunk)
		if err == nil {
			d.collect(scope, chunk, tickets, res)
			return
		}

		d.logger.Warn("send attempt failed",
			"scope", scope, "attempt", attempt, "chunk_size", len(chunk), "err", err)

		if attempt == d.maxAttempts {
			break
		}
		if err := d.sleep(ctx, backoff); err != nil {
			break
		}
		backoff *= 2
	}

	res.DroppedChunks++
	d.logger.Error("chunk dropped after retry exhaustion",
		"scope", scope, "chunk_size", len(chunk), "attempts", d.maxAttempts)
}

// collect correlates tickets with the chunk they answer. Tickets align
// positionally; a count mismatch is logged and correlation stops at the
// shorter length.
func (d *Dispatcher) collect(scope string, chunk []push.Message, tickets []push.Ticket, res *DispatchResult) {
	if len(tickets) != len(chunk) {
		d.logger.Warn("ticket count does not match chunk size",
			"scope", scope, "chunk_size", len(chunk), "tickets", len(tickets))
	}

	for i, tk := range tickets {
		if i >= len(chunk) {
			break
		}
		if tk.Status != push.TicketOK || tk.ID == "" {
			res.FailedTickets++
			d.logger.Warn("provider rejected message at submission",
				"scope", scope, "message", tk.Message, "details", tk.Details)
			continue
		}
		res.TicketIDs = append(res.TicketIDs, tk.ID)
		res.TicketToToken[tk.ID] = chunk[i].To
		res.TokenToScope[chunk[i].To] = scope
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
