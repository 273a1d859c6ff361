package engine

import (
	"context"
	"log/slog"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// Auditor exchanges the dispatcher's tickets for delivery receipts and
// classifies permanent failures into a prune set. Receipt-fetch failures are
// logged and skipped; there is no retry queue, so a receipt missed now is
// never re-audited (the next failing send for that token re-enters this
// path).
type Auditor struct {
	provider  dispatch.Provider
	chunkSize int
	logger    *slog.Logger
}

func NewAuditor(provider dispatch.Provider, chunkSize int, logger *slog.Logger) *Auditor {
	return &Auditor{
		provider:  provider,
		chunkSize: chunkSize,
		logger:    logger.With("component", "Auditor"),
	}
}

// Audit queries receipts in provider-sized chunks. For every receipt whose
// error kind marks the device as no longer registered, the ticket is resolved
// back to its token and user and the token lands in the prune set. Transient
// receipt errors are logged and otherwise ignored.
func (a *Auditor) Audit(ctx context.Context, res *DispatchResult, tokenToUser map[string]string) (push.PruneSet, int) {
	pruneSet := make(push.PruneSet)
	missing := 0

	for start := 0; start < len(res.TicketIDs); start += a.chunkSize {
		end := min(start+a.chunkSize, len(res.TicketIDs))
		chunk := res.TicketIDs[start:end]

		receipts, err := a.provider.GetReceipts(ctx, chunk)
		if err != nil {
			missing += len(chunk)
			a.logger.Warn("receipt fetch failed, skipping chunk", "tickets", len(chunk), "err", err)
			continue
		}

		for _, id := range chunk {
			receipt, ok := receipts[id]
			if !ok {
				missing++
				a.logger.Debug("no receipt for ticket", "ticket_id", id)
				continue
			}
			if receipt.Status == push.ReceiptOK {
				continue
			}
			if !receipt.Permanent() {
				a.logger.Warn("transient delivery failure",
					"ticket_id", id, "message", receipt.Message, "details", receipt.Details)
				continue
			}

			token := res.TicketToToken[id]
			userID := tokenToUser[token]
			if token == "" || userID == "" {
				a.logger.Warn("cannot correlate dead ticket to a user", "ticket_id", id)
				continue
			}
			pruneSet[userID] = append(pruneSet[userID], token)
		}
	}

	return pruneSet, missing
}
