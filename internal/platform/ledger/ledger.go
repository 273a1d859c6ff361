// Package ledger keeps the short-lived receipts minted by provider adapters
// whose delivery outcome is known at send time (FCM, APNS, Web Push). Those
// adapters learn success or failure synchronously but the engine audits
// asynchronously via ticket ids, so the receipt is parked here until the
// auditor collects it.
package ledger

import (
	"sync"
	"time"

	"github.com/fieldcrew/go-push-service/pkg/push"
)

type entry struct {
	receipt  push.Receipt
	recorded time.Time
}

// Ledger is a mutex-guarded ticket-id to receipt map. Receipts are removed
// when taken; entries older than maxAge are swept on write so an auditor
// that never collects (dropped chunk, crashed invocation) cannot leak memory.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]entry
	maxAge  time.Duration
	now     func() time.Time
}

func New(maxAge time.Duration) *Ledger {
	return &Ledger{
		entries: make(map[string]entry),
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Record parks a receipt under its ticket id.
func (l *Ledger) Record(ticketID string, receipt push.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked()
	l.entries[ticketID] = entry{receipt: receipt, recorded: l.now()}
}

// Take returns the receipts for the given ticket ids and removes them.
// Unknown ids are simply absent from the result.
func (l *Ledger) Take(ticketIDs []string) map[string]push.Receipt {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]push.Receipt, len(ticketIDs))
	for _, id := range ticketIDs {
		if e, ok := l.entries[id]; ok {
			out[id] = e.receipt
			delete(l.entries, id)
		}
	}
	return out
}

func (l *Ledger) sweepLocked() {
	cutoff := l.now().Add(-l.maxAge)
	for id, e := range l.entries {
		if e.recorded.Before(cutoff) {
			delete(l.entries, id)
		}
	}
}
