package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/go-push-service/internal/engine"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// receiptProvider serves scripted receipts and records how many tickets each
// query carried.
type receiptProvider struct {
	receipts   map[string]push.Receipt
	fetchErr   error
	queries    [][]string
	queryCount int
}

func (p *receiptProvider) SendBatch(context.Context, []push.Message) ([]push.Ticket, error) {
	return nil, errors.New("not used")
}

func (p *receiptProvider) GetReceipts(_ context.Context, ids []string) (map[string]push.Receipt, error) {
	p.queryCount++
	p.queries = append(p.queries, ids)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	out := make(map[string]push.Receipt, len(ids))
	for _, id := range ids {
		if r, ok := p.receipts[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (p *receiptProvider) ValidToken(string) bool { return true }

func deadReceipt() push.Receipt {
	return push.Receipt{
		Status:  push.ReceiptError,
		Message: "device gone",
		Details: &push.ErrorDetails{Error: push.ErrorDeviceNotRegistered},
	}
}

func TestAuditor_FlagsDeadTokensForPruning(t *testing.T) {
	provider := &receiptProvider{receipts: map[string]push.Receipt{
		"tick-1": {Status: push.ReceiptOK},
		"tick-2": deadReceipt(),
	}}
	auditor := engine.NewAuditor(provider, 300, newTestLogger())

	result := &engine.DispatchResult{
		TicketIDs:     []string{"tick-1", "tick-2"},
		TicketToToken: map[string]string{"tick-1": "tok1", "tick-2": "tok2"},
		TokenToScope:  map[string]string{"tok1": "scopeA", "tok2": "scopeA"},
	}
	tokenToUser := map[string]string{"tok1": "U1", "tok2": "U1"}

	pruneSet, missing := auditor.Audit(context.Background(), result, tokenToUser)

	assert.Equal(t, push.PruneSet{"U1": {"tok2"}}, pruneSet)
	assert.Zero(t, missing)
}

func TestAuditor_IgnoresTransientErrors(t *testing.T) {
	provider := &receiptProvider{receipts: map[string]push.Receipt{
		"tick-1": {
			Status:  push.ReceiptError,
			Details: &push.ErrorDetails{Error: push.ErrorMessageRateExceeded},
		},
	}}
	auditor := engine.NewAuditor(provider, 300, newTestLogger())

	result := &engine.DispatchResult{
		TicketIDs:     []string{"tick-1"},
		TicketToToken: map[string]string{"tick-1": "tok1"},
	}

	pruneSet, missing := auditor.Audit(context.Background(), result, map[string]string{"tok1": "U1"})

	assert.Empty(t, pruneSet)
	assert.Zero(t, missing)
}

func TestAuditor_CountsMissingReceipts(t *testing.T) {
	provider := &receiptProvider{receipts: map[string]push.Receipt{}}
	auditor := engine.NewAuditor(provider, 300, newTestLogger())

	result := &engine.DispatchResult{
		TicketIDs:     []string{"tick-1", "tick-2"},
		TicketToToken: map[string]string{},
	}

	pruneSet, missing := auditor.Audit(context.Background(), result, nil)

	assert.Empty(t, pruneSet)
	assert.Equal(t, 2, missing)
}

func TestAuditor_FetchFailureSkipsChunk(t *testing.T) {
	provider := &receiptProvider{fetchErr: errors.New("receipts endpoint down")}
	auditor := engine.NewAuditor(provider, 300, newTestLogger())

	result := &engine.DispatchResult{
		TicketIDs:     []string{"tick-1", "tick-2", "tick-3"},
		TicketToToken: map[string]string{},
	}

	pruneSet, missing := auditor.Audit(context.Background(), result, nil)

	assert.Empty(t, pruneSet)
	assert.Equal(t, 3, missing)
}

func TestAuditor_ChunksReceiptQueries(t *testing.T) {
	provider := &receiptProvider{receipts: map[string]push.Receipt{}}
	auditor := engine.NewAuditor(provider, 2, newTestLogger())

	result := &engine.DispatchResult{
		TicketIDs:     []string{"a", "b", "c", "d", "e"},
		TicketToToken: map[string]string{},
	}

	auditor.Audit(context.Background(), result, nil)

	require.Equal(t, 3, provider.queryCount)
	assert.Len(t, provider.queries[0], 2)
	assert.Len(t, provider.queries[2], 1)
}

func TestAuditor_SkipsUncorrelatableTickets(t *testing.T) {
	provider := &receiptProvider{receipts: map[string]push.Receipt{
		"tick-1": deadReceipt(),
	}}
	auditor := engine.NewAuditor(provider, 300, newTestLogger())

	// Ticket known, but no token mapping survived.
	result := &engine.DispatchResult{
		TicketIDs:     []string{"tick-1"},
		TicketToToken: map[string]string{},
	}

	pruneSet, _ := auditor.Audit(context.Background(), result, map[string]string{})

	assert.Empty(t, pruneSet)
}
