// Package fcm adapts Firebase Cloud Messaging to the engine's ticket/receipt
// port. FCM reports delivery outcomes synchronously, so each send mints a
// ticket whose receipt is answered immediately from the in-process ledger.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"firebase.google.com/go/v4/messaging"
	"github.com/google/uuid"

	"github.com/fieldcrew/go-push-service/internal/platform/ledger"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// MessagingClient is the subset of the Firebase Messaging API we use,
// extracted so unit tests can mock the client.
type MessagingClient interface {
	SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error)
}

// FCM registration tokens are long opaque strings; anything short or
// containing whitespace is garbage.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9:_\-]{32,}$`)

type Provider struct {
	client MessagingClient
	ledger *ledger.Ledger
	logger *slog.Logger
}

func NewProvider(client MessagingClient, receipts *ledger.Ledger, logger *slog.Logger) *Provider {
	return &Provider{
		client: client,
		ledger: receipts,
		logger: logger.With("component", "FCMProvider"),
	}
}

// SendBatch sends each message individually via the batch endpoint. A dead
// token still gets an ok ticket: its death is reported through the receipt,
// which is what routes it into the prune path. A whole-call transport error
// returns an error so the dispatcher's retry schedule owns recovery.
func (p *Provider) SendBatch(ctx context.Context, msgs []push.Message) ([]push.Ticket, error) {
	if len(msgs) == 0 {
		return nil, nil
	}

	batch := make([]*messaging.Message, len(msgs))
	for i, msg := range msgs {
		batch[i] = &messaging.Message{
			Token: msg.To,
			Notification: &messaging.Notification{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Data: stringifyData(msg.Data),
			Android: &messaging.AndroidConfig{
				Notification: &messaging.AndroidNotification{Sound: msg.Sound},
			},
		}
	}

	br, err := p.client.SendEach(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("fcm transport failed: %w", err)
	}

	tickets := make([]push.Ticket, len(msgs))
	for i, resp := range br.Responses {
		switch {
		case resp.Success:
			id := uuid.NewString()
			p.ledger.Record(id, push.Receipt{Status: push.ReceiptOK})
			tickets[i] = push.Ticket{Status: push.TicketOK, ID: id}

		case messaging.IsRegistrationTokenNotRegistered(resp.Error) || messaging.IsInvalidArgument(resp.Error):
			id := uuid.NewString()
			p.ledger.Record(id, push.Receipt{
				Status:  push.ReceiptError,
				Message: resp.Error.Error(),
				Details: &push.ErrorDetails{Error: push.ErrorDeviceNotRegistered},
			})
			tickets[i] = push.Ticket{Status: push.TicketOK, ID: id}

		default:
			p.logger.Warn("fcm rejected message", "err", resp.Error)
			tickets[i] = push.Ticket{
				Status:  push.TicketError,
				Message: resp.Error.Error(),
			}
		}
	}
	return tickets, nil
}

// GetReceipts answers from the ledger the synchronous sends wrote into.
func (p *Provider) GetReceipts(_ context.Context, ticketIDs []string) (map[string]push.Receipt, error) {
	return p.ledger.Take(ticketIDs), nil
}

func (p *Provider) ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

func stringifyData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprint(v)
	}
	return out
}
