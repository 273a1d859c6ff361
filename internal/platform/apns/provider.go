// Package apns adapts the Apple Push Notification service to the engine's
// ticket/receipt port. The APNs HTTP/2 API is unary, one request per token;
// there is no multicast endpoint, so a batch is a sequential loop. Outcomes
// are known synchronously and parked in the receipt ledger.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/fieldcrew/go-push-service/internal/platform/ledger"
	"github.com/fieldcrew/go-push-service/pkg/push"
	"github.com/google/uuid"
)

// APNSClient is the subset of apns2.Client we use, extracted for mocking.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Device tokens are hex strings, 64 chars for classic tokens and longer for
// newer formats.
var tokenPattern = regexp.MustCompile(`^[0-9a-fA-F]{64,200}$`)

// Config holds the credentials required to sign APNs requests.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 signing key file.
	P8KeyContent string
}

type Provider struct {
	client APNSClient
	topic  string
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewProvider parses the P8 key immediately so bad credentials fail at
// startup, not on the first send.
func NewProvider(cfg Config, receipts *ledger.Ledger, logger *slog.Logger) (*Provider, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}).Production()

	return &Provider{
		client: client,
		topic:  cfg.BundleID,
		ledger: receipts,
		logger: logger.With("component", "APNSProvider"),
	}, nil
}

// NewProviderWithClient wires a pre-built client; used by tests.
func NewProviderWithClient(client APNSClient, topic string, receipts *ledger.Ledger, logger *slog.Logger) *Provider {
	return &Provider{
		client: client,
		topic:  topic,
		ledger: receipts,
		logger: logger.With("component", "APNSProvider"),
	}
}

// SendBatch pushes each message in turn. A rejected-as-unregistered token
// still earns an ok ticket whose receipt carries DeviceNotRegistered, which
// is what routes it into the prune path.
func (p *Provider) SendBatch(ctx context.Context, msgs []push.Message) ([]push.Ticket, error) {
	tickets := make([]push.Ticket, len(msgs))

	for i, msg := range msgs {
		builder := payload.NewPayload().
			AlertTitle(msg.Title).
			AlertBody(msg.Body).
			Sound(msg.Sound)
		for k, v := range msg.Data {
			builder.Custom(k, v)
		}

		res, err := p.client.PushWithContext(ctx, &apns2.Notification{
			DeviceToken: msg.To,
			Topic:       p.topic,
			Payload:     builder,
		})
		if err != nil {
			p.logger.Warn("apns transport failed", "err", err)
			tickets[i] = push.Ticket{Status: push.TicketError, Message: err.Error()}
			continue
		}

		switch {
		case res.Sent():
			id := uuid.NewString()
			p.ledger.Record(id, push.Receipt{Status: push.ReceiptOK})
			tickets[i] = push.Ticket{Status: push.TicketOK, ID: id}

		case res.Reason == apns2.ReasonUnregistered ||
			res.Reason == apns2.ReasonBadDeviceToken ||
			res.Reason == apns2.ReasonDeviceTokenNotForTopic:
			id := uuid.NewString()
			p.ledger.Record(id, push.Receipt{
				Status:  push.ReceiptError,
				Message: res.Reason,
				Details: &push.ErrorDetails{Error: push.ErrorDeviceNotRegistered},
			})
			tickets[i] = push.Ticket{Status: push.TicketOK, ID: id}

		case res.Reason == apns2.ReasonTooManyRequests:
			tickets[i] = push.Ticket{
				Status:  push.TicketError,
				Message: res.Reason,
				Details: &push.ErrorDetails{Error: push.ErrorMessageRateExceeded},
			}

		default:
			// Config-side rejections (TopicDisallowed, PayloadEmpty): the
			// token may be fine, so it is not flagged for pruning.
			p.logger.Warn("apns rejected notification", "reason", res.Reason, "status", res.StatusCode)
			tickets[i] = push.Ticket{Status: push.TicketError, Message: res.Reason}
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
