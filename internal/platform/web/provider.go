// Package web adapts Web Push (VAPID) to the engine's ticket/receipt port.
// A web "token" is the browser's marshaled subscription JSON; the endpoint
// URL inside it is the device identity. Outcomes are known synchronously and
// parked in the receipt ledger.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"

	"github.com/fieldcrew/go-push-service/internal/platform/ledger"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

type Config struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

type Provider struct {
	subscriber string
	privateKey string
	publicKey  string
	ledger     *ledger.Ledger
	httpClient webpush.HTTPClient
	logger     *slog.Logger
}

func NewProvider(cfg Config, receipts *ledger.Ledger, logger *slog.Logger) *Provider {
	return &Provider{
		subscriber: cfg.SubscriberEmail,
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		ledger:     receipts,
		httpClient: &http.Client{},
		logger:     logger.With("component", "WebPushProvider"),
	}
}

// SetHTTPClient swaps the transport; used by tests.
func (p *Provider) SetHTTPClient(client webpush.HTTPClient) {
	p.httpClient = client
}

// SendBatch pushes each subscription in turn. 404/410 from the push service
// mean the subscription is gone for good: the ticket is ok and its receipt
// carries DeviceNotRegistered so the subscription is pruned.
func (p *Provider) SendBatch(ctx context.Context, msgs []push.Message) ([]push.Ticket, error) {
	tickets := make([]push.Ticket, len(msgs))

	for i, msg := range msgs {
		sub, err := parseSubscription(msg.To)
		if err != nil {
			tickets[i] = push.Ticket{Status: push.TicketError, Message: err.Error()}
			continue
		}

		payload, err := json.Marshal(map[string]any{
			"notification": map[string]string{
				"title": msg.Title,
				"body":  msg.Body,
			},
			"data": msg.Data,
		})
		if err != nil {
			tickets[i] = push.Ticket{Status: push.TicketError, Message: err.Error()}
			continue
		}

		resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
			Subscriber:      p.subscriber,
			VAPIDPublicKey:  p.publicKey,
			VAPIDPrivateKey: p.privateKey,
			TTL:             60,
			HTTPClient:      p.httpClient,
		})
		if err != nil {
			p.logger.Warn("webpush transport failed", "endpoint", sub.Endpoint, "err", err)
			tickets[i] = push.Ticket{Status: push.TicketError, Message: err.Error()}
			continue
		}
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusCreated:
			id := uuid.NewString()
			p.ledger.Record(id, push.Receipt{Status: push.ReceiptOK})
			tickets[i] = push.Ticket{Status: push.TicketOK, ID: id}

		case http.StatusNotFound, http.StatusGone:
			id := uuid.NewString()
			p.ledger.Record(id, push.Receipt{
				Status:  push.ReceiptError,
				Message: fmt.Sprintf("push service returned %d", resp.StatusCode),
				Details: &push.ErrorDetails{Error: push.ErrorDeviceNotRegistered},
			})
			tickets[i] = push.Ticket{Status: push.TicketOK, ID: id}

		case http.StatusTooManyRequests:
			tickets[i] = push.Ticket{
				Status:  push.TicketError,
				Message: "push service rate limit",
				Details: &push.ErrorDetails{Error: push.ErrorMessageRateExceeded},
			}

		default:
			p.logger.Warn("webpush rejected", "status", resp.StatusCode, "endpoint", sub.Endpoint)
			tickets[i] = push.Ticket{
				Status:  push.TicketError,
				Message: fmt.Sprintf("push service returned %d", resp.StatusCode),
			}
		}
	}

	return tickets, nil
}

// GetReceipts answers from the ledger the synchronous sends wrote into.
func (p *Provider) GetReceipts(_ context.Context, ticketIDs []string) (map[string]push.Receipt, error) {
	return p.ledger.Take(ticketIDs), nil
}

// ValidToken accepts a complete marshaled subscription: https endpoint plus
// both encryption keys.
func (p *Provider) ValidToken(token string) bool {
	_, err := parseSubscription(token)
	return err == nil
}

func parseSubscription(token string) (*webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return nil, fmt.Errorf("token is not subscription JSON: %w", err)
	}
	if !strings.HasPrefix(sub.Endpoint, "https://") {
		return nil, fmt.Errorf("subscription endpoint is not https")
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, fmt.Errorf("subscription is missing encryption keys")
	}
	return &sub, nil
}
