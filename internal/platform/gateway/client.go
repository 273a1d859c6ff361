// Package gateway is the HTTP client for the push gateway's native batch
// protocol: batched sends answered with tickets, and a receipt endpoint the
// tickets are later exchanged on.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/fieldcrew/go-push-service/pkg/push"
)

const (
	sendPath    = "/v1/push/send"
	receiptPath = "/v1/push/receipts"
	scopeHeader = "X-Push-Scope"
)

// tokenPattern is the gateway's token grammar.
var tokenPattern = regexp.MustCompile(`^PushToken\[[A-Za-z0-9._-]+\]$`)

type Config struct {
	BaseURL   string
	AuthToken string
}

type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "GatewayClient"),
	}
}

type sendRequest struct {
	Messages []push.Message `json:"messages"`
}

type sendResponse struct {
	Tickets []push.Ticket `json:"tickets"`
}

type receiptRequest struct {
	IDs []string `json:"ids"`
}

type receiptResponse struct {
	Receipts map[string]push.Receipt `json:"receipts"`
}

// SendBatch submits one single-scope batch. The batch's scope travels as a
// header, never in the message bodies; a mixed-scope batch is rejected before
// anything goes on the wire.
func (c *Client) SendBatch(ctx context.Context, msgs []push.Message) ([]push.Ticket, error) {
	if len(msgs) == 0 {
		return nil, nil
	}
	scope := msgs[0].Scope
	for _, msg := range msgs[1:] {
		if msg.Scope != scope {
			return nil, fmt.Errorf("batch mixes scopes %q and %q", scope, msg.Scope)
		}
	}

	var resp sendResponse
	if err := c.post(ctx, sendPath, scope, sendRequest{Messages: msgs}, &resp); err != nil {
		return nil, err
	}
	return resp.Tickets, nil
}

// GetReceipts exchanges ticket ids for delivery receipts. Ids the gateway has
// no receipt for yet are absent from the result.
func (c *Client) GetReceipts(ctx context.Context, ticketIDs []string) (map[string]push.Receipt, error) {
	if len(ticketIDs) == 0 {
		return map[string]push.Receipt{}, nil
	}
	var resp receiptResponse
	if err := c.post(ctx, receiptPath, "", receiptRequest{IDs: ticketIDs}, &resp); err != nil {
		return nil, err
	}
	return resp.Receipts, nil
}

// ValidToken reports whether the token matches the gateway's token grammar.
func (c *Client) ValidToken(token string) bool {
	return tokenPattern.MatchString(token)
}

func (c *Client) post(ctx context.Context, path, scope string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if scope != "" {
		req.Header.Set(scopeHeader, scope)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
