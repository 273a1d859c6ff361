// Package dispatch defines the ports the engine is wired against: the push
// provider and the token registry.
package dispatch

import (
	"context"

	"github.com/fieldcrew/go-push-service/pkg/push"
)

// Provider is the outbound contract with the external push-delivery service.
// SendBatch submits one single-scope batch and returns tickets positionally
// aligned with the messages; GetReceipts later exchanges ticket ids for
// delivery outcomes.
type Provider interface {
	SendBatch(ctx context.Context, msgs []push.Message) ([]push.Ticket, error)

	GetReceipts(ctx context.Context, ticketIDs []string) (map[string]push.Receipt, error)

	// ValidToken is the provider's token-format predicate. Tokens that fail
	// it are dropped during resolution and never sent.
	ValidToken(token string) bool
}

// RegistryStore is the persisted per-user token registry.
// All mutations are scoped element operations on a single scope's token
// list, never whole-map or whole-document writes, so concurrent
// registration and pruning cannot clobber each other.
type RegistryStore interface {
	// Lookup resolves a user reference (document id or external uid) to
	// the user's registry entry. A missing user yields ErrUserNotFound; an
	// entry that is not a scope-to-token-list mapping yields
	// *MalformedRegistryError.
	Lookup(ctx context.Context, ref string) (*push.Recipient, error)

	// AddToken appends a token to one scope's list if not already present.
	AddToken(ctx context.Context, userID, scope, token string) error

	// RemoveTokens removes the given tokens from their scope lists in one
	// atomic multi-field update per user. Removing an absent token, or
	// pruning a user document that has vanished, is a no-op.
	RemoveTokens(ctx context.Context, userID string, tokensByScope map[string][]string) error
}
