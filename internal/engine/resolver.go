package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// Resolver turns a list of user references into scope-grouped message stubs.
// A reference may be a user document id or the document's external uid; both
// are checked and duplicates collapse onto the resolved document identity.
type Resolver struct {
	store  dispatch.RegistryStore
	valid  func(token string) bool
	logger *slog.Logger
}

func NewResolver(store dispatch.RegistryStore, valid func(string) bool, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:  store,
		valid:  valid,
		logger: logger.With("component", "Resolver"),
	}
}

// Resolution is the resolver's output: one message-stub bucket per scope,
// plus the token-to-user correlation the auditor needs later. Buckets from
// different scopes are never merged.
type Resolution struct {
	MessagesByScope map[string][]push.Message
	TokenToUser     map[string]string
	Recipients      int
	Skipped         int
}

// Resolve never fails: an unresolvable or malformed user is skipped with a
// warning and resolution continues for the remaining references.
func (r *Resolver) Resolve(ctx context.Context, refs []string) *Resolution {
	res := &Resolution{
		MessagesByScope: make(map[string][]push.Message),
		TokenToUser:     make(map[string]string),
	}

	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}

		rec, err := r.store.Lookup(ctx, ref)
		if err != nil {
			res.Skipped++
			var malformed *dispatch.MalformedRegistryError
			switch {
			case errors.Is(err, dispatch.ErrUserNotFound):
				r.logger.Warn("recipient not found, skipping", "ref", ref)
			case errors.As(err, &malformed):
				r.logger.Warn("recipient registry malformed, skipping", "ref", ref, "user_id", malformed.UserID, "err", malformed.Err)
			default:
				r.logger.Warn("recipient lookup failed, skipping", "ref", ref, "err", err)
			}
			continue
		}

		if seen[rec.ID] {
			r.logger.Debug("duplicate recipient reference", "ref", ref, "user_id", rec.ID)
			continue
		}
		seen[rec.ID] = true

		if len(rec.Tokens) == 0 {
			res.Skipped++
			r.logger.Warn("recipient has no registered tokens", "user_id", rec.ID)
			continue
		}

		contributed := false
		for scope, tokens := range rec.Tokens {
			for _, token := range tokens {
				if token == "" || !r.valid(token) {
					r.logger.Warn("dropping malformed push token", "user_id", rec.ID, "scope", scope)
					continue
				}
				res.MessagesByScope[scope] = append(res.MessagesByScope[scope], push.Message{To: token, Scope: scope})
				res.TokenToUser[token] = rec.ID
				contributed = true
			}
		}

		if contributed {
			res.Recipients++
		} else {
			res.Skipped++
			r.logger.Warn("recipient has no valid tokens", "user_id", rec.ID)
		}
	}

	return res
}
