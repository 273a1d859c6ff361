// Package firestore implements the token registry on Google Cloud Firestore.
// One document per user holds a `tokens` field mapping scope name to an
// ordered list of push tokens. Every mutation is a scoped array element
// operation on `tokens.<scope>`, never a whole-map or whole-document write,
// so concurrent registration and pruning cannot clobber each other.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

const (
	tokensField      = "tokens"
	externalUIDField = "externalUid"
)

type RegistryStore struct {
	client     *firestore.Client
	collection string
}

func NewRegistryStore(client *firestore.Client, collection string) *RegistryStore {
	if collection == "" {
		collection = "users"
	}
	return &RegistryStore{client: client, collection: collection}
}

// Lookup resolves a user reference, first as a document id, then as the
// document's externalUid field. Duplicated references collapse naturally
// because both paths land on the same document identity.
func (s *RegistryStore) Lookup(ctx context.Context, ref string) (*push.Recipient, error) {
	snap, err := s.client.Collection(s.collection).Doc(ref).Get(ctx)
	if err == nil {
		return decodeRecipient(snap)
	}
	if status.Code(err) != codes.NotFound {
		return nil, fmt.Errorf("registry read failed for %q: %w", ref, err)
	}

	iter := s.client.Collection(s.collection).
		Where(externalUIDField, "==", ref).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err = iter.Next()
	if err == iterator.Done {
		return nil, dispatch.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry query failed for %q: %w", ref, err)
	}
	return decodeRecipient(snap)
}

// AddToken appends a token to one scope's list if not already present.
// ArrayUnion gives both the dedupe and the creation of a missing scope list.
func (s *RegistryStore) AddToken(ctx context.Context, userID, scope, token string) error {
	_, err := s.client.Collection(s.collection).Doc(userID).Update(ctx, []firestore.Update{
		{
			FieldPath: firestore.FieldPath{tokensField, scope},
			Value:     firestore.ArrayUnion(token),
		},
	})
	if status.Code(err) == codes.NotFound {
		return dispatch.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to register token for %q: %w", userID, err)
	}
	return nil
}

// RemoveTokens issues one atomic multi-field update: an ArrayRemove on each
// flagged scope's list. Removing an absent token is a no-op by ArrayRemove
// semantics; a vanished user document is a no-op too.
func (s *RegistryStore) RemoveTokens(ctx context.Context, userID string, tokensByScope map[string][]string) error {
	if len(tokensByScope) == 0 {
		return nil
	}

	updates := make([]firestore.Update, 0, len(tokensByScope))
	for scope, tokens := range tokensByScope {
		values := make([]interface{}, len(tokens))
		for i, token := range tokens {
			values[i] = token
		}
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{tokensField, scope},
			Value:     firestore.ArrayRemove(values...),
		})
	}

	_, err := s.client.Collection(s.collection).Doc(userID).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to prune tokens for %q: %w", userID, err)
	}
	return nil
}

// decodeRecipient validates the registry shape at the read boundary. A
// document whose tokens field is not a scope-to-string-list map yields a
// typed MalformedRegistryError; structure is never inferred downstream.
func decodeRecipient(snap *firestore.DocumentSnapshot) (*push.Recipient, error) {
	data := snap.Data()

	rec := &push.Recipient{ID: snap.Ref.ID, Tokens: map[string][]string{}}
	if uid, ok := data[externalUIDField].(string); ok {
		rec.ExternalUID = uid
	}

	raw, present := data[tokensField]
	if !present || raw == nil {
		return rec, nil
	}

	byScope, ok := raw.(map[string]interface{})
	if !ok {
		return nil, &dispatch.MalformedRegistryError{
			UserID: snap.Ref.ID,
			Err:    fmt.Errorf("tokens field is %T, want a map of scopes", raw),
		}
	}

	for scope, rawList := range byScope {
		list, ok := rawList.([]interface{})
		if !ok {
			return nil, &dispatch.MalformedRegistryError{
				UserID: snap.Ref.ID,
				Err:    fmt.Errorf("scope %q is %T, want a list of tokens", scope, rawList),
			}
		}
		tokens := make([]string, 0, len(list))
		for _, item := range list {
			token, ok := item.(string)
			if !ok {
				return nil, &dispatch.MalformedRegistryError{
					UserID: snap.Ref.ID,
					Err:    fmt.Errorf("scope %q holds a %T, want string tokens", scope, item),
				}
			}
			tokens = append(tokens, token)
		}
		rec.Tokens[scope] = tokens
	}

	return rec, nil
}
