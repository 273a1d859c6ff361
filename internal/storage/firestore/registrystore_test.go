//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fs "github.com/fieldcrew/go-push-service/internal/storage/firestore"
	"github.com/fieldcrew/go-push-service/pkg/dispatch"
)

func setupSuite(t *testing.T) (context.Context, *firestore.Client, *fs.RegistryStore) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	projectID := "test-registry-store"
	conn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	client, err := firestore.NewClient(ctx, projectID, conn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return ctx, client, fs.NewRegistryStore(client, "users")
}

func TestRegistryStore_Integration(t *testing.T) {
	ctx, client, store := setupSuite(t)

	t.Run("Token lifecycle with scoped removal", func(t *testing.T) {
		userID := "user-lifecycle"
		_, err := client.Collection("users").Doc(userID).Set(ctx, map[string]any{
			"externalUid": "auth-uid-lifecycle",
		})
		require.NoError(t, err)

		require.NoError(t, store.AddToken(ctx, userID, "scopeA", "tok1"))
		require.NoError(t, store.AddToken(ctx, userID, "scopeA", "tok2"))
		require.NoError(t, store.AddToken(ctx, userID, "scopeB", "tok3"))
		// Re-registering an existing token must not duplicate it.
		require.NoError(t, store.AddToken(ctx, userID, "scopeA", "tok1"))

		rec, err := store.Lookup(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok1", "tok2"}, rec.Tokens["scopeA"])
		assert.Equal(t, []string{"tok3"}, rec.Tokens["scopeB"])

		// Prune tok2 from scopeA only; tok1 and tok3 stay untouched.
		require.NoError(t, store.RemoveTokens(ctx, userID, map[string][]string{
			"scopeA": {"tok2"},
		}))

		rec, err = store.Lookup(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok1"}, rec.Tokens["scopeA"])
		assert.Equal(t, []string{"tok3"}, rec.Tokens["scopeB"])
	})

	t.Run("Lookup by external uid resolves the same document", func(t *testing.T) {
		userID := "user-external"
		_, err := client.Collection("users").Doc(userID).Set(ctx, map[string]any{
			"externalUid": "auth-uid-42",
			"tokens":      map[string]any{"scopeA": []any{"tok-x"}},
		})
		require.NoError(t, err)

		byID, err := store.Lookup(ctx, userID)
		require.NoError(t, err)
		byUID, err := store.Lookup(ctx, "auth-uid-42")
		require.NoError(t, err)

		assert.Equal(t, byID.ID, byUID.ID)
		assert.Equal(t, "auth-uid-42", byUID.ExternalUID)
	})

	t.Run("Missing user yields ErrUserNotFound", func(t *testing.T) {
		_, err := store.Lookup(ctx, "nobody-home")
		assert.ErrorIs(t, err, dispatch.ErrUserNotFound)
	})

	t.Run("Malformed registry shape yields typed error", func(t *testing.T) {
		userID := "user-malformed"
		_, err := client.Collection("users").Doc(userID).Set(ctx, map[string]any{
			"tokens": "this-should-be-a-map",
		})
		require.NoError(t, err)

		_, err = store.Lookup(ctx, userID)
		var malformed *dispatch.MalformedRegistryError
		require.True(t, errors.As(err, &malformed))
		assert.Equal(t, userID, malformed.UserID)
	})

	t.Run("Removing absent tokens is a no-op", func(t *testing.T) {
		userID := "user-idempotent"
		_, err := client.Collection("users").Doc(userID).Set(ctx, map[string]any{
			"tokens": map[string]any{"scopeA": []any{"tok1"}},
		})
		require.NoError(t, err)

		require.NoError(t, store.RemoveTokens(ctx, userID, map[string][]string{
			"scopeA": {"never-registered"},
		}))

		rec, err := store.Lookup(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok1"}, rec.Tokens["scopeA"])
	})

	t.Run("Removing from a vanished user is a no-op", func(t *testing.T) {
		err := store.RemoveTokens(ctx, "deleted-user", map[string][]string{
			"scopeA": {"tok1"},
		})
		assert.NoError(t, err)
	})

	t.Run("AddToken for unknown user yields ErrUserNotFound", func(t *testing.T) {
		err := store.AddToken(ctx, "unknown-user", "scopeA", "tok1")
		assert.ErrorIs(t, err, dispatch.ErrUserNotFound)
	})
}
