package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/fieldcrew/go-push-service/internal/api"
	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// --- Mocks ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Lookup(ctx context.Context, ref string) (*push.Recipient, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*push.Recipient), args.Error(1)
}

func (m *mockStore) AddToken(ctx context.Context, userID, scope, token string) error {
	return m.Called(ctx, userID, scope, token).Error(0)
}

func (m *mockStore) RemoveTokens(ctx context.Context, userID string, tokensByScope map[string][]string) error {
	return m.Called(ctx, userID, tokensByScope).Error(0)
}

func setupAPI(t *testing.T) (*api.TokenAPI, *mockStore) {
	store := new(mockStore)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	valid := func(token string) bool { return strings.HasPrefix(token, "PushToken[") }
	return api.NewTokenAPI(store, valid, logger), store
}

// Inject the user handle the auth middleware would have supplied.
func withUser(req *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUser(req.Context(), userID, userID, "")
	return req.WithContext(ctx)
}

func body(t *testing.T, scope, token string) *bytes.Reader {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"scope": scope, "token": token})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(payload)
}

// --- Tests ---

func TestRegisterToken(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		apiHandler, store := setupAPI(t)
		req := withUser(httptest.NewRequest("PUT", "/tokens", body(t, "scopeA", "PushToken[abc]")), "U1")
		w := httptest.NewRecorder()

		store.On("AddToken", mock.Anything, "U1", "scopeA", "PushToken[abc]").Return(nil)

		apiHandler.RegisterToken(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		store.AssertExpectations(t)
	})

	t.Run("Rejects Invalid Token Format", func(t *testing.T) {
		apiHandler, store := setupAPI(t)
		req := withUser(httptest.NewRequest("PUT", "/tokens", body(t, "scopeA", "garbage")), "U1")
		w := httptest.NewRecorder()

		apiHandler.RegisterToken(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		store.AssertNotCalled(t, "AddToken")
	})

	t.Run("Rejects Missing Scope", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		req := withUser(httptest.NewRequest("PUT", "/tokens", body(t, "", "PushToken[abc]")), "U1")
		w := httptest.NewRecorder()

		apiHandler.RegisterToken(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown User Is 404", func(t *testing.T) {
		apiHandler, store := setupAPI(t)
		req := withUser(httptest.NewRequest("PUT", "/tokens", body(t, "scopeA", "PushToken[abc]")), "ghost")
		w := httptest.NewRecorder()

		store.On("AddToken", mock.Anything, "ghost", "scopeA", "PushToken[abc]").Return(dispatch.ErrUserNotFound)

		apiHandler.RegisterToken(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("No Auth Is 401", func(t *testing.T) {
		apiHandler, _ := setupAPI(t)
		req := httptest.NewRequest("PUT", "/tokens", body(t, "scopeA", "PushToken[abc]"))
		w := httptest.NewRecorder()

		apiHandler.RegisterToken(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUnregisterToken(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		apiHandler, store := setupAPI(t)
		req := withUser(httptest.NewRequest("DELETE", "/tokens", body(t, "scopeA", "PushToken[abc]")), "U1")
		w := httptest.NewRecorder()

		store.On("RemoveTokens", mock.Anything, "U1", map[string][]string{"scopeA": {"PushToken[abc]"}}).Return(nil)

		apiHandler.UnregisterToken(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		store.AssertExpectations(t)
	})

	t.Run("Storage Failure Is Still 204 (Idempotent)", func(t *testing.T) {
		apiHandler, store := setupAPI(t)
		req := withUser(httptest.NewRequest("DELETE", "/tokens", body(t, "scopeA", "PushToken[abc]")), "U1")
		w := httptest.NewRecorder()

		store.On("RemoveTokens", mock.Anything, "U1", mock.Anything).Return(assert.AnError)

		apiHandler.UnregisterToken(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}
