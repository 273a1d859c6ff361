package fcm_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/go-push-service/internal/platform/fcm"
	"github.com/fieldcrew/go-push-service/internal/platform/ledger"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendEach(ctx context.Context, messages []*messaging.Message) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFCMProvider_SuccessMintsOkReceipts(t *testing.T) {
	mockClient := new(MockClient)
	provider := fcm.NewProvider(mockClient, ledger.New(time.Hour), newTestLogger())
	ctx := context.Background()

	mockClient.On("SendEach", ctx, mock.Anything).Return(&messaging.BatchResponse{
		SuccessCount: 2,
		Responses: []*messaging.SendResponse{
			{Success: true, MessageID: "msg-1"},
			{Success: true, MessageID: "msg-2"},
		},
	}, nil)

	tickets, err := provider.SendBatch(ctx, []push.Message{
		{To: "token-1", Scope: "fcm", Title: "hi"},
		{To: "token-2", Scope: "fcm", Title: "hi"},
	})

	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, tk := range tickets {
		assert.Equal(t, push.TicketOK, tk.Status)
		assert.NotEmpty(t, tk.ID)
	}

	receipts, err := provider.GetReceipts(ctx, []string{tickets[0].ID, tickets[1].ID})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, push.ReceiptOK, receipts[tickets[0].ID].Status)
	mockClient.AssertExpectations(t)
}

func TestFCMProvider_TransportFailureIsRetryable(t *testing.T) {
	mockClient := new(MockClient)
	provider := fcm.NewProvider(mockClient, ledger.New(time.Hour), newTestLogger())
	ctx := context.Background()

	mockClient.On("SendEach", ctx, mock.Anything).Return(nil, errors.New("network down"))

	_, err := provider.SendBatch(ctx, []push.Message{{To: "token-1", Scope: "fcm"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport failed")
}

func TestFCMProvider_PerMessageFailureBecomesErrorTicket(t *testing.T) {
	mockClient := new(MockClient)
	provider := fcm.NewProvider(mockClient, ledger.New(time.Hour), newTestLogger())
	ctx := context.Background()

	// A plain error is neither NotRegistered nor InvalidArgument, so the
	// message is rejected at submission rather than marked for pruning.
	mockClient.On("SendEach", ctx, mock.Anything).Return(&messaging.BatchResponse{
		FailureCount: 1,
		Responses: []*messaging.SendResponse{
			{Success: false, Error: errors.New("internal error")},
		},
	}, nil)

	tickets, err := provider.SendBatch(ctx, []push.Message{{To: "token-1", Scope: "fcm"}})

	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, push.TicketError, tickets[0].Status)
	assert.Empty(t, tickets[0].ID)

	// Note: the DeviceNotRegistered classification relies on
	// messaging.IsRegistrationTokenNotRegistered, whose concrete error type
	// is internal to the Firebase SDK; the emulator integration suite covers
	// that branch.
}

func TestFCMProvider_ValidToken(t *testing.T) {
	provider := fcm.NewProvider(new(MockClient), ledger.New(time.Hour), newTestLogger())

	assert.True(t, provider.ValidToken("dXNlci10b2tlbi0xMjM0NTY3ODkwYWJjZGVm:APA91b"))
	assert.False(t, provider.ValidToken("short"))
	assert.False(t, provider.ValidToken("has spaces in the middle of the token value"))
	assert.False(t, provider.ValidToken(""))
}
