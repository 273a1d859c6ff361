package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldcrew/go-push-service/internal/events"
)

func TestChangeEventTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	validPayload, err := json.Marshal(events.ChangeEvent{
		Kind: events.KindTaskCreated,
		Task: &events.Task{ID: "t-1", Title: "Boiler check", Assignees: []string{"U1"}},
	})
	require.NoError(t, err)

	missingDocPayload, err := json.Marshal(map[string]any{"kind": "task.updated"})
	require.NoError(t, err)

	testCases := []struct {
		name                  string
		inputMessage          *messagepipeline.Message
		expectError           bool
		expectedErrorContains string
	}{
		{
			name: "Happy Path - Valid Envelope",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-1", Payload: validPayload},
			},
			expectError: false,
		},
		{
			name: "Failure - Malformed JSON",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-2", Payload: []byte("not-json")},
			},
			expectError:           true,
			expectedErrorContains: "failed to unmarshal change event",
		},
		{
			name: "Failure - Unknown Kind",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-3", Payload: []byte(`{"kind":"task.exploded"}`)},
			},
			expectError:           true,
			expectedErrorContains: "unknown change kind",
		},
		{
			name: "Failure - Update Without Prior State",
			inputMessage: &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-4", Payload: missingDocPayload},
			},
			expectError:           true,
			expectedErrorContains: "needs both task and taskBefore",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ce, skip, err := events.ChangeEventTransformer(ctx, tc.inputMessage)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
			} else {
				require.NoError(t, err)
				assert.False(t, skip)
				assert.Equal(t, events.KindTaskCreated, ce.Kind)
			}
		})
	}
}
