package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
)

// ChangeEventTransformer is the dataflow transformer that unmarshals and
// validates a raw trigger payload into a ChangeEvent. Malformed envelopes
// return skip=true with the error so the streaming service routes them to
// the DLQ instead of poisoning the workers.
func ChangeEventTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*ChangeEvent, bool, error) {
	var ce ChangeEvent
	if err := json.Unmarshal(msg.Payload, &ce); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal change event from message %s: %w", msg.ID, err)
	}
	if err := ce.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid change event in message %s: %w", msg.ID, err)
	}
	return &ce, false, nil
}
