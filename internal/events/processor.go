package events

import (
	"context"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/fieldcrew/go-push-service/pkg/push"
)

// Notifier runs the dispatch pipeline for one notification event.
type Notifier interface {
	Notify(ctx context.Context, ev push.Event) *push.Outcome
}

// NewProcessor routes validated change events to their handlers and hands
// the computed notifications to the engine.
//
// The processor ALWAYS returns nil: a notification failure must never nack
// the originating document change back onto the trigger subscription. The
// engine's Outcome is logged, not propagated. The subscription is
// at-least-once and no dedup key exists, so a redelivered change means a
// duplicate notification.
func NewProcessor(notifier Notifier, logger *slog.Logger) messagepipeline.StreamProcessor[ChangeEvent] {
	procLogger := logger.With("component", "Processor")

	return func(ctx context.Context, original messagepipeline.Message, ce *ChangeEvent) error {
		notifications := EventsForChange(ce)
		if len(notifications) == 0 {
			procLogger.Debug("change triggers no notifications",
				"kind", ce.Kind, "pubsub_msg_id", original.ID)
			return nil
		}

		for _, ev := range notifications {
			outcome := notifier.Notify(ctx, ev)
			procLogger.Info("notification dispatched",
				"kind", ce.Kind,
				"pubsub_msg_id", original.ID,
				"recipients", outcome.Recipients,
				"messages", outcome.Messages,
				"dropped_chunks", outcome.DroppedChunks,
				"pruned_tokens", outcome.PrunedTokens,
			)
		}
		return nil
	}
}
