// Package pushservice assembles the push dispatch service: the streaming
// ingestion pipeline, the token registration API, and the shared HTTP server.
package pushservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/fieldcrew/go-push-service/internal/api"
	"github.com/fieldcrew/go-push-service/internal/events"
	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pushservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[events.ChangeEvent]
	logger          *slog.Logger
}

// New assembles the service from its already-constructed collaborators: the
// Pub/Sub consumer, the dispatch engine, and the token registry.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	notifier events.Notifier,
	store dispatch.RegistryStore,
	validToken func(string) bool,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Pipeline
	streamingService, err := messagepipeline.NewStreamingService[events.ChangeEvent](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		consumer,
		events.ChangeEventTransformer,
		events.NewProcessor(notifier, logger),
		slog.New(slog.DiscardHandler),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 3. API (Token Registration)
	tokenAPI := api.NewTokenAPI(store, validToken, logger)

	// Register Routes
	mux := baseServer.Mux()

	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	// OPTIONS
	mux.Handle("OPTIONS /tokens", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	// PUT /tokens and DELETE /tokens (Protected)
	registerHandler := http.HandlerFunc(tokenAPI.RegisterToken)
	mux.Handle("PUT /tokens", corsMiddleware(authMiddleware(registerHandler)))

	unregisterHandler := http.HandlerFunc(tokenAPI.UnregisterToken)
	mux.Handle("DELETE /tokens", corsMiddleware(authMiddleware(unregisterHandler)))

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
