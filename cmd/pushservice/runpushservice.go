package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/fieldcrew/go-push-service/internal/engine"
	"github.com/fieldcrew/go-push-service/internal/platform/apns"
	"github.com/fieldcrew/go-push-service/internal/platform/fcm"
	"github.com/fieldcrew/go-push-service/internal/platform/gateway"
	"github.com/fieldcrew/go-push-service/internal/platform/ledger"
	"github.com/fieldcrew/go-push-service/internal/platform/web"

	"github.com/fieldcrew/go-push-service/internal/storage/cache"
	fsStore "github.com/fieldcrew/go-push-service/internal/storage/firestore"
	"github.com/fieldcrew/go-push-service/pkg/dispatch"

	"github.com/fieldcrew/go-push-service/pushservice"
	"github.com/fieldcrew/go-push-service/pushservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-service")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// --- Registry (Decorated) ---
	var store dispatch.RegistryStore = fsStore.NewRegistryStore(fsClient, cfg.UsersCollection)
	logger.Info("Registry initialized", "type", "firestore", "collection", cfg.UsersCollection)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		store = cache.NewCachedRegistryStore(store, redisClient, 24*time.Hour)
		logger.Info("Registry upgraded", "type", "redis_cached_firestore")
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, _ := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	authMiddleware, _ := middleware.NewJWKSAuthMiddleware(jwksURL, logger)

	// --- Provider ---
	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("Provider setup failed", "kind", cfg.ProviderKind, "err", err)
		os.Exit(1)
	}
	logger.Info("Push provider initialized", "kind", cfg.ProviderKind)

	// --- Engine ---
	eng := engine.New(store, provider, engine.Config{
		ChunkSize:        cfg.Engine.ChunkSize,
		ReceiptChunkSize: cfg.Engine.ReceiptChunkSize,
		MaxAttempts:      cfg.Engine.MaxAttempts,
		InitialBackoff:   cfg.Engine.InitialBackoff,
		ReceiptDelay:     cfg.Engine.ReceiptDelay,
		PruneConcurrency: cfg.Engine.PruneConcurrency,
	}, logger)

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer setup failed", "err", err)
		os.Exit(1)
	}

	service, err := pushservice.New(
		cfg,
		consumer,
		eng,
		store,
		provider.ValidToken,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newProvider builds the configured push provider. The synchronous SDK
// providers share one receipt ledger; receipts older than an hour are
// assumed collected or abandoned.
func newProvider(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dispatch.Provider, error) {
	switch cfg.ProviderKind {
	case config.ProviderGateway:
		return gateway.NewClient(gateway.Config{
			BaseURL:   cfg.Gateway.BaseURL,
			AuthToken: cfg.Gateway.AuthToken,
		}, logger), nil

	case config.ProviderFCM:
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
		}
		messaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create FCM messaging client: %w", err)
		}
		return fcm.NewProvider(messaging, ledger.New(time.Hour), logger), nil

	case config.ProviderAPNS:
		return apns.NewProvider(apns.Config{
			KeyID:        cfg.APNS.KeyID,
			TeamID:       cfg.APNS.TeamID,
			BundleID:     cfg.APNS.BundleID,
			P8KeyContent: cfg.APNS.P8KeyContent,
		}, ledger.New(time.Hour), logger)

	case config.ProviderWebPush:
		if cfg.Vapid.PrivateKey == "" || cfg.Vapid.PublicKey == "" {
			return nil, fmt.Errorf("VAPID keys are required for the webpush provider")
		}
		return web.NewProvider(web.Config{
			PublicKey:       cfg.Vapid.PublicKey,
			PrivateKey:      cfg.Vapid.PrivateKey,
			SubscriberEmail: cfg.Vapid.SubscriberEmail,
		}, ledger.New(time.Hour), logger), nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.ProviderKind)
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, slog.New(slog.DiscardHandler),
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
