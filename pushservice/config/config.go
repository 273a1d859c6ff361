// Package config carries the service configuration: an embedded YAML file
// mapped into a clean Config struct, then environment overrides and final
// validation applied in a second stage.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// Provider kinds the binary can be wired with.
const (
	ProviderGateway = "gateway"
	ProviderFCM     = "fcm"
	ProviderAPNS    = "apns"
	ProviderWebPush = "webpush"
)

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type GatewayConfig struct {
	BaseURL   string
	AuthToken string
}

type APNSConfig struct {
	KeyID        string
	TeamID       string
	BundleID     string
	P8KeyContent string
}

type VapidConfig struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
}

// EngineConfig tunes the dispatch pipeline. Zero values fall back to the
// engine's own defaults.
type EngineConfig struct {
	ChunkSize        int
	ReceiptChunkSize int
	MaxAttempts      int
	InitialBackoff   time.Duration
	ReceiptDelay     time.Duration
	PruneConcurrency int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int
	UsersCollection        string

	ProviderKind string
	Gateway      GatewayConfig
	APNS         APNSConfig
	Vapid        VapidConfig
	Engine       EngineConfig

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig

	TopicID              string
	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	overrideString := func(key string, dest *string) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*dest = val
		}
	}

	// 1. Apply Environment Overrides
	overrideString("PROJECT_ID", &cfg.ProjectID)
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	overrideString("SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.SubscriptionDLQTopicID)
	overrideString("USERS_COLLECTION", &cfg.UsersCollection)
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Provider Overrides
	overrideString("PROVIDER_KIND", &cfg.ProviderKind)
	overrideString("GATEWAY_BASE_URL", &cfg.Gateway.BaseURL)
	overrideString("GATEWAY_AUTH_TOKEN", &cfg.Gateway.AuthToken)
	overrideString("APNS_KEY_ID", &cfg.APNS.KeyID)
	overrideString("APNS_TEAM_ID", &cfg.APNS.TeamID)
	overrideString("APNS_BUNDLE_ID", &cfg.APNS.BundleID)
	overrideString("APNS_P8_KEY", &cfg.APNS.P8KeyContent)
	overrideString("VAPID_PUBLIC_KEY", &cfg.Vapid.PublicKey)
	overrideString("VAPID_PRIVATE_KEY", &cfg.Vapid.PrivateKey)
	overrideString("VAPID_SUB_EMAIL", &cfg.Vapid.SubscriberEmail)

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	overrideString("REDIS_PASSWORD", &cfg.Redis.Password)
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or SUBSCRIPTION_ID env var)")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.UsersCollection == "" {
		cfg.UsersCollection = "users"
	}

	switch cfg.ProviderKind {
	case "":
		cfg.ProviderKind = ProviderGateway
	case ProviderGateway, ProviderFCM, ProviderAPNS, ProviderWebPush:
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.ProviderKind)
	}
	if cfg.ProviderKind == ProviderGateway && cfg.Gateway.BaseURL == "" {
		return nil, fmt.Errorf("gateway.base_url is required for the gateway provider")
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
