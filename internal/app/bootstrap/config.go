package bootstrap

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/skillforge/marketplace/internal/domain"
)

type Config struct {
	ServiceID string
	Env       string

	HTTPPort int
	GRPCPort int

	DatabaseURL  string
	RedisURL     string
	KafkaBrokers []string

	KafkaConsumerGroup           string
	KafkaTopicSubscriptionUpdate string
	KafkaTopicSubscriptionCancel string
	KafkaTopicInstalled          string
	KafkaTopicUninstalled        string
	KafkaTopicInvoked            string

	MaxDBConns int32

	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	ConsumerPollInterval time.Duration
	ConsumerBatchSize    int

	PackageCacheTTL time.Duration
	SearchCacheTTL  time.Duration
	EventDedupTTL   time.Duration

	KEK                string
	AuthJWTSecret      string
	OveragePriceCents  int64
	CreatorShare       decimal.Decimal
	TierCallLimits     map[domain.Tier]int64
	ReasonerURL        string
	ReasonerCredential string
	ReasonerTimeout    time.Duration
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		Env      string `yaml:"env"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL                  string   `yaml:"postgres_url"`
		RedisURL                     string   `yaml:"redis_url"`
		KafkaBrokers                 []string `yaml:"kafka_brokers"`
		KafkaConsumerGroup           string   `yaml:"kafka_consumer_group"`
		KafkaTopicSubscriptionUpdate string   `yaml:"kafka_topic_subscription_updated"`
		KafkaTopicSubscriptionCancel string   `yaml:"kafka_topic_subscription_canceled"`
		KafkaTopicInstalled          string   `yaml:"kafka_topic_package_installed"`
		KafkaTopicUninstalled        string   `yaml:"kafka_topic_package_uninstalled"`
		KafkaTopicInvoked            string   `yaml:"kafka_topic_skill_invoked"`
		ReasonerURL                  string   `yaml:"reasoner_url"`
	} `yaml:"dependencies"`
	Marketplace struct {
		OveragePriceCents int64            `yaml:"overage_price_cents"`
		CreatorShare      string           `yaml:"creator_share"`
		TierCallLimits    map[string]int64 `yaml:"tier_call_limits"`
	} `yaml:"marketplace"`
}

func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                    "skill-marketplace",
		Env:                          "development",
		HTTPPort:                     8080,
		GRPCPort:                     9090,
		MaxDBConns:                   20,
		KafkaConsumerGroup:           "skill-marketplace",
		KafkaTopicSubscriptionUpdate: "billing.subscription_updated",
		KafkaTopicSubscriptionCancel: "billing.subscription_canceled",
		KafkaTopicInstalled:          "package.installed",
		KafkaTopicUninstalled:        "package.uninstalled",
		KafkaTopicInvoked:            "skill.invoked",
		OutboxPollInterval:           2 * time.Second,
		OutboxBatchSize:              100,
		ConsumerPollInterval:         2 * time.Second,
		ConsumerBatchSize:            50,
		PackageCacheTTL:              5 * time.Minute,
		SearchCacheTTL:               30 * time.Second,
		EventDedupTTL:                7 * 24 * time.Hour,
		OveragePriceCents:            5,
		CreatorShare:                 decimal.NewFromFloat(0.70),
		TierCallLimits: map[domain.Tier]int64{
			domain.TierPro:       1000,
			domain.TierEpic:      10000,
			domain.TierLegendary: 0,
		},
		ReasonerTimeout: 30 * time.Second,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.Env != "" {
			cfg.Env = f.Service.Env
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if len(f.Dependencies.KafkaBrokers) > 0 {
			cfg.KafkaBrokers = trimNonEmpty(f.Dependencies.KafkaBrokers)
		}
		if f.Dependencies.KafkaConsumerGroup != "" {
			cfg.KafkaConsumerGroup = f.Dependencies.KafkaConsumerGroup
		}
		if f.Dependencies.KafkaTopicSubscriptionUpdate != "" {
			cfg.KafkaTopicSubscriptionUpdate = f.Dependencies.KafkaTopicSubscriptionUpdate
		}
		if f.Dependencies.KafkaTopicSubscriptionCancel != "" {
			cfg.KafkaTopicSubscriptionCancel = f.Dependencies.KafkaTopicSubscriptionCancel
		}
		if f.Dependencies.KafkaTopicInstalled != "" {
			cfg.KafkaTopicInstalled = f.Dependencies.KafkaTopicInstalled
		}
		if f.Dependencies.KafkaTopicUninstalled != "" {
			cfg.KafkaTopicUninstalled = f.Dependencies.KafkaTopicUninstalled
		}
		if f.Dependencies.KafkaTopicInvoked != "" {
			cfg.KafkaTopicInvoked = f.Dependencies.KafkaTopicInvoked
		}
		if f.Dependencies.ReasonerURL != "" {
			cfg.ReasonerURL = f.Dependencies.ReasonerURL
		}
		if f.Marketplace.OveragePriceCents > 0 {
			cfg.OveragePriceCents = f.Marketplace.OveragePriceCents
		}
		if f.Marketplace.CreatorShare != "" {
			share, parseErr := decimal.NewFromString(f.Marketplace.CreatorShare)
			if parseErr != nil {
				return Config{}, fmt.Errorf("parse creator_share: %w", parseErr)
			}
			cfg.CreatorShare = share
		}
		if len(f.Marketplace.TierCallLimits) > 0 {
			limits := make(map[domain.Tier]int64, len(f.Marketplace.TierCallLimits))
			for tier, limit := range f.Marketplace.TierCallLimits {
				limits[domain.ParseTier(tier)] = limit
			}
			cfg.TierCallLimits = limits
		}
	}

	cfg.Env = envOrDefault("ENV", cfg.Env)
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaConsumerGroup = envOrDefault("KAFKA_CONSUMER_GROUP", cfg.KafkaConsumerGroup)
	cfg.KafkaTopicSubscriptionUpdate = envOrDefault("KAFKA_TOPIC_SUBSCRIPTION_UPDATED", cfg.KafkaTopicSubscriptionUpdate)
	cfg.KafkaTopicSubscriptionCancel = envOrDefault("KAFKA_TOPIC_SUBSCRIPTION_CANCELED", cfg.KafkaTopicSubscriptionCancel)
	cfg.KafkaTopicInstalled = envOrDefault("KAFKA_TOPIC_PACKAGE_INSTALLED", cfg.KafkaTopicInstalled)
	cfg.KafkaTopicUninstalled = envOrDefault("KAFKA_TOPIC_PACKAGE_UNINSTALLED", cfg.KafkaTopicUninstalled)
	cfg.KafkaTopicInvoked = envOrDefault("KAFKA_TOPIC_SKILL_INVOKED", cfg.KafkaTopicInvoked)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.ConsumerPollInterval = time.Duration(envInt("CONSUMER_POLL_SECONDS", int(cfg.ConsumerPollInterval.Seconds()))) * time.Second
	cfg.ConsumerBatchSize = envInt("CONSUMER_BATCH_SIZE", cfg.ConsumerBatchSize)
	cfg.PackageCacheTTL = time.Duration(envInt("PACKAGE_CACHE_SECONDS", int(cfg.PackageCacheTTL.Seconds()))) * time.Second
	cfg.SearchCacheTTL = time.Duration(envInt("SEARCH_CACHE_SECONDS", int(cfg.SearchCacheTTL.Seconds()))) * time.Second
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.KEK = envOrDefault("KEK", cfg.KEK)
	cfg.AuthJWTSecret = envOrDefault("AUTH_JWT_SECRET", cfg.AuthJWTSecret)
	cfg.OveragePriceCents = int64(envInt("OVERAGE_PRICE_CENTS", int(cfg.OveragePriceCents)))
	if raw := os.Getenv("CREATOR_SHARE"); raw != "" {
		share, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("parse CREATOR_SHARE: %w", parseErr)
		}
		cfg.CreatorShare = share
	}
	if raw := os.Getenv("TIER_CALL_LIMITS"); raw != "" {
		limits, parseErr := parseTierCallLimits(raw)
		if parseErr != nil {
			return Config{}, parseErr
		}
		cfg.TierCallLimits = limits
	}
	cfg.ReasonerURL = envOrDefault("REASONER_URL", cfg.ReasonerURL)
	cfg.ReasonerCredential = envOrDefault("REASONER_CREDENTIAL", cfg.ReasonerCredential)
	cfg.ReasonerTimeout = time.Duration(envInt("REASONER_TIMEOUT_MS", int(cfg.ReasonerTimeout.Milliseconds()))) * time.Millisecond

	if cfg.CreatorShare.IsNegative() || cfg.CreatorShare.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("CREATOR_SHARE must be in [0,1]")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DATABASE_URL")
	}
	return cfg, nil
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// ResolveKEK decodes the configured key-encryption key. The value may be
// base64 or hex; it must decode to exactly 32 bytes. In production a KEK is
// mandatory; elsewhere a random key is generated so local setups work,
// meaning stored knowledge does not survive a restart.
func (c Config) ResolveKEK() ([]byte, bool, error) {
	if c.KEK == "" {
		if c.Production() {
			return nil, false, fmt.Errorf("KEK is required in production")
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, false, fmt.Errorf("generate development KEK: %w", err)
		}
		return key, true, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(c.KEK); err == nil && len(decoded) == 32 {
		return decoded, false, nil
	}
	if decoded, err := hex.DecodeString(c.KEK); err == nil && len(decoded) == 32 {
		return decoded, false, nil
	}
	return nil, false, fmt.Errorf("KEK must be 32 bytes, base64 or hex encoded")
}

// parseTierCallLimits parses "pro=1000,epic=10000,legendary=0".
func parseTierCallLimits(raw string) (map[domain.Tier]int64, error) {
	limits := make(map[domain.Tier]int64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("TIER_CALL_LIMITS entry %q must be tier=limit", pair)
		}
		limit, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("TIER_CALL_LIMITS entry %q has invalid limit", pair)
		}
		tier := domain.Tier(strings.TrimSpace(name))
		if !tier.Valid() {
			return nil, fmt.Errorf("TIER_CALL_LIMITS entry %q names unknown tier", pair)
		}
		limits[tier] = limit
	}
	return limits, nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envCSV(name string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return trimNonEmpty(strings.Split(raw, ","))
}

func trimNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
