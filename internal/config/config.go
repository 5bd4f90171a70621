package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultJWTSecret = "your-secret-key"

type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	GRPCPort    string `mapstructure:"GRPC_PORT"`

	// PublicBaseURL is where marketplaces fetch listing photos from.
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	RedisAddress string        `mapstructure:"REDIS_ADDRESS"`
	CacheTTL     time.Duration `mapstructure:"CACHE_TTL"`

	NATSURL string `mapstructure:"NATS_URL"`

	MinIOEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket    string `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`
	MaxPhotoBytes  int64  `mapstructure:"MAX_PHOTO_BYTES"`

	GeminiAPIKey      string        `mapstructure:"GEMINI_API_KEY"`
	GeminiModel       string        `mapstructure:"GEMINI_MODEL"`
	GenerationTimeout time.Duration `mapstructure:"GENERATION_TIMEOUT"`

	AdapterTimeout     time.Duration `mapstructure:"ADAPTER_TIMEOUT"`
	AdapterRetryCount  int           `mapstructure:"ADAPTER_RETRY_COUNT"`
	MaxMarketplaces    int           `mapstructure:"MAX_MARKETPLACES"`
	MaxConcurrentPosts int           `mapstructure:"MAX_CONCURRENT_POSTS"`

	JWTSecret              string `mapstructure:"JWT_SECRET"`
	PrometheusMetricsPort  string `mapstructure:"PROMETHEUS_METRICS_PORT"`
	OTExporterOTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	Marketplaces []MarketplaceConfig `mapstructure:"-"`
}

// MarketplaceConfig configures one REST adapter. Adapters without an endpoint
// are not registered.
type MarketplaceConfig struct {
	Name     string
	Endpoint string
	Token    string
}

// KnownMarketplaces maps the env prefix segment to the display name used as
// the status map key.
var KnownMarketplaces = []struct {
	Key  string
	Name string
}{
	{"EBAY", "eBay"},
	{"ETSY", "Etsy"},
	{"MERCARI", "Mercari"},
	{"OFFERUP", "OfferUp"},
	{"FACEBOOK", "Facebook Marketplace"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "flashlist-service")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GRPC_PORT", "50052")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("STORAGE_DRIVER", "mongo")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "flashlist")
	v.SetDefault("REDIS_ADDRESS", "")
	v.SetDefault("CACHE_TTL", "30s")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "listings-photos")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MAX_PHOTO_BYTES", 10<<20)
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("GENERATION_TIMEOUT", "30s")
	v.SetDefault("ADAPTER_TIMEOUT", "30s")
	v.SetDefault("ADAPTER_RETRY_COUNT", 0)
	v.SetDefault("MAX_MARKETPLACES", 5)
	v.SetDefault("MAX_CONCURRENT_POSTS", 0)
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("PROMETHEUS_METRICS_PORT", "9094")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	for _, m := range KnownMarketplaces {
		v.SetDefault("MARKETPLACE_"+m.Key+"_ENDPOINT", "")
		v.SetDefault("MARKETPLACE_"+m.Key+"_TOKEN", "")
	}
}

// LoadConfig reads configuration from environment variables. A .env file is
// loaded by main before this runs.
func LoadConfig(appLogger *logger.Logger) (*Config, error) {
	return load(viper.New(), appLogger)
}

func load(v *viper.Viper, appLogger *logger.Logger) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		appLogger.Error("Failed to unmarshal configuration", zap.Error(err))
		return nil, err
	}

	for _, m := range KnownMarketplaces {
		endpoint := strings.TrimSpace(v.GetString("MARKETPLACE_" + m.Key + "_ENDPOINT"))
		if endpoint == "" {
			continue
		}
		cfg.Marketplaces = append(cfg.Marketplaces, MarketplaceConfig{
			Name:     m.Name,
			Endpoint: endpoint,
			Token:    v.GetString("MARKETPLACE_" + m.Key + "_TOKEN"),
		})
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.JWTSecret == defaultJWTSecret {
		appLogger.Warn("JWT_SECRET is set to its default insecure value. Please set a strong secret in your environment.")
	}

	appLogger.Debug("Configuration loaded",
		zap.String("service_name", cfg.ServiceName),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("storage_driver", cfg.StorageDriver),
		zap.String("mongo_database", cfg.MongoDatabase),
		zap.Bool("redis_enabled", cfg.RedisAddress != ""),
		zap.Bool("nats_enabled", cfg.NATSURL != ""),
		zap.Bool("gemini_key_present", cfg.GeminiAPIKey != ""),
		zap.Duration("adapter_timeout", cfg.AdapterTimeout),
		zap.Int("marketplaces_configured", len(cfg.Marketplaces)),
	)
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	switch c.StorageDriver {
	case "mongo":
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return errors.New("MONGO_URI and MONGO_DATABASE are required for the mongo storage driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.AdapterTimeout <= 0 {
		return fmt.Errorf("ADAPTER_TIMEOUT must be positive, got %s", c.AdapterTimeout)
	}
	if c.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive, got %s", c.GenerationTimeout)
	}
	if c.MaxMarketplaces < 0 || c.MaxConcurrentPosts < 0 || c.AdapterRetryCount < 0 {
		return errors.New("MAX_MARKETPLACES, MAX_CONCURRENT_POSTS and ADAPTER_RETRY_COUNT cannot be negative")
	}
	if c.MaxPhotoBytes <= 0 {
		return errors.New("MAX_PHOTO_BYTES must be positive")
	}
	if c.CacheTTL < time.Millisecond {
		return fmt.Errorf("CACHE_TTL must be at least 1ms, got %s", c.CacheTTL)
	}
	return nil
}
