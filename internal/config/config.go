package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/web3ekko/flashguard/pkg/detector"
)

const alchemyMainnetURL = "https://eth-mainnet.g.alchemy.com/v2/"

// NATSConfig enables the JetStream sink when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Stream  string `yaml:"stream"`
	Subject string `yaml:"subject"`
}

// KafkaConfig enables the Kafka sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MinioConfig enables the report archive when Endpoint is set.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
}

// Config holds the application configuration
type Config struct {
	// Node access
	RPCURL        string `yaml:"rpc_url"`
	AlchemyAPIKey string `yaml:"alchemy_api_key"`

	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Detector tuning
	Thresholds        detector.Thresholds `yaml:"thresholds"`
	FailurePolicy     string              `yaml:"failure_policy"`
	LookupConcurrency int                 `yaml:"lookup_concurrency"`

	// Transaction-count cache
	CacheType string        `yaml:"cache_type"`
	RedisURL  string        `yaml:"redis_url"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`

	// Retry configuration
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	NATS  NATSConfig  `yaml:"nats"`
	Kafka KafkaConfig `yaml:"kafka"`
	Minio MinioConfig `yaml:"minio"`

	// Empty means an in-memory database; "none" disables the store.
	DuckDBPath string `yaml:"duckdb_path"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ListenAddr:     ":3000",
		LogLevel:       "info",
		LogFormat:      "text",
		Thresholds:     detector.DefaultThresholds(),
		FailurePolicy:  detector.FailFast.String(),
		CacheType:      "memory",
		RedisURL:       "localhost:6379",
		CacheTTL:       time.Hour,
		MaxRetries:     3,
		RetryDelay:     500 * time.Millisecond,
		RequestTimeout: 10 * time.Second,
		NATS: NATSConfig{
			Stream:  "FLASHGUARD",
			Subject: "flashguard.reports",
		},
		Kafka: KafkaConfig{Topic: "flashguard-reports"},
		Minio: MinioConfig{Bucket: "flashguard"},
	}
}

// LoadFromEnv loads configuration from environment variables on top of the defaults.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return finalize(cfg)
}

// Load reads a YAML config file and overlays environment variables on it.
// A missing file is not an error; the defaults are used instead.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return finalize(cfg)
}

func finalize(cfg *Config) (*Config, error) {
	if cfg.RPCURL == "" && cfg.AlchemyAPIKey != "" {
		cfg.RPCURL = alchemyMainnetURL + cfg.AlchemyAPIKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL or ALCHEMY_API_KEY is required")
	}
	if _, err := detector.ParseFailurePolicy(c.FailurePolicy); err != nil {
		return err
	}
	switch c.CacheType {
	case "memory", "redis", "none":
	default:
		return fmt.Errorf("unknown cache type %q (want memory, redis or none)", c.CacheType)
	}
	if c.CacheType == "memory" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive for the memory cache")
	}
	if c.LookupConcurrency < 0 {
		return fmt.Errorf("lookup concurrency must not be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative")
	}
	t := c.Thresholds
	if t.TrimCount < 0 || t.GasMultiplier < 0 || t.MinTransferEvents < 0 {
		return fmt.Errorf("detector thresholds must not be negative")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.Minio.Endpoint != "" && c.Minio.Bucket == "" {
		return fmt.Errorf("MINIO_BUCKET is required when MINIO_ENDPOINT is set")
	}
	return nil
}

// Policy returns the parsed failure policy. Call after Validate.
func (c *Config) Policy() detector.FailurePolicy {
	p, _ := detector.ParseFailurePolicy(c.FailurePolicy)
	return p
}

func applyEnv(cfg *Config) error {
	cfg.RPCURL = getEnvWithDefault("RPC_URL", cfg.RPCURL)
	cfg.AlchemyAPIKey = getEnvWithDefault("ALCHEMY_API_KEY", cfg.AlchemyAPIKey)
	cfg.ListenAddr = getEnvWithDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvWithDefault("LOG_FORMAT", cfg.LogFormat)

	cfg.Thresholds.TrimCount = getEnvAsInt("TRIM_COUNT", cfg.Thresholds.TrimCount)
	cfg.Thresholds.GasMultiplier = getEnvAsFloat("GAS_MULTIPLIER", cfg.Thresholds.GasMultiplier)
	maxTxCount, err := getEnvAsUint64("MAX_SENDER_TX_COUNT", cfg.Thresholds.MaxSenderTxCount)
	if err != nil {
		return err
	}
	cfg.Thresholds.MaxSenderTxCount = maxTxCount
	cfg.Thresholds.MinTransferEvents = getEnvAsInt("MIN_TRANSFER_EVENTS", cfg.Thresholds.MinTransferEvents)
	cfg.FailurePolicy = getEnvWithDefault("FAILURE_POLICY", cfg.FailurePolicy)
	cfg.LookupConcurrency = getEnvAsInt("LOOKUP_CONCURRENCY", cfg.LookupConcurrency)

	cfg.CacheType = getEnvWithDefault("CACHE_TYPE", cfg.CacheType)
	cfg.RedisURL = getEnvWithDefault("REDIS_URL", cfg.RedisURL)
	cfg.CacheTTL = getEnvAsDuration("CACHE_TTL", cfg.CacheTTL)

	cfg.MaxRetries = getEnvAsInt("MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryDelay = getEnvAsDuration("RETRY_DELAY", cfg.RetryDelay)
	cfg.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)

	cfg.NATS.URL = getEnvWithDefault("NATS_URL", cfg.NATS.URL)
	cfg.NATS.Stream = getEnvWithDefault("NATS_STREAM", cfg.NATS.Stream)
	cfg.NATS.Subject = getEnvWithDefault("NATS_SUBJECT", cfg.NATS.Subject)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}
	cfg.Kafka.Topic = getEnvWithDefault("KAFKA_TOPIC", cfg.Kafka.Topic)

	cfg.Minio.Endpoint = getEnvWithDefault("MINIO_ENDPOINT", cfg.Minio.Endpoint)
	cfg.Minio.AccessKey = getEnvWithDefault("MINIO_ACCESS_KEY", cfg.Minio.AccessKey)
	cfg.Minio.SecretKey = getEnvWithDefault("MINIO_SECRET_KEY", cfg.Minio.SecretKey)
	cfg.Minio.UseSSL = getEnvAsBool("MINIO_USE_SSL", cfg.Minio.UseSSL)
	cfg.Minio.Bucket = getEnvWithDefault("MINIO_BUCKET", cfg.Minio.Bucket)

	cfg.DuckDBPath = getEnvWithDefault("DUCKDB_PATH", cfg.DuckDBPath)
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnvWithDefault returns environment variable value or default if not set
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns environment variable as integer or default if not set
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvAsUint64 rejects negative values instead of letting them wrap.
func getEnvAsUint64(key string, defaultValue uint64) (uint64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil && i < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, i)
	}
	if u, err := strconv.ParseUint(value, 10, 64); err == nil {
		return u, nil
	}
	return defaultValue, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvAsDuration returns environment variable as duration or default if not set
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
