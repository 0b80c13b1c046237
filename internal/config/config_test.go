package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3ekko/flashguard/pkg/detector"
)

// clearEnv blanks every variable the loader reads so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RPC_URL", "ALCHEMY_API_KEY", "LISTEN_ADDR", "LOG_LEVEL", "LOG_FORMAT",
		"TRIM_COUNT", "GAS_MULTIPLIER", "MAX_SENDER_TX_COUNT", "MIN_TRANSFER_EVENTS",
		"FAILURE_POLICY", "LOOKUP_CONCURRENCY", "CACHE_TYPE", "REDIS_URL", "CACHE_TTL",
		"MAX_RETRIES", "RETRY_DELAY", "REQUEST_TIMEOUT", "NATS_URL", "NATS_STREAM",
		"NATS_SUBJECT", "KAFKA_BROKERS", "KAFKA_TOPIC", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY",
		"MINIO_SECRET_KEY", "MINIO_USE_SSL", "MINIO_BUCKET", "DUCKDB_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
	assert.Equal(t, ":3000", cfg.ListenAddr)
	assert.Equal(t, detector.DefaultThresholds(), cfg.Thresholds)
	assert.Equal(t, detector.FailFast, cfg.Policy())
	assert.Equal(t, "memory", cfg.CacheType)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Empty(t, cfg.NATS.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadFromEnv_AlchemyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALCHEMY_API_KEY", "demo-key")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://eth-mainnet.g.alchemy.com/v2/demo-key", cfg.RPCURL)
}

func TestLoadFromEnv_RPCURLWinsOverAlchemy(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALCHEMY_API_KEY", "demo-key")
	t.Setenv("RPC_URL", "http://node:8545")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
}

func TestLoadFromEnv_MissingRPC(t *testing.T) {
	clearEnv(t)
	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("TRIM_COUNT", "2")
	t.Setenv("GAS_MULTIPLIER", "7.5")
	t.Setenv("MAX_SENDER_TX_COUNT", "40")
	t.Setenv("MIN_TRANSFER_EVENTS", "4")
	t.Setenv("FAILURE_POLICY", "isolate")
	t.Setenv("LOOKUP_CONCURRENCY", "8")
	t.Setenv("CACHE_TTL", "30m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, detector.Thresholds{TrimCount: 2, GasMultiplier: 7.5, MaxSenderTxCount: 40, MinTransferEvents: 4}, cfg.Thresholds)
	assert.Equal(t, detector.IsolateLookups, cfg.Policy())
	assert.Equal(t, 8, cfg.LookupConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Minio.UseSSL)
}

func TestLoadFromEnv_NegativeMaxSenderTxCount(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("MAX_SENDER_TX_COUNT", "-1")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_SENDER_TX_COUNT")

	_, err = Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := Default()
		c.RPCURL = "http://localhost:8545"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad policy", func(c *Config) { c.FailurePolicy = "retry-forever" }},
		{"bad cache", func(c *Config) { c.CacheType = "memcached" }},
		{"memory cache without ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"negative concurrency", func(c *Config) { c.LookupConcurrency = -1 }},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"negative multiplier", func(c *Config) { c.Thresholds.GasMultiplier = -2 }},
		{"kafka without topic", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Topic = "" }},
		{"minio without bucket", func(c *Config) { c.Minio.Endpoint = "m:9000"; c.Minio.Bucket = "" }},
	}

	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad_YAMLWithEnvOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("NODE_HOST", "node.internal")
	t.Setenv("LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "flashguard.yaml")
	yml := `
rpc_url: http://${NODE_HOST}:8545
log_level: warn
thresholds:
  trim_count: 3
  gas_multiplier: 12
failure_policy: isolate
request_timeout: 2s
nats:
  url: nats://nats:4222
kafka:
  brokers: [kafka:9092]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://node.internal:8545", cfg.RPCURL)
	assert.Equal(t, "debug", cfg.LogLevel, "env wins over file")
	assert.Equal(t, 3, cfg.Thresholds.TrimCount)
	assert.Equal(t, 12.0, cfg.Thresholds.GasMultiplier)
	assert.Equal(t, uint64(detector.DefaultMaxSenderTxCount), cfg.Thresholds.MaxSenderTxCount)
	assert.Equal(t, detector.IsolateLookups, cfg.Policy())
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, "FLASHGUARD", cfg.NATS.Stream, "unset keys keep defaults")
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("RPC_URL", "http://localhost:8545")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", cfg.RPCURL)
}

func TestLoad_MalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("thresholds: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
