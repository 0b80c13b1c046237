// Package testutils starts the shared Redis and NATS containers used by
// integration tests.
package testutils

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Env holds connections to the shared containers.
type Env struct {
	Redis    *redis.Client
	RedisURL string
	NATS     *nats.Conn
	NATSURL  string
}

var (
	once    sync.Once
	env     *Env
	initErr error

	redisContainer testcontainers.Container
	natsContainer  testcontainers.Container
)

// RequireEnv returns the shared environment, skipping t in -short mode or
// when Docker is unavailable. Redis is flushed on every call.
func RequireEnv(t *testing.T) *Env {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	e, err := GetTestEnvironment(ctx)
	if err != nil {
		t.Skipf("test environment unavailable: %v", err)
	}
	return e
}

// GetTestEnvironment starts the containers once per test binary.
func GetTestEnvironment(ctx context.Context) (*Env, error) {
	once.Do(func() {
		env, initErr = setup(ctx)
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize test environment: %w", initErr)
	}

	if err := env.Redis.FlushAll(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to flush Redis: %w", err)
	}
	return env, nil
}

// CleanupTestEnvironment should be called from TestMain after all tests.
func CleanupTestEnvironment() {
	ctx := context.Background()
	if env != nil {
		if env.NATS != nil {
			env.NATS.Close()
		}
		if env.Redis != nil {
			_ = env.Redis.Close()
		}
	}
	if natsContainer != nil {
		_ = natsContainer.Terminate(ctx)
	}
	if redisContainer != nil {
		_ = redisContainer.Terminate(ctx)
	}
}

func setup(ctx context.Context) (*Env, error) {
	redisC, err := tcRedis.Run(ctx, "redis:7")
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis: %w", err)
	}
	redisContainer = redisC

	redisURL, err := redisC.ConnectionString(ctx)
	if err != nil {
		return nil, err
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	natsC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"-js", "-sd", "/data/jetstream"},
			Tmpfs:        map[string]string{"/data/jetstream": "rw"},
			WaitingFor:   wait.ForLog("Listening for client connections").WithStartupTimeout(10 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start NATS: %w", err)
	}
	natsContainer = natsC

	host, err := natsC.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := natsC.MappedPort(ctx, "4222/tcp")
	if err != nil {
		return nil, err
	}
	natsURL := fmt.Sprintf("nats://%s:%s", host, port.Port())

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Env{Redis: rc, RedisURL: redisURL, NATS: nc, NATSURL: natsURL}, nil
}
