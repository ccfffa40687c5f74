package e2e

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nidhogg/ravenmoor/internal/embedding"
	"github.com/nidhogg/ravenmoor/internal/memory"
	"github.com/nidhogg/ravenmoor/internal/vectorstore"
)

// Package-level shared state, set by TestMain and used by all subtests.
var (
	testLogger   *zap.Logger
	testStore    *memory.SQLStore
	testGateway  *embedding.Gateway
	testRedisURL string
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("raven_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// startQdrant starts Qdrant and returns a connected client + cleanup func.
func startQdrant(ctx context.Context) (*vectorstore.Client, func(), error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "qdrant/qdrant:latest",
			ExposedPorts: []string{"6334/tcp"},
			WaitingFor:   wait.ForListeningPort("6334/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start qdrant: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return nil, nil, fmt.Errorf("qdrant endpoint: %w", err)
	}
	host, portStr, ok := strings.Cut(endpoint, ":")
	if !ok {
		container.Terminate(ctx)
		return nil, nil, fmt.Errorf("qdrant endpoint %q: missing port", endpoint)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, nil, fmt.Errorf("qdrant port %q: %w", portStr, err)
	}

	client, err := vectorstore.NewClient(vectorstore.Config{Host: host, Port: port})
	if err != nil {
		container.Terminate(ctx)
		return nil, nil, fmt.Errorf("qdrant client: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return client, cleanup, nil
}

// resetRoom purges every table for a room so tests stay independent.
func resetRoom(t *testing.T, roomID string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range memory.Tables() {
		if err := testStore.PurgeRoom(ctx, table, roomID); err != nil {
			t.Fatalf("purge %s/%s: %v", table, roomID, err)
		}
	}
}
