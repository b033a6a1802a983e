package testutil

import (
	"context"
	"fmt"
	"time"

	pgutil "github.com/bissquit/content-notifier/internal/pkg/postgres"
	"github.com/bissquit/content-notifier/migrations"
	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startupTimeout = 30 * time.Second

// PostgresContainer is a disposable database for integration tests.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// RedisContainer backs the distributed run lock.
type RedisContainer struct {
	testcontainers.Container
	URL string
}

// MailpitContainer is an SMTP sink with an HTTP API for reading delivered
// mail.
type MailpitContainer struct {
	testcontainers.Container
	SMTPHost string
	SMTPPort int
	APIHost  string
	APIPort  int
}

// NewPostgresContainer starts PostgreSQL 16. Call Migrate to apply the schema.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("notifier"),
		postgres.WithUsername("notifier"),
		postgres.WithPassword("notifier"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("postgres connection string: %w", err)
	}

	return &PostgresContainer{PostgresContainer: container, ConnectionString: connStr}, nil
}

// Migrate applies the embedded schema migrations.
func (c *PostgresContainer) Migrate() error {
	return pgutil.Migrate(c.ConnectionString, migrations.FS)
}

// NewRedisContainer starts Redis 7.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	c, host, ports, err := startGeneric(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(startupTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	return &RedisContainer{
		Container: c,
		URL:       fmt.Sprintf("redis://%s:%d/0", host, ports["6379/tcp"]),
	}, nil
}

// NewMailpitContainer starts Mailpit. SMTP accepts any sender without auth
// or TLS.
func NewMailpitContainer(ctx context.Context) (*MailpitContainer, error) {
	c, host, ports, err := startGeneric(ctx, testcontainers.ContainerRequest{
		Image:        "ghcr.io/axllent/mailpit:latest",
		ExposedPorts: []string{"1025/tcp", "8025/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("1025/tcp"),
			wait.ForHTTP("/api/v1/info").WithPort("8025/tcp"),
		).WithDeadline(startupTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("mailpit: %w", err)
	}

	return &MailpitContainer{
		Container: c,
		SMTPHost:  host,
		SMTPPort:  ports["1025/tcp"],
		APIHost:   host,
		APIPort:   ports["8025/tcp"],
	}, nil
}

// startGeneric starts req and resolves the host and every exposed port.
func startGeneric(ctx context.Context, req testcontainers.ContainerRequest) (testcontainers.Container, string, map[string]int, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", nil, fmt.Errorf("start container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		return nil, "", nil, fmt.Errorf("container host: %w", err)
	}

	ports := make(map[string]int, len(req.ExposedPorts))
	for _, p := range req.ExposedPorts {
		mapped, err := c.MappedPort(ctx, nat.Port(p))
		if err != nil {
			return nil, "", nil, fmt.Errorf("mapped port %s: %w", p, err)
		}
		ports[p] = mapped.Int()
	}

	return c, host, ports, nil
}
