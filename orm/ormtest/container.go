package ormtest

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/goleak"

	"github.com/astra-lucid/lucidorm/config"
	"github.com/astra-lucid/lucidorm/contracts"
)

// PostgresContainer wraps a disposable Postgres instance for
// integration tests that need the real dialect (correlated subqueries,
// RETURNING, identifier quoting) rather than FakeDriver's interpreter.
type PostgresContainer struct {
	container *postgres.PostgresContainer
	Config    config.Config
}

// NewPostgresContainer starts a Postgres 16 container and returns a
// config.Config pointed at it. Callers are responsible for running
// their own schema setup against the returned Config before use.
func NewPostgresContainer(ctx context.Context, database, user, password string) (*PostgresContainer, error) {
	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase(database),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
	)
	if err != nil {
		return nil, fmt.Errorf("ormtest: failed to start postgres container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		return nil, err
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	cfg.Driver = contracts.Postgres
	cfg.Host = host
	cfg.Port = port.Int()
	cfg.Database = database
	cfg.Username = user
	cfg.Password = password
	cfg.SSLMode = "disable"

	return &PostgresContainer{container: c, Config: cfg}, nil
}

// Terminate stops and removes the container.
func (p *PostgresContainer) Terminate(ctx context.Context) error {
	return p.container.Terminate(ctx)
}

// VerifyNoLeaks runs goleak at the end of an integration test,
// ignoring the background goroutines testcontainers and the database
// drivers are known to leave running briefly during teardown.
func VerifyNoLeaks(opts ...goleak.Option) error {
	defaultOpts := []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	}
	return goleak.Find(append(defaultOpts, opts...)...)
}
