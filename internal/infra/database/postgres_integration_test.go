//go:build integration

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xavierca1/lead-relay/internal/entity"
)

func TestPostgresLeadRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, dsn := startPostgresContainer(t, ctx)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	db, err := NewDBConnection(Postgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db, Postgres, "up"))
	require.NoError(t, Migrate(db, Postgres, "up"), "second run is a no-op")

	repo := NewLeadRepository(db, Postgres, entity.DefaultMaxAttempts)

	lead := entity.NewLead("Maria Clara", "+63 917 555 0101", "maria@example.com", "Muay Thai", time.Now().UTC())
	deliveries, err := repo.CreateLeadWithDeliveries(ctx, lead, entity.AllChannels())
	require.NoError(t, err)
	require.Len(t, deliveries, 3)

	t.Run("duplicate channel rolls the whole lead back", func(t *testing.T) {
		dup := entity.NewLead("Jon Reyes", "+63 917 555 0102", "jon@example.com", "BJJ", time.Now().UTC())
		_, err := repo.CreateLeadWithDeliveries(ctx, dup, []entity.Channel{entity.ChannelEmail, entity.ChannelEmail})
		require.ErrorIs(t, err, entity.ErrStorage)

		_, err = repo.GetLead(ctx, dup.ID)
		assert.ErrorIs(t, err, entity.ErrLeadNotFound)
	})

	t.Run("only one concurrent increment wins", func(t *testing.T) {
		target := deliveries[0]

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins, conflicts := 0, 0
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.IncrementAttempts(ctx, target.ID, 0, fmt.Sprintf("writer %d", i))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, entity.ErrConcurrentUpdate):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, 7, conflicts)

		got, err := repo.GetDelivery(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, entity.StatusFailed, got.Status)
	})

	t.Run("third failure gives up and stays there", func(t *testing.T) {
		target := deliveries[1]
		for i := 0; i < 3; i++ {
			_, err := repo.IncrementAttempts(ctx, target.ID, i, "timeout")
			require.NoError(t, err)
		}

		got, err := repo.GetDelivery(ctx, target.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusGaveUp, got.Status)
		assert.Equal(t, 3, got.Attempts)

		_, err = repo.IncrementAttempts(ctx, target.ID, 3, "again")
		assert.ErrorIs(t, err, entity.ErrTerminalState)
		assert.ErrorIs(t, repo.UpdateDeliveryStatus(ctx, target.ID, entity.StatusSuccess, nil), entity.ErrTerminalState)
	})

	t.Run("malformed ids are not found", func(t *testing.T) {
		_, err := repo.GetLead(ctx, "abc")
		assert.ErrorIs(t, err, entity.ErrLeadNotFound)

		_, err = repo.GetDelivery(ctx, "abc")
		assert.ErrorIs(t, err, entity.ErrDeliveryNotFound)

		_, err = repo.IncrementAttempts(ctx, "abc", 0, "boom")
		assert.ErrorIs(t, err, entity.ErrDeliveryNotFound)

		assert.ErrorIs(t, repo.UpdateDeliveryStatus(ctx, "abc", entity.StatusSuccess, nil), entity.ErrDeliveryNotFound)
	})

	t.Run("counts cover every status", func(t *testing.T) {
		counts, err := repo.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[entity.StatusPending])
		assert.Equal(t, 1, counts[entity.StatusFailed])
		assert.Equal(t, 1, counts[entity.StatusGaveUp])
		assert.Equal(t, 0, counts[entity.StatusSuccess])
	})

	require.NoError(t, Migrate(db, Postgres, "down"))
}

func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()
	port := nat.Port("5432/tcp")
	dsnFor := func(host string, port nat.Port) string {
		return fmt.Sprintf("postgres://relay:secret@%s:%s/relay?sslmode=disable", host, port.Port())
	}

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_USER":     "relay",
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "relay",
		},
		WaitingFor: wait.ForSQL(port, "postgres", dsnFor).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}
	return container, dsnFor(host, mapped)
}
