//go:build integration

package pgstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testStore *Store

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fwml",
				"POSTGRES_PASSWORD": "fwml",
				"POSTGRES_DB":       "fwml",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://fwml:fwml@%s:%s/fwml?sslmode=disable", host, port.Port())
	testStore, err = Connect(ctx, dsn, nil)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	if err := testStore.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	code := m.Run()

	testStore.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func truncate(t *testing.T) {
	t.Helper()
	_, err := testStore.pool.Exec(context.Background(), `TRUNCATE models RESTART IDENTITY`)
	require.NoError(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	require.NoError(t, testStore.Migrate(context.Background()))
}

func TestModelLifecycle(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	m, err := testStore.CreateModel(ctx, "gpt")
	require.NoError(t, err)
	assert.Equal(t, "1", m.ID)
	assert.Equal(t, []string{}, m.Sources)

	renamed, err := testStore.UpdateModelName(ctx, m.ID, "gpt-2")
	require.NoError(t, err)
	require.NotNil(t, renamed)
	assert.Equal(t, "gpt-2", renamed.Name)

	got, err := testStore.GetModel(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gpt-2", got.Name)

	deleted, err := testStore.DeleteModel(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = testStore.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNonNumericIDIsAbsent(t *testing.T) {
	ctx := context.Background()

	got, err := testStore.GetModel(ctx, "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	deleted, err := testStore.DeleteModel(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestAppendModelSource(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	m, err := testStore.CreateModel(ctx, "gpt")
	require.NoError(t, err)

	for _, url := range []string{"http://a", "http://b", "http://a"} {
		m, err = testStore.AppendModelSource(ctx, m.ID, url)
		require.NoError(t, err)
		require.NotNil(t, m)
	}
	assert.Equal(t, []string{"http://a", "http://b"}, m.Sources)

	missing, err := testStore.AppendModelSource(ctx, "999", "http://a")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListModels(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		_, err := testStore.CreateModel(ctx, name)
		require.NoError(t, err)
	}

	list, err := testStore.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "b", list[1].Name)
}
