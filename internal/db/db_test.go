//go:build integration

package db

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

var testDB *Client

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Ryuk can fail to start in rootless environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v2.3.7",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)

	os.Exit(code)
}

func wipe(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.WipeData(context.Background()))
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	require.NoError(t, testDB.InitSchema(context.Background()))
}

func TestModelLifecycle(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	m, err := testDB.CreateModel(ctx, "gpt")
	require.NoError(t, err)
	require.NotEmpty(t, m.ID)
	assert.Equal(t, "gpt", m.Name)
	assert.Equal(t, []string{}, m.Sources)
	assert.False(t, m.CreatedAt.IsZero())

	got, err := testDB.GetModel(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.ID, got.ID)

	renamed, err := testDB.UpdateModelName(ctx, m.ID, "gpt-2")
	require.NoError(t, err)
	require.NotNil(t, renamed)
	assert.Equal(t, "gpt-2", renamed.Name)

	deleted, err := testDB.DeleteModel(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = testDB.DeleteModel(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err = testDB.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMissingModel(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	got, err := testDB.GetModel(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	renamed, err := testDB.UpdateModelName(ctx, "missing", "x")
	require.NoError(t, err)
	assert.Nil(t, renamed)

	appended, err := testDB.AppendModelSource(ctx, "missing", "http://a")
	require.NoError(t, err)
	assert.Nil(t, appended)
}

func TestAppendModelSource(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	m, err := testDB.CreateModel(ctx, "gpt")
	require.NoError(t, err)

	for _, url := range []string{"http://a", "http://b", "http://a"} {
		m, err = testDB.AppendModelSource(ctx, m.ID, url)
		require.NoError(t, err)
		require.NotNil(t, m)
	}
	assert.Equal(t, []string{"http://a", "http://b"}, m.Sources)
}

func TestListModels(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	list, err := testDB.ListModels(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	for _, name := range []string{"a", "b", "c"} {
		_, err := testDB.CreateModel(ctx, name)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	list, err = testDB.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "c", list[2].Name)
}
