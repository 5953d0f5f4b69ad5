// Package testutil holds shared fixtures for integration tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StartMongo runs a throwaway MongoDB container and returns a database handle.
// Set MONGO_INTEGRATION=1 to enable; otherwise the test is skipped.
func StartMongo(t *testing.T, dbName string) *mongo.Database {
	t.Helper()
	if os.Getenv("MONGO_INTEGRATION") != "1" {
		t.Skip("MONGO_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	uri, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client.Database(dbName)
}
