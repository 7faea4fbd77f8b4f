// Package testutil connects repository tests to a disposable MongoDB
// database. Tests that use it run only when TEST_MONGO_URI is set, so the
// rest of the suite stays independent of a running mongod.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SetupTestDB skips the calling test unless TEST_MONGO_URI names a reachable
// MongoDB deployment, then returns a database unique to this test run. The
// database is dropped and the client disconnected when the test finishes.
func SetupTestDB(t *testing.T, prefix string) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping MongoDB integration test")
	}

	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second)

	cli, err := mongo.Connect(opts)
	if err != nil {
		t.Fatalf("connecting to %s: %v", uri, err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		t.Fatalf("pinging %s: %v", uri, err)
	}

	db := cli.Database(fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("dropping test database %s: %v", db.Name(), err)
		}
		if err := cli.Disconnect(ctx); err != nil {
			t.Logf("disconnecting test client: %v", err)
		}
	})

	return db
}
