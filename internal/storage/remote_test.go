package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

// The PostgreSQL and MongoDB stores run the same suite as SQLite when a test
// server is configured.

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PIPES_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PIPES_TEST_POSTGRES_DSN not set")
	}

	testStore(t, func(t *testing.T) Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := NewPostgresClient(ctx, dsn)
		if err != nil {
			t.Fatalf("Failed to connect to postgres: %v", err)
		}
		// Each subtest starts from empty tables.
		if _, err := client.db.ExecContext(ctx, `TRUNCATE fingerprints, recordings RESTART IDENTITY`); err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
		t.Cleanup(func() { client.Close() })
		return client
	})
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("PIPES_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("PIPES_TEST_MONGO_URI not set")
	}

	n := 0
	testStore(t, func(t *testing.T) Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		n++
		database := fmt.Sprintf("pipes_test_%d_%d", time.Now().UnixNano(), n)
		client, err := NewMongoClient(ctx, uri, database)
		if err != nil {
			t.Fatalf("Failed to connect to mongo: %v", err)
		}
		t.Cleanup(func() {
			client.client.Database(database).Drop(context.Background())
			client.Close()
		})
		return client
	})
}
