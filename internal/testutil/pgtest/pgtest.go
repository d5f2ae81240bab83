// Package pgtest opens the shared integration database for tests.
package pgtest

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/kenyabank/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

const lockAddr = "127.0.0.1:45432"

// acquire serialises integration tests across packages sharing one database.
func acquire() func() {
	for {
		ln, err := net.Listen("tcp", lockAddr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// Open connects to DATABASE_URL, applies migrations and truncates all tables.
// The test is skipped when DATABASE_URL is not set.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	release := acquire()
	t.Cleanup(release)

	if err := db.MigrateUp(dbURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Connect(ctx, dbURL, db.PoolConfig{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE idempotency_keys, login_attempts, audit_log, transactions, accounts, users`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}
