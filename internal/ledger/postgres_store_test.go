package ledger

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestPostgresStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, "postgres", "", dsn)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	entry := Entry{
		Campaign:  "Polyhedra 2024",
		Network:   "bsc",
		Address:   "0xtest",
		Account:   "acc",
		TxHash:    "0xdead",
		Outcome:   "minted",
		CreatedAt: time.Now().UTC(),
	}

	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	// upsert
	entry.TxHash = "0xbeef"
	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := store.Get(ctx, entry.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.TxHash != "0xbeef" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
