package ledger

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	entry := Entry{
		Campaign:  "Polyhedra 2024",
		Network:   "bsc",
		Address:   "0xAbC",
		Account:   "alice",
		TxHash:    "0x01",
		Outcome:   "minted",
		CreatedAt: time.Now().UTC(),
	}

	if err := store.Save(ctx, entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, Key("Polyhedra 2024", "BSC", "0xabc"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.TxHash != "0x01" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	missing, err := store.Get(ctx, Key("Polyhedra 2024", "op_bnb", "0xabc"))
	if err != nil || missing != nil {
		t.Fatalf("expected nothing, got %#v %v", missing, err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}

	entry := Entry{Campaign: "c", Network: "arbitrum", Address: "0x1", Outcome: "minted", CreatedAt: time.Now().UTC()}
	if err := store.Save(context.Background(), entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(context.Background(), entry.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Network != "arbitrum" {
		t.Fatalf("entry lost on reopen: %#v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path); err == nil {
		t.Fatal("expected error for corrupt ledger")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	if s, err := Open(ctx, "", "", ""); err != nil {
		t.Fatalf("memory: %v", err)
	} else if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
	if _, err := Open(ctx, "file", "", ""); err == nil {
		t.Fatal("expected error for empty file path")
	}
	if _, err := Open(ctx, "postgres", "", ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if _, err := Open(ctx, "redis", "", ""); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestDeadLetters(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dlq")
	dl := DeadLetters{Dir: dir}

	depth, err := dl.Depth()
	if err != nil || depth != 0 {
		t.Fatalf("expected empty dlq, got %d %v", depth, err)
	}

	path, err := dl.Write(DeadLetter{Account: "acc/1", Network: "bsc", Campaign: "c", Outcome: "failed", Error: "boom"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("letter written outside dlq: %s", path)
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got DeadLetter
	if err := json.Unmarshal(blob, &got); err != nil {
		t.Fatal(err)
	}
	if got.Error != "boom" || got.Timestamp.IsZero() {
		t.Fatalf("unexpected letter: %#v", got)
	}

	if depth, _ := dl.Depth(); depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}

	if p, err := (DeadLetters{}).Write(DeadLetter{}); p != "" || err != nil {
		t.Fatalf("disabled dlq wrote %q %v", p, err)
	}
}
