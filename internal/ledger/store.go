// Package ledger remembers which (campaign, network, address) mints already landed so a
// rerun does not pay for them twice.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Entry is one confirmed mint.
type Entry struct {
	Campaign  string    `json:"campaign"`
	Network   string    `json:"network"`
	Address   string    `json:"address"`
	Account   string    `json:"account"`
	TxHash    string    `json:"txHash"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e Entry) Key() string { return Key(e.Campaign, e.Network, e.Address) }

// Key identifies a mint. Network and address are case-insensitive.
func Key(campaign, network, address string) string {
	return campaign + "|" + strings.ToLower(network) + "|" + strings.ToLower(address)
}

// Store abstracts ledger persistence. Get returns nil, nil when nothing is recorded.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, entry Entry) error
	Ping(ctx context.Context) error
	Close()
}

// Open picks a store by driver name: memory, file or postgres.
func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(path)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", driver)
	}
}

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Entry),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *MemoryStore) Save(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entry.Key()] = entry
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() {}

// FileStore persists the ledger as one JSON document. Suitable for a single runner.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]Entry
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("ledger file path is empty")
	}
	fs := &FileStore{
		path: path,
		data: make(map[string]Entry),
	}
	if err := fs.load(); err != nil {
		return nil, fmt.Errorf("load ledger %s: %w", path, err)
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.data)
}

// persist writes through a temp file so a crash never leaves half a ledger.
func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Get(_ context.Context, key string) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (f *FileStore) Save(_ context.Context, entry Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[entry.Key()] = entry
	return f.persist()
}

func (f *FileStore) Ping(context.Context) error {
	dir := filepath.Dir(f.path)
	if _, err := os.Stat(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileStore) Close() {}
