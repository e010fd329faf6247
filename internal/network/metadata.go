package network

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// DefaultChainListURL is the public chain-id to native-currency index.
const DefaultChainListURL = "https://chainid.network/chains.json"

// Coin is the native currency of a chain. A nil Decimals means the source did not say.
type Coin struct {
	Symbol   string
	Decimals *int32
}

// MetadataSource looks up the native coin of a chain id.
type MetadataSource interface {
	CoinMetadata(ctx context.Context, chainID *big.Int) (Coin, error)
}

type chainListEntry struct {
	ChainID        int64 `json:"chainId"`
	NativeCurrency struct {
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals *int32 `json:"decimals"`
	} `json:"nativeCurrency"`
}

// ChainList reads chains.json once and answers lookups from memory.
type ChainList struct {
	url    string
	client *http.Client

	mu      sync.Mutex
	entries map[int64]Coin
}

func NewChainList(url string, client *http.Client) *ChainList {
	if url == "" {
		url = DefaultChainListURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ChainList{url: url, client: client}
}

func (c *ChainList) CoinMetadata(ctx context.Context, chainID *big.Int) (Coin, error) {
	if chainID == nil || !chainID.IsInt64() {
		return Coin{}, fmt.Errorf("unsupported chain id %v", chainID)
	}
	entries, err := c.load(ctx)
	if err != nil {
		return Coin{}, err
	}
	coin, ok := entries[chainID.Int64()]
	if !ok {
		return Coin{}, fmt.Errorf("chain id %s not listed", chainID)
	}
	return coin, nil
}

func (c *ChainList) load(ctx context.Context) (map[int64]Coin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries != nil {
		return c.entries, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch chain list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch chain list: status %d", resp.StatusCode)
	}

	var raw []chainListEntry
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode chain list: %w", err)
	}

	entries := make(map[int64]Coin, len(raw))
	for _, e := range raw {
		if _, dup := entries[e.ChainID]; dup {
			continue
		}
		entries[e.ChainID] = Coin{Symbol: e.NativeCurrency.Symbol, Decimals: e.NativeCurrency.Decimals}
	}
	c.entries = entries
	return entries, nil
}
