package network

import (
	"context"
	"fmt"
	"math/big"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/singleflight"
)

// ChainIDSource asks an RPC endpoint for its chain id.
type ChainIDSource func(ctx context.Context, rpcURL string) (*big.Int, error)

// Registry resolves each network once and hands out the cached descriptor afterwards.
// The first successful resolution of a name wins.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor

	group    singleflight.Group
	metadata MetadataSource
	chainID  ChainIDSource
	pick     func(n int) int
}

type RegistryOption func(*Registry)

func WithMetadataSource(src MetadataSource) RegistryOption {
	return func(r *Registry) { r.metadata = src }
}

func WithChainIDSource(src ChainIDSource) RegistryOption {
	return func(r *Registry) { r.chainID = src }
}

// WithPicker replaces the random RPC selection, mostly for tests.
func WithPicker(pick func(n int) int) RegistryOption {
	return func(r *Registry) { r.pick = pick }
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		descriptors: make(map[string]*Descriptor),
		chainID:     dialChainID,
		pick:        rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metadata == nil {
		r.metadata = NewChainList(DefaultChainListURL, nil)
	}
	return r
}

// Register stores an already complete descriptor. It is a no-op when the name is
// already known.
func (r *Registry) Register(d *Descriptor) (*Descriptor, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	name := normalizeName(d.Name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.descriptors[name]; ok {
		return existing, nil
	}
	cp := *d
	cp.Name = name
	cp.ChainID = new(big.Int).Set(d.ChainID)
	r.descriptors[name] = &cp
	return &cp, nil
}

// Lookup returns a previously resolved descriptor.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[normalizeName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotAdded, name)
	}
	return d, nil
}

// Names lists resolved networks in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the descriptor for def.Name, building it on first use. Concurrent
// callers for the same name share one resolution.
func (r *Registry) Resolve(ctx context.Context, def Definition) (*Descriptor, error) {
	name := normalizeName(def.Name)
	if d, err := r.Lookup(name); err == nil {
		return d, nil
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		if d, err := r.Lookup(name); err == nil {
			return d, nil
		}
		d, err := r.build(ctx, name, def)
		if err != nil {
			return nil, err
		}
		return r.Register(d)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Descriptor), nil
}

func (r *Registry) build(ctx context.Context, name string, def Definition) (*Descriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("network name is required")
	}
	if len(def.RPCs) == 0 {
		return nil, fmt.Errorf("network %s has no rpc endpoints", name)
	}

	d := &Descriptor{
		Name:         name,
		RPC:          def.RPCs[r.pick(len(def.RPCs))],
		FeeModel:     def.FeeModel,
		CoinSymbol:   def.CoinSymbol,
		Explorer:     def.Explorer,
	}

	if def.ChainID > 0 {
		d.ChainID = big.NewInt(def.ChainID)
	} else {
		id, err := r.chainID(ctx, d.RPC)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrChainIDResolution, name, err)
		}
		if id == nil || id.Sign() <= 0 {
			return nil, fmt.Errorf("%w: %s: node returned no chain id", ErrChainIDResolution, name)
		}
		d.ChainID = id
	}

	decimals := def.CoinDecimals
	if d.CoinSymbol == "" || decimals == nil {
		coin, err := r.metadata.CoinMetadata(ctx, d.ChainID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCoinMetadataResolution, name, err)
		}
		// Only the missing fields come from metadata.
		if d.CoinSymbol == "" {
			d.CoinSymbol = coin.Symbol
		}
		if decimals == nil {
			decimals = coin.Decimals
		}
		if d.CoinSymbol == "" || decimals == nil || *decimals < 0 {
			return nil, fmt.Errorf("%w: %s: incomplete metadata for chain %s", ErrCoinMetadataResolution, name, d.ChainID)
		}
	}
	d.CoinDecimals = *decimals
	d.CoinSymbol = strings.ToUpper(d.CoinSymbol)

	return d, nil
}

func dialChainID(ctx context.Context, rpcURL string) (*big.Int, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	defer cli.Close()
	return cli.ChainID(ctx)
}
