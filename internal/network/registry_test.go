package network

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMetadata struct {
	coin  Coin
	err   error
	calls atomic.Int32
}

func (s *stubMetadata) CoinMetadata(_ context.Context, _ *big.Int) (Coin, error) {
	s.calls.Add(1)
	return s.coin, s.err
}

func fixedChainID(id int64) ChainIDSource {
	return func(context.Context, string) (*big.Int, error) { return big.NewInt(id), nil }
}

func TestResolveStaticDefinitionSkipsNetworkCalls(t *testing.T) {
	meta := &stubMetadata{err: errors.New("should not be called")}
	reg := NewRegistry(
		WithMetadataSource(meta),
		WithChainIDSource(func(context.Context, string) (*big.Int, error) {
			return nil, errors.New("should not be called")
		}),
	)

	d, err := reg.Resolve(context.Background(), Definition{
		Name:         "BSC",
		RPCs:         []string{"https://bsc.example"},
		ChainID:      56,
		CoinSymbol:   "bnb",
		CoinDecimals: Decimals(18),
		Explorer:     "https://bscscan.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "bsc", d.Name)
	assert.Equal(t, "BNB", d.CoinSymbol)
	assert.Equal(t, int64(56), d.ChainID.Int64())
	assert.Equal(t, "https://bscscan.com/tx/0xabc", d.TxURL("0xabc"))
	assert.Equal(t, "Bsc", d.Title())
	assert.Zero(t, meta.calls.Load())
}

func TestResolveFillsMissingFields(t *testing.T) {
	meta := &stubMetadata{coin: Coin{Symbol: "xdai", Decimals: Decimals(18)}}
	reg := NewRegistry(WithMetadataSource(meta), WithChainIDSource(fixedChainID(100)))

	d, err := reg.Resolve(context.Background(), Definition{Name: "gnosis", RPCs: []string{"https://gnosis.example"}})
	require.NoError(t, err)
	assert.Equal(t, int64(100), d.ChainID.Int64())
	assert.Equal(t, "XDAI", d.CoinSymbol)
	assert.Equal(t, int32(18), d.CoinDecimals)
}

func TestResolveFetchesOnlyMissingCoinFields(t *testing.T) {
	meta := &stubMetadata{coin: Coin{Symbol: "xdai", Decimals: Decimals(18)}}
	reg := NewRegistry(WithMetadataSource(meta), WithChainIDSource(fixedChainID(100)))

	d, err := reg.Resolve(context.Background(), Definition{Name: "gnosis", RPCs: []string{"u"}, CoinDecimals: Decimals(6)})
	require.NoError(t, err)
	assert.Equal(t, "XDAI", d.CoinSymbol)
	assert.Equal(t, int32(6), d.CoinDecimals, "configured decimals are kept")

	d, err = reg.Resolve(context.Background(), Definition{Name: "sidechain", RPCs: []string{"u"}, CoinSymbol: "pts"})
	require.NoError(t, err)
	assert.Equal(t, "PTS", d.CoinSymbol, "configured symbol is kept")
	assert.Equal(t, int32(18), d.CoinDecimals)
}

func TestResolveAcceptsZeroDecimals(t *testing.T) {
	meta := &stubMetadata{err: errors.New("should not be called")}
	reg := NewRegistry(WithMetadataSource(meta))

	d, err := reg.Resolve(context.Background(), Definition{Name: "points", RPCs: []string{"u"}, ChainID: 9, CoinSymbol: "PTS", CoinDecimals: Decimals(0)})
	require.NoError(t, err)
	assert.Equal(t, int32(0), d.CoinDecimals)
	assert.Zero(t, meta.calls.Load())

	reg = NewRegistry(WithMetadataSource(&stubMetadata{coin: Coin{Symbol: "PTS", Decimals: Decimals(0)}}), WithChainIDSource(fixedChainID(9)))
	d, err = reg.Resolve(context.Background(), Definition{Name: "points", RPCs: []string{"u"}})
	require.NoError(t, err)
	assert.Equal(t, int32(0), d.CoinDecimals)
	require.NoError(t, d.Validate())
}

func TestResolveFirstResolutionWins(t *testing.T) {
	reg := NewRegistry(WithMetadataSource(&stubMetadata{}), WithChainIDSource(fixedChainID(1)))

	first, err := reg.Resolve(context.Background(), Definition{Name: "eth", RPCs: []string{"a"}, ChainID: 1, CoinSymbol: "ETH", CoinDecimals: Decimals(18)})
	require.NoError(t, err)
	second, err := reg.Resolve(context.Background(), Definition{Name: "eth", RPCs: []string{"b"}, ChainID: 5, CoinSymbol: "GOR", CoinDecimals: Decimals(18)})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "a", second.RPC)
}

func TestResolveConcurrentCallersShareOneResolution(t *testing.T) {
	var dials atomic.Int32
	reg := NewRegistry(
		WithMetadataSource(&stubMetadata{coin: Coin{Symbol: "ETH", Decimals: Decimals(18)}}),
		WithChainIDSource(func(context.Context, string) (*big.Int, error) {
			dials.Add(1)
			return big.NewInt(10), nil
		}),
	)

	var wg sync.WaitGroup
	results := make([]*Descriptor, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := reg.Resolve(context.Background(), Definition{Name: "optimism", RPCs: []string{"x"}})
			if err == nil {
				results[i] = d
			}
		}(i)
	}
	wg.Wait()

	for _, d := range results {
		require.NotNil(t, d)
		assert.Same(t, results[0], d)
	}
	assert.LessOrEqual(t, dials.Load(), int32(len(results)))
	assert.GreaterOrEqual(t, dials.Load(), int32(1))
}

func TestResolveErrors(t *testing.T) {
	t.Run("chain id", func(t *testing.T) {
		reg := NewRegistry(
			WithMetadataSource(&stubMetadata{}),
			WithChainIDSource(func(context.Context, string) (*big.Int, error) { return nil, errors.New("dial refused") }),
		)
		_, err := reg.Resolve(context.Background(), Definition{Name: "x", RPCs: []string{"u"}})
		require.ErrorIs(t, err, ErrChainIDResolution)
	})

	t.Run("metadata call", func(t *testing.T) {
		reg := NewRegistry(WithMetadataSource(&stubMetadata{err: errors.New("boom")}), WithChainIDSource(fixedChainID(7)))
		_, err := reg.Resolve(context.Background(), Definition{Name: "x", RPCs: []string{"u"}})
		require.ErrorIs(t, err, ErrCoinMetadataResolution)
	})

	t.Run("metadata without match", func(t *testing.T) {
		reg := NewRegistry(WithMetadataSource(&stubMetadata{}), WithChainIDSource(fixedChainID(7)))
		_, err := reg.Resolve(context.Background(), Definition{Name: "x", RPCs: []string{"u"}})
		require.ErrorIs(t, err, ErrCoinMetadataResolution)
	})

	t.Run("metadata without decimals", func(t *testing.T) {
		reg := NewRegistry(WithMetadataSource(&stubMetadata{coin: Coin{Symbol: "ETH"}}), WithChainIDSource(fixedChainID(7)))
		_, err := reg.Resolve(context.Background(), Definition{Name: "x", RPCs: []string{"u"}})
		require.ErrorIs(t, err, ErrCoinMetadataResolution)
	})

	t.Run("failed resolution is not cached", func(t *testing.T) {
		meta := &stubMetadata{err: errors.New("boom")}
		reg := NewRegistry(WithMetadataSource(meta), WithChainIDSource(fixedChainID(7)))
		_, err := reg.Resolve(context.Background(), Definition{Name: "x", RPCs: []string{"u"}})
		require.Error(t, err)
		_, err = reg.Lookup("x")
		require.ErrorIs(t, err, ErrNetworkNotAdded)
	})
}

func TestResolvePicksAmongRPCs(t *testing.T) {
	reg := NewRegistry(WithMetadataSource(&stubMetadata{}), WithPicker(func(n int) int { return n - 1 }))
	d, err := reg.Resolve(context.Background(), Definition{
		Name: "op_bnb", RPCs: []string{"first", "second", "third"}, ChainID: 204, CoinSymbol: "BNB", CoinDecimals: Decimals(18),
	})
	require.NoError(t, err)
	assert.Equal(t, "third", d.RPC)
}

func TestLookupUnknownNetwork(t *testing.T) {
	reg := NewRegistry(WithMetadataSource(&stubMetadata{}))
	_, err := reg.Lookup("fantom")
	require.ErrorIs(t, err, ErrNetworkNotAdded)
}

func TestRegisterRejectsIncompleteDescriptor(t *testing.T) {
	reg := NewRegistry(WithMetadataSource(&stubMetadata{}))
	_, err := reg.Register(&Descriptor{Name: "x", CoinDecimals: 18})
	require.ErrorIs(t, err, ErrIncompleteDescriptor)
	_, err = reg.Register(&Descriptor{Name: "x", ChainID: big.NewInt(1)})
	require.ErrorIs(t, err, ErrIncompleteDescriptor)
}

func TestDefaultsResolveOffline(t *testing.T) {
	reg := NewRegistry(WithMetadataSource(&stubMetadata{err: errors.New("offline")}))
	for _, def := range Defaults() {
		_, err := reg.Resolve(context.Background(), def)
		require.NoError(t, err, def.Name)
	}
	assert.Equal(t, []string{"arbitrum", "bsc", "ethereum", "op_bnb", "optimism", "polygon"}, reg.Names())

	bsc, err := reg.Lookup("bsc")
	require.NoError(t, err)
	assert.False(t, bsc.IsEIP1559())
	eth, err := reg.Lookup("Ethereum")
	require.NoError(t, err)
	assert.True(t, eth.IsEIP1559())
}

func TestChainListLookup(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[
			{"chainId": 56, "nativeCurrency": {"name": "BNB", "symbol": "bnb", "decimals": 18}},
			{"chainId": 56, "nativeCurrency": {"name": "dup", "symbol": "DUP", "decimals": 6}},
			{"chainId": 137, "nativeCurrency": {"name": "MATIC", "symbol": "MATIC", "decimals": 18}}
		]`))
	}))
	defer srv.Close()

	list := NewChainList(srv.URL, srv.Client())
	coin, err := list.CoinMetadata(context.Background(), big.NewInt(56))
	require.NoError(t, err)
	assert.Equal(t, Coin{Symbol: "bnb", Decimals: Decimals(18)}, coin)

	_, err = list.CoinMetadata(context.Background(), big.NewInt(999))
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestChainListBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewChainList(srv.URL, srv.Client()).CoinMetadata(context.Background(), big.NewInt(1))
	require.Error(t, err)
}

func TestParseFeeModel(t *testing.T) {
	for in, want := range map[string]FeeModel{"legacy": FeeModelLegacy, "0": FeeModelLegacy, "EIP1559": FeeModelEIP1559, "2": FeeModelEIP1559} {
		got, err := ParseFeeModel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFeeModel("blob")
	require.Error(t, err)
}
