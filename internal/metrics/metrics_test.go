package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveMint("bsc", "minted", 3*time.Second)
	m.ObserveMint("bsc", "failed", time.Second)
	m.ObserveRPC("bsc", "eth_gasPrice", 10*time.Millisecond, nil)
	m.ObserveRPC("bsc", "eth_getTransactionReceipt", time.Millisecond, ethereum.NotFound)
	m.ObserveRPC("bsc", "eth_estimateGas", time.Millisecond, errors.New("boom"))
	m.IncRun("completed")
	m.SetDeadLetterDepth(4)
	m.AccountStarted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, `minter_mints_total{network="bsc",outcome="minted"} 1`)
	assert.Contains(t, out, `minter_rpc_calls_total{method="eth_getTransactionReceipt",network="bsc",result="not_found"} 1`)
	assert.Contains(t, out, `minter_rpc_calls_total{method="eth_estimateGas",network="bsc",result="error"} 1`)
	assert.Contains(t, out, `minter_runs_total{result="completed"} 1`)
	assert.Contains(t, out, "minter_dead_letter_depth 4")
	assert.Contains(t, out, "minter_active_accounts 1")
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IncRun("failed")

	fams, err := b.Gatherer().Gather()
	require.NoError(t, err)
	for _, f := range fams {
		assert.NotEqual(t, "minter_runs_total", f.GetName())
	}
}
