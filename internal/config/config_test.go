package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkminter/internal/network"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 1, cfg.App.Concurrency)
	assert.Equal(t, "Polyhedra 2024", cfg.Campaign.Name)
	assert.Equal(t, [][]string{{"bsc", "none"}, {"op_bnb"}, {"arbitrum", "optimism", "none"}}, cfg.Campaign.MintNetworks)
	assert.Equal(t, 20*time.Second, cfg.Campaign.MintSleepMin)
	assert.Equal(t, 120*time.Second, cfg.RPC.ReceiptTimeout)
	assert.Equal(t, "file", cfg.Ledger.Driver)
	assert.Equal(t, 3, cfg.RetryPolicy().MaxAttempts)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
app:
  env: production
  concurrency: 4
campaign:
  mint_networks:
    - [bsc]
    - [polygon, none]
  mint_sleep_min: 1s
  mint_sleep_max: 2s
rpc:
  receipt_timeout: 30s
networks:
  bsc:
    rpcs: ["https://bsc.private.example"]
  base:
    rpcs: ["https://mainnet.base.org"]
    chain_id: 8453
    fee_model: eip1559
    explorer: https://basescan.org
  points:
    rpcs: ["https://points.example"]
    chain_id: 9
    coin_symbol: PTS
    coin_decimals: 0
ledger:
  driver: memory
`)
	t.Setenv("MINTER_LEDGER_DRIVER", "postgres")
	t.Setenv("MINTER_LEDGER_DSN", "postgres://localhost/minter")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, 4, cfg.App.Concurrency)
	assert.Equal(t, [][]string{{"bsc"}, {"polygon", "none"}}, cfg.Campaign.MintNetworks)
	assert.Equal(t, time.Second, cfg.Campaign.MintSleepMin)
	assert.Equal(t, 30*time.Second, cfg.RPC.ReceiptTimeout)
	assert.Equal(t, "postgres", cfg.Ledger.Driver)
	assert.Equal(t, "postgres://localhost/minter", cfg.Ledger.DSN)

	defs, err := cfg.NetworkDefinitions()
	require.NoError(t, err)
	byName := map[string]network.Definition{}
	for _, d := range defs {
		byName[d.Name] = d
	}
	require.Contains(t, byName, "base")
	assert.Equal(t, network.FeeModelEIP1559, byName["base"].FeeModel)
	assert.Equal(t, int64(8453), byName["base"].ChainID)
	assert.Nil(t, byName["base"].CoinDecimals, "resolved at startup")

	require.NotNil(t, byName["points"].CoinDecimals)
	assert.Equal(t, int32(0), *byName["points"].CoinDecimals)

	bsc := byName["bsc"]
	assert.Equal(t, []string{"https://bsc.private.example"}, bsc.RPCs)
	assert.Equal(t, int64(56), bsc.ChainID)
	assert.Equal(t, network.FeeModelLegacy, bsc.FeeModel)
	assert.Equal(t, "https://bscscan.com", bsc.Explorer)
	assert.Len(t, defs, 8)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]string{
		"concurrency": "app:\n  concurrency: 0\n",
		"sleep":       "campaign:\n  mint_sleep_min: 10s\n  mint_sleep_max: 1s\n",
		"driver":      "ledger:\n  driver: redis\n",
		"dsn":         "ledger:\n  driver: postgres\n",
		"fee model":   "networks:\n  x:\n    rpcs: [a]\n    fee_model: blob\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
