// Package config loads config.yaml and MINTER_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"zkminter/internal/network"
	"zkminter/internal/retry"
)

// Config is the whole minter configuration, read from YAML with MINTER_ env overrides
// (MINTER_APP_ENV, MINTER_LEDGER_DSN, ...).
type Config struct {
	App           AppConfig                `mapstructure:"app"`
	Accounts      AccountsConfig           `mapstructure:"accounts"`
	Campaign      CampaignConfig           `mapstructure:"campaign"`
	RPC           RPCConfig                `mapstructure:"rpc"`
	Retry         RetryConfig              `mapstructure:"retry"`
	Networks      map[string]NetworkConfig `mapstructure:"networks"`
	Campaigns     map[string]CatalogConfig `mapstructure:"campaigns"`
	Ledger        LedgerConfig             `mapstructure:"ledger"`
	DeadLetterDir string                   `mapstructure:"dead_letter_dir"`
	Server        ServerConfig             `mapstructure:"server"`
}

type AppConfig struct {
	Env            string `mapstructure:"env"`
	LogDir         string `mapstructure:"log_dir"`
	PerAccountLogs bool   `mapstructure:"per_account_logs"`
	AccountLogDir  string `mapstructure:"account_log_dir"`
	Concurrency    int    `mapstructure:"concurrency"`
}

type AccountsConfig struct {
	KeysFile    string `mapstructure:"keys_file"`
	NamesFile   string `mapstructure:"names_file"`
	ProxiesFile string `mapstructure:"proxies_file"`
	UseNames    bool   `mapstructure:"use_names"`
	Shuffle     bool   `mapstructure:"shuffle"`
}

// CampaignConfig drives one run. Each MintNetworks row is one draw: a random entry of
// the row is picked and "none" or "" skips the row.
type CampaignConfig struct {
	Name            string        `mapstructure:"name"`
	MintNetworks    [][]string    `mapstructure:"mint_networks"`
	Sleep           bool          `mapstructure:"sleep"`
	MintSleepMin    time.Duration `mapstructure:"mint_sleep_min"`
	MintSleepMax    time.Duration `mapstructure:"mint_sleep_max"`
	AccountSleepMin time.Duration `mapstructure:"account_sleep_min"`
	AccountSleepMax time.Duration `mapstructure:"account_sleep_max"`
}

type RPCConfig struct {
	ReceiptTimeout time.Duration `mapstructure:"receipt_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
	CheckProxy     bool          `mapstructure:"check_proxy"`
	ProxyCheckURL  string        `mapstructure:"proxy_check_url"`
	ChainListURL   string        `mapstructure:"chain_list_url"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinBackoff  time.Duration `mapstructure:"min_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

// NetworkConfig overrides or adds a network. Zero fields fall back to the built-in
// definition of the same name, or are resolved from the endpoint.
type NetworkConfig struct {
	RPCs         []string `mapstructure:"rpcs"`
	ChainID      int64    `mapstructure:"chain_id"`
	FeeModel     string   `mapstructure:"fee_model"`
	CoinSymbol   string   `mapstructure:"coin_symbol"`
	CoinDecimals *int32   `mapstructure:"coin_decimals"`
	Explorer     string   `mapstructure:"explorer"`
}

// CatalogConfig adds or extends a mint campaign. GasPrices are in gwei.
type CatalogConfig struct {
	Data      string            `mapstructure:"data"`
	Contracts map[string]string `mapstructure:"contracts"`
	GasPrices map[string]string `mapstructure:"gas_prices"`
}

type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type ServerConfig struct {
	HTTPPort      int           `mapstructure:"http_port"`
	HMACSecret    string        `mapstructure:"hmac_secret"`
	HMACClockSkew time.Duration `mapstructure:"hmac_clock_skew"`
}

const envPrefix = "MINTER"

// Load reads path, or config.yaml from . and ./config when path is empty. A missing
// default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_dir", ".")
	v.SetDefault("app.per_account_logs", false)
	v.SetDefault("app.account_log_dir", "logs")
	v.SetDefault("app.concurrency", 1)

	v.SetDefault("accounts.keys_file", "data/private_keys.txt")
	v.SetDefault("accounts.names_file", "data/account_names.txt")
	v.SetDefault("accounts.proxies_file", "")
	v.SetDefault("accounts.use_names", true)
	v.SetDefault("accounts.shuffle", true)

	v.SetDefault("campaign.name", "Polyhedra 2024")
	v.SetDefault("campaign.mint_networks", [][]string{
		{"bsc", "none"},
		{"op_bnb"},
		{"arbitrum", "optimism", "none"},
	})
	v.SetDefault("campaign.sleep", true)
	v.SetDefault("campaign.mint_sleep_min", 20*time.Second)
	v.SetDefault("campaign.mint_sleep_max", 60*time.Second)
	v.SetDefault("campaign.account_sleep_min", 100*time.Second)
	v.SetDefault("campaign.account_sleep_max", 600*time.Second)

	v.SetDefault("rpc.receipt_timeout", 120*time.Second)
	v.SetDefault("rpc.poll_interval", 100*time.Millisecond)
	v.SetDefault("rpc.rate_limit", 10.0)
	v.SetDefault("rpc.burst", 5)
	v.SetDefault("rpc.check_proxy", true)
	v.SetDefault("rpc.proxy_check_url", "http://eth0.me")
	v.SetDefault("rpc.chain_list_url", network.DefaultChainListURL)

	v.SetDefault("retry.max_attempts", retry.Default.MaxAttempts)
	v.SetDefault("retry.min_backoff", retry.Default.MinBackoff)
	v.SetDefault("retry.max_backoff", retry.Default.MaxBackoff)

	v.SetDefault("ledger.driver", "file")
	v.SetDefault("ledger.path", "data/ledger.json")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("dead_letter_dir", "data/dead_letters")

	v.SetDefault("server.http_port", 3000)
	v.SetDefault("server.hmac_secret", "")
	v.SetDefault("server.hmac_clock_skew", 60*time.Second)
}

// Validate rejects settings the runner cannot work with.
func (c *Config) Validate() error {
	if c.App.Concurrency < 1 {
		return fmt.Errorf("app.concurrency must be at least 1")
	}
	if strings.TrimSpace(c.Campaign.Name) == "" {
		return fmt.Errorf("campaign.name is required")
	}
	if len(c.Campaign.MintNetworks) == 0 {
		return fmt.Errorf("campaign.mint_networks is empty")
	}
	if c.Campaign.MintSleepMin > c.Campaign.MintSleepMax {
		return fmt.Errorf("campaign.mint_sleep_min exceeds mint_sleep_max")
	}
	if c.Campaign.AccountSleepMin > c.Campaign.AccountSleepMax {
		return fmt.Errorf("campaign.account_sleep_min exceeds account_sleep_max")
	}
	if c.RPC.ReceiptTimeout <= 0 {
		return fmt.Errorf("rpc.receipt_timeout must be positive")
	}
	switch c.Ledger.Driver {
	case "memory", "file", "postgres":
	default:
		return fmt.Errorf("ledger.driver %q is not one of memory, file, postgres", c.Ledger.Driver)
	}
	if c.Ledger.Driver == "postgres" && c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.dsn is required for the postgres driver")
	}
	for name, n := range c.Networks {
		if _, err := network.ParseFeeModel(n.FeeModel); err != nil {
			return fmt.Errorf("networks.%s: %w", name, err)
		}
	}
	return nil
}

// RetryPolicy is the policy applied to idempotent RPC reads.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		MinBackoff:  c.Retry.MinBackoff,
		MaxBackoff:  c.Retry.MaxBackoff,
	}
}

// NetworkDefinitions merges the configured networks over the built-in ones, sorted by
// name.
func (c *Config) NetworkDefinitions() ([]network.Definition, error) {
	byName := make(map[string]network.Definition)
	for _, d := range network.Defaults() {
		byName[d.Name] = d
	}

	for name, n := range c.Networks {
		name = strings.ToLower(strings.TrimSpace(name))
		def, known := byName[name]
		def.Name = name
		if len(n.RPCs) > 0 {
			def.RPCs = n.RPCs
		}
		if n.ChainID != 0 {
			def.ChainID = n.ChainID
		}
		if n.FeeModel != "" || !known {
			model, err := network.ParseFeeModel(n.FeeModel)
			if err != nil {
				return nil, fmt.Errorf("networks.%s: %w", name, err)
			}
			def.FeeModel = model
		}
		if n.CoinSymbol != "" {
			def.CoinSymbol = n.CoinSymbol
		}
		if n.CoinDecimals != nil {
			def.CoinDecimals = n.CoinDecimals
		}
		if n.Explorer != "" {
			def.Explorer = n.Explorer
		}
		if len(def.RPCs) == 0 {
			return nil, fmt.Errorf("networks.%s: no rpcs configured", name)
		}
		byName[name] = def
	}

	defs := make([]network.Definition, 0, len(byName))
	for _, d := range byName {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}
