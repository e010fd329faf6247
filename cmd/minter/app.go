package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"zkminter/internal/account"
	"zkminter/internal/campaign"
	"zkminter/internal/chain"
	"zkminter/internal/config"
	"zkminter/internal/ledger"
	"zkminter/internal/logger"
	"zkminter/internal/metrics"
	"zkminter/internal/mint"
	"zkminter/internal/network"
	"zkminter/internal/server"
)

// app is everything a command needs, built once from the config.
type app struct {
	cfg      *config.Config
	registry *network.Registry
	defs     []network.Definition
	catalog  *mint.Catalog
	store    ledger.Store
	dead     ledger.DeadLetters
	metrics  *metrics.Registry
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	defs, err := cfg.NetworkDefinitions()
	if err != nil {
		return nil, err
	}

	catalog := mint.DefaultCatalog()
	for name, c := range cfg.Campaigns {
		if err := catalog.Apply(name, c.Data, c.Contracts, c.GasPrices); err != nil {
			return nil, err
		}
	}

	store, err := ledger.Open(ctx, cfg.Ledger.Driver, cfg.Ledger.Path, cfg.Ledger.DSN)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &app{
		cfg:      cfg,
		registry: network.NewRegistry(network.WithMetadataSource(network.NewChainList(cfg.RPC.ChainListURL, nil))),
		defs:     defs,
		catalog:  catalog,
		store:    store,
		dead:     ledger.DeadLetters{Dir: cfg.DeadLetterDir},
		metrics:  metrics.New(),
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// chainOptions are shared by every connection the app opens.
func (a *app) chainOptions() []chain.Option {
	opts := []chain.Option{
		chain.WithRetry(a.cfg.RetryPolicy()),
		chain.WithObserver(a.metrics.ObserveRPC),
	}
	if a.cfg.RPC.RateLimit > 0 {
		opts = append(opts, chain.WithRateLimit(a.cfg.RPC.RateLimit, a.cfg.RPC.Burst))
	}
	if a.cfg.RPC.CheckProxy {
		opts = append(opts, chain.WithProxyCheck(a.cfg.RPC.ProxyCheckURL))
	} else {
		opts = append(opts, chain.WithProxyCheck(""))
	}
	return opts
}

func (a *app) runner() *campaign.Runner {
	c := a.cfg.Campaign
	return campaign.NewRunner(a.registry, a.defs, a.catalog, campaign.ChainDialer(a.chainOptions()...),
		campaign.WithLedger(a.store),
		campaign.WithDeadLetters(a.dead),
		campaign.WithMetrics(a.metrics),
		campaign.WithConcurrency(a.cfg.App.Concurrency),
		campaign.WithShuffle(a.cfg.Accounts.Shuffle),
		campaign.WithReceiptTimeout(a.cfg.RPC.ReceiptTimeout, a.cfg.RPC.PollInterval),
		campaign.WithPacing(campaign.Pacing{
			Enabled:    c.Sleep,
			MintMin:    c.MintSleepMin,
			MintMax:    c.MintSleepMax,
			AccountMin: c.AccountSleepMin,
			AccountMax: c.AccountSleepMax,
		}),
	)
}

func (a *app) accounts() ([]account.Account, error) {
	return account.Load(account.Source{
		KeysFile:    a.cfg.Accounts.KeysFile,
		NamesFile:   a.cfg.Accounts.NamesFile,
		ProxiesFile: a.cfg.Accounts.ProxiesFile,
		UseNames:    a.cfg.Accounts.UseNames,
	})
}

// plan applies per-run overrides to the configured campaign.
func (a *app) plan(req server.RunRequest) campaign.Plan {
	p := campaign.Plan{Campaign: a.cfg.Campaign.Name, Rows: a.cfg.Campaign.MintNetworks}
	if req.Campaign != "" {
		p.Campaign = req.Campaign
	}
	if len(req.MintNetworks) > 0 {
		p.Rows = req.MintNetworks
	}
	return p
}

// run is the server.RunFunc; accounts are reloaded so key files can change between runs.
func (a *app) run(ctx context.Context, req server.RunRequest) (*campaign.Summary, error) {
	accounts, err := a.accounts()
	if err != nil {
		return nil, err
	}
	return a.runner().Run(ctx, a.plan(req), accounts)
}

// probe resolves name and pings it with a keyless connection.
func (a *app) probe(def network.Definition) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		desc, err := a.registry.Resolve(ctx, def)
		if err != nil {
			return err
		}
		conn, err := chain.Dial(ctx, desc, chain.ReadOnly(), chain.WithObserver(a.metrics.ObserveRPC))
		if err != nil {
			return err
		}
		defer conn.Close()
		return conn.Ping(ctx)
	}
}

// usedNetworks lists the definitions the configured campaign can draw.
func (a *app) usedNetworks() []network.Definition {
	want := make(map[string]bool)
	for _, row := range a.cfg.Campaign.MintNetworks {
		for _, n := range row {
			want[strings.ToLower(strings.TrimSpace(n))] = true
		}
	}
	var out []network.Definition
	for _, d := range a.defs {
		if want[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

func initLogging(cfg *config.Config) error {
	if err := logger.Init(cfg.App.Env, cfg.App.LogDir); err != nil {
		return err
	}
	if cfg.App.PerAccountLogs {
		if err := logger.EnableAccountFiles(cfg.App.AccountLogDir); err != nil {
			return err
		}
	}
	logger.Debug("config loaded",
		zap.String("env", cfg.App.Env),
		zap.String("campaign", cfg.Campaign.Name),
		zap.String("ledger", cfg.Ledger.Driver))
	return nil
}
