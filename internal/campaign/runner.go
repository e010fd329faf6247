// Package campaign drives a mint campaign over a batch of accounts: it draws networks
// per account, paces the attempts and records what landed.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"zkminter/internal/account"
	"zkminter/internal/chain"
	"zkminter/internal/ledger"
	"zkminter/internal/logger"
	"zkminter/internal/metrics"
	"zkminter/internal/mint"
	"zkminter/internal/network"
	"zkminter/internal/transaction"
)

// Conn is what the runner needs from a chain connection.
type Conn interface {
	transaction.Conn
	Close()
}

var _ Conn = (*chain.Connection)(nil)

// Dialer opens a connection for one account on one network.
type Dialer func(ctx context.Context, desc *network.Descriptor, acc account.Account) (Conn, error)

// ChainDialer dials with base options plus the account's key and proxy.
func ChainDialer(base ...chain.Option) Dialer {
	return func(ctx context.Context, desc *network.Descriptor, acc account.Account) (Conn, error) {
		opts := append([]chain.Option{}, base...)
		opts = append(opts, chain.WithPrivateKey(acc.PrivateKey))
		if acc.Proxy != "" {
			opts = append(opts, chain.WithProxy(acc.Proxy))
		}
		return chain.Dial(ctx, desc, opts...)
	}
}

// Plan is one campaign run. Each row of Rows is a single draw.
type Plan struct {
	Campaign string
	Rows     [][]string
}

// Pacing bounds the random pauses between mints and between accounts.
type Pacing struct {
	Enabled    bool
	MintMin    time.Duration
	MintMax    time.Duration
	AccountMin time.Duration
	AccountMax time.Duration
}

type Runner struct {
	registry    *network.Registry
	definitions map[string]network.Definition
	catalog     *mint.Catalog
	dial        Dialer

	store   ledger.Store
	dead    ledger.DeadLetters
	metrics *metrics.Registry

	concurrency int
	shuffle     bool
	pacing      Pacing
	timeout     time.Duration
	poll        time.Duration
	pick        func(n int) int
	sleep       func(ctx context.Context, d time.Duration) error
}

type Option func(*Runner)

func WithLedger(s ledger.Store) Option { return func(r *Runner) { r.store = s } }

func WithDeadLetters(d ledger.DeadLetters) Option { return func(r *Runner) { r.dead = d } }

func WithMetrics(m *metrics.Registry) Option { return func(r *Runner) { r.metrics = m } }

func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithShuffle(on bool) Option { return func(r *Runner) { r.shuffle = on } }

func WithPacing(p Pacing) Option { return func(r *Runner) { r.pacing = p } }

func WithReceiptTimeout(timeout, poll time.Duration) Option {
	return func(r *Runner) {
		r.timeout = timeout
		r.poll = poll
	}
}

// WithPicker replaces the random source used for draws. pick(n) returns [0, n).
func WithPicker(pick func(n int) int) Option { return func(r *Runner) { r.pick = pick } }

// WithSleep replaces the pause implementation, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

func NewRunner(registry *network.Registry, defs []network.Definition, catalog *mint.Catalog, dial Dialer, opts ...Option) *Runner {
	byName := make(map[string]network.Definition, len(defs))
	for _, d := range defs {
		byName[strings.ToLower(d.Name)] = d
	}
	if catalog == nil {
		catalog = mint.DefaultCatalog()
	}
	r := &Runner{
		registry:    registry,
		definitions: byName,
		catalog:     catalog,
		dial:        dial,
		store:       ledger.NewMemoryStore(),
		concurrency: 1,
		timeout:     transaction.DefaultReceiptTimeout,
		poll:        transaction.DefaultPollInterval,
		pick:        func(n int) int { return rand.N(n) },
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every account and returns what happened. It only fails when ctx is
// cancelled; individual mint failures are reported in the Summary.
func (r *Runner) Run(ctx context.Context, plan Plan, accounts []account.Account) (*Summary, error) {
	if len(accounts) == 0 {
		return nil, account.ErrNoKeys
	}
	accounts = append([]account.Account(nil), accounts...)
	if r.shuffle {
		account.Shuffle(accounts)
	}

	sum := &Summary{Campaign: plan.Campaign, Accounts: len(accounts), Started: time.Now()}
	logger.Info("Starting campaign",
		zap.String("campaign", plan.Campaign),
		zap.Int("accounts", len(accounts)),
		zap.Int("concurrency", r.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	last := len(accounts) - 1
	for i, acc := range accounts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			minted := r.runAccount(gctx, plan, acc, sum)
			if minted && i != last && r.pacing.Enabled {
				return r.pause(gctx, logger.NewAccount(logger.Tags{Account: acc.ID}),
					r.pacing.AccountMin, r.pacing.AccountMax, "the next account")
			}
			return gctx.Err()
		})
	}
	err := g.Wait()
	sum.Finished = time.Now()

	logger.Info("Campaign finished",
		zap.String("campaign", plan.Campaign),
		zap.Int("minted", sum.Count(mint.Minted)),
		zap.Int("failed", sum.Count(mint.Failed)),
		zap.Int("unconfirmed", sum.Count(mint.Unconfirmed)),
		zap.Int("skipped", sum.Skipped()),
		zap.Duration("elapsed", sum.Finished.Sub(sum.Started)))

	if err == nil {
		err = ctx.Err()
	}
	return sum, err
}

// runAccount mints on the drawn networks in order and reports whether anything landed.
func (r *Runner) runAccount(ctx context.Context, plan Plan, acc account.Account, sum *Summary) bool {
	if r.metrics != nil {
		r.metrics.AccountStarted()
		defer r.metrics.AccountDone()
	}
	log := logger.NewAccount(logger.Tags{Account: acc.ID})

	networks := Draw(plan.Rows, r.pick)
	if len(networks) == 0 {
		log.Info("No networks drawn for this account")
		return false
	}
	log.Info(fmt.Sprintf("Drawn networks: %s", strings.Join(networks, ", ")))

	minted := false
	for j, name := range networks {
		if ctx.Err() != nil {
			return minted
		}
		ok, abort := r.attempt(ctx, plan.Campaign, name, acc, log, sum)
		if abort {
			return minted
		}
		if !ok {
			continue
		}
		minted = true
		if j != len(networks)-1 && r.pacing.Enabled {
			if err := r.pause(ctx, log, r.pacing.MintMin, r.pacing.MintMax, "the next mint"); err != nil {
				return minted
			}
		}
	}
	return minted
}

// attempt runs one network for one account and reports whether a mint landed just now.
// abort is set when the account cannot go on, for instance because its proxy leaks.
func (r *Runner) attempt(ctx context.Context, campaign, name string, acc account.Account, log *logger.Account, sum *Summary) (minted, abort bool) {
	res := mint.Result{Campaign: campaign, Network: name, Outcome: mint.Failed}

	def, ok := r.definitions[name]
	if !ok {
		res.Outcome = mint.Unsupported
		res.Err = fmt.Errorf("%w: %s", network.ErrNetworkNotAdded, name)
		log.Warn(res.Err.Error())
		sum.add(Attempt{Account: acc.ID, Result: res})
		return false, false
	}

	desc, err := r.registry.Resolve(ctx, def)
	if err != nil {
		res.Err = err
		log.Error(fmt.Sprintf("Cannot resolve network %s", name), zap.Error(err))
		sum.add(Attempt{Account: acc.ID, Result: res})
		return false, false
	}
	nlog := log.WithNetwork(desc.Title())

	conn, err := r.dial(ctx, desc, acc)
	if err != nil {
		res.Err = err
		nlog.Error("Cannot connect", zap.Error(err))
		sum.add(Attempt{Account: acc.ID, Result: res})
		return false, errors.Is(err, chain.ErrInvalidProxy) || errors.Is(err, chain.ErrMissingSigner)
	}
	defer conn.Close()

	addr, _ := conn.Address()
	nlog = nlog.WithAddress(addr.Hex())

	if done, err := r.store.Get(ctx, ledger.Key(campaign, desc.Name, addr.Hex())); err != nil {
		nlog.Warn("Ledger lookup failed, minting anyway", zap.Error(err))
	} else if done != nil {
		nlog.Success(fmt.Sprintf("Already minted in %s, skipping", done.TxHash))
		sum.add(Attempt{Account: acc.ID, Address: addr.Hex(), Skipped: true,
			Result: mint.Result{Campaign: campaign, Network: desc.Name, Outcome: mint.Minted, TxHash: common.HexToHash(done.TxHash)}})
		return false, false
	}

	task := mint.NewTask(conn, r.catalog, nlog,
		mint.WithReceiptTimeout(r.timeout, r.poll),
		mint.WithObserver(r.observe))
	res = task.Mint(ctx, campaign, desc.Name)
	sum.add(Attempt{Account: acc.ID, Address: addr.Hex(), Result: res})
	r.record(ctx, acc, addr, res, nlog)
	return res.OK(), false
}

func (r *Runner) observe(res mint.Result) {
	if r.metrics != nil {
		r.metrics.ObserveMint(res.Network, res.Outcome.String(), res.Elapsed)
	}
}

// record saves landed mints to the ledger and parks failures as dead letters.
func (r *Runner) record(ctx context.Context, acc account.Account, addr common.Address, res mint.Result, log *logger.Account) {
	switch res.Outcome {
	case mint.Minted:
		err := r.store.Save(ctx, ledger.Entry{
			Campaign:  res.Campaign,
			Network:   res.Network,
			Address:   addr.Hex(),
			Account:   acc.ID,
			TxHash:    res.TxHash.Hex(),
			Outcome:   res.Outcome.String(),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			log.Warn("Cannot record mint in ledger", zap.Error(err))
		}
	case mint.Failed, mint.Unconfirmed:
		if !r.dead.Enabled() {
			return
		}
		letter := ledger.DeadLetter{
			Account:  acc.ID,
			Address:  addr.Hex(),
			Campaign: res.Campaign,
			Network:  res.Network,
			Outcome:  res.Outcome.String(),
		}
		if res.TxHash != (common.Hash{}) {
			letter.TxHash = res.TxHash.Hex()
		}
		if res.Err != nil {
			letter.Error = res.Err.Error()
		}
		if _, err := r.dead.Write(letter); err != nil {
			log.Warn("Cannot write dead letter", zap.Error(err))
			return
		}
		if r.metrics != nil {
			if depth, err := r.dead.Depth(); err == nil {
				r.metrics.SetDeadLetterDepth(depth)
			}
		}
	}
}

func (r *Runner) pause(ctx context.Context, log *logger.Account, lo, hi time.Duration, what string) error {
	d := lo
	if hi > lo {
		d += time.Duration(r.pick(int(hi - lo)))
	}
	if d <= 0 {
		return nil
	}
	log.Delay(fmt.Sprintf("Sleeping %s before %s", d.Round(time.Second), what))
	return r.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Draw shuffles the rows and picks one entry from each. Empty entries and "none" skip
// the row.
func Draw(rows [][]string, pick func(n int) int) []string {
	order := make([][]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			order = append(order, row)
		}
	}
	for i := len(order) - 1; i > 0; i-- {
		j := pick(i + 1)
		order[i], order[j] = order[j], order[i]
	}

	var out []string
	for _, row := range order {
		name := strings.ToLower(strings.TrimSpace(row[pick(len(row))]))
		if name == "" || name == "none" || name == "null" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Attempt is one (account, network) entry of a run.
type Attempt struct {
	Account string
	Address string
	Result  mint.Result
	// Skipped is set when the ledger already had the mint.
	Skipped bool
}

type Summary struct {
	Campaign string
	Accounts int
	Started  time.Time
	Finished time.Time

	mu       sync.Mutex
	attempts []Attempt
}

func (s *Summary) add(a Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
}

func (s *Summary) Attempts() []Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Attempt(nil), s.attempts...)
}

// Count returns attempts with the outcome that actually ran, excluding skips.
func (s *Summary) Count(o mint.Outcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if !a.Skipped && a.Result.Outcome == o {
			n++
		}
	}
	return n
}

func (s *Summary) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.attempts {
		if a.Skipped {
			n++
		}
	}
	return n
}
