// Package mint sends a campaign's mint call on one network and reports the outcome.
package mint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"zkminter/internal/amount"
	"zkminter/internal/chain"
	"zkminter/internal/logger"
	"zkminter/internal/transaction"
)

// Outcome of one mint attempt.
type Outcome int

const (
	Failed Outcome = iota
	Minted
	// Unconfirmed means the transaction was broadcast but no receipt arrived in time.
	Unconfirmed
	Unsupported
)

func (o Outcome) String() string {
	switch o {
	case Minted:
		return "minted"
	case Unconfirmed:
		return "unconfirmed"
	case Unsupported:
		return "unsupported"
	default:
		return "failed"
	}
}

// Result describes one (campaign, network) attempt for one account.
type Result struct {
	Campaign string
	Network  string
	Outcome  Outcome
	TxHash   common.Hash
	TxURL    string
	Receipt  *types.Receipt
	Err      error
	Elapsed  time.Duration
}

func (r Result) OK() bool { return r.Outcome == Minted }

// Task mints through one connection. It borrows the connection and never closes it.
type Task struct {
	conn    transaction.Conn
	asm     *transaction.Assembler
	catalog *Catalog
	log     *logger.Account

	timeout time.Duration
	poll    time.Duration
	observe func(Result)
}

type Option func(*Task)

func WithReceiptTimeout(timeout, poll time.Duration) Option {
	return func(t *Task) {
		t.timeout = timeout
		t.poll = poll
	}
}

// WithObserver is called once per attempt, after logging.
func WithObserver(fn func(Result)) Option {
	return func(t *Task) { t.observe = fn }
}

func NewTask(conn transaction.Conn, catalog *Catalog, log *logger.Account, opts ...Option) *Task {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if log == nil {
		log = logger.NewAccount(logger.Tags{})
	}
	t := &Task{
		conn:    conn,
		asm:     transaction.NewAssembler(conn),
		catalog: catalog,
		log:     log,
		timeout: transaction.DefaultReceiptTimeout,
		poll:    transaction.DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mint sends the campaign's mint call on networkName and waits for the receipt. It never
// returns an error: every failure is logged and reported in the Result so the caller
// can move on to the next network or account.
func (t *Task) Mint(ctx context.Context, campaign, networkName string) (res Result) {
	start := time.Now()
	res = Result{Campaign: campaign, Network: networkName, Outcome: Failed}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = Failed
			res.Err = fmt.Errorf("mint panicked: %v", r)
			t.log.Error(res.Err.Error())
		}
		res.Elapsed = time.Since(start)
		if t.observe != nil {
			t.observe(res)
		}
	}()

	to, data, err := t.catalog.Lookup(campaign, networkName)
	if err != nil {
		res.Outcome = Unsupported
		res.Err = err
		t.log.Warn(fmt.Sprintf("The %q mint is not available on %s", campaign, networkName), zap.Error(err))
		return res
	}

	intent := transaction.Intent{To: &to, Data: data}
	if gwei, ok := t.catalog.GasPrice(campaign, networkName); ok {
		price, err := amount.FromDecimalValue(gwei, t.conn.Network().CoinDecimals)
		if err != nil {
			res.Err = err
			t.log.Error("bad gas price override", zap.Error(err))
			return res
		}
		intent.Fee = transaction.LegacyFee{GasPrice: price.Billionths()}
	}

	handle, err := t.asm.SignAndSend(ctx, intent)
	if err != nil {
		res.Err = err
		t.log.Error(err.Error())
		return res
	}
	res.TxHash = handle.Hash()
	res.TxURL = t.conn.Network().TxURL(handle.Hash().Hex())
	t.log.Info("Transaction sent, waiting for receipt", zap.String("tx", res.TxURL))

	receipt, err := handle.Wait(ctx, t.conn, t.timeout, t.poll)
	if err != nil {
		res.Err = err
		if errors.Is(err, chain.ErrConfirmationTimeout) {
			res.Outcome = Unconfirmed
			t.log.Warn(fmt.Sprintf("No receipt after %s, the transaction may still land: %s", t.timeout, res.TxURL))
			return res
		}
		t.log.Error(err.Error())
		return res
	}
	res.Receipt = receipt

	if receipt.Status != types.ReceiptStatusSuccessful {
		res.Err = fmt.Errorf("transaction %s reverted", handle.Hash().Hex())
		t.log.Error(fmt.Sprintf("The mint transaction reverted: %s", res.TxURL))
		return res
	}

	res.Outcome = Minted
	t.log.Minted(fmt.Sprintf("The %q NFT has been minted: %s", campaign, res.TxURL))
	return res
}
