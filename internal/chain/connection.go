// Package chain binds one RPC endpoint and one optional signing key to a network.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"zkminter/internal/amount"
	"zkminter/internal/network"
	"zkminter/internal/retry"
)

// Observer receives the latency and result of every RPC call.
type Observer func(network, method string, elapsed time.Duration, err error)

type keyMode int

const (
	keyGenerate keyMode = iota
	keyProvided
	keyNone
)

type options struct {
	keyMode       keyMode
	keyHex        string
	proxy         string
	checkProxy    bool
	proxyCheckURL string
	retry         retry.Policy
	rateLimit     rate.Limit
	burst         int
	rpcClient     *rpc.Client
	httpClient    *http.Client
	observer      Observer
}

type Option func(*options)

// WithPrivateKey binds a hex encoded key. An empty string yields a connection without a
// signer; leaving the option out generates a throwaway key.
func WithPrivateKey(hexKey string) Option {
	return func(o *options) {
		if strings.TrimSpace(hexKey) == "" {
			o.keyMode = keyNone
			return
		}
		o.keyMode = keyProvided
		o.keyHex = hexKey
	}
}

// ReadOnly drops the signer.
func ReadOnly() Option {
	return func(o *options) { o.keyMode = keyNone }
}

// WithProxy routes RPC traffic through an HTTP proxy, verified at dial time.
func WithProxy(proxy string) Option {
	return func(o *options) { o.proxy = proxy }
}

// WithProxyCheck overrides the egress IP endpoint. An empty url disables the check.
func WithProxyCheck(url string) Option {
	return func(o *options) {
		o.proxyCheckURL = url
		o.checkProxy = url != ""
	}
}

// WithRetry applies p to idempotent reads. Submission is never retried.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.retry = p }
}

// WithRateLimit paces calls to the endpoint. A zero limit means unlimited.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rate.Limit(perSecond)
		o.burst = burst
	}
}

// WithRPCClient uses an existing client instead of dialing the descriptor's endpoint.
func WithRPCClient(c *rpc.Client) Option {
	return func(o *options) { o.rpcClient = c }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// Connection owns its RPC client and key for its whole lifetime. Methods are safe for
// concurrent use, but sends from one key must be serialized by the caller.
type Connection struct {
	network *network.Descriptor
	rpc     *rpc.Client
	eth     *ethclient.Client

	key     *ecdsa.PrivateKey
	address common.Address
	proxy   string

	retry    retry.Policy
	limiter  *rate.Limiter
	observer Observer
}

// Dial connects to desc.RPC. When a proxy is configured and checking is enabled the
// proxy must prove it hides the real egress address before any RPC traffic flows.
func Dial(ctx context.Context, desc *network.Descriptor, opts ...Option) (*Connection, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	o := options{
		checkProxy:    true,
		proxyCheckURL: DefaultProxyCheckURL,
		retry:         retry.None,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Connection{
		network:  desc,
		retry:    o.retry,
		observer: o.observer,
	}
	if o.rateLimit > 0 {
		burst := o.burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(o.rateLimit, burst)
	}

	if err := c.initKey(o); err != nil {
		return nil, err
	}

	client := o.rpcClient
	if client == nil {
		httpClient := o.httpClient
		if o.proxy != "" {
			c.proxy = NormalizeProxy(o.proxy)
			pc, err := proxyHTTPClient(c.proxy)
			if err != nil {
				return nil, err
			}
			if o.checkProxy {
				if err := CheckProxy(ctx, pc, o.proxyCheckURL, c.proxy); err != nil {
					return nil, err
				}
			}
			httpClient = pc
		}
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 30 * time.Second}
		}

		var err error
		client, err = rpc.DialOptions(ctx, desc.RPC,
			rpc.WithHTTPClient(httpClient),
			rpc.WithHeader("Accept", "*/*"),
			rpc.WithHeader("Accept-Language", "en-US,en;q=0.9"),
		)
		if err != nil {
			return nil, rpcErr("dial", err)
		}
	}

	c.rpc = client
	c.eth = ethclient.NewClient(client)
	return c, nil
}

func (c *Connection) initKey(o options) error {
	switch o.keyMode {
	case keyNone:
		return nil
	case keyProvided:
		key, err := ParsePrivateKey(o.keyHex)
		if err != nil {
			return err
		}
		c.key = key
	default:
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		c.key = key
	}
	c.address = crypto.PubkeyToAddress(c.key.PublicKey)
	return nil
}

// ParsePrivateKey accepts keys with or without the 0x prefix.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *Connection) Network() *network.Descriptor { return c.network }

// Address is the signer's address; ok is false for connections without a key.
func (c *Connection) Address() (common.Address, bool) {
	return c.address, c.key != nil
}

func (c *Connection) HasSigner() bool { return c.key != nil }

// Proxy is the normalized proxy URL, or "".
func (c *Connection) Proxy() string { return c.proxy }

func (c *Connection) Close() {
	if c.rpc != nil {
		c.rpc.Close()
	}
}

func (c *Connection) amount(v *big.Int) amount.Amount {
	return amount.FromBaseUnits(v, c.network.CoinDecimals)
}

// once performs a single paced and observed call.
func (c *Connection) once(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limit %s: %w", method, err))
		}
	}
	start := time.Now()
	err := fn(ctx)
	if c.observer != nil {
		c.observer(c.network.Name, method, time.Since(start), err)
	}
	if deterministic(err) {
		return retry.Permanent(rpcErr(method, err))
	}
	return rpcErr(method, err)
}

// read is once under the retry policy.
func (c *Connection) read(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	return c.retry.Do(ctx, func(ctx context.Context) error {
		return c.once(ctx, method, fn)
	})
}

// Nonce returns the pending transaction count of addr, or of the signer when addr is nil.
func (c *Connection) Nonce(ctx context.Context, addr *common.Address) (uint64, error) {
	target := c.address
	if addr != nil {
		target = *addr
	} else if c.key == nil {
		return 0, ErrMissingSigner
	}

	var nonce uint64
	err := c.read(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		var err error
		nonce, err = c.eth.PendingNonceAt(ctx, target)
		return err
	})
	return nonce, err
}

func (c *Connection) GasPrice(ctx context.Context) (amount.Amount, error) {
	var price *big.Int
	err := c.read(ctx, "eth_gasPrice", func(ctx context.Context) error {
		var err error
		price, err = c.eth.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return amount.Amount{}, err
	}
	return c.amount(price), nil
}

// MaxPriorityFee asks the node for its tip suggestion and falls back to the median tip
// of the latest block when the node cannot answer.
func (c *Connection) MaxPriorityFee(ctx context.Context) (amount.Amount, error) {
	var tip *big.Int
	err := c.read(ctx, "eth_maxPriorityFeePerGas", func(ctx context.Context) error {
		var err error
		tip, err = c.eth.SuggestGasTipCap(ctx)
		return err
	})
	if err == nil {
		return c.amount(tip), nil
	}
	if ctx.Err() != nil {
		return amount.Amount{}, err
	}
	return c.MedianPriorityFee(ctx)
}

type blockHead struct {
	Number       *hexutil.Big  `json:"number"`
	Transactions []common.Hash `json:"transactions"`
}

type blockTx struct {
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas"`
}

// MedianPriorityFee walks the latest block and returns the median maxPriorityFeePerGas
// among its dynamic fee transactions, or zero when there are none.
func (c *Connection) MedianPriorityFee(ctx context.Context) (amount.Amount, error) {
	var head *blockHead
	err := c.read(ctx, "eth_getBlockByNumber", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &head, "eth_getBlockByNumber", "latest", false)
	})
	if err != nil {
		return amount.Amount{}, err
	}
	if head == nil || head.Number == nil {
		return c.amount(new(big.Int)), nil
	}

	number := hexutil.EncodeBig(head.Number.ToInt())
	tips := make([]*big.Int, 0, len(head.Transactions))
	for i := range head.Transactions {
		var tx *blockTx
		err := c.once(ctx, "eth_getTransactionByBlockNumberAndIndex", func(ctx context.Context) error {
			return c.rpc.CallContext(ctx, &tx, "eth_getTransactionByBlockNumberAndIndex", number, hexutil.Uint(i))
		})
		if err != nil {
			if ctx.Err() != nil {
				return amount.Amount{}, err
			}
			continue
		}
		if tx != nil && tx.MaxPriorityFeePerGas != nil {
			tips = append(tips, tx.MaxPriorityFeePerGas.ToInt())
		}
	}
	return c.amount(MedianFee(tips)), nil
}

// EstimateGas returns the node's gas estimate for msg.
func (c *Connection) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.read(ctx, "eth_estimateGas", func(ctx context.Context) error {
		var err error
		gas, err = c.eth.EstimateGas(ctx, msg)
		return err
	})
	return gas, err
}

// Sign signs data for chainID with the bound key.
func (c *Connection) Sign(chainID *big.Int, data types.TxData) (*types.Transaction, error) {
	if c.key == nil {
		return nil, ErrMissingSigner
	}
	tx, err := types.SignNewTx(c.key, types.LatestSignerForChainID(chainID), data)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// Submit broadcasts raw signed bytes once and returns the hash the node reports.
func (c *Connection) Submit(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	err := c.once(ctx, "eth_sendRawTransaction", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw))
	})
	return hash, err
}

// Receipt fetches a receipt once. A pending transaction yields ethereum.NotFound.
func (c *Connection) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.once(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		var err error
		receipt, err = c.eth.TransactionReceipt(ctx, hash)
		return err
	})
	return receipt, err
}

// WaitForReceipt polls every poll until the receipt appears or timeout elapses. Polling
// errors do not stop the wait; they are reported with the timeout.
func (c *Connection) WaitForReceipt(ctx context.Context, hash common.Hash, timeout, poll time.Duration) (*types.Receipt, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last error
	for {
		receipt, err := c.Receipt(waitCtx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil {
			last = err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &ConfirmationTimeoutError{Hash: hash, Timeout: timeout, Last: last}
		case <-ticker.C:
		}
	}
}

// Ping checks that the endpoint answers.
func (c *Connection) Ping(ctx context.Context) error {
	return c.once(ctx, "eth_blockNumber", func(ctx context.Context) error {
		_, err := c.eth.BlockNumber(ctx)
		return err
	})
}
