// Package chaintest runs an in-process JSON-RPC node that speaks the subset of the eth
// namespace the minter uses.
package chaintest

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// Node keeps accepted transactions in memory. Zero value fields are filled by New.
type Node struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int
	tip      *big.Int
	gas      uint64
	head     uint64

	// receipts appear after this many polls; negative means never
	receiptDelay int
	failStatus   bool
	blockTips    []*big.Int
	failures     map[string]error

	nonces   map[common.Address]uint64
	sent     []*types.Transaction
	polls    map[common.Hash]int
	estimate []map[string]interface{}
	calls    map[string]int

	server *rpc.Server
}

// New returns a node for chainID with a 1 gwei gas price, a 2 gwei tip and a 21000
// gas estimate.
func New(chainID int64) *Node {
	n := &Node{
		chainID:  big.NewInt(chainID),
		gasPrice: big.NewInt(1_000_000_000),
		tip:      big.NewInt(2_000_000_000),
		gas:      21_000,
		head:     100,
		failures: make(map[string]error),
		nonces:   make(map[common.Address]uint64),
		polls:    make(map[common.Hash]int),
		calls:    make(map[string]int),
		server:   rpc.NewServer(),
	}
	if err := n.server.RegisterName("eth", &ethAPI{n: n}); err != nil {
		panic(err)
	}
	return n
}

// Client dials the node in-process. The caller closes it.
func (n *Node) Client() *rpc.Client {
	return rpc.DialInProc(n.server)
}

func (n *Node) Close() { n.server.Stop() }

func (n *Node) SetGasPrice(v *big.Int) { n.mu.Lock(); n.gasPrice = v; n.mu.Unlock() }

func (n *Node) SetTip(v *big.Int) { n.mu.Lock(); n.tip = v; n.mu.Unlock() }

func (n *Node) SetGasEstimate(v uint64) { n.mu.Lock(); n.gas = v; n.mu.Unlock() }

// SetReceiptDelay makes receipts show up after polls lookups. Negative never mines.
func (n *Node) SetReceiptDelay(polls int) { n.mu.Lock(); n.receiptDelay = polls; n.mu.Unlock() }

// SetRevert makes every receipt report a failed execution.
func (n *Node) SetRevert(v bool) { n.mu.Lock(); n.failStatus = v; n.mu.Unlock() }

// SetBlockTips fills the latest block with transactions carrying these tips. A nil entry
// is a legacy transaction.
func (n *Node) SetBlockTips(tips ...*big.Int) { n.mu.Lock(); n.blockTips = tips; n.mu.Unlock() }

// Fail makes method (e.g. "eth_gasPrice") return err. A nil err clears it.
func (n *Node) Fail(method string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err == nil {
		delete(n.failures, method)
		return
	}
	n.failures[method] = err
}

// SetNonce seeds the pending nonce of addr.
func (n *Node) SetNonce(addr common.Address, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[addr] = nonce
}

// Sent returns accepted transactions in arrival order.
func (n *Node) Sent() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

// Calls counts requests for method.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

// EstimateRequests returns the call objects passed to eth_estimateGas.
func (n *Node) EstimateRequests() []map[string]interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]map[string]interface{}(nil), n.estimate...)
}

// enter records a call and returns any configured failure. Callers hold no lock.
func (n *Node) enter(method string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++
	return n.failures[method]
}

var errUnknownTx = errors.New("transaction type not supported")

type ethAPI struct {
	n *Node
}

func (api *ethAPI) ChainId() (*hexutil.Big, error) {
	if err := api.n.enter("eth_chainId"); err != nil {
		return nil, err
	}
	return (*hexutil.Big)(api.n.chainID), nil
}

func (api *ethAPI) BlockNumber() (hexutil.Uint64, error) {
	if err := api.n.enter("eth_blockNumber"); err != nil {
		return 0, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return hexutil.Uint64(api.n.head), nil
}

func (api *ethAPI) GasPrice() (*hexutil.Big, error) {
	if err := api.n.enter("eth_gasPrice"); err != nil {
		return nil, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(api.n.gasPrice)), nil
}

func (api *ethAPI) MaxPriorityFeePerGas() (*hexutil.Big, error) {
	if err := api.n.enter("eth_maxPriorityFeePerGas"); err != nil {
		return nil, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return (*hexutil.Big)(new(big.Int).Set(api.n.tip)), nil
}

func (api *ethAPI) GetTransactionCount(addr common.Address, _ string) (hexutil.Uint64, error) {
	if err := api.n.enter("eth_getTransactionCount"); err != nil {
		return 0, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	return hexutil.Uint64(api.n.nonces[addr]), nil
}

func (api *ethAPI) EstimateGas(args map[string]interface{}, _ *string) (hexutil.Uint64, error) {
	if err := api.n.enter("eth_estimateGas"); err != nil {
		return 0, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	api.n.estimate = append(api.n.estimate, args)
	return hexutil.Uint64(api.n.gas), nil
}

func (api *ethAPI) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	if err := api.n.enter("eth_sendRawTransaction"); err != nil {
		return common.Hash{}, err
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	if tx.Type() != types.LegacyTxType && tx.Type() != types.DynamicFeeTxType {
		return common.Hash{}, errUnknownTx
	}

	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	from, err := types.Sender(types.LatestSignerForChainID(api.n.chainID), tx)
	if err != nil {
		return common.Hash{}, err
	}
	if want := api.n.nonces[from]; tx.Nonce() != want {
		return common.Hash{}, errors.New("nonce too low")
	}
	api.n.nonces[from]++
	api.n.sent = append(api.n.sent, tx)
	return tx.Hash(), nil
}

func (api *ethAPI) GetTransactionReceipt(hash common.Hash) (map[string]interface{}, error) {
	if err := api.n.enter("eth_getTransactionReceipt"); err != nil {
		return nil, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()

	var (
		tx    *types.Transaction
		index int
	)
	for i, sent := range api.n.sent {
		if sent.Hash() == hash {
			tx, index = sent, i
			break
		}
	}
	if tx == nil || api.n.receiptDelay < 0 {
		return nil, nil
	}
	api.n.polls[hash]++
	if api.n.polls[hash] <= api.n.receiptDelay {
		return nil, nil
	}

	status := types.ReceiptStatusSuccessful
	if api.n.failStatus {
		status = types.ReceiptStatusFailed
	}
	block := api.n.head + 1
	return map[string]interface{}{
		"type":              hexutil.Uint64(tx.Type()),
		"status":            hexutil.Uint64(status),
		"cumulativeGasUsed": hexutil.Uint64(api.n.gas),
		"gasUsed":           hexutil.Uint64(api.n.gas),
		"effectiveGasPrice": (*hexutil.Big)(tx.GasPrice()),
		"logsBloom":         types.Bloom{},
		"logs":              []*types.Log{},
		"transactionHash":   hash,
		"transactionIndex":  hexutil.Uint64(index),
		"blockHash":         common.BigToHash(new(big.Int).SetUint64(block)),
		"blockNumber":       (*hexutil.Big)(new(big.Int).SetUint64(block)),
	}, nil
}

func (api *ethAPI) GetBlockByNumber(_ string, _ bool) (map[string]interface{}, error) {
	if err := api.n.enter("eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	hashes := make([]common.Hash, len(api.n.blockTips))
	for i := range hashes {
		hashes[i] = common.BigToHash(big.NewInt(int64(i + 1)))
	}
	return map[string]interface{}{
		"number":       (*hexutil.Big)(new(big.Int).SetUint64(api.n.head)),
		"transactions": hashes,
	}, nil
}

func (api *ethAPI) GetTransactionByBlockNumberAndIndex(_ string, index hexutil.Uint) (map[string]interface{}, error) {
	if err := api.n.enter("eth_getTransactionByBlockNumberAndIndex"); err != nil {
		return nil, err
	}
	api.n.mu.Lock()
	defer api.n.mu.Unlock()
	i := int(index)
	if i >= len(api.n.blockTips) {
		return nil, nil
	}
	tx := map[string]interface{}{
		"hash": common.BigToHash(big.NewInt(int64(i + 1))),
	}
	if tip := api.n.blockTips[i]; tip != nil {
		tx["type"] = hexutil.Uint64(types.DynamicFeeTxType)
		tx["maxPriorityFeePerGas"] = (*hexutil.Big)(tip)
	}
	return tx, nil
}
