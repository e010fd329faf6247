package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	DefaultReceiptTimeout = 120 * time.Second
	DefaultPollInterval   = 100 * time.Millisecond
)

var ErrEmptyHash = errors.New("transaction handle requires a hash")

// ReceiptWaiter is implemented by chain.Connection.
type ReceiptWaiter interface {
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout, poll time.Duration) (*types.Receipt, error)
}

// Handle is one broadcast transaction. It is owned by the caller that sent it.
type Handle struct {
	hash    common.Hash
	params  Intent
	receipt *types.Receipt
}

func NewHandle(hash common.Hash, params Intent) (*Handle, error) {
	if hash == (common.Hash{}) {
		return nil, ErrEmptyHash
	}
	return &Handle{hash: hash, params: params.Clone()}, nil
}

func (h *Handle) Hash() common.Hash { return h.hash }

// Params returns a copy of the parameters the transaction was signed with.
func (h *Handle) Params() Intent { return h.params.Clone() }

// Receipt is nil until Wait succeeds.
func (h *Handle) Receipt() *types.Receipt { return h.receipt }

// Wait blocks until the receipt is available or timeout passes. Zero values use the
// defaults. A receipt once stored is returned without polling again.
func (h *Handle) Wait(ctx context.Context, w ReceiptWaiter, timeout, poll time.Duration) (*types.Receipt, error) {
	if h.receipt != nil {
		return h.receipt, nil
	}
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	receipt, err := w.WaitForReceipt(ctx, h.hash, timeout, poll)
	if err != nil {
		return nil, err
	}
	h.receipt = receipt
	return receipt, nil
}
