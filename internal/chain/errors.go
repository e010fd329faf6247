package chain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrInvalidProxy        = errors.New("invalid proxy")
	ErrMissingSigner       = errors.New("connection has no signer")
	ErrChainRPC            = errors.New("chain rpc call failed")
	ErrConfirmationTimeout = errors.New("transaction not confirmed before deadline")
)

// RPCError carries the failing JSON-RPC method. It matches ErrChainRPC.
type RPCError struct {
	Method string
	Err    error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, e.Err)
}

func (e *RPCError) Unwrap() error { return e.Err }

func (e *RPCError) Is(target error) bool { return target == ErrChainRPC }

func rpcErr(method string, err error) error {
	if err == nil {
		return nil
	}
	var already *RPCError
	if errors.As(err, &already) {
		return err
	}
	return &RPCError{Method: method, Err: err}
}

// JSON-RPC codes a node answers the same way every time.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeReverted       = 3
	codeServer         = -32000
)

// deterministic reports whether the node rejected the request itself, so asking again
// cannot change the answer.
func deterministic(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	switch rpcErr.ErrorCode() {
	case codeMethodNotFound, codeInvalidParams, codeReverted:
		return true
	case codeServer:
		return strings.Contains(strings.ToLower(rpcErr.Error()), "execution reverted")
	}
	return false
}

// ConfirmationTimeoutError means the outcome is unknown: the transaction may still land.
type ConfirmationTimeoutError struct {
	Hash    common.Hash
	Timeout time.Duration
	// Last is the most recent polling error, if any.
	Last error
}

func (e *ConfirmationTimeoutError) Error() string {
	msg := fmt.Sprintf("transaction %s not confirmed after %s", e.Hash.Hex(), e.Timeout)
	if e.Last != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Last)
	}
	return msg
}

func (e *ConfirmationTimeoutError) Is(target error) bool { return target == ErrConfirmationTimeout }
