// Package transaction turns a sparse intent into a signed, broadcast transaction.
package transaction

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// FeeSpec prices a transaction. It is either LegacyFee or DynamicFee.
type FeeSpec interface {
	isFeeSpec()
	clone() FeeSpec
}

// LegacyFee is a single gas price, in base units.
type LegacyFee struct {
	GasPrice *big.Int
}

// DynamicFee is an EIP-1559 fee cap and tip, in base units.
type DynamicFee struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

func (LegacyFee) isFeeSpec()  {}
func (DynamicFee) isFeeSpec() {}

func (f LegacyFee) clone() FeeSpec { return LegacyFee{GasPrice: copyInt(f.GasPrice)} }

func (f DynamicFee) clone() FeeSpec {
	return DynamicFee{MaxFeePerGas: copyInt(f.MaxFeePerGas), MaxPriorityFeePerGas: copyInt(f.MaxPriorityFeePerGas)}
}

// Intent is a transaction under construction. Callers typically set To and Data and let
// the Assembler fill the rest. An intent is consumed by one send; build a fresh one for
// the next send so it gets a fresh nonce.
type Intent struct {
	To    *common.Address
	Data  []byte
	Value *big.Int

	// Nonce nil or zero means "ask the node".
	Nonce   *uint64
	ChainID *big.Int
	From    *common.Address

	Fee FeeSpec
	Gas uint64

	// GasMultiplier scales the gas estimate. Zero means 1. It is cleared on completion.
	GasMultiplier decimal.Decimal
}

// Clone deep-copies the intent.
func (in Intent) Clone() Intent {
	out := in
	if in.To != nil {
		to := *in.To
		out.To = &to
	}
	if in.From != nil {
		from := *in.From
		out.From = &from
	}
	if in.Nonce != nil {
		n := *in.Nonce
		out.Nonce = &n
	}
	out.Data = common.CopyBytes(in.Data)
	out.Value = copyInt(in.Value)
	out.ChainID = copyInt(in.ChainID)
	if in.Fee != nil {
		out.Fee = in.Fee.clone()
	}
	return out
}

// NonceValue returns the nonce, or zero when unset.
func (in Intent) NonceValue() uint64 {
	if in.Nonce == nil {
		return 0
	}
	return *in.Nonce
}

// TxData converts a completed intent into signable transaction data.
func (in Intent) TxData() (types.TxData, error) {
	if in.ChainID == nil {
		return nil, fmt.Errorf("intent has no chain id")
	}
	value := in.Value
	if value == nil {
		value = new(big.Int)
	}

	switch fee := in.Fee.(type) {
	case LegacyFee:
		if fee.GasPrice == nil {
			return nil, fmt.Errorf("intent has no gas price")
		}
		return &types.LegacyTx{
			Nonce:    in.NonceValue(),
			GasPrice: copyInt(fee.GasPrice),
			Gas:      in.Gas,
			To:       in.To,
			Value:    copyInt(value),
			Data:     common.CopyBytes(in.Data),
		}, nil
	case DynamicFee:
		if fee.MaxFeePerGas == nil || fee.MaxPriorityFeePerGas == nil {
			return nil, fmt.Errorf("intent has incomplete dynamic fee")
		}
		return &types.DynamicFeeTx{
			ChainID:   copyInt(in.ChainID),
			Nonce:     in.NonceValue(),
			GasTipCap: copyInt(fee.MaxPriorityFeePerGas),
			GasFeeCap: copyInt(fee.MaxFeePerGas),
			Gas:       in.Gas,
			To:        in.To,
			Value:     copyInt(value),
			Data:      common.CopyBytes(in.Data),
		}, nil
	default:
		return nil, fmt.Errorf("intent has no fee")
	}
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
