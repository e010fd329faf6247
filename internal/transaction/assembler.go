package transaction

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"zkminter/internal/amount"
	"zkminter/internal/chain"
	"zkminter/internal/network"
)

// Conn is the part of a chain connection the assembler needs.
type Conn interface {
	Network() *network.Descriptor
	Address() (common.Address, bool)
	Nonce(ctx context.Context, addr *common.Address) (uint64, error)
	GasPrice(ctx context.Context) (amount.Amount, error)
	MaxPriorityFee(ctx context.Context) (amount.Amount, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	Sign(chainID *big.Int, data types.TxData) (*types.Transaction, error)
	Submit(ctx context.Context, raw []byte) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, timeout, poll time.Duration) (*types.Receipt, error)
}

var _ Conn = (*chain.Connection)(nil)

var one = decimal.NewFromInt(1)

// Assembler fills, signs and broadcasts intents for one connection.
type Assembler struct {
	conn Conn
}

func NewAssembler(conn Conn) *Assembler {
	return &Assembler{conn: conn}
}

// Complete returns a copy of in with every field needed for signing. The steps run in a
// fixed order because the gas estimate depends on the fee and nonce chosen before it.
func (a *Assembler) Complete(ctx context.Context, in Intent) (Intent, error) {
	addr, ok := a.conn.Address()
	if !ok {
		return Intent{}, chain.ErrMissingSigner
	}
	desc := a.conn.Network()
	out := in.Clone()

	if out.ChainID == nil {
		out.ChainID = new(big.Int).Set(desc.ChainID)
	}

	if out.NonceValue() == 0 {
		nonce, err := a.conn.Nonce(ctx, nil)
		if err != nil {
			return Intent{}, fmt.Errorf("fetch nonce: %w", err)
		}
		out.Nonce = &nonce
	}

	if out.From == nil {
		out.From = &addr
	}

	fee, err := a.completeFee(ctx, desc, out.Fee)
	if err != nil {
		return Intent{}, err
	}
	out.Fee = fee

	multiplier := out.GasMultiplier
	out.GasMultiplier = decimal.Zero
	if multiplier.IsZero() {
		multiplier = one
	}
	if multiplier.IsNegative() {
		return Intent{}, fmt.Errorf("gas multiplier must be positive, got %s", multiplier)
	}

	if out.Gas == 0 {
		estimate, err := a.conn.EstimateGas(ctx, callMsg(out))
		if err != nil {
			return Intent{}, fmt.Errorf("estimate gas: %w", err)
		}
		out.Gas = ScaleGas(estimate, multiplier)
	}

	return out, nil
}

// completeFee picks the fee representation for the network's fee model. On EIP-1559
// networks a legacy gas price becomes the fee cap. Whenever a fee cap is known but the
// tip is not, the tip is fetched and added on top of the cap.
// A caller-supplied DynamicFee cap is kept on EIP-1559 networks rather than replaced by
// the live gas price; only a missing cap is filled.
func (a *Assembler) completeFee(ctx context.Context, desc *network.Descriptor, fee FeeSpec) (FeeSpec, error) {
	gasPrice := func() (*big.Int, error) {
		price, err := a.conn.GasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch gas price: %w", err)
		}
		return price.BaseUnits(), nil
	}

	if desc.IsEIP1559() {
		switch f := fee.(type) {
		case LegacyFee:
			if f.GasPrice != nil {
				fee = DynamicFee{MaxFeePerGas: f.GasPrice}
				break
			}
			price, err := gasPrice()
			if err != nil {
				return nil, err
			}
			fee = DynamicFee{MaxFeePerGas: price}
		case DynamicFee:
			if f.MaxFeePerGas == nil {
				price, err := gasPrice()
				if err != nil {
					return nil, err
				}
				f.MaxFeePerGas = price
			}
			fee = f
		default:
			price, err := gasPrice()
			if err != nil {
				return nil, err
			}
			fee = DynamicFee{MaxFeePerGas: price}
		}
	} else {
		switch f := fee.(type) {
		case LegacyFee:
			if f.GasPrice == nil {
				price, err := gasPrice()
				if err != nil {
					return nil, err
				}
				fee = LegacyFee{GasPrice: price}
			}
		case DynamicFee:
			// left as supplied; the tip step below still applies
		default:
			price, err := gasPrice()
			if err != nil {
				return nil, err
			}
			fee = LegacyFee{GasPrice: price}
		}
	}

	if f, ok := fee.(DynamicFee); ok && f.MaxFeePerGas != nil && f.MaxPriorityFeePerGas == nil {
		tip, err := a.conn.MaxPriorityFee(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch priority fee: %w", err)
		}
		f.MaxPriorityFeePerGas = tip.BaseUnits()
		f.MaxFeePerGas = new(big.Int).Add(f.MaxFeePerGas, f.MaxPriorityFeePerGas)
		fee = f
	}
	if f, ok := fee.(DynamicFee); ok && f.MaxFeePerGas == nil {
		return nil, fmt.Errorf("dynamic fee without fee cap")
	}
	return fee, nil
}

// ScaleGas returns floor(estimate * multiplier).
func ScaleGas(estimate uint64, multiplier decimal.Decimal) uint64 {
	scaled := decimal.NewFromBigInt(new(big.Int).SetUint64(estimate), 0).Mul(multiplier).Floor()
	if scaled.IsNegative() {
		return 0
	}
	return scaled.BigInt().Uint64()
}

func callMsg(in Intent) ethereum.CallMsg {
	msg := ethereum.CallMsg{
		To:    in.To,
		Value: in.Value,
		Data:  in.Data,
	}
	if in.From != nil {
		msg.From = *in.From
	}
	switch f := in.Fee.(type) {
	case LegacyFee:
		msg.GasPrice = f.GasPrice
	case DynamicFee:
		msg.GasFeeCap = f.MaxFeePerGas
		msg.GasTipCap = f.MaxPriorityFeePerGas
	}
	return msg
}

// SignAndSend completes in, signs it and broadcasts it once. It is not idempotent:
// calling it again sends a second transaction with the next nonce.
func (a *Assembler) SignAndSend(ctx context.Context, in Intent) (*Handle, error) {
	completed, err := a.Complete(ctx, in)
	if err != nil {
		return nil, err
	}

	data, err := completed.TxData()
	if err != nil {
		return nil, err
	}
	tx, err := a.conn.Sign(completed.ChainID, data)
	if err != nil {
		return nil, err
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode transaction: %w", err)
	}

	hash, err := a.conn.Submit(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("broadcast transaction: %w", err)
	}
	if hash == (common.Hash{}) {
		hash = tx.Hash()
	}
	return NewHandle(hash, completed)
}
