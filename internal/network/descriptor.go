// Package network describes target chains and resolves them once per process.
package network

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrChainIDResolution      = errors.New("chain id resolution failed")
	ErrCoinMetadataResolution = errors.New("coin metadata resolution failed")
	ErrNetworkNotAdded        = errors.New("network has not been added")
	ErrIncompleteDescriptor   = errors.New("descriptor is missing chain id or coin decimals")
)

// FeeModel selects how transactions on a network are priced. The values match the
// EIP-2718 transaction type used for each model.
type FeeModel int

const (
	FeeModelLegacy  FeeModel = 0
	FeeModelEIP1559 FeeModel = 2
)

func (m FeeModel) String() string {
	switch m {
	case FeeModelLegacy:
		return "legacy"
	case FeeModelEIP1559:
		return "eip1559"
	default:
		return fmt.Sprintf("fee-model(%d)", int(m))
	}
}

// ParseFeeModel accepts "legacy"/"0" and "eip1559"/"eip-1559"/"2".
func ParseFeeModel(s string) (FeeModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy", "0":
		return FeeModelLegacy, nil
	case "eip1559", "eip-1559", "2", "dynamic":
		return FeeModelEIP1559, nil
	default:
		return 0, fmt.Errorf("unknown fee model %q", s)
	}
}

const (
	txPath      = "/tx/"
	addressPath = "/address/"
)

// Definition is the static, possibly partial, description of a network as it appears
// in configuration. Zero values mean "resolve at startup"; for CoinDecimals that is nil,
// since zero is a valid precision.
type Definition struct {
	Name         string
	RPCs         []string
	ChainID      int64
	FeeModel     FeeModel
	CoinSymbol   string
	CoinDecimals *int32
	Explorer     string
}

// Decimals is a static CoinDecimals value.
func Decimals(n int32) *int32 { return &n }

// Descriptor is a fully resolved network. It is read-only once built.
type Descriptor struct {
	Name         string
	RPC          string
	ChainID      *big.Int
	FeeModel     FeeModel
	CoinSymbol   string
	CoinDecimals int32
	Explorer     string
}

// Validate enforces that the fields every connection depends on are present.
func (d *Descriptor) Validate() error {
	if d == nil {
		return ErrIncompleteDescriptor
	}
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", ErrIncompleteDescriptor)
	}
	if d.ChainID == nil || d.ChainID.Sign() <= 0 {
		return fmt.Errorf("%w: %s has no chain id", ErrIncompleteDescriptor, d.Name)
	}
	if d.CoinDecimals < 0 {
		return fmt.Errorf("%w: %s has negative coin decimals", ErrIncompleteDescriptor, d.Name)
	}
	return nil
}

// Title is the display form used in log tags ("op_bnb" -> "Op_bnb").
func (d *Descriptor) Title() string {
	if d.Name == "" {
		return ""
	}
	return strings.ToUpper(d.Name[:1]) + d.Name[1:]
}

// TxURL links a transaction hash on the network's explorer.
func (d *Descriptor) TxURL(hash string) string {
	return strings.TrimRight(d.Explorer, "/") + txPath + hash
}

// AddressURL links an account on the network's explorer.
func (d *Descriptor) AddressURL(address string) string {
	return strings.TrimRight(d.Explorer, "/") + addressPath + address
}

// IsEIP1559 reports whether the network uses the base fee + priority fee market.
func (d *Descriptor) IsEIP1559() bool {
	return d.FeeModel == FeeModelEIP1559
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
