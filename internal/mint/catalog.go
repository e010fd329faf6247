package mint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownCampaign = errors.New("unknown mint campaign")
	ErrUnsupported     = errors.New("campaign is not deployed on network")
)

// PolyhedraCampaign is the built-in campaign.
const PolyhedraCampaign = "Polyhedra 2024"

// mint() selector
var polyhedraMintData = common.FromHex("0x1249c58b")

// Campaign is one NFT drop: the same call data sent to a per-network contract.
type Campaign struct {
	Name      string
	Data      []byte
	Contracts map[string]common.Address
	// GasPrices are per-network overrides in gwei.
	GasPrices map[string]decimal.Decimal
}

// Catalog maps campaign names to their deployments. Names are case-insensitive. It is
// safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	campaigns map[string]*Campaign
}

func NewCatalog() *Catalog {
	return &Catalog{campaigns: make(map[string]*Campaign)}
}

// DefaultCatalog knows the Polyhedra 2024 deployments.
func DefaultCatalog() *Catalog {
	c := NewCatalog()
	c.Add(Campaign{
		Name: PolyhedraCampaign,
		Data: polyhedraMintData,
		Contracts: map[string]common.Address{
			"arbitrum": common.HexToAddress("0x5d340658400e1d2352262c7c361ace0366bf6c24"),
			"bsc":      common.HexToAddress("0x7c3aa07721578d00babdebf17c3352d7658b67fd"),
			"ethereum": common.HexToAddress("0xb7545014a3973b0d27a65ee76d1a5ee29d37b1c9"),
			"op_bnb":   common.HexToAddress("0x61d7e121185b1d7902a3da7f3c8ac9faaee8863b"),
			"optimism": common.HexToAddress("0xee7c3d2ff9ef8dbf3e66704a156d3ee9700cf72e"),
			"polygon":  common.HexToAddress("0xCd4b2E538c9D2C1ca117C8f5f2E8Fa56f6bA1069"),
		},
		GasPrices: map[string]decimal.Decimal{
			"bsc":    decimal.NewFromInt(1),
			"op_bnb": decimal.RequireFromString("0.00002"),
		},
	})
	return c
}

// Add registers a campaign, merging into an existing one of the same name. Fields of
// the new value win.
func (c *Catalog) Add(camp Campaign) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := normalize(camp.Name)
	existing, ok := c.campaigns[key]
	if !ok {
		existing = &Campaign{
			Name:      camp.Name,
			Contracts: make(map[string]common.Address),
			GasPrices: make(map[string]decimal.Decimal),
		}
		c.campaigns[key] = existing
	}
	if len(camp.Data) > 0 {
		existing.Data = common.CopyBytes(camp.Data)
	}
	for n, addr := range camp.Contracts {
		existing.Contracts[normalize(n)] = addr
	}
	for n, price := range camp.GasPrices {
		existing.GasPrices[normalize(n)] = price
	}
}

// Apply merges a configured campaign given as strings. Gas prices are gwei.
func (c *Catalog) Apply(name, data string, contracts, gasPrices map[string]string) error {
	camp := Campaign{
		Name:      name,
		Contracts: make(map[string]common.Address, len(contracts)),
		GasPrices: make(map[string]decimal.Decimal, len(gasPrices)),
	}
	if data != "" {
		raw, err := hexutil.Decode(data)
		if err != nil {
			return fmt.Errorf("campaign %s: data: %w", name, err)
		}
		camp.Data = raw
	}
	for n, addr := range contracts {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("campaign %s: %s: invalid contract address %q", name, n, addr)
		}
		camp.Contracts[n] = common.HexToAddress(addr)
	}
	for n, price := range gasPrices {
		d, err := decimal.NewFromString(price)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("campaign %s: %s: invalid gas price %q", name, n, price)
		}
		camp.GasPrices[n] = d
	}
	c.Add(camp)
	return nil
}

// Lookup returns the target contract and call data for a campaign on a network.
func (c *Catalog) Lookup(campaign, network string) (common.Address, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	camp, ok := c.campaigns[normalize(campaign)]
	if !ok {
		return common.Address{}, nil, fmt.Errorf("%w: %q", ErrUnknownCampaign, campaign)
	}
	addr, ok := camp.Contracts[normalize(network)]
	if !ok || len(camp.Data) == 0 {
		return common.Address{}, nil, fmt.Errorf("%w: %q on %s", ErrUnsupported, campaign, network)
	}
	return addr, common.CopyBytes(camp.Data), nil
}

// GasPrice returns the gwei override for a campaign on a network, if any.
func (c *Catalog) GasPrice(campaign, network string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	camp, ok := c.campaigns[normalize(campaign)]
	if !ok {
		return decimal.Decimal{}, false
	}
	price, ok := camp.GasPrices[normalize(network)]
	return price, ok
}

// Networks lists where a campaign is deployed, sorted.
func (c *Catalog) Networks(campaign string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	camp, ok := c.campaigns[normalize(campaign)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(camp.Contracts))
	for n := range camp.Contracts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
