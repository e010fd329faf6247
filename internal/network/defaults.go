package network

// Defaults are the networks the Polyhedra 2024 campaign was deployed on.
func Defaults() []Definition {
	return []Definition{
		{
			Name:         "ethereum",
			RPCs:         []string{"https://rpc.ankr.com/eth"},
			ChainID:      1,
			FeeModel:     FeeModelEIP1559,
			CoinSymbol:   "ETH",
			CoinDecimals: Decimals(18),
			Explorer:     "https://etherscan.io",
		},
		{
			Name:         "arbitrum",
			RPCs:         []string{"https://rpc.ankr.com/arbitrum", "https://arb1.arbitrum.io/rpc"},
			ChainID:      42161,
			FeeModel:     FeeModelEIP1559,
			CoinSymbol:   "ETH",
			CoinDecimals: Decimals(18),
			Explorer:     "https://arbiscan.io",
		},
		{
			Name:         "bsc",
			RPCs:         []string{"https://rpc.ankr.com/bsc"},
			ChainID:      56,
			FeeModel:     FeeModelLegacy,
			CoinSymbol:   "BNB",
			CoinDecimals: Decimals(18),
			Explorer:     "https://bscscan.com",
		},
		{
			Name:         "optimism",
			RPCs:         []string{"https://rpc.ankr.com/optimism"},
			ChainID:      10,
			FeeModel:     FeeModelEIP1559,
			CoinSymbol:   "ETH",
			CoinDecimals: Decimals(18),
			Explorer:     "https://optimistic.etherscan.io",
		},
		{
			Name: "op_bnb",
			RPCs: []string{
				"https://opbnb-mainnet-rpc.bnbchain.org",
				"https://opbnb-rpc.publicnode.com",
			},
			ChainID:      204,
			FeeModel:     FeeModelLegacy,
			CoinSymbol:   "BNB",
			CoinDecimals: Decimals(18),
			Explorer:     "https://mainnet.opbnbscan.com",
		},
		{
			Name:         "polygon",
			RPCs:         []string{"https://rpc.ankr.com/polygon"},
			ChainID:      137,
			FeeModel:     FeeModelEIP1559,
			CoinSymbol:   "MATIC",
			CoinDecimals: Decimals(18),
			Explorer:     "https://polygonscan.com",
		},
	}
}
