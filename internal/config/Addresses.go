package config

import "strings"

// Well-known mainnet contract addresses.
const (
	USDCAddress  = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	USDCDecimals = 6

	// QuoteAddress is the on-chain price router used for token-to-token quotes.
	QuoteAddress = "0x89ECCe31817c2B98479Ba36694810c4497ADA361"
	// CurveRegistryAddress resolves pools and gauges for Curve LP tokens.
	CurveRegistryAddress = "0x90E00ACe148ca3b23Ac1bC8C240C2a7Dd9c2d7f5"
	// YearnVoterAddress holds the veCRV balance boosting every yearn Curve strategy.
	YearnVoterAddress = "0xF147b8125d2ef93FB6965Db97D6746952a133934"

	CRVAddress    = "0xD533a949740bb3306d119CC777fa900bA034cd52"
	WBTCAddress   = "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"
	RenBTCAddress = "0xEB4C2781e4ebA804CE9a9803C67d0893436bB27D"
	SBTCAddress   = "0xfE18be6b3Bd88A2D2A7f928d00292E7a9963CfC6"
	WETHAddress   = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	SETHAddress   = "0x5e74C9036fb86BD7eCdcb084a0673EFc32eA31cb"
	STETHAddress  = "0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84"

	// ETHPlaceholder is the pseudo address Curve pools use for native ether.
	ETHPlaceholder = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

	NullAddress = "0x0000000000000000000000000000000000000000"
)

// BTCLikeAssets are priced as WBTC when selecting a pool's base asset.
var BTCLikeAssets = []string{WBTCAddress, RenBTCAddress, SBTCAddress}

// ETHLikeAssets are priced as WETH when selecting a pool's base asset.
var ETHLikeAssets = []string{ETHPlaceholder, SETHAddress, STETHAddress, WETHAddress}

// PriceAliases maps an asset to the asset whose price it carries.
// Keys and values are lowercase.
var PriceAliases = map[string]string{
	strings.ToLower(ETHPlaceholder): strings.ToLower(WETHAddress),
}

// IsBTCLike reports whether address is one of BTCLikeAssets.
func IsBTCLike(address string) bool {
	return containsAddress(BTCLikeAssets, address)
}

// IsETHLike reports whether address is one of ETHLikeAssets.
func IsETHLike(address string) bool {
	return containsAddress(ETHLikeAssets, address)
}

func containsAddress(list []string, address string) bool {
	for _, a := range list {
		if strings.EqualFold(a, address) {
			return true
		}
	}
	return false
}
