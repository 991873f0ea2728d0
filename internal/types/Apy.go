/*

Computed yield results and the cached representation written by the exporter.

*/

package types

import "time"

// Names of the component figures found in Apy.Data.
const (
	ApyDataCurrentBoost    = "currentBoost"
	ApyDataTotalApy        = "totalApy"
	ApyDataPoolApy         = "poolApy"
	ApyDataBoostedApr      = "boostedApr"
	ApyDataBaseApr         = "baseApr"
	ApyDataNetApy          = "netApy"
	ApyDataTokenRewardsApr = "tokenRewardsApr"
	ApyDataGrossFarmedApy  = "grossFarmedApy"
	ApyDataKeepCrv         = "keepCrv"
	ApyDataPerformanceFee  = "performanceFee"
	ApyDataManagementFee   = "managementFee"
	ApyDataOneDaySample    = "oneDaySample"
)

// Apy is the externally reported yield of a vault.
type Apy struct {
	Recommended float64            `json:"recommended"` // headline net APY, 0 when no data
	Type        string             `json:"type"`        // e.g., "curve"
	Composite   bool               `json:"composite"`   // true when built from several yield sources
	Description string             `json:"description"` // e.g., "Pool APY + Boosted CRV APY"
	Data        map[string]float64 `json:"data"`        // named component figures
}

// EmptyApy is the structurally valid "no yield data" result.
func EmptyApy(kind, description string) Apy {
	return Apy{
		Recommended: 0,
		Type:        kind,
		Composite:   false,
		Description: description,
		Data:        map[string]float64{},
	}
}

// PriceQuote is a USD price for one asset.
type PriceQuote struct {
	USD float64 `json:"usd"`
}

// CachedVault is the stored form of a vault with its latest computed yield.
type CachedVault struct {
	Vault
	Apy         *Apy     `json:"apy"`
	DisplayName string   `json:"displayName"`
	Icon        *string  `json:"icon"`
	Updated     int64    `json:"updated"` // unix seconds
	TVL         *float64 `json:"tvl"`
}

// NewCachedVault wraps a vault and its yield for storage.
func NewCachedVault(vault Vault, apy *Apy, now time.Time) CachedVault {
	displayName := vault.Name
	if displayName == "" {
		displayName = vault.Symbol
	}
	return CachedVault{
		Vault:       vault,
		Apy:         apy,
		DisplayName: displayName,
		Updated:     now.Unix(),
	}
}
