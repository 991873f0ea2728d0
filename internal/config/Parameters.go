/*

This file contains the default parameters of the yield engine.

They mirror the constants of the Curve gauge system and the harvest cadence
of the vaults. Changing them changes every reported APY.

*/

package config

import (
	"github.com/elys-network/vault-apy/internal/types"
)

// DefaultEngineParameters provides the protocol constants used by the yield engine.
var DefaultEngineParameters = types.EngineParameters{
	MaxBoost: 2.5, // Maximum veCRV boost on gauge emissions.
	// The inverse (0.4) is the share of a deposit counted as working supply without any boost.

	CompoundingPeriodsPerYear: 52, // Farmed rewards are harvested and reinvested weekly.

	PoolCompoundingPeriodsPerYear: 365, // Pool fee yield accrues into the virtual price continuously, sampled daily.

	FeeDenominator: 10000, // Fees are basis points.

	SecondsPerYear: 31557600, // 365.25 days.

	SamplingWindowSeconds: 86400, // Look back one day for virtual price and price per share.

	TokenDecimals: 18, // Virtual prices, inflation rates, weights and supplies are 1e18 scaled.
}
