package types

// Block is the minimal header information the estimators need.
type Block struct {
	Number    uint64 `json:"number"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

// EngineParameters holds the protocol constants used by the yield engine.
// They are read-only configuration shared by every computation.
type EngineParameters struct {
	MaxBoost                      float64 `json:"max_boost"`                         // Maximum gauge boost (2.5 for Curve).
	CompoundingPeriodsPerYear     uint64  `json:"compounding_periods_per_year"`      // Harvest/reinvest events per year for farmed yield.
	PoolCompoundingPeriodsPerYear uint64  `json:"pool_compounding_periods_per_year"` // Sampling windows per year for pool fee yield.
	FeeDenominator                int64   `json:"fee_denominator"`                   // Fixed-point scale of fee values (10000 = 100%).
	SecondsPerYear                int64   `json:"seconds_per_year"`                  // Length of a year used for annualizing reward rates.
	SamplingWindowSeconds         int64   `json:"sampling_window_seconds"`           // Look-back window for virtual price samples.
	TokenDecimals                 int     `json:"token_decimals"`                    // Scale of on-chain rates, supplies and virtual prices.
}
