/*

Fee schedules are kept exactly as read on-chain: fixed-point integers scaled by
the fee denominator (10000 = 100%). Converting to fractions happens in the fee
waterfall and nowhere else.

*/

package types

// GeneralFees are the vault level fees.
type GeneralFees struct {
	PerformanceFee int64 `json:"performanceFee"` // e.g., 2000 = 20%
	ManagementFee  int64 `json:"managementFee"`  // e.g., 200 = 2%, ignored for v1 vaults
}

// SpecialFees are protocol specific fees. KeepCrv is nil when the strategy
// does not expose it.
type SpecialFees struct {
	KeepCrv *int64 `json:"keepCrv,omitempty"` // share of CRV emissions retained by the protocol
}

// FeeSchedule is the resolved fee configuration of a vault.
type FeeSchedule struct {
	General GeneralFees `json:"general"`
	Special SpecialFees `json:"special"`
}

// KeepCrvOrZero returns the keepCrv value treating an absent value as zero.
func (f FeeSchedule) KeepCrvOrZero() int64 {
	if f.Special.KeepCrv == nil {
		return 0
	}
	return *f.Special.KeepCrv
}
