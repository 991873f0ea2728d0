/*

Vault snapshots as handed over by the resolver. The engine only reads them;
every computation request builds a fresh snapshot.

*/

package types

import "strings"

// VaultType is the protocol family tag of a vault, it drives fee interpretation.
type VaultType string

const (
	VaultTypeV1 VaultType = "v1"
	VaultTypeV2 VaultType = "v2"
)

// Protocol selects the yield calculator used for a vault.
type Protocol string

const (
	ProtocolCurve         Protocol = "curve"
	ProtocolPricePerShare Protocol = "pricePerShare"
)

// Token is the deposit (want) token of a vault.
type Token struct {
	Address  string `json:"address"`  // e.g., "0x6c3F90f043a72FA612cbac8115EE7e52BDe6E490" (3Crv)
	Name     string `json:"name"`     // e.g., "Curve.fi DAI/USDC/USDT"
	Symbol   string `json:"symbol"`   // e.g., "3Crv"
	Decimals int    `json:"decimals"` // e.g., 18
}

// Strategy is one entry of a vault's withdrawal queue.
type Strategy struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Vault is an immutable, fully resolved vault snapshot.
type Vault struct {
	Address           string      `json:"address"`
	Name              string      `json:"name"`
	Symbol            string      `json:"symbol"`
	Decimals          int         `json:"decimals"`
	Token             Token       `json:"token"`
	Strategies        []Strategy  `json:"strategies"` // ordered by withdrawal priority
	Fees              FeeSchedule `json:"fees"`
	Type              VaultType   `json:"type"`
	Protocol          Protocol    `json:"protocol"`
	Pool              string      `json:"pool,omitempty"`  // underlying pool, resolved from the registry when empty
	Gauge             string      `json:"gauge,omitempty"` // staking gauge, resolved from the registry when empty
	APIVersion        string      `json:"apiVersion,omitempty"`
	EmergencyShutdown bool        `json:"emergencyShutdown"`
}

// StrategyAddresses returns the strategy addresses in withdrawal order.
func (v Vault) StrategyAddresses() []string {
	out := make([]string, 0, len(v.Strategies))
	for _, s := range v.Strategies {
		out = append(out, s.Address)
	}
	return out
}

// Key is the normalized identity used for storage and override lookups.
func (v Vault) Key() string {
	return NormalizeAddress(v.Address)
}

// NormalizeAddress lowercases a hex address so checksummed and plain forms compare equal.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress reports whether two hex addresses are equal ignoring checksum case.
func SameAddress(a, b string) bool {
	return NormalizeAddress(a) == NormalizeAddress(b)
}
