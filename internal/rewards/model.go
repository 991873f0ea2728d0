/*

Reward contracts come in two shapes. The classic staking contract pays one
token at a fixed rate until periodFinish. The multi-reward contract keeps a
list of reward tokens, each with its own rate and periodFinish, and a shared
total supply. DetectRewardModel probes a contract once and returns one of
the variants below; the APR math only ever switches on the variant.

*/

package rewards

import "math/big"

// RewardModel is one of SingleStream, MultiStream or NoStream.
type RewardModel interface {
	rewardModel()
}

// SingleStream is a fixed-rate staking contract paying one token.
type SingleStream struct {
	Address      string
	PeriodFinish int64    // unix seconds
	RewardToken  string   // empty when no token getter answered
	Rate         *big.Int // reward tokens per second, 1e18 scaled
	TotalSupply  *big.Int // staked LP tokens, 1e18 scaled
}

// RewardTokenStream is one token of a MultiStream.
type RewardTokenStream struct {
	Token        string
	Rate         *big.Int
	PeriodFinish int64
}

// MultiStream is a multi-reward contract.
type MultiStream struct {
	Address     string
	TotalSupply *big.Int
	Tokens      []RewardTokenStream // in slot order
}

// NoStream is a contract exposing neither shape.
type NoStream struct{}

func (SingleStream) rewardModel() {}
func (MultiStream) rewardModel()  {}
func (NoStream) rewardModel()     {}

// Active reports whether the stream still pays at now.
func (s SingleStream) Active(now int64) bool {
	return s.PeriodFinish >= now
}

// Active reports whether the token stream still pays at now.
func (s RewardTokenStream) Active(now int64) bool {
	return s.PeriodFinish >= now
}

// firstPresent returns the first candidate that is a usable address.
func firstPresent(candidates ...string) string {
	for _, c := range candidates {
		if c != "" && c != nullAddress {
			return c
		}
	}
	return ""
}
