package rewards

import (
	"context"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/vault-apy/internal/chain"
	"github.com/elys-network/vault-apy/internal/logger"
	"github.com/elys-network/vault-apy/internal/metrics"
	"github.com/elys-network/vault-apy/internal/types"
	"github.com/elys-network/vault-apy/internal/utils"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const nullAddress = chain.NullAddress

// maxRewardTokens bounds the rewardTokens(i) walk on contracts that never return the null address.
const maxRewardTokens = 32

// PriceSource returns USD prices; (nil, nil) means the asset has no price.
type PriceSource interface {
	Price(ctx context.Context, asset string) (*types.PriceQuote, error)
}

// Accountant turns reward contracts into an APR contribution.
type Accountant struct {
	reader         chain.Reader
	prices         PriceSource
	secondsPerYear int64
	now            func() time.Time
	metrics        *metrics.Collector
	logger         zerolog.Logger
}

// NewAccountant creates an accountant.
func NewAccountant(reader chain.Reader, prices PriceSource, params types.EngineParameters, m *metrics.Collector) *Accountant {
	return &Accountant{
		reader:         reader,
		prices:         prices,
		secondsPerYear: params.SecondsPerYear,
		now:            time.Now,
		metrics:        m,
		logger:         logger.GetForComponent("reward_accountant"),
	}
}

// WithClock replaces the wall clock, used to decide whether streams expired.
func (a *Accountant) WithClock(now func() time.Time) *Accountant {
	a.now = now
	return a
}

// DetectRewardModel probes the contract at address and classifies it.
func (a *Accountant) DetectRewardModel(ctx context.Context, address string) RewardModel {
	contract := chain.NewContract(a.reader, address)

	periodFinish, err := contract.Uint(ctx, "periodFinish()")
	if err == nil {
		single := a.detectSingle(ctx, contract, periodFinish)
		// A paying staking contract without a token getter lists its tokens in rewardTokens.
		if single.RewardToken == "" && single.Rate.Sign() > 0 && single.Active(a.now().Unix()) {
			if first, err := contract.AddressResult(ctx, "rewardTokens(uint256)", chain.EncodeUint64(0)); err == nil && first != nullAddress {
				return a.detectMulti(ctx, contract, first)
			}
		}
		return single
	}

	first, err := contract.AddressResult(ctx, "rewardTokens(uint256)", chain.EncodeUint64(0))
	if err != nil {
		a.logger.Debug().Str("contract", address).Msg("Reward contract exposes no known stream")
		return NoStream{}
	}
	return a.detectMulti(ctx, contract, first)
}

func (a *Accountant) detectSingle(ctx context.Context, contract chain.Contract, periodFinish *big.Int) SingleStream {
	var rewardToken, rewardsToken, snx string
	rate, supply := new(big.Int), new(big.Int)

	// Every probe may fail on contracts that do not expose it; failures read as absent or 0.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rewardToken, _ = contract.AddressResult(gctx, "rewardToken()")
		return nil
	})
	g.Go(func() error {
		rewardsToken, _ = contract.AddressResult(gctx, "rewardsToken()")
		return nil
	})
	g.Go(func() error {
		snx, _ = contract.AddressResult(gctx, "snx()")
		return nil
	})
	g.Go(func() error {
		if v, err := contract.Uint(gctx, "rewardRate()"); err == nil {
			rate = v
		} else {
			a.metrics.DegradedRead("reward_rate")
		}
		return nil
	})
	g.Go(func() error {
		if v, err := contract.Uint(gctx, "totalSupply()"); err == nil {
			supply = v
		} else {
			a.metrics.DegradedRead("reward_supply")
		}
		return nil
	})
	_ = g.Wait()

	return SingleStream{
		Address:      contract.Address(),
		PeriodFinish: clampUnix(periodFinish),
		RewardToken:  firstPresent(rewardToken, rewardsToken, snx),
		Rate:         rate,
		TotalSupply:  supply,
	}
}

func (a *Accountant) detectMulti(ctx context.Context, contract chain.Contract, first string) MultiStream {
	supply, err := contract.Uint(ctx, "totalSupply()")
	if err != nil {
		a.metrics.DegradedRead("reward_supply")
		supply = new(big.Int)
	}

	tokens := []string{}
	for i, token := uint64(0), first; ; {
		if token == "" || token == nullAddress {
			break
		}
		tokens = append(tokens, token)
		i++
		if i >= maxRewardTokens {
			a.logger.Warn().Str("contract", contract.Address()).Msg("Reward token list did not terminate, truncating")
			break
		}
		next, err := contract.AddressResult(ctx, "rewardTokens(uint256)", chain.EncodeUint64(i))
		if err != nil {
			break
		}
		token = next
	}

	streams := make([]RewardTokenStream, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			streams[i] = a.readRewardData(gctx, contract, token)
			return nil
		})
	}
	_ = g.Wait()

	return MultiStream{Address: contract.Address(), TotalSupply: supply, Tokens: streams}
}

// readRewardData decodes rewardData(token):
// (rewardsDistributor, rewardsDuration, periodFinish, rewardRate, lastUpdateTime, rewardPerTokenStored).
func (a *Accountant) readRewardData(ctx context.Context, contract chain.Contract, token string) RewardTokenStream {
	stream := RewardTokenStream{Token: token, Rate: new(big.Int)}
	out, err := contract.Raw(ctx, nil, "rewardData(address)", chain.EncodeAddress(token))
	if err != nil {
		a.metrics.DegradedRead("reward_data")
		a.logger.Debug().Err(err).Str("token", token).Msg("Failed to read reward data, treating stream as expired")
		return stream
	}
	if finish, err := chain.DecodeUint256(out, 2); err == nil {
		stream.PeriodFinish = clampUnix(finish)
	}
	if rate, err := chain.DecodeUint256(out, 3); err == nil {
		stream.Rate = rate
	}
	return stream
}

// CalculateRewardsApr detects the reward model at address and returns its APR.
// virtualPrice is the pool virtual price as a decimal (1.0 at launch), basePrice the USD price of the pool base asset.
func (a *Accountant) CalculateRewardsApr(ctx context.Context, address string, virtualPrice sdkmath.LegacyDec, basePrice float64) sdkmath.LegacyDec {
	return a.ModelApr(ctx, a.DetectRewardModel(ctx, address), virtualPrice, basePrice)
}

// ModelApr returns the APR contributed by an already detected model.
func (a *Accountant) ModelApr(ctx context.Context, model RewardModel, virtualPrice sdkmath.LegacyDec, basePrice float64) sdkmath.LegacyDec {
	now := a.now().Unix()
	base := utils.DecFromFloat64OrZero(basePrice)

	switch m := model.(type) {
	case SingleStream:
		if !m.Active(now) {
			return sdkmath.LegacyZeroDec()
		}
		if m.Rate == nil || m.Rate.Sign() == 0 || m.RewardToken == "" {
			return sdkmath.LegacyZeroDec()
		}
		return a.streamApr(m.Rate, a.tokenPrice(ctx, m.RewardToken), m.TotalSupply, virtualPrice, base)

	case MultiStream:
		terms := make([]sdkmath.LegacyDec, len(m.Tokens))
		g, gctx := errgroup.WithContext(ctx)
		for i, stream := range m.Tokens {
			i, stream := i, stream
			terms[i] = sdkmath.LegacyZeroDec()
			if !stream.Active(now) {
				continue
			}
			g.Go(func() error {
				terms[i] = a.streamApr(stream.Rate, a.tokenPrice(gctx, stream.Token), m.TotalSupply, virtualPrice, base)
				return nil
			})
		}
		_ = g.Wait()

		total := sdkmath.LegacyZeroDec()
		for _, t := range terms {
			total = total.Add(t)
		}
		return total

	default:
		return sdkmath.LegacyZeroDec()
	}
}

// streamApr is secondsPerYear * rate * price / (virtualPrice * supply * basePrice).
// rate and supply share the same 1e18 scale, so it cancels.
func (a *Accountant) streamApr(rate *big.Int, price sdkmath.LegacyDec, supply *big.Int, virtualPrice, base sdkmath.LegacyDec) (apr sdkmath.LegacyDec) {
	if price.IsZero() || rate == nil || rate.Sign() == 0 || virtualPrice.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn().Interface("panic", r).Msg("Reward APR overflowed, dropping term")
			apr = sdkmath.LegacyZeroDec()
		}
	}()
	numerator := sdkmath.LegacyNewDec(a.secondsPerYear).Mul(utils.BigIntToDec(rate)).Mul(price)
	denominator := virtualPrice.Mul(utils.BigIntToDec(supply)).Mul(base)
	return utils.QuoOrZero(numerator, denominator)
}

// tokenPrice returns the USD price of token, zero when unknown or unreachable.
func (a *Accountant) tokenPrice(ctx context.Context, token string) sdkmath.LegacyDec {
	quote, err := a.prices.Price(ctx, token)
	if err != nil {
		a.metrics.DegradedRead("price")
		a.logger.Warn().Err(err).Str("token", token).Msg("Reward token price unavailable")
		return sdkmath.LegacyZeroDec()
	}
	if quote == nil {
		return sdkmath.LegacyZeroDec()
	}
	return utils.DecFromFloat64OrZero(quote.USD)
}

func clampUnix(v *big.Int) int64 {
	if v == nil {
		return 0
	}
	if !v.IsInt64() {
		return 1<<63 - 1
	}
	return v.Int64()
}
