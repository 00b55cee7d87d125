/*

This file contains the composite performance score for a strategy: yield, balance and inverse
volatility are normalized to a 0-10000 scale and combined with fixed weights.

*/

package analyzer

import (
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/elys-network/rebalancer/internal/utils"
)

var scoreLogger = logger.GetForComponent("performance_scorer")

var ErrInvalidPerformanceUpdate = errors.New("invalid performance update")

// Score weights in basis points of the final score.
const (
	YieldWeightBps      uint64 = 4500
	BalanceWeightBps    uint64 = 3500
	VolatilityWeightBps uint64 = 2000

	// Balances below the floor scale linearly to 1000, balances at or above the cap score 10000.
	BalanceScoreFloor  uint64 = 100_000_000     // 0.1 unit
	BalanceScoreCap    uint64 = 100_000_000_000 // 100 units
	belowFloorMaxScore uint64 = 1000
)

// CalculatePerformanceScore combines yield (bps), balance (lamports) and volatility (0-10000)
// into a score in [0, 10000]. Inputs above their range are clamped before weighting.
func CalculatePerformanceScore(yieldRate, balance uint64, volatility uint32) (uint64, error) {
	yieldScore, err := utils.MulDiv(min(yieldRate, types.MaxYieldRateBps), types.MaxPerformanceScore, types.MaxYieldRateBps)
	if err != nil {
		return 0, errors.Join(utils.ErrBalanceOverflow, err)
	}

	balanceScore, err := NormalizeBalance(balance)
	if err != nil {
		return 0, errors.Join(utils.ErrBalanceOverflow, err)
	}

	inverseVolatility := uint64(types.MaxVolatilityScore - min(volatility, types.MaxVolatilityScore))

	components := [3]struct {
		value, weight uint64
	}{
		{yieldScore, YieldWeightBps},
		{balanceScore, BalanceWeightBps},
		{inverseVolatility, VolatilityWeightBps},
	}

	var score uint64
	for _, c := range components {
		weighted, err := utils.CheckedMul(c.value, c.weight)
		if err != nil {
			return 0, errors.Join(utils.ErrBalanceOverflow, err)
		}
		if score, err = utils.CheckedAdd(score, weighted/types.BasisPoints); err != nil {
			return 0, errors.Join(utils.ErrBalanceOverflow, err)
		}
	}

	scoreLogger.Debug().
		Uint64("yieldScore", yieldScore).
		Uint64("balanceScore", balanceScore).
		Uint64("inverseVolatility", inverseVolatility).
		Uint64("score", score).
		Msg("Calculated performance score")

	return score, nil
}

// NormalizeBalance maps a balance onto 0-10000. Between the floor and the cap the scale is
// logarithmic so that a single large strategy cannot dominate the balance component.
func NormalizeBalance(balance uint64) (uint64, error) {
	switch {
	case balance == 0:
		return 0, nil
	case balance >= BalanceScoreCap:
		return types.MaxPerformanceScore, nil
	case balance < BalanceScoreFloor:
		return utils.MulDiv(balance, belowFloorMaxScore, BalanceScoreFloor)
	}

	logBalance, err := utils.Log2Fixed(balance)
	if err != nil {
		return 0, err
	}
	logFloor, err := utils.Log2Fixed(BalanceScoreFloor)
	if err != nil {
		return 0, err
	}
	logCap, err := utils.Log2Fixed(BalanceScoreCap)
	if err != nil {
		return 0, err
	}
	return utils.MulDiv(utils.SaturatingSub(logBalance, logFloor), types.MaxPerformanceScore, logCap-logFloor)
}

// ApplyPerformanceUpdate validates a metrics update for an active strategy and returns a copy
// with the new metrics and recomputed score. The input strategy is not modified.
func ApplyPerformanceUpdate(strategy types.Strategy, update types.PerformanceUpdate, now time.Time) (types.Strategy, error) {
	if !strategy.IsActive() {
		return strategy, fmt.Errorf("%w: strategy %s is %s", types.ErrStrategyNotActive, strategy.ID.Short(), strategy.Status)
	}
	if err := update.Validate(); err != nil {
		return strategy, errors.Join(ErrInvalidPerformanceUpdate, err)
	}

	score, err := CalculatePerformanceScore(update.YieldRate, update.CurrentBalance, update.VolatilityScore)
	if err != nil {
		scoreLogger.Error().
			Str("strategy", strategy.ID.Short()).
			Err(err).
			Msg("Failed to score performance update")
		return strategy, err
	}

	updated := strategy
	updated.YieldRate = update.YieldRate
	updated.VolatilityScore = update.VolatilityScore
	updated.CurrentBalance = update.CurrentBalance
	updated.PerformanceScore = score
	updated.LastUpdated = now

	scoreLogger.Info().
		Str("strategy", strategy.ID.Short()).
		Uint64("yieldRate", update.YieldRate).
		Uint32("volatility", update.VolatilityScore).
		Uint64("balance", update.CurrentBalance).
		Uint64("score", score).
		Msg("Performance updated")

	return updated, nil
}
