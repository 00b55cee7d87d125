/*

This file contains the volatility-driven rebalance threshold. Calm markets lower the threshold so
smaller deviations trigger a rebalance; volatile markets raise it to avoid churn.

*/

package analyzer

import (
	"errors"
	"fmt"

	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/elys-network/rebalancer/internal/utils"
)

var thresholdLogger = logger.GetForComponent("threshold_calculator")

var ErrInsufficientStrategies = errors.New("insufficient strategies")

const (
	BaseThreshold       uint8 = 15
	MinDynamicThreshold uint8 = 10
	MaxDynamicThreshold uint8 = 40
	// Volatility adds up to this many percentage points on top of the base threshold.
	VolatilityThresholdRange uint32 = 20
	maxAverageVolatility     uint32 = 100
)

// CalculateAverageVolatility returns the mean volatility of the given records as a percent (0-100).
// Each score is truncated to a whole percent before averaging. Callers pass active strategies only.
func CalculateAverageVolatility(strategies []types.StrategyPerformance) (uint32, error) {
	if len(strategies) == 0 {
		return 0, fmt.Errorf("%w: no strategies to average volatility over", ErrInsufficientStrategies)
	}

	var total uint64
	for _, s := range strategies {
		var err error
		if total, err = utils.CheckedAdd(total, uint64(s.VolatilityScore/100)); err != nil {
			return 0, err
		}
	}

	average := total / uint64(len(strategies))
	if average > uint64(maxAverageVolatility) {
		average = uint64(maxAverageVolatility)
	}
	return uint32(average), nil
}

// CalculateDynamicThreshold returns 15 + avgVolatility*20/100, clamped to [10, 40].
func CalculateDynamicThreshold(strategies []types.StrategyPerformance) (uint8, error) {
	avgVolatility, err := CalculateAverageVolatility(strategies)
	if err != nil {
		return 0, err
	}

	adjustment := avgVolatility * VolatilityThresholdRange / 100
	threshold := uint32(BaseThreshold) + adjustment
	threshold = max(threshold, uint32(MinDynamicThreshold))
	threshold = min(threshold, uint32(MaxDynamicThreshold))

	thresholdLogger.Debug().
		Int("strategies", len(strategies)).
		Uint32("avgVolatility", avgVolatility).
		Uint32("threshold", threshold).
		Msg("Calculated dynamic threshold")

	return uint8(threshold), nil
}

// SelectThreshold returns the threshold a cycle ranks and plans against: the dynamic threshold of
// the active records, or the configured threshold when the portfolio runs in legacy mode.
func SelectThreshold(portfolio types.Portfolio, strategies []types.StrategyPerformance) (uint8, error) {
	if portfolio.LegacyFixedThreshold {
		if err := types.ValidateRebalanceThreshold(portfolio.RebalanceThreshold); err != nil {
			return 0, err
		}
		return portfolio.RebalanceThreshold, nil
	}
	active := make([]types.StrategyPerformance, 0, len(strategies))
	for _, s := range strategies {
		if s.Status == types.StrategyActive {
			active = append(active, s)
		}
	}
	return CalculateDynamicThreshold(active)
}
