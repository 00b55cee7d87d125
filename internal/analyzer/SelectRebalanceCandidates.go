package analyzer

import "github.com/elys-network/rebalancer/internal/types"

// MinRebalanceBalance is the dust floor below which moving capital is not worthwhile (0.05 unit).
const MinRebalanceBalance uint64 = 50_000_000

// IsRebalanceEligible reports whether a strategy is active, funded above the dust floor and
// ranked strictly below the threshold.
func IsRebalanceEligible(strategy types.Strategy, threshold uint8) bool {
	return strategy.IsActive() &&
		strategy.CurrentBalance >= MinRebalanceBalance &&
		strategy.PercentileRank < threshold
}

// SelectRebalanceCandidates returns the ids of eligible strategies in input order.
func SelectRebalanceCandidates(strategies []types.Strategy, threshold uint8) []types.StrategyID {
	candidates := make([]types.StrategyID, 0)
	for _, s := range strategies {
		if IsRebalanceEligible(s, threshold) {
			candidates = append(candidates, s.ID)
		}
	}
	return candidates
}
