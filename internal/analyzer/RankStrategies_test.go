package analyzer

import (
	"testing"
	"time"

	"github.com/elys-network/rebalancer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranksByID(outcome RankingOutcome) map[types.StrategyID]uint8 {
	ranks := make(map[types.StrategyID]uint8, len(outcome.Ranked))
	for _, r := range outcome.Ranked {
		ranks[r.ID] = r.PercentileRank
	}
	return ranks
}

func TestRankStrategiesFourStrategies(t *testing.T) {
	input := []types.StrategyPerformance{
		record(3, 5000, 2_000_000_000, 3000),
		record(1, 9500, 10_000_000_000, 1000),
		record(4, 2500, 1_000_000_000, 4000),
		record(2, 7500, 5_000_000_000, 2000),
	}

	outcome, err := RankStrategies(input, 23)
	require.NoError(t, err)

	ranks := ranksByID(outcome)
	assert.Equal(t, uint8(100), ranks[testID(1)])
	assert.Equal(t, uint8(66), ranks[testID(2)])
	assert.Equal(t, uint8(33), ranks[testID(3)])
	assert.Equal(t, uint8(0), ranks[testID(4)])
	assert.Equal(t, []types.StrategyID{testID(4)}, outcome.Underperformers)

	assert.Equal(t, uint8(0), input[0].PercentileRank, "input records must not be modified")
	assert.Equal(t, testID(3), input[0].ID)
}

func TestRankStrategiesTieBreaks(t *testing.T) {
	input := []types.StrategyPerformance{
		record(1, 5000, 1_000_000_000, 2000),
		record(2, 5000, 3_000_000_000, 9000), // same score, more capital
		record(3, 5000, 1_000_000_000, 1000), // same score and capital, less volatile
	}

	outcome, err := RankStrategies(input, 10)
	require.NoError(t, err)
	require.Len(t, outcome.Ranked, 3)

	assert.Equal(t, testID(2), outcome.Ranked[0].ID)
	assert.Equal(t, testID(3), outcome.Ranked[1].ID)
	assert.Equal(t, testID(1), outcome.Ranked[2].ID)
}

func TestRankStrategiesStableForEqualRecords(t *testing.T) {
	input := []types.StrategyPerformance{
		record(1, 5000, 1_000_000_000, 2000),
		record(2, 5000, 1_000_000_000, 2000),
		record(3, 5000, 1_000_000_000, 2000),
	}

	outcome, err := RankStrategies(input, 10)
	require.NoError(t, err)
	for i, r := range outcome.Ranked {
		assert.Equal(t, input[i].ID, r.ID)
	}
}

func TestRankStrategiesSingleStrategy(t *testing.T) {
	outcome, err := RankStrategies([]types.StrategyPerformance{record(1, 100, 1, 0)}, 40)
	require.NoError(t, err)
	assert.Equal(t, SingleStrategyRank, outcome.Ranked[0].PercentileRank)
	assert.Empty(t, outcome.Underperformers)
}

func TestRankStrategiesLargePortfolio(t *testing.T) {
	input := make([]types.StrategyPerformance, 0, 10)
	for i := 0; i < 10; i++ {
		input = append(input, record(byte(i+1), uint64(1000*(i+1)), 1_000_000_000, 0))
	}

	t.Run("bottom share by count", func(t *testing.T) {
		outcome, err := RankStrategies(input, 25)
		require.NoError(t, err)
		assert.Equal(t, []types.StrategyID{testID(2), testID(1)}, outcome.Underperformers)
	})

	t.Run("at least one underperformer", func(t *testing.T) {
		outcome, err := RankStrategies(input, 5)
		require.NoError(t, err)
		assert.Equal(t, []types.StrategyID{testID(1)}, outcome.Underperformers)
	})
}

func TestRankStrategiesIsIdempotent(t *testing.T) {
	input := []types.StrategyPerformance{
		record(1, 4000, 2_000_000_000, 1000),
		record(2, 8000, 1_000_000_000, 500),
		record(3, 4000, 2_000_000_000, 300),
		record(4, 100, 9_000_000_000, 0),
		record(5, 6000, 1_000_000_000, 7000),
	}

	first, err := RankStrategies(input, 30)
	require.NoError(t, err)
	second, err := RankStrategies(first.Ranked, 30)
	require.NoError(t, err)

	assert.Equal(t, first.Ranked, second.Ranked)
	assert.Equal(t, first.Underperformers, second.Underperformers)
}

func TestRankStrategiesEmpty(t *testing.T) {
	_, err := RankStrategies(nil, 20)
	assert.ErrorIs(t, err, ErrInsufficientStrategies)
}

func TestPercentileRank(t *testing.T) {
	assert.Equal(t, uint8(50), PercentileRank(0, 1))
	assert.Equal(t, uint8(100), PercentileRank(0, 2))
	assert.Equal(t, uint8(0), PercentileRank(1, 2))
	assert.Equal(t, uint8(50), PercentileRank(1, 3))
}

func TestProcessRankingCycle(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := created.Add(2 * time.Hour)

	strategy := func(id byte, score, balance uint64, vol uint32, status types.StrategyStatus) types.Strategy {
		return types.Strategy{
			ID:               testID(id),
			Protocol:         stableLending(),
			CurrentBalance:   balance,
			VolatilityScore:  vol,
			PerformanceScore: score,
			Status:           status,
			CreationTime:     created,
			LastUpdated:      created,
		}
	}

	input := []types.Strategy{
		strategy(1, 9000, 2_000_000_000, 2000, types.StrategyActive),
		strategy(2, 5000, 1_000_000_000, 3000, types.StrategyActive),
		strategy(3, 1000, 1_000_000_000, 4000, types.StrategyActive),
		strategy(4, 100, 1_000_000_000, 10000, types.StrategyPaused),
	}

	results, err := ProcessRankingCycle(types.Portfolio{}, input, now)
	require.NoError(t, err)

	assert.Equal(t, uint32(4), results.TotalStrategies)
	assert.Equal(t, uint32(3), results.ActiveStrategies)
	assert.Equal(t, uint8(21), results.Threshold)
	assert.Equal(t, []types.StrategyID{testID(3)}, results.Underperformers)
	assert.Equal(t, []types.StrategyID{testID(3)}, results.RebalancingCandidates)
	assert.Equal(t, now, results.RankedAt)

	require.Len(t, results.Strategies, 4)
	assert.Equal(t, uint8(100), results.Strategies[0].PercentileRank)
	assert.Equal(t, uint8(50), results.Strategies[1].PercentileRank)
	assert.Equal(t, uint8(0), results.Strategies[2].PercentileRank)
	assert.Equal(t, now, results.Strategies[2].LastUpdated)
	assert.Equal(t, created, results.Strategies[3].LastUpdated, "paused strategy is not re-ranked")

	assert.Equal(t, created, input[0].LastUpdated, "input must not be modified")

	legacy := types.Portfolio{RebalanceThreshold: 50, LegacyFixedThreshold: true}
	results, err = ProcessRankingCycle(legacy, input, now)
	require.NoError(t, err)
	assert.Equal(t, uint8(50), results.Threshold)
	assert.Equal(t, []types.StrategyID{testID(3)}, results.Underperformers)
	assert.Equal(t, []types.StrategyID{testID(3)}, results.RebalancingCandidates)

	legacy.RebalanceThreshold = 0
	_, err = ProcessRankingCycle(legacy, input, now)
	assert.ErrorIs(t, err, types.ErrInvalidRebalanceThreshold)
}

func TestProcessRankingCycleNeedsTwoActive(t *testing.T) {
	input := []types.Strategy{
		{ID: testID(1), Protocol: stableLending(), Status: types.StrategyActive},
		{ID: testID(2), Protocol: stableLending(), Status: types.StrategyDeprecated},
	}
	_, err := ProcessRankingCycle(types.Portfolio{}, input, time.Now())
	assert.ErrorIs(t, err, ErrInsufficientStrategies)
}
