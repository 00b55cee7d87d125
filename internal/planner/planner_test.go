package planner

import (
	"testing"
	"time"

	"github.com/elys-network/rebalancer/internal/analyzer"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(b byte) types.StrategyID {
	var id types.StrategyID
	id[0] = b
	id[31] = 0xee
	return id
}

func testLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxSingleStrategyBps: 4000,
		MinSingleStrategyBps: 100,
		PlatformFeeBps:       50,
		ManagerFeeBps:        150,
		RiskToleranceBps:     8000,
		PlatformTreasury:     testID(0xf1),
		ManagerTreasury:      testID(0xf2),
	}
}

func testPortfolio(t *testing.T) types.Portfolio {
	t.Helper()
	p, err := types.NewPortfolio(testID(0xaa), 25, time.Hour, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func perf(id byte, rank uint8, score, balance uint64, vol uint32) types.StrategyPerformance {
	return types.StrategyPerformance{
		ID:               testID(id),
		PerformanceScore: score,
		CurrentBalance:   balance,
		VolatilityScore:  vol,
		Protocol:         types.StableLending{PoolID: testID(0x11), ReserveAddress: testID(0x12), UtilizationBps: 5000},
		PercentileRank:   rank,
		Status:           types.StrategyActive,
	}
}

func standardSet() []types.StrategyPerformance {
	return []types.StrategyPerformance{
		perf(1, 100, 9000, 5_000_000_000, 1000),
		perf(2, 80, 8000, 4_000_000_000, 2000),
		perf(3, 50, 5000, 3_000_000_000, 3000),
		perf(4, 0, 1000, 2_010_000_000, 4000),
	}
}

func TestGenerateRebalancingPlan(t *testing.T) {
	plan, err := GenerateRebalancingPlan(testPortfolio(t), standardSet(), testLimits())
	require.NoError(t, err)

	assert.Equal(t, uint8(20), plan.Threshold)
	assert.Equal(t, []types.StrategyID{testID(4)}, plan.ExtractionTargets)
	assert.Equal(t, uint64(2_000_000_000), plan.TotalToExtract)
	assert.Equal(t, uint64(40_000_000), plan.EstimatedFees)
	assert.Equal(t, uint64(1275), plan.ExpectedImprovement)
	require.NoError(t, analyzer.VerifyAllocationTotal(plan.Redistribution, plan.TotalToExtract))

	var strategyTargets []types.StrategyID
	for _, a := range plan.Redistribution {
		if a.Purpose.IsStrategy() {
			strategyTargets = append(strategyTargets, a.Target)
		}
	}
	assert.Equal(t, []types.StrategyID{testID(1), testID(2)}, strategyTargets)
}

func TestGenerateRebalancingPlanLegacyThreshold(t *testing.T) {
	portfolio := testPortfolio(t)
	portfolio.LegacyFixedThreshold = true
	portfolio.RebalanceThreshold = 10

	plan, err := GenerateRebalancingPlan(portfolio, standardSet(), testLimits())
	require.NoError(t, err)
	assert.Equal(t, uint8(10), plan.Threshold)
}

func TestGenerateRebalancingPlanSkipsReservedOnlyTargets(t *testing.T) {
	portfolio := testPortfolio(t)
	portfolio.LegacyFixedThreshold = true
	portfolio.RebalanceThreshold = 50

	strategies := standardSet()
	strategies[2].PercentileRank = 40
	strategies[3].CurrentBalance = ReservedBalance // nothing above the reserve

	plan, err := GenerateRebalancingPlan(portfolio, strategies, testLimits())
	require.NoError(t, err)
	assert.Equal(t, []types.StrategyID{testID(3)}, plan.ExtractionTargets)
	assert.Equal(t, uint64(3_000_000_000)-ReservedBalance, plan.TotalToExtract)
	require.NoError(t, analyzer.VerifyAllocationTotal(plan.Redistribution, plan.TotalToExtract))
}

func TestGenerateRebalancingPlanCapsTopPerformers(t *testing.T) {
	strategies := []types.StrategyPerformance{perf(20, 0, 500, 100_000_000_000, 1000)}
	for i := byte(1); i <= 7; i++ {
		strategies = append(strategies, perf(i, 90, 9100-uint64(i)*100, 5_000_000_000, 1000))
	}

	plan, err := GenerateRebalancingPlan(testPortfolio(t), strategies, testLimits())
	require.NoError(t, err)

	for _, a := range plan.Redistribution {
		assert.NotEqual(t, testID(6), a.Target)
		assert.NotEqual(t, testID(7), a.Target)
	}
	assert.Equal(t, uint64(1320), plan.ExpectedImprovement) // average of 9000..8600 is 8800
}

func TestGenerateRebalancingPlanErrors(t *testing.T) {
	t.Run("emergency pause", func(t *testing.T) {
		portfolio := testPortfolio(t)
		portfolio.EmergencyPause = true
		_, err := GenerateRebalancingPlan(portfolio, standardSet(), testLimits())
		assert.ErrorIs(t, err, ErrEmergencyPauseActive)
	})

	t.Run("no underperformers", func(t *testing.T) {
		strategies := standardSet()[:3]
		_, err := GenerateRebalancingPlan(testPortfolio(t), strategies, testLimits())
		assert.ErrorIs(t, err, analyzer.ErrInsufficientStrategies)
	})

	t.Run("no top performers", func(t *testing.T) {
		strategies := standardSet()[2:]
		_, err := GenerateRebalancingPlan(testPortfolio(t), strategies, testLimits())
		assert.ErrorIs(t, err, analyzer.ErrInsufficientStrategies)
	})

	t.Run("paused strategies are ignored", func(t *testing.T) {
		strategies := standardSet()
		strategies[3].Status = types.StrategyPaused
		_, err := GenerateRebalancingPlan(testPortfolio(t), strategies, testLimits())
		assert.ErrorIs(t, err, analyzer.ErrInsufficientStrategies)
	})

	t.Run("extractable capital at the minimum", func(t *testing.T) {
		strategies := standardSet()
		strategies[3].CurrentBalance = MinExtractableCapital + ReservedBalance
		_, err := GenerateRebalancingPlan(testPortfolio(t), strategies, testLimits())
		assert.ErrorIs(t, err, ErrInsufficientCapital)
	})

	t.Run("no active strategies", func(t *testing.T) {
		_, err := GenerateRebalancingPlan(testPortfolio(t), nil, testLimits())
		assert.ErrorIs(t, err, analyzer.ErrInsufficientStrategies)
	})
}

func TestCheckRebalanceWindow(t *testing.T) {
	portfolio := testPortfolio(t)
	start := portfolio.LastRebalance

	assert.ErrorIs(t, CheckRebalanceWindow(portfolio, start.Add(59*time.Minute)), ErrRebalanceIntervalNotMet)
	assert.NoError(t, CheckRebalanceWindow(portfolio, start.Add(time.Hour)))

	portfolio.EmergencyPause = true
	assert.ErrorIs(t, CheckRebalanceWindow(portfolio, start.Add(2*time.Hour)), ErrEmergencyPauseActive)
}

func TestExpectedImprovement(t *testing.T) {
	got, err := ExpectedImprovement([]types.StrategyPerformance{perf(1, 90, 9000, 0, 0), perf(2, 80, 7000, 0, 0)})
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), got)

	got, err = ExpectedImprovement(nil)
	require.NoError(t, err)
	assert.Zero(t, got)
}
