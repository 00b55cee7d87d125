package planner

import (
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/rebalancer/internal/analyzer"
	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/elys-network/rebalancer/internal/utils"
)

var (
	ErrEmergencyPauseActive    = errors.New("emergency pause is active")
	ErrRebalanceIntervalNotMet = errors.New("minimum rebalance interval has not elapsed")
	ErrInsufficientCapital     = errors.New("extractable capital is below the minimum")
)

const (
	// TopPerformerRank is the lowest percentile rank that counts as a top performer.
	TopPerformerRank uint8 = 75
	// MaxTopPerformers caps how many strategies receive redistributed capital.
	MaxTopPerformers = 5
	// ReservedBalance stays in every extracted strategy to keep its account open.
	ReservedBalance uint64 = 10_000_000
	// MinExtractableCapital must be exceeded for a plan to be worth executing.
	MinExtractableCapital  uint64 = 100_000_000
	EstimatedFeeBps        uint64 = 200
	ExpectedImprovementPct uint64 = 15
)

var planLogger = logger.GetForComponent("rebalance_planner")

// CheckRebalanceWindow returns an error when the portfolio may not run a cycle at now.
func CheckRebalanceWindow(portfolio types.Portfolio, now time.Time) error {
	if portfolio.EmergencyPause {
		return ErrEmergencyPauseActive
	}
	if !portfolio.CanRebalance(now) {
		return fmt.Errorf("%w: next window opens at %s", ErrRebalanceIntervalNotMet, portfolio.NextRebalance().Format(time.RFC3339))
	}
	return nil
}

// GenerateRebalancingPlan decides which strategies to extract capital from and how to
// redistribute it among the top performers. Strategies must already carry percentile ranks.
func GenerateRebalancingPlan(portfolio types.Portfolio, strategies []types.StrategyPerformance, limits types.RiskLimits) (types.RebalancingPlan, error) {
	if portfolio.EmergencyPause {
		planLogger.Warn().Str("manager", portfolio.Manager.Short()).Msg("Emergency pause active, refusing to plan")
		return types.RebalancingPlan{}, ErrEmergencyPauseActive
	}

	threshold, err := analyzer.SelectThreshold(portfolio, strategies)
	if err != nil {
		return types.RebalancingPlan{}, err
	}

	var underperformers, topPerformers []types.StrategyPerformance
	for _, s := range strategies {
		if s.Status != types.StrategyActive {
			continue
		}
		switch {
		case s.PercentileRank < threshold:
			underperformers = append(underperformers, s)
		case s.PercentileRank >= TopPerformerRank:
			topPerformers = append(topPerformers, s)
		}
	}
	topPerformers = analyzer.SortByPerformance(topPerformers)
	if len(topPerformers) > MaxTopPerformers {
		topPerformers = topPerformers[:MaxTopPerformers]
	}

	if len(underperformers) == 0 || len(topPerformers) == 0 {
		planLogger.Info().
			Int("underperformers", len(underperformers)).
			Int("topPerformers", len(topPerformers)).
			Uint8("threshold", threshold).
			Msg("Nothing to rebalance")
		return types.RebalancingPlan{}, fmt.Errorf("%w: %d underperformers, %d top performers",
			analyzer.ErrInsufficientStrategies, len(underperformers), len(topPerformers))
	}

	targets := make([]types.StrategyID, 0, len(underperformers))
	amounts := make([]uint64, 0, len(underperformers))
	for _, s := range underperformers {
		amount := utils.SaturatingSub(s.CurrentBalance, ReservedBalance)
		if amount == 0 {
			planLogger.Debug().Str("strategy", s.ID.Short()).Uint64("balance", s.CurrentBalance).Msg("Nothing above the reserve, not extracting")
			continue
		}
		targets = append(targets, s.ID)
		amounts = append(amounts, amount)
	}
	extractable, err := utils.SumUint64(amounts...)
	if err != nil {
		return types.RebalancingPlan{}, errors.Join(utils.ErrBalanceOverflow, err)
	}
	if extractable <= MinExtractableCapital {
		return types.RebalancingPlan{}, fmt.Errorf("%w: %s units extractable", ErrInsufficientCapital, utils.FormatUnits(extractable))
	}

	allocations, err := analyzer.CalculateOptimalAllocation(extractable, topPerformers, limits)
	if err != nil {
		planLogger.Error().Err(err).Uint64("extractable", extractable).Msg("Allocation failed")
		return types.RebalancingPlan{}, err
	}
	if err := analyzer.VerifyAllocationTotal(allocations, extractable); err != nil {
		return types.RebalancingPlan{}, err
	}

	fees, err := utils.MulDiv(extractable, EstimatedFeeBps, types.BasisPoints)
	if err != nil {
		return types.RebalancingPlan{}, errors.Join(utils.ErrBalanceOverflow, err)
	}
	improvement, err := ExpectedImprovement(topPerformers)
	if err != nil {
		return types.RebalancingPlan{}, err
	}

	plan := types.RebalancingPlan{
		ExtractionTargets:   targets,
		TotalToExtract:      extractable,
		Threshold:           threshold,
		Redistribution:      allocations,
		EstimatedFees:       fees,
		ExpectedImprovement: improvement,
	}

	planLogger.Info().
		Int("extractionTargets", len(plan.ExtractionTargets)).
		Str("totalToExtract", utils.FormatUnits(plan.TotalToExtract)).
		Int("allocations", len(plan.Redistribution)).
		Uint8("threshold", threshold).
		Uint64("expectedImprovement", improvement).
		Msg("Generated rebalancing plan")

	return plan, nil
}

// ExpectedImprovement estimates the score gain of a plan as 15% of the average top performer score.
func ExpectedImprovement(topPerformers []types.StrategyPerformance) (uint64, error) {
	if len(topPerformers) == 0 {
		return 0, nil
	}
	var total uint64
	for _, s := range topPerformers {
		var err error
		if total, err = utils.CheckedAdd(total, s.PerformanceScore); err != nil {
			return 0, err
		}
	}
	average := total / uint64(len(topPerformers))
	return utils.MulDiv(average, ExpectedImprovementPct, 100)
}
