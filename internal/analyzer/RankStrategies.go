/*

This file contains the percentile ranking of strategies and the full ranking cycle that feeds the
plan orchestrator.

*/

package analyzer

import (
	"fmt"
	"sort"
	"time"

	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/types"
)

var rankingLogger = logger.GetForComponent("strategy_ranker")

const (
	// SingleStrategyRank is assigned when there is nothing to compare against.
	SingleStrategyRank uint8 = 50
	// Up to this many strategies, underperformers are selected by rank instead of by count.
	smallPortfolioSize = 4
	// MinActiveStrategies is the number of active strategies a ranking cycle needs.
	MinActiveStrategies = 2
)

// RankingOutcome is the result of ranking one set of strategies.
type RankingOutcome struct {
	Ranked          []types.StrategyPerformance `json:"ranked"` // best first
	Underperformers []types.StrategyID          `json:"underperformers"`
}

// RankingResults summarizes one full ranking cycle over a portfolio.
type RankingResults struct {
	TotalStrategies       uint32             `json:"total_strategies"`
	ActiveStrategies      uint32             `json:"active_strategies"`
	Threshold             uint8              `json:"threshold"`
	Underperformers       []types.StrategyID `json:"underperformers"`
	RebalancingCandidates []types.StrategyID `json:"rebalancing_candidates"`
	Strategies            []types.Strategy   `json:"strategies"` // input order, ranks written back
	RankedAt              time.Time          `json:"ranked_at"`
}

// rankedBefore orders by score desc, then balance desc, then volatility asc.
func rankedBefore(a, b types.StrategyPerformance) bool {
	if a.PerformanceScore != b.PerformanceScore {
		return a.PerformanceScore > b.PerformanceScore
	}
	if a.CurrentBalance != b.CurrentBalance {
		return a.CurrentBalance > b.CurrentBalance
	}
	return a.VolatilityScore < b.VolatilityScore
}

// SortByPerformance returns a sorted copy of the records, best first. Equal records keep their input order.
func SortByPerformance(strategies []types.StrategyPerformance) []types.StrategyPerformance {
	sorted := make([]types.StrategyPerformance, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rankedBefore(sorted[i], sorted[j])
	})
	return sorted
}

// PercentileRank returns the rank for the strategy at index (0 = best) out of total.
func PercentileRank(index, total int) uint8 {
	if total <= 1 {
		return SingleStrategyRank
	}
	return uint8((total - 1 - index) * 100 / (total - 1))
}

// RankStrategies assigns percentile ranks and selects underperformers. The input slice is not
// modified; the outcome holds ranked copies.
//
// Portfolios of up to four strategies flag every strategy ranked strictly below the threshold.
// Larger portfolios flag the bottom floor(n*threshold/100) strategies, at least one.
func RankStrategies(strategies []types.StrategyPerformance, threshold uint8) (RankingOutcome, error) {
	if len(strategies) == 0 {
		return RankingOutcome{}, fmt.Errorf("%w: nothing to rank", ErrInsufficientStrategies)
	}

	ranked := SortByPerformance(strategies)
	total := len(ranked)
	for i := range ranked {
		ranked[i].PercentileRank = PercentileRank(i, total)
	}

	underperformers := make([]types.StrategyID, 0)
	if total <= smallPortfolioSize {
		for _, s := range ranked {
			if s.PercentileRank < threshold {
				underperformers = append(underperformers, s.ID)
			}
		}
	} else {
		count := max(total*int(threshold)/100, 1)
		for _, s := range ranked[total-count:] {
			underperformers = append(underperformers, s.ID)
		}
	}

	for i, s := range ranked {
		rankingLogger.Debug().
			Int("position", i+1).
			Str("strategy", s.ID.Short()).
			Uint64("score", s.PerformanceScore).
			Uint8("rank", s.PercentileRank).
			Msg("Ranked strategy")
	}

	return RankingOutcome{Ranked: ranked, Underperformers: underperformers}, nil
}

// ProcessRankingCycle ranks the active strategies of a portfolio against its threshold (see
// SelectThreshold) and reports which strategies are rebalance candidates. It returns copies of
// the input strategies with percentile rank and last-updated time written back for active entries.
func ProcessRankingCycle(portfolio types.Portfolio, strategies []types.Strategy, now time.Time) (RankingResults, error) {
	active := make([]types.StrategyPerformance, 0, len(strategies))
	for _, s := range strategies {
		if s.IsActive() {
			active = append(active, s.Performance())
		}
	}
	if len(active) < MinActiveStrategies {
		return RankingResults{}, fmt.Errorf("%w: %d active strategies, need at least %d",
			ErrInsufficientStrategies, len(active), MinActiveStrategies)
	}

	threshold, err := SelectThreshold(portfolio, active)
	if err != nil {
		return RankingResults{}, err
	}
	outcome, err := RankStrategies(active, threshold)
	if err != nil {
		return RankingResults{}, err
	}

	ranks := make(map[types.StrategyID]uint8, len(outcome.Ranked))
	for _, r := range outcome.Ranked {
		ranks[r.ID] = r.PercentileRank
	}

	updated := make([]types.Strategy, len(strategies))
	copy(updated, strategies)
	for i := range updated {
		if rank, ok := ranks[updated[i].ID]; ok && updated[i].IsActive() {
			updated[i].PercentileRank = rank
			updated[i].LastUpdated = now
		}
	}

	results := RankingResults{
		TotalStrategies:       uint32(len(strategies)),
		ActiveStrategies:      uint32(len(active)),
		Threshold:             threshold,
		Underperformers:       outcome.Underperformers,
		RebalancingCandidates: SelectRebalanceCandidates(updated, threshold),
		Strategies:            updated,
		RankedAt:              now,
	}

	rankingLogger.Info().
		Uint32("total", results.TotalStrategies).
		Uint32("active", results.ActiveStrategies).
		Int("underperformers", len(results.Underperformers)).
		Int("candidates", len(results.RebalancingCandidates)).
		Uint8("threshold", threshold).
		Bool("legacyThreshold", portfolio.LegacyFixedThreshold).
		Msg("Ranking cycle complete")

	return results, nil
}
