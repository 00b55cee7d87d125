/*

The rebalancer service runs one portfolio through a full cycle: gate on pause and
interval, rank, plan, account for the moved capital and write everything back.
It never moves funds itself; the plan is the hand-off to an executor.

*/

package rebalancer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/elys-network/rebalancer/internal/analyzer"
	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/planner"
	"github.com/elys-network/rebalancer/internal/state"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/elys-network/rebalancer/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the persistence the service needs. state.PostgresStore implements it.
type Store interface {
	LoadPortfolio(ctx context.Context, manager types.StrategyID) (types.Portfolio, error)
	SetEmergencyPause(ctx context.Context, manager types.StrategyID, paused bool) error
	LoadStrategies(ctx context.Context, manager types.StrategyID) ([]types.Strategy, error)
	LoadStrategy(ctx context.Context, manager, id types.StrategyID) (types.Strategy, error)
	SaveStrategy(ctx context.Context, manager types.StrategyID, s types.Strategy) error
	RegisterStrategy(ctx context.Context, p types.Portfolio, s types.Strategy) error
	LoadActiveRiskLimits(ctx context.Context, configName string) (types.RiskLimits, error)
	CommitCycle(ctx context.Context, p types.Portfolio, ranked []types.Strategy) error
	IncrementCycleNumber(ctx context.Context) (int64, error)
}

// Config holds the dependencies of a Service.
type Config struct {
	Store          Store
	Manager        types.StrategyID
	RiskConfigName string
	// FallbackLimits apply when the store has no active risk limits.
	FallbackLimits types.RiskLimits
}

// Service runs rebalancing cycles for one portfolio.
type Service struct {
	logger         zerolog.Logger
	store          Store
	manager        types.StrategyID
	riskConfigName string
	fallbackLimits types.RiskLimits

	mu sync.Mutex // one cycle in flight per portfolio
}

// CycleReport describes what a cycle did.
type CycleReport struct {
	CycleID     string                   `json:"cycle_id"`
	CycleNumber int64                    `json:"cycle_number"`
	Outcome     string                   `json:"outcome"`
	Reason      string                   `json:"reason,omitempty"`
	StartedAt   time.Time                `json:"started_at"`
	Ranking     *analyzer.RankingResults `json:"ranking,omitempty"`
	Plan        *types.RebalancingPlan   `json:"plan,omitempty"`
	Summary     *types.AllocationResult  `json:"summary,omitempty"`
}

// NewService creates a Service after validating its configuration.
func NewService(cfg Config) (*Service, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("rebalancer configuration validation failed: %w", err)
	}

	s := &Service{
		logger:         logger.GetForComponent("rebalancer_service"),
		store:          cfg.Store,
		manager:        cfg.Manager,
		riskConfigName: cfg.RiskConfigName,
		fallbackLimits: cfg.FallbackLimits,
	}

	s.logger.Info().
		Str("manager", s.manager.Short()).
		Str("riskConfig", s.riskConfigName).
		Msg("Rebalancer service created")
	return s, nil
}

func validateConfig(cfg Config) error {
	if cfg.Store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if cfg.Manager.IsZero() {
		return fmt.Errorf("manager cannot be empty")
	}
	if cfg.RiskConfigName == "" {
		return fmt.Errorf("risk config name cannot be empty")
	}
	return cfg.FallbackLimits.Validate()
}

// Manager returns the portfolio this service rebalances.
func (s *Service) Manager() types.StrategyID {
	return s.manager
}

// RiskLimits returns the active stored risk limits, or the fallback when none are stored.
func (s *Service) RiskLimits(ctx context.Context) (types.RiskLimits, error) {
	limits, err := s.store.LoadActiveRiskLimits(ctx, s.riskConfigName)
	if err != nil {
		if errors.Is(err, state.ErrRiskLimitsNotFound) {
			s.logger.Warn().Str("config", s.riskConfigName).Msg("No stored risk limits, using configured defaults")
			return s.fallbackLimits, nil
		}
		return types.RiskLimits{}, err
	}
	return limits, nil
}

// RunCycle executes one rebalancing cycle at now.
func (s *Service) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := CycleReport{
		CycleID:   uuid.New().String(),
		StartedAt: now,
	}
	cycleLogger := s.logger.With().Str("cycle_id", report.CycleID).Logger()
	cycleLogger.Info().Msg("--- Starting rebalancing cycle ---")

	start := time.Now()
	defer func() {
		cycleDuration.Observe(time.Since(start).Seconds())
		cyclesTotal.WithLabelValues(report.Outcome).Inc()
	}()

	err := s.runCycle(ctx, now, &report, cycleLogger)
	if err != nil {
		report.Outcome = OutcomeFailed
		cycleLogger.Error().Err(err).Msg("Rebalancing cycle failed")
		return report, err
	}

	cycleLogger.Info().
		Str("outcome", report.Outcome).
		Int64("cycleNumber", report.CycleNumber).
		Dur("duration", time.Since(start)).
		Msg("--- Rebalancing cycle completed ---")
	return report, nil
}

func (s *Service) runCycle(ctx context.Context, now time.Time, report *CycleReport, cycleLogger zerolog.Logger) error {
	portfolio, err := s.store.LoadPortfolio(ctx, s.manager)
	if err != nil {
		return fmt.Errorf("failed to load portfolio: %w", err)
	}

	if err := planner.CheckRebalanceWindow(portfolio, now); err != nil {
		switch {
		case errors.Is(err, planner.ErrEmergencyPauseActive):
			report.Outcome = OutcomePaused
			cycleLogger.Warn().Msg("Emergency pause active, skipping cycle")
		case errors.Is(err, planner.ErrRebalanceIntervalNotMet):
			report.Outcome = OutcomeTooSoon
			cycleLogger.Info().Time("nextRebalance", portfolio.NextRebalance()).Msg("Rebalance interval not met, skipping cycle")
		default:
			return err
		}
		report.Reason = err.Error()
		return nil
	}

	strategies, err := s.store.LoadStrategies(ctx, s.manager)
	if err != nil {
		return fmt.Errorf("failed to load strategies: %w", err)
	}

	ranking, err := analyzer.ProcessRankingCycle(portfolio, strategies, now)
	if err != nil {
		if errors.Is(err, analyzer.ErrInsufficientStrategies) {
			report.Outcome = OutcomeSkipped
			report.Reason = err.Error()
			cycleLogger.Info().Err(err).Msg("Not enough active strategies to rank")
			return nil
		}
		return fmt.Errorf("ranking failed: %w", err)
	}
	report.Ranking = &ranking
	rankingThreshold.Set(float64(ranking.Threshold))
	underperformerCount.Set(float64(len(ranking.Underperformers)))
	activeStrategyCount.Set(float64(ranking.ActiveStrategies))

	limits, err := s.RiskLimits(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve risk limits: %w", err)
	}

	portfolio.TotalStrategies = ranking.TotalStrategies
	plan, err := planner.GenerateRebalancingPlan(portfolio, types.PerformanceRecords(ranking.Strategies), limits)
	switch {
	case err == nil:
	case errors.Is(err, analyzer.ErrInsufficientStrategies), errors.Is(err, planner.ErrInsufficientCapital):
		// Ranks still change every cycle; only the capital bookkeeping is skipped.
		report.Outcome = OutcomeRankedOnly
		report.Reason = err.Error()
		cycleLogger.Info().Err(err).Msg("No rebalance this cycle")
		if err := s.store.CommitCycle(ctx, portfolio, ranking.Strategies); err != nil {
			return fmt.Errorf("failed to persist ranks: %w", err)
		}
		return s.advanceCycle(ctx, report)
	default:
		return fmt.Errorf("planning failed: %w", err)
	}

	summary, err := analyzer.SummarizeAllocations(plan.Redistribution)
	if err != nil {
		return fmt.Errorf("failed to summarize allocations: %w", err)
	}

	portfolio, err = portfolio.RecordRebalance(plan.TotalToExtract, now)
	if err != nil {
		return err
	}
	if err := s.store.CommitCycle(ctx, portfolio, ranking.Strategies); err != nil {
		return fmt.Errorf("failed to persist cycle outcome: %w", err)
	}

	report.Outcome = OutcomeRebalanced
	report.Plan = &plan
	report.Summary = &summary

	capitalMovedTotal.Add(float64(plan.TotalToExtract))
	feesTotal.WithLabelValues("platform").Add(float64(summary.PlatformFees))
	feesTotal.WithLabelValues("manager").Add(float64(summary.ManagerFees))

	cycleLogger.Info().
		Int("extractionTargets", len(plan.ExtractionTargets)).
		Uint64("totalToExtract", plan.TotalToExtract).
		Uint32("strategiesUpdated", summary.StrategiesUpdated).
		Uint64("platformFees", summary.PlatformFees).
		Uint64("managerFees", summary.ManagerFees).
		Uint64("totalCapitalMoved", portfolio.TotalCapitalMoved).
		Msg("Rebalance recorded")

	return s.advanceCycle(ctx, report)
}

func (s *Service) advanceCycle(ctx context.Context, report *CycleReport) error {
	cycleNumber, err := s.store.IncrementCycleNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment cycle number: %w", err)
	}
	report.CycleNumber = cycleNumber
	return nil
}

// PreviewRanking ranks the current strategies without writing anything back.
func (s *Service) PreviewRanking(ctx context.Context, now time.Time) (analyzer.RankingResults, error) {
	portfolio, err := s.store.LoadPortfolio(ctx, s.manager)
	if err != nil {
		return analyzer.RankingResults{}, fmt.Errorf("failed to load portfolio: %w", err)
	}
	return s.previewRanking(ctx, portfolio, now)
}

func (s *Service) previewRanking(ctx context.Context, portfolio types.Portfolio, now time.Time) (analyzer.RankingResults, error) {
	strategies, err := s.store.LoadStrategies(ctx, s.manager)
	if err != nil {
		return analyzer.RankingResults{}, fmt.Errorf("failed to load strategies: %w", err)
	}
	return analyzer.ProcessRankingCycle(portfolio, strategies, now)
}

// PreviewPlan computes the plan a cycle would execute at now, ignoring the interval gate.
func (s *Service) PreviewPlan(ctx context.Context, now time.Time) (types.RebalancingPlan, error) {
	portfolio, err := s.store.LoadPortfolio(ctx, s.manager)
	if err != nil {
		return types.RebalancingPlan{}, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio.EmergencyPause {
		return types.RebalancingPlan{}, planner.ErrEmergencyPauseActive
	}
	ranking, err := s.previewRanking(ctx, portfolio, now)
	if err != nil {
		return types.RebalancingPlan{}, err
	}
	limits, err := s.RiskLimits(ctx)
	if err != nil {
		return types.RebalancingPlan{}, err
	}
	return planner.GenerateRebalancingPlan(portfolio, types.PerformanceRecords(ranking.Strategies), limits)
}

// RegisterStrategy adds a new active strategy with an initial balance to the portfolio. It is
// refused while the emergency pause is active and for an id that is already registered.
func (s *Service) RegisterStrategy(ctx context.Context, id types.StrategyID, protocol types.Protocol, initialBalance uint64, now time.Time) (types.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	portfolio, err := s.store.LoadPortfolio(ctx, s.manager)
	if err != nil {
		return types.Strategy{}, fmt.Errorf("failed to load portfolio: %w", err)
	}
	if portfolio.EmergencyPause {
		return types.Strategy{}, planner.ErrEmergencyPauseActive
	}

	strategy, err := types.NewStrategy(id, protocol, initialBalance, now)
	if err != nil {
		return types.Strategy{}, err
	}

	if portfolio.TotalStrategies == math.MaxUint32 {
		return types.Strategy{}, fmt.Errorf("%w: portfolio strategy count", utils.ErrMathOverflow)
	}
	portfolio.TotalStrategies++
	// Registered capital counts as moved, matching how deposits are accounted.
	portfolio.TotalCapitalMoved = utils.SaturatingAdd(portfolio.TotalCapitalMoved, initialBalance)

	if err := s.store.RegisterStrategy(ctx, portfolio, strategy); err != nil {
		return types.Strategy{}, err
	}
	strategiesRegisteredTotal.Inc()

	s.logger.Info().
		Str("strategy", id.Short()).
		Str("protocol", protocol.Name()).
		Str("initialBalance", utils.FormatUnits(initialBalance)).
		Uint32("totalStrategies", portfolio.TotalStrategies).
		Msg("Strategy registered")
	return strategy, nil
}

// UpdatePerformance records freshly observed metrics for a strategy and rescores it.
func (s *Service) UpdatePerformance(ctx context.Context, id types.StrategyID, update types.PerformanceUpdate, now time.Time) (types.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	strategy, err := s.store.LoadStrategy(ctx, s.manager, id)
	if err != nil {
		return types.Strategy{}, err
	}
	updated, err := analyzer.ApplyPerformanceUpdate(strategy, update, now)
	if err != nil {
		return types.Strategy{}, err
	}
	if err := s.store.SaveStrategy(ctx, s.manager, updated); err != nil {
		return types.Strategy{}, err
	}

	s.logger.Info().
		Str("strategy", id.Short()).
		Uint64("performanceScore", updated.PerformanceScore).
		Msg("Performance updated")
	return updated, nil
}

// SetEmergencyPause halts or resumes cycles for the portfolio.
func (s *Service) SetEmergencyPause(ctx context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.SetEmergencyPause(ctx, s.manager, paused)
}
