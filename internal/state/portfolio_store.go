/*

This file persists the portfolio record and the per-cycle write-back of ranks,
rebalance timestamps and cumulative capital moved.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/rebalancer/internal/types"
	"github.com/rs/zerolog/log"
)

// SavePortfolio inserts or replaces the portfolio owned by p.Manager.
func SavePortfolio(ctx context.Context, p types.Portfolio) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if err := p.Validate(); err != nil {
		return err
	}

	stmt := `
		INSERT INTO portfolios (
			manager, rebalance_threshold, min_rebalance_interval_seconds,
			last_rebalance, portfolio_creation, emergency_pause, performance_fee_bps,
			total_strategies, total_capital_moved, legacy_fixed_threshold, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP)
		ON CONFLICT (manager) DO UPDATE SET
			rebalance_threshold = EXCLUDED.rebalance_threshold,
			min_rebalance_interval_seconds = EXCLUDED.min_rebalance_interval_seconds,
			last_rebalance = EXCLUDED.last_rebalance,
			emergency_pause = EXCLUDED.emergency_pause,
			performance_fee_bps = EXCLUDED.performance_fee_bps,
			total_strategies = EXCLUDED.total_strategies,
			total_capital_moved = EXCLUDED.total_capital_moved,
			legacy_fixed_threshold = EXCLUDED.legacy_fixed_threshold,
			updated_at = CURRENT_TIMESTAMP;`

	_, err := DB.ExecContext(ctx, stmt,
		p.Manager.String(), int(p.RebalanceThreshold), int64(p.MinRebalanceInterval/time.Second),
		p.LastRebalance.UTC(), p.PortfolioCreation.UTC(), p.EmergencyPause, int(p.PerformanceFeeBps),
		int64(p.TotalStrategies), numeric(p.TotalCapitalMoved), p.LegacyFixedThreshold,
	)
	if err != nil {
		return fmt.Errorf("failed to save portfolio %s: %w", p.Manager.Short(), err)
	}

	log.Debug().Str("manager", p.Manager.Short()).Msg("Saved portfolio")
	return nil
}

// LoadPortfolio loads the portfolio owned by manager.
func LoadPortfolio(ctx context.Context, manager types.StrategyID) (types.Portfolio, error) {
	if DB == nil {
		return types.Portfolio{}, ErrDBNotInitialized
	}

	query := `
		SELECT
			rebalance_threshold, min_rebalance_interval_seconds,
			last_rebalance, portfolio_creation, emergency_pause, performance_fee_bps,
			total_strategies, total_capital_moved, legacy_fixed_threshold
		FROM portfolios
		WHERE manager = $1;`

	p := types.Portfolio{Manager: manager}
	var intervalSeconds int64
	err := DB.QueryRowContext(ctx, query, manager.String()).Scan(
		&p.RebalanceThreshold, &intervalSeconds,
		&p.LastRebalance, &p.PortfolioCreation, &p.EmergencyPause, &p.PerformanceFeeBps,
		&p.TotalStrategies, &p.TotalCapitalMoved, &p.LegacyFixedThreshold,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Portfolio{}, fmt.Errorf("%w: manager %s", ErrPortfolioNotFound, manager.Short())
		}
		return types.Portfolio{}, fmt.Errorf("failed to load portfolio %s: %w", manager.Short(), err)
	}
	p.MinRebalanceInterval = time.Duration(intervalSeconds) * time.Second

	return p, nil
}

// SetEmergencyPause flips the pause flag of a portfolio.
func SetEmergencyPause(ctx context.Context, manager types.StrategyID, paused bool) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	result, err := DB.ExecContext(ctx,
		`UPDATE portfolios SET emergency_pause = $2, updated_at = CURRENT_TIMESTAMP WHERE manager = $1;`,
		manager.String(), paused)
	if err != nil {
		return fmt.Errorf("failed to set emergency pause for %s: %w", manager.Short(), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: manager %s", ErrPortfolioNotFound, manager.Short())
	}

	log.Warn().Str("manager", manager.Short()).Bool("paused", paused).Msg("Emergency pause updated")
	return nil
}

// CommitCycle writes the outcome of one cycle atomically: the portfolio's
// rebalance bookkeeping and every strategy's rank and update time.
func CommitCycle(ctx context.Context, p types.Portfolio, ranked []types.Strategy) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, &err)

	result, err := tx.ExecContext(ctx, `
		UPDATE portfolios
		SET last_rebalance = $2,
		    total_strategies = $3,
		    total_capital_moved = $4,
		    updated_at = CURRENT_TIMESTAMP
		WHERE manager = $1;`,
		p.Manager.String(), p.LastRebalance.UTC(), int64(p.TotalStrategies), numeric(p.TotalCapitalMoved))
	if err != nil {
		return fmt.Errorf("failed to update portfolio %s: %w", p.Manager.Short(), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		err = fmt.Errorf("%w: manager %s", ErrPortfolioNotFound, p.Manager.Short())
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE strategies
		SET percentile_rank = $2, last_updated = $3
		WHERE strategy_id = $1 AND manager = $4;`)
	if err != nil {
		return fmt.Errorf("failed to prepare rank update: %w", err)
	}
	defer stmt.Close()

	for _, s := range ranked {
		if _, err = stmt.ExecContext(ctx, s.ID.String(), int(s.PercentileRank), s.LastUpdated.UTC(), p.Manager.String()); err != nil {
			return fmt.Errorf("failed to update rank of strategy %s: %w", s.ID.Short(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("manager", p.Manager.Short()).
		Int("strategies", len(ranked)).
		Str("totalCapitalMoved", numeric(p.TotalCapitalMoved)).
		Msg("Committed cycle outcome")
	return nil
}
