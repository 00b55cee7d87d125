package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/elys-network/rebalancer/internal/types"
	"github.com/rs/zerolog/log"
)

var (
	ErrStrategyNotFound        = errors.New("strategy not found")
	ErrStrategyExists          = errors.New("strategy already registered")
	ErrStrategyManagerMismatch = errors.New("strategy is registered under another manager")
)

const strategyColumns = `
	strategy_id, protocol, current_balance, yield_rate, volatility_score,
	performance_score, percentile_rank, status, total_deposits, total_withdrawals,
	creation_time, last_updated`

const insertStrategySQL = `
	INSERT INTO strategies (
		strategy_id, manager, protocol, current_balance, yield_rate, volatility_score,
		performance_score, percentile_rank, status, total_deposits, total_withdrawals,
		creation_time, last_updated
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// strategyArgs validates s and returns the insertStrategySQL arguments.
func strategyArgs(manager types.StrategyID, s types.Strategy) ([]any, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	protocol, err := types.MarshalProtocol(s.Protocol)
	if err != nil {
		return nil, fmt.Errorf("failed to encode protocol of strategy %s: %w", s.ID.Short(), err)
	}
	return []any{
		s.ID.String(), manager.String(), string(protocol), numeric(s.CurrentBalance),
		int64(s.YieldRate), int64(s.VolatilityScore), int64(s.PerformanceScore), int(s.PercentileRank),
		string(s.Status), numeric(s.TotalDeposits), numeric(s.TotalWithdrawals),
		s.CreationTime.UTC(), s.LastUpdated.UTC(),
	}, nil
}

// SaveStrategy inserts or replaces a strategy registered under manager. A strategy owned by
// another manager is left untouched and ErrStrategyManagerMismatch is returned.
func SaveStrategy(ctx context.Context, manager types.StrategyID, s types.Strategy) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	args, err := strategyArgs(manager, s)
	if err != nil {
		return err
	}

	stmt := insertStrategySQL + `
		ON CONFLICT (strategy_id) DO UPDATE SET
			protocol = EXCLUDED.protocol,
			current_balance = EXCLUDED.current_balance,
			yield_rate = EXCLUDED.yield_rate,
			volatility_score = EXCLUDED.volatility_score,
			performance_score = EXCLUDED.performance_score,
			percentile_rank = EXCLUDED.percentile_rank,
			status = EXCLUDED.status,
			total_deposits = EXCLUDED.total_deposits,
			total_withdrawals = EXCLUDED.total_withdrawals,
			last_updated = EXCLUDED.last_updated
		WHERE strategies.manager = EXCLUDED.manager;`

	result, err := DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("failed to save strategy %s: %w", s.ID.Short(), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrStrategyManagerMismatch, s.ID.Short())
	}

	log.Debug().Str("strategy", s.ID.Short()).Str("manager", manager.Short()).Msg("Saved strategy")
	return nil
}

// RegisterStrategy inserts a new strategy under p.Manager and writes the portfolio's strategy
// count and capital counter in the same transaction. An existing id fails with ErrStrategyExists.
func RegisterStrategy(ctx context.Context, p types.Portfolio, s types.Strategy) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}
	args, err := strategyArgs(p.Manager, s)
	if err != nil {
		return err
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, &err)

	result, err := tx.ExecContext(ctx, insertStrategySQL+`
		ON CONFLICT (strategy_id) DO NOTHING;`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert strategy %s: %w", s.ID.Short(), err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrStrategyExists, s.ID.Short())
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE portfolios
		SET total_strategies = $2,
		    total_capital_moved = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE manager = $1;`,
		p.Manager.String(), int64(p.TotalStrategies), numeric(p.TotalCapitalMoved))
	if err != nil {
		return fmt.Errorf("failed to update portfolio %s: %w", p.Manager.Short(), err)
	}
	if rowsAffected, err = result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: manager %s", ErrPortfolioNotFound, p.Manager.Short())
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Str("strategy", s.ID.Short()).
		Str("manager", p.Manager.Short()).
		Str("protocol", string(s.Protocol.Kind())).
		Str("initialBalance", numeric(s.CurrentBalance)).
		Msg("Registered strategy")
	return nil
}

// LoadStrategies loads every strategy of a portfolio in registration order.
func LoadStrategies(ctx context.Context, manager types.StrategyID) ([]types.Strategy, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `SELECT` + strategyColumns + `
		FROM strategies
		WHERE manager = $1
		ORDER BY creation_time ASC, strategy_id ASC;`

	rows, err := DB.QueryContext(ctx, query, manager.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies of %s: %w", manager.Short(), err)
	}
	defer rows.Close()

	var strategies []types.Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate strategies of %s: %w", manager.Short(), err)
	}

	log.Debug().Str("manager", manager.Short()).Int("count", len(strategies)).Msg("Loaded strategies")
	return strategies, nil
}

// LoadStrategy loads a single strategy of a portfolio.
func LoadStrategy(ctx context.Context, manager, id types.StrategyID) (types.Strategy, error) {
	if DB == nil {
		return types.Strategy{}, ErrDBNotInitialized
	}

	query := `SELECT` + strategyColumns + `
		FROM strategies
		WHERE manager = $1 AND strategy_id = $2;`

	s, err := scanStrategy(DB.QueryRowContext(ctx, query, manager.String(), id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Strategy{}, fmt.Errorf("%w: %s", ErrStrategyNotFound, id.Short())
		}
		return types.Strategy{}, err
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStrategy(row rowScanner) (types.Strategy, error) {
	var (
		s        types.Strategy
		idHex    string
		protocol []byte
		status   string
	)
	err := row.Scan(
		&idHex, &protocol, &s.CurrentBalance, &s.YieldRate, &s.VolatilityScore,
		&s.PerformanceScore, &s.PercentileRank, &status, &s.TotalDeposits, &s.TotalWithdrawals,
		&s.CreationTime, &s.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Strategy{}, err
		}
		return types.Strategy{}, fmt.Errorf("failed to scan strategy: %w", err)
	}

	if s.ID, err = types.ParseStrategyID(idHex); err != nil {
		return types.Strategy{}, fmt.Errorf("stored strategy id %q: %w", idHex, err)
	}
	if s.Protocol, err = types.UnmarshalProtocol(protocol); err != nil {
		return types.Strategy{}, fmt.Errorf("stored protocol of strategy %s: %w", s.ID.Short(), err)
	}
	s.Status = types.StrategyStatus(status)
	return s, nil
}
