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

// SaveRiskLimits saves a new version of risk limits under configName.
func SaveRiskLimits(ctx context.Context, limits types.RiskLimits, configName string, version int, makeActive bool) (limitsID int64, err error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if err = limits.Validate(); err != nil {
		return 0, err
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx, &err)

	if makeActive {
		stmtDeactivate := `UPDATE risk_limits SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		if _, err = tx.ExecContext(ctx, stmtDeactivate, configName); err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active risk limits for %s: %w", configName, err)
		}
	}

	stmt := `
		INSERT INTO risk_limits (
			version, config_name, is_active, activated_at, created_at,
			max_single_strategy_bps, min_single_strategy_bps,
			platform_fee_bps, manager_fee_bps, risk_tolerance_bps,
			platform_treasury, manager_treasury
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING limits_id;`

	currentTime := time.Now()
	err = tx.QueryRowContext(ctx, stmt,
		version, configName, makeActive, currentTime, currentTime,
		int64(limits.MaxSingleStrategyBps), int64(limits.MinSingleStrategyBps),
		int64(limits.PlatformFeeBps), int64(limits.ManagerFeeBps), int64(limits.RiskToleranceBps),
		limits.PlatformTreasury.String(), limits.ManagerTreasury.String(),
	).Scan(&limitsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert risk limits: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("limits_id", limitsID).
		Bool("active", makeActive).
		Msg("Saved risk limits")
	return limitsID, nil
}

// LoadActiveRiskLimits loads the currently active risk limits for configName.
func LoadActiveRiskLimits(ctx context.Context, configName string) (types.RiskLimits, error) {
	if DB == nil {
		return types.RiskLimits{}, ErrDBNotInitialized
	}

	query := `
		SELECT
			max_single_strategy_bps, min_single_strategy_bps,
			platform_fee_bps, manager_fee_bps, risk_tolerance_bps,
			platform_treasury, manager_treasury
		FROM risk_limits
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var limits types.RiskLimits
	var platformHex, managerHex string
	err := DB.QueryRowContext(ctx, query, configName).Scan(
		&limits.MaxSingleStrategyBps, &limits.MinSingleStrategyBps,
		&limits.PlatformFeeBps, &limits.ManagerFeeBps, &limits.RiskToleranceBps,
		&platformHex, &managerHex,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RiskLimits{}, fmt.Errorf("%w for config '%s'", ErrRiskLimitsNotFound, configName)
		}
		return types.RiskLimits{}, fmt.Errorf("failed to scan active risk limits for config '%s': %w", configName, err)
	}

	if limits.PlatformTreasury, err = types.ParseStrategyID(platformHex); err != nil {
		return types.RiskLimits{}, fmt.Errorf("stored platform treasury: %w", err)
	}
	if limits.ManagerTreasury, err = types.ParseStrategyID(managerHex); err != nil {
		return types.RiskLimits{}, fmt.Errorf("stored manager treasury: %w", err)
	}

	log.Debug().Str("config", configName).Msg("Loaded active risk limits")
	return limits, nil
}

// GetActiveRiskLimitsID returns the id of the currently active risk limits.
func GetActiveRiskLimitsID(ctx context.Context, configName string) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	query := `
		SELECT limits_id
		FROM risk_limits
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var limitsID int64
	if err := DB.QueryRowContext(ctx, query, configName).Scan(&limitsID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w for config '%s'", ErrRiskLimitsNotFound, configName)
		}
		return 0, fmt.Errorf("failed to get active risk limits id for config '%s': %w", configName, err)
	}
	return limitsID, nil
}
