/*

This file contains the default parameters for the rebalancer.

The risk limits are conservative: they favour diversification and capital preservation over
concentrating capital in the single best strategy.

*/

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/elys-network/rebalancer/internal/types"
	"gopkg.in/yaml.v3"
)

var ErrInvalidRiskLimitsFile = errors.New("invalid risk limits file")

const (
	DefaultRebalanceThreshold uint8 = 25
	// Rationale: a quarter of the portfolio is the widest band the ranking considers
	// underperforming in legacy mode; the dynamic threshold stays within 10-40.

	DefaultMinRebalanceInterval = time.Hour
	// Rationale: the shortest allowed interval. Capital moves have fixed costs, and hourly is
	// already aggressive relative to how fast yields change.

	DefaultRebalanceSchedule = "@every 10m"
	// Rationale: the scheduler only checks whether a cycle is due; the interval gate decides.

	// DefaultRiskConfigName is the config name active risk limits are stored under.
	DefaultRiskConfigName    = "default"
	DefaultRiskConfigVersion = 1
)

// DefaultRiskLimits provides the baseline risk limits for the allocation engine.
// These values are used if no active limits are found in the database during initialization.
func DefaultRiskLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxSingleStrategyBps: 4000, // At most 40% of extracted capital to one strategy.
		// Rationale: an exploit or depeg in one protocol must not take down the portfolio.

		MinSingleStrategyBps: 100, // Shares below 1% are dropped.
		// Rationale: tiny positions cost more to open and track than they earn.

		PlatformFeeBps: 50, // 0.5% platform fee.
		// Rationale: charged only on capital that actually moves.

		ManagerFeeBps: 150, // 1.5% manager incentive.
		// Rationale: rewards the manager for rebalancing without making churn profitable.

		RiskToleranceBps: 8000, // 80% tolerance.
		// Rationale: scales every risk multiplier down; even the calmest strategy is capped
		// at 120% of its earned share, and volatile ones fall to the 50% floor sooner.

		PlatformTreasury: PlatformTreasury,
		ManagerTreasury:  ManagerTreasury,
	}
}

// LoadRiskLimitsFile reads a YAML file and overlays it on DefaultRiskLimits. Fields absent from the
// file keep their default values.
func LoadRiskLimitsFile(path string) (types.RiskLimits, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.RiskLimits{}, fmt.Errorf("%w: %w", ErrInvalidRiskLimitsFile, err)
	}

	limits := DefaultRiskLimits()
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&limits); err != nil {
		return types.RiskLimits{}, fmt.Errorf("%w: %s: %w", ErrInvalidRiskLimitsFile, path, err)
	}
	if err := limits.Validate(); err != nil {
		return types.RiskLimits{}, errors.Join(ErrInvalidRiskLimitsFile, err)
	}
	return limits, nil
}

// ResolveRiskLimits returns the limits from RiskLimitsFile when set, otherwise the defaults.
func ResolveRiskLimits() (types.RiskLimits, error) {
	if RiskLimitsFile == "" {
		limits := DefaultRiskLimits()
		return limits, limits.Validate()
	}
	return LoadRiskLimitsFile(RiskLimitsFile)
}
