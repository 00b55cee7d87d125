package types

import (
	"fmt"
	"math"
	"time"
)

const (
	MinRebalanceThreshold uint8 = 1
	MaxRebalanceThreshold uint8 = 50

	MinRebalanceInterval = time.Hour
	MaxRebalanceInterval = 24 * time.Hour

	DefaultPerformanceFeeBps uint16 = 200
)

// Portfolio is the snapshot of a managed portfolio. The engine only reads it; the
// rebalancer service writes LastRebalance and TotalCapitalMoved after a cycle.
type Portfolio struct {
	Manager              StrategyID    `json:"manager"`
	RebalanceThreshold   uint8         `json:"rebalance_threshold"` // 1-50, used in legacy fixed-threshold mode
	MinRebalanceInterval time.Duration `json:"min_rebalance_interval"`
	LastRebalance        time.Time     `json:"last_rebalance"`
	PortfolioCreation    time.Time     `json:"portfolio_creation"`
	EmergencyPause       bool          `json:"emergency_pause"`
	PerformanceFeeBps    uint16        `json:"performance_fee_bps"`
	TotalStrategies      uint32        `json:"total_strategies"`
	TotalCapitalMoved    uint64        `json:"total_capital_moved"`
	// LegacyFixedThreshold ranks against RebalanceThreshold instead of the
	// volatility-driven dynamic threshold.
	LegacyFixedThreshold bool `json:"legacy_fixed_threshold"`
}

// NewPortfolio initializes a portfolio for a manager.
func NewPortfolio(manager StrategyID, threshold uint8, interval time.Duration, now time.Time) (Portfolio, error) {
	if manager.IsZero() {
		return Portfolio{}, fmt.Errorf("%w: manager must be set", ErrInvalidStrategyID)
	}
	if err := ValidateRebalanceThreshold(threshold); err != nil {
		return Portfolio{}, err
	}
	if err := ValidateMinInterval(interval); err != nil {
		return Portfolio{}, err
	}
	return Portfolio{
		Manager:              manager,
		RebalanceThreshold:   threshold,
		MinRebalanceInterval: interval,
		LastRebalance:        now,
		PortfolioCreation:    now,
		PerformanceFeeBps:    DefaultPerformanceFeeBps,
	}, nil
}

func ValidateRebalanceThreshold(threshold uint8) error {
	if threshold < MinRebalanceThreshold || threshold > MaxRebalanceThreshold {
		return fmt.Errorf("%w: got %d", ErrInvalidRebalanceThreshold, threshold)
	}
	return nil
}

func ValidateMinInterval(interval time.Duration) error {
	if interval < MinRebalanceInterval || interval > MaxRebalanceInterval {
		return fmt.Errorf("%w: got %s", ErrInvalidRebalanceInterval, interval)
	}
	return nil
}

// Validate checks the configurable fields of the portfolio.
func (p Portfolio) Validate() error {
	if err := ValidateRebalanceThreshold(p.RebalanceThreshold); err != nil {
		return err
	}
	return ValidateMinInterval(p.MinRebalanceInterval)
}

// NextRebalance is the earliest time a new cycle may run.
func (p Portfolio) NextRebalance() time.Time {
	return p.LastRebalance.Add(p.MinRebalanceInterval)
}

// CanRebalance reports whether a cycle may run at now.
func (p Portfolio) CanRebalance(now time.Time) bool {
	return !p.EmergencyPause && !now.Before(p.NextRebalance())
}

// RecordRebalance returns a copy of the portfolio with the cycle accounted for.
func (p Portfolio) RecordRebalance(capitalMoved uint64, now time.Time) (Portfolio, error) {
	if p.TotalCapitalMoved > math.MaxUint64-capitalMoved {
		return p, fmt.Errorf("%w: total capital moved overflows", ErrBalanceTooLarge)
	}
	p.TotalCapitalMoved += capitalMoved
	p.LastRebalance = now
	return p, nil
}
