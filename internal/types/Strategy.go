/*

This file contains the strategy snapshot types. A strategy is one yield-generating position
the portfolio allocates capital to.

*/

package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Bounds for strategy metrics.
const (
	MaxYieldRateBps     uint64 = 50000
	MaxVolatilityScore  uint32 = 10000
	MaxPerformanceScore uint64 = 10000
	MaxPercentileRank   uint8  = 100
	// MaxBalance keeps balances far enough from the u64 limit that fee and
	// allocation arithmetic cannot overflow on sums of a few thousand entries.
	MaxBalance uint64 = math.MaxUint64 / 1000
)

type StrategyStatus string

const (
	StrategyActive     StrategyStatus = "active"     // Participates in ranking and allocation
	StrategyPaused     StrategyStatus = "paused"     // No new allocations
	StrategyDeprecated StrategyStatus = "deprecated" // Extract capital when possible
)

func (s StrategyStatus) Valid() bool {
	switch s {
	case StrategyActive, StrategyPaused, StrategyDeprecated:
		return true
	}
	return false
}

// Strategy is the full snapshot of one managed strategy.
type Strategy struct {
	ID               StrategyID     `json:"id"`
	Protocol         Protocol       `json:"-"`
	CurrentBalance   uint64         `json:"current_balance"`   // lamports
	YieldRate        uint64         `json:"yield_rate"`        // annual yield in bps (0-50000)
	VolatilityScore  uint32         `json:"volatility_score"`  // 0-10000, 100.00% max
	PerformanceScore uint64         `json:"performance_score"` // 0-10000, derived
	PercentileRank   uint8          `json:"percentile_rank"`   // 0-100
	Status           StrategyStatus `json:"status"`
	TotalDeposits    uint64         `json:"total_deposits"`
	TotalWithdrawals uint64         `json:"total_withdrawals"`
	CreationTime     time.Time      `json:"creation_time"`
	LastUpdated      time.Time      `json:"last_updated"`
}

// NewStrategy registers a strategy with an initial balance. Yield, volatility and
// score start at zero until the first performance update.
func NewStrategy(id StrategyID, protocol Protocol, initialBalance uint64, now time.Time) (Strategy, error) {
	if id.IsZero() {
		return Strategy{}, fmt.Errorf("%w: strategy id must be set", ErrInvalidStrategyID)
	}
	if protocol == nil {
		return Strategy{}, fmt.Errorf("%w: protocol is nil", ErrInvalidProtocolType)
	}
	if err := protocol.Validate(); err != nil {
		return Strategy{}, err
	}
	if err := ValidateBalance(initialBalance); err != nil {
		return Strategy{}, err
	}
	return Strategy{
		ID:             id,
		Protocol:       protocol,
		CurrentBalance: initialBalance,
		Status:         StrategyActive,
		TotalDeposits:  initialBalance,
		CreationTime:   now,
		LastUpdated:    now,
	}, nil
}

// Validate checks every bounded field of the snapshot.
func (s Strategy) Validate() error {
	if s.ID.IsZero() {
		return fmt.Errorf("%w: strategy id must be set", ErrInvalidStrategyID)
	}
	if s.Protocol == nil {
		return fmt.Errorf("%w: strategy %s has no protocol", ErrInvalidProtocolType, s.ID.Short())
	}
	if err := s.Protocol.Validate(); err != nil {
		return err
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStrategyStatus, s.Status)
	}
	if err := ValidateYieldRate(s.YieldRate); err != nil {
		return err
	}
	if err := ValidateVolatilityScore(s.VolatilityScore); err != nil {
		return err
	}
	if err := ValidateBalance(s.CurrentBalance); err != nil {
		return err
	}
	if s.PercentileRank > MaxPercentileRank {
		return fmt.Errorf("%w: got %d", ErrInvalidPercentileRank, s.PercentileRank)
	}
	return nil
}

func (s Strategy) IsActive() bool {
	return s.Status == StrategyActive
}

func ValidateYieldRate(rate uint64) error {
	if rate > MaxYieldRateBps {
		return fmt.Errorf("%w: got %d", ErrInvalidYieldRate, rate)
	}
	return nil
}

func ValidateVolatilityScore(score uint32) error {
	if score > MaxVolatilityScore {
		return fmt.Errorf("%w: got %d", ErrInvalidVolatilityScore, score)
	}
	return nil
}

func ValidateBalance(balance uint64) error {
	if balance >= MaxBalance {
		return fmt.Errorf("%w: got %d", ErrBalanceTooLarge, balance)
	}
	return nil
}

type strategyJSON struct {
	strategyAlias
	Protocol json.RawMessage `json:"protocol"`
}

type strategyAlias Strategy

func (s Strategy) MarshalJSON() ([]byte, error) {
	out := strategyJSON{strategyAlias: strategyAlias(s)}
	if s.Protocol != nil {
		raw, err := MarshalProtocol(s.Protocol)
		if err != nil {
			return nil, err
		}
		out.Protocol = raw
	}
	return json.Marshal(out)
}

func (s *Strategy) UnmarshalJSON(data []byte) error {
	var in strategyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Strategy(in.strategyAlias)
	if len(in.Protocol) > 0 && string(in.Protocol) != "null" {
		p, err := UnmarshalProtocol(in.Protocol)
		if err != nil {
			return err
		}
		s.Protocol = p
	}
	return nil
}

// StrategyPerformance is the slice of a strategy the ranking and allocation units work on.
type StrategyPerformance struct {
	ID               StrategyID     `json:"id"`
	PerformanceScore uint64         `json:"performance_score"`
	CurrentBalance   uint64         `json:"current_balance"`
	VolatilityScore  uint32         `json:"volatility_score"`
	Protocol         Protocol       `json:"-"`
	PercentileRank   uint8          `json:"percentile_rank"`
	Status           StrategyStatus `json:"status"`
}

// Performance extracts the ranking record of a strategy.
func (s Strategy) Performance() StrategyPerformance {
	return StrategyPerformance{
		ID:               s.ID,
		PerformanceScore: s.PerformanceScore,
		CurrentBalance:   s.CurrentBalance,
		VolatilityScore:  s.VolatilityScore,
		Protocol:         s.Protocol,
		PercentileRank:   s.PercentileRank,
		Status:           s.Status,
	}
}

// PerformanceRecords converts snapshots into ranking records, preserving order.
func PerformanceRecords(strategies []Strategy) []StrategyPerformance {
	records := make([]StrategyPerformance, 0, len(strategies))
	for _, s := range strategies {
		records = append(records, s.Performance())
	}
	return records
}

// PerformanceUpdate carries freshly observed metrics for one strategy.
type PerformanceUpdate struct {
	YieldRate       uint64 `json:"yield_rate"`
	VolatilityScore uint32 `json:"volatility_score"`
	CurrentBalance  uint64 `json:"current_balance"`
}

func (u PerformanceUpdate) Validate() error {
	return errors.Join(
		ValidateYieldRate(u.YieldRate),
		ValidateVolatilityScore(u.VolatilityScore),
		ValidateBalance(u.CurrentBalance),
	)
}
