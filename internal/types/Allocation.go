/*

This file contains the types produced by the allocation unit and the plan orchestrator.

*/

package types

import "fmt"

// AllocationPurpose classifies a capital allocation record.
type AllocationPurpose string

const (
	AllocationTopPerformer        AllocationPurpose = "TOP_PERFORMER"
	AllocationRiskDiversification AllocationPurpose = "RISK_DIVERSIFICATION"
	AllocationPlatformFee         AllocationPurpose = "PLATFORM_FEE"
	AllocationManagerIncentive    AllocationPurpose = "MANAGER_INCENTIVE"
)

// IsStrategy reports whether the record targets a strategy rather than a fee treasury.
func (p AllocationPurpose) IsStrategy() bool {
	return p == AllocationTopPerformer || p == AllocationRiskDiversification
}

// CapitalAllocation is one (target, amount, purpose) record.
type CapitalAllocation struct {
	Target  StrategyID        `json:"target"`
	Amount  uint64            `json:"amount"` // lamports
	Purpose AllocationPurpose `json:"purpose"`
}

// RiskLimits bound a single allocation run. Supplied per cycle, never persisted by the engine.
type RiskLimits struct {
	MaxSingleStrategyBps uint64     `json:"max_single_strategy_bps" yaml:"max_single_strategy_bps"` // Maximum share of capital to one strategy
	MinSingleStrategyBps uint64     `json:"min_single_strategy_bps" yaml:"min_single_strategy_bps"` // Shares below this are dropped
	PlatformFeeBps       uint64     `json:"platform_fee_bps" yaml:"platform_fee_bps"`
	ManagerFeeBps        uint64     `json:"manager_fee_bps" yaml:"manager_fee_bps"`
	RiskToleranceBps     uint64     `json:"risk_tolerance_bps" yaml:"risk_tolerance_bps"` // Scales the risk multiplier, 10000 = neutral
	PlatformTreasury     StrategyID `json:"platform_treasury" yaml:"platform_treasury"`
	ManagerTreasury      StrategyID `json:"manager_treasury" yaml:"manager_treasury"`
}

const (
	BasisPoints         uint64 = 10000
	MaxRiskToleranceBps uint64 = 20000
)

func (r RiskLimits) Validate() error {
	if r.MaxSingleStrategyBps == 0 || r.MaxSingleStrategyBps > BasisPoints {
		return fmt.Errorf("%w: max single strategy %d bps", ErrInvalidRiskLimits, r.MaxSingleStrategyBps)
	}
	if r.MinSingleStrategyBps > r.MaxSingleStrategyBps {
		return fmt.Errorf("%w: min single strategy %d bps exceeds max %d bps",
			ErrInvalidRiskLimits, r.MinSingleStrategyBps, r.MaxSingleStrategyBps)
	}
	if r.PlatformFeeBps > BasisPoints || r.ManagerFeeBps > BasisPoints || r.PlatformFeeBps+r.ManagerFeeBps > BasisPoints {
		return fmt.Errorf("%w: fees %d+%d bps exceed 10000", ErrInvalidRiskLimits, r.PlatformFeeBps, r.ManagerFeeBps)
	}
	if r.RiskToleranceBps == 0 || r.RiskToleranceBps > MaxRiskToleranceBps {
		return fmt.Errorf("%w: risk tolerance %d bps outside 1-%d", ErrInvalidRiskLimits, r.RiskToleranceBps, MaxRiskToleranceBps)
	}
	return nil
}

// RebalancingPlan is the outcome of one planning cycle.
type RebalancingPlan struct {
	ExtractionTargets   []StrategyID        `json:"extraction_targets"`
	TotalToExtract      uint64              `json:"total_to_extract"`
	Threshold           uint8               `json:"threshold"`
	Redistribution      []CapitalAllocation `json:"redistribution"`
	EstimatedFees       uint64              `json:"estimated_fees"`
	ExpectedImprovement uint64              `json:"expected_improvement"` // performance score points, an estimate
}

// AllocationResult totals an allocation batch by purpose.
type AllocationResult struct {
	TotalAllocated          uint64 `json:"total_allocated"`
	StrategiesUpdated       uint32 `json:"strategies_updated"`
	TotalStrategyAllocation uint64 `json:"total_strategy_allocation"`
	PlatformFees            uint64 `json:"platform_fees"`
	ManagerFees             uint64 `json:"manager_fees"`
}
