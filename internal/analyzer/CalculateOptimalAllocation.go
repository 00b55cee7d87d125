/*

This file contains the allocation of extracted capital across candidate strategies: fees first,
then performance-weighted shares bounded by diversification limits, protocol minimums and a
volatility-based risk multiplier.

*/

package analyzer

import (
	"errors"
	"fmt"

	"github.com/elys-network/rebalancer/internal/logger"
	"github.com/elys-network/rebalancer/internal/types"
	"github.com/elys-network/rebalancer/internal/utils"
	"github.com/rs/zerolog"
)

var allocationLogger = logger.GetForComponent("capital_allocator")

var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidPerformanceScore = errors.New("candidate performance scores sum to zero")
	ErrInvalidTotalAllocation  = errors.New("allocation total does not match capital")
	ErrDuplicateStrategy       = errors.New("duplicate strategy in allocation batch")
	ErrNoViableAllocation      = errors.New("no candidate received an allocation")
)

const (
	MinRiskMultiplier uint32 = 5000
	MaxRiskMultiplier uint32 = 15000
	// TopPerformerSlots is how many surviving candidates are tagged as top performers.
	TopPerformerSlots = 3
	// DustThreshold is the remainder size worth reporting when it is folded into a top performer.
	DustThreshold uint64 = 1_000_000
)

// CalculateRiskAdjustment maps volatility to a multiplier in basis points. The inverse volatility
// is rescaled onto [5000, 15000], scaled by the risk tolerance and clamped back into that band.
func CalculateRiskAdjustment(volatility uint32, limits types.RiskLimits) uint32 {
	inverse := uint64(types.MaxVolatilityScore - min(volatility, types.MaxVolatilityScore))
	span := uint64(MaxRiskMultiplier - MinRiskMultiplier)
	multiplier := uint64(MinRiskMultiplier) + inverse*span/uint64(types.MaxVolatilityScore)

	// multiplier <= 15000 and tolerance <= 20000 by validation; larger tolerances saturate at the cap.
	adjusted, err := utils.MulDiv(multiplier, limits.RiskToleranceBps, types.BasisPoints)
	if err != nil {
		adjusted = uint64(MaxRiskMultiplier)
	}
	adjusted = max(adjusted, uint64(MinRiskMultiplier))
	adjusted = min(adjusted, uint64(MaxRiskMultiplier))
	return uint32(adjusted)
}

// CalculateOptimalAllocation splits capital into fee and strategy allocation records. Candidates
// are considered in input order; the first three that receive capital are top performers.
// Any remainder is added to the first top performer so the records always sum to capital.
func CalculateOptimalAllocation(capital uint64, candidates []types.StrategyPerformance, limits types.RiskLimits) ([]types.CapitalAllocation, error) {
	if capital == 0 {
		return nil, fmt.Errorf("%w: no capital to allocate", ErrInsufficientBalance)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no allocation candidates", ErrInsufficientStrategies)
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	allocations := make([]types.CapitalAllocation, 0, len(candidates)+2)
	remaining := capital

	// Fees
	fees := []struct {
		bps     uint64
		target  types.StrategyID
		purpose types.AllocationPurpose
	}{
		{limits.PlatformFeeBps, limits.PlatformTreasury, types.AllocationPlatformFee},
		{limits.ManagerFeeBps, limits.ManagerTreasury, types.AllocationManagerIncentive},
	}
	for _, fee := range fees {
		amount, err := utils.MulDiv(capital, fee.bps, types.BasisPoints)
		if err != nil {
			return nil, errors.Join(utils.ErrBalanceOverflow, err)
		}
		if amount == 0 {
			continue
		}
		if remaining, err = utils.CheckedSub(remaining, amount); err != nil {
			return nil, errors.Join(utils.ErrBalanceOverflow, err)
		}
		allocations = append(allocations, types.CapitalAllocation{Target: fee.target, Amount: amount, Purpose: fee.purpose})
	}

	// Score total is checked against the sum of all candidates, including ones skipped later.
	var totalScore uint64
	for _, c := range candidates {
		if c.Protocol == nil {
			return nil, fmt.Errorf("%w: candidate %s has no protocol", types.ErrInvalidProtocolType, c.ID.Short())
		}
		var err error
		if totalScore, err = utils.CheckedAdd(totalScore, c.PerformanceScore); err != nil {
			return nil, errors.Join(utils.ErrBalanceOverflow, err)
		}
	}
	if totalScore == 0 {
		return nil, ErrInvalidPerformanceScore
	}

	maxSingle, err := utils.MulDiv(capital, limits.MaxSingleStrategyBps, types.BasisPoints)
	if err != nil {
		return nil, errors.Join(utils.ErrBalanceOverflow, err)
	}
	minSingle, err := utils.MulDiv(capital, limits.MinSingleStrategyBps, types.BasisPoints)
	if err != nil {
		return nil, errors.Join(utils.ErrBalanceOverflow, err)
	}

	survivors := 0
	for _, c := range candidates {
		if remaining == 0 {
			break
		}
		logEvent := allocationLogger.Debug().Str("strategy", c.ID.Short()).Str("protocol", string(c.Protocol.Kind()))

		amount, err := utils.MulDiv(remaining, c.PerformanceScore, totalScore)
		if err != nil {
			return nil, errors.Join(utils.ErrBalanceOverflow, err)
		}
		amount = min(amount, maxSingle)
		if amount < minSingle {
			logEvent.Uint64("amount", amount).Uint64("minimum", minSingle).Msg("Share below diversification minimum, skipping")
			continue
		}
		floor := c.Protocol.MinAllocation()
		if amount < floor {
			logEvent.Uint64("amount", amount).Uint64("protocolMinimum", floor).Msg("Share below protocol minimum, skipping")
			continue
		}

		multiplier := CalculateRiskAdjustment(c.VolatilityScore, limits)
		if amount, err = utils.MulDiv(amount, uint64(multiplier), types.BasisPoints); err != nil {
			return nil, errors.Join(utils.ErrBalanceOverflow, err)
		}
		amount = min(amount, remaining)
		if amount < floor {
			logEvent.Uint64("amount", amount).Uint32("multiplier", multiplier).Msg("Risk-adjusted share below protocol minimum, skipping")
			continue
		}

		purpose := types.AllocationRiskDiversification
		if survivors < TopPerformerSlots {
			purpose = types.AllocationTopPerformer
		}
		survivors++

		allocations = append(allocations, types.CapitalAllocation{Target: c.ID, Amount: amount, Purpose: purpose})
		if remaining, err = utils.CheckedSub(remaining, amount); err != nil {
			return nil, errors.Join(utils.ErrBalanceOverflow, err)
		}

		logEvent.Uint64("amount", amount).Uint32("multiplier", multiplier).Str("purpose", string(purpose)).Msg("Allocated capital")
	}

	if survivors == 0 {
		allocationLogger.Warn().
			Uint64("capital", capital).
			Int("candidates", len(candidates)).
			Msg("No candidate met the allocation minimums")
		return nil, ErrNoViableAllocation
	}

	if remaining > 0 {
		for i := range allocations {
			if allocations[i].Purpose != types.AllocationTopPerformer {
				continue
			}
			if allocations[i].Amount, err = utils.CheckedAdd(allocations[i].Amount, remaining); err != nil {
				return nil, errors.Join(utils.ErrBalanceOverflow, err)
			}
			level := zerolog.DebugLevel
			if remaining > DustThreshold {
				level = zerolog.InfoLevel
			}
			allocationLogger.WithLevel(level).Str("strategy", allocations[i].Target.Short()).Uint64("remainder", remaining).Msg("Folded unallocated remainder into top performer")
			remaining = 0
			break
		}
	}

	allocationLogger.Info().
		Uint64("capital", capital).
		Int("records", len(allocations)).
		Int("strategies", survivors).
		Msg("Allocation complete")

	return allocations, nil
}

// ValidateAllocations checks amounts and duplicate strategy targets and returns the batch total.
// Fee records may share a treasury, so duplicates are only checked among strategy records.
func ValidateAllocations(allocations []types.CapitalAllocation) (uint64, error) {
	seen := make(map[types.StrategyID]struct{}, len(allocations))
	var total uint64
	for _, a := range allocations {
		if a.Purpose.IsStrategy() {
			if _, dup := seen[a.Target]; dup {
				return 0, fmt.Errorf("%w: %s", ErrDuplicateStrategy, a.Target.Short())
			}
			seen[a.Target] = struct{}{}
		}
		if a.Amount == 0 {
			return 0, fmt.Errorf("%w: zero allocation to %s", ErrInsufficientBalance, a.Target.Short())
		}
		if a.Amount >= types.MaxBalance {
			return 0, fmt.Errorf("%w: allocation of %d to %s", utils.ErrBalanceOverflow, a.Amount, a.Target.Short())
		}
		var err error
		if total, err = utils.CheckedAdd(total, a.Amount); err != nil {
			return 0, errors.Join(utils.ErrBalanceOverflow, err)
		}
	}
	return total, nil
}

// VerifyAllocationTotal validates the batch and checks it sums to capital exactly.
func VerifyAllocationTotal(allocations []types.CapitalAllocation, capital uint64) error {
	total, err := ValidateAllocations(allocations)
	if err != nil {
		return err
	}
	if total != capital {
		return fmt.Errorf("%w: allocated %d of %d", ErrInvalidTotalAllocation, total, capital)
	}
	return nil
}

// SummarizeAllocations validates a batch and totals it by purpose.
func SummarizeAllocations(allocations []types.CapitalAllocation) (types.AllocationResult, error) {
	var result types.AllocationResult
	if _, err := ValidateAllocations(allocations); err != nil {
		return result, err
	}
	for _, a := range allocations {
		var err error
		switch a.Purpose {
		case types.AllocationTopPerformer, types.AllocationRiskDiversification:
			result.StrategiesUpdated++
			result.TotalStrategyAllocation, err = utils.CheckedAdd(result.TotalStrategyAllocation, a.Amount)
		case types.AllocationPlatformFee:
			result.PlatformFees, err = utils.CheckedAdd(result.PlatformFees, a.Amount)
		case types.AllocationManagerIncentive:
			result.ManagerFees, err = utils.CheckedAdd(result.ManagerFees, a.Amount)
		default:
			err = fmt.Errorf("unknown allocation purpose %q", a.Purpose)
		}
		if err != nil {
			return types.AllocationResult{}, err
		}
		if result.TotalAllocated, err = utils.CheckedAdd(result.TotalAllocated, a.Amount); err != nil {
			return types.AllocationResult{}, err
		}
	}
	return result, nil
}
