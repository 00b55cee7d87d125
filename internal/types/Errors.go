package types

import "errors"

// Domain validation errors for snapshot and configuration values.
var (
	ErrInvalidRebalanceThreshold   = errors.New("rebalance threshold must be between 1 and 50")
	ErrInvalidRebalanceInterval    = errors.New("minimum rebalance interval must be between 3600 and 86400 seconds")
	ErrInvalidYieldRate            = errors.New("yield rate must not exceed 50000 basis points")
	ErrInvalidVolatilityScore      = errors.New("volatility score must not exceed 10000")
	ErrInvalidPercentileRank       = errors.New("percentile rank must not exceed 100")
	ErrInvalidProtocolType         = errors.New("invalid protocol type")
	ErrInvalidTokenMint            = errors.New("invalid token mint")
	ErrInvalidAllocationPercentage = errors.New("invalid allocation percentage")
	ErrInvalidRiskLimits           = errors.New("invalid risk limits")
	ErrInvalidStrategyID           = errors.New("invalid strategy id")
	ErrInvalidStrategyStatus       = errors.New("invalid strategy status")
	ErrStrategyNotActive           = errors.New("strategy is not active")
	ErrBalanceTooLarge             = errors.New("balance exceeds the supported maximum")
)
