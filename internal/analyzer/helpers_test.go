package analyzer

import (
	"github.com/elys-network/rebalancer/internal/types"
)

func testID(b byte) types.StrategyID {
	var id types.StrategyID
	id[0] = b
	id[31] = 0xff
	return id
}

func stableLending() types.Protocol {
	return types.StableLending{PoolID: testID(0xa1), ReserveAddress: testID(0xa2), UtilizationBps: 7000}
}

func yieldFarming() types.Protocol {
	return types.YieldFarming{PairID: testID(0xb1), TokenAMint: testID(0xb2), TokenBMint: testID(0xb3), RewardMultiplier: 2, FeeTierBps: 30}
}

func liquidStaking() types.Protocol {
	return types.LiquidStaking{ValidatorID: testID(0xc1), StakePool: testID(0xc2), CommissionBps: 500, UnstakeDelayEpochs: 2}
}

func record(id byte, score, balance uint64, volatility uint32) types.StrategyPerformance {
	return types.StrategyPerformance{
		ID:               testID(id),
		PerformanceScore: score,
		CurrentBalance:   balance,
		VolatilityScore:  volatility,
		Protocol:         stableLending(),
		Status:           types.StrategyActive,
	}
}

func testRiskLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxSingleStrategyBps: 4000,
		MinSingleStrategyBps: 100,
		PlatformFeeBps:       50,
		ManagerFeeBps:        150,
		RiskToleranceBps:     8000,
		PlatformTreasury:     testID(0xf1),
		ManagerTreasury:      testID(0xf2),
	}
}
