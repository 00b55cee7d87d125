package types

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testID(b byte) StrategyID {
	var id StrategyID
	id[0] = b
	id[31] = 0x01
	return id
}

func TestStrategyIDText(t *testing.T) {
	id := testID(0xab)
	parsed, err := ParseStrategyID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, "ab000000", id.Short())
	assert.Len(t, id.String(), 64)

	_, err = ParseStrategyID("abcd")
	assert.ErrorIs(t, err, ErrInvalidStrategyID)
	_, err = ParseStrategyID(strings.Repeat("zz", 32))
	assert.ErrorIs(t, err, ErrInvalidStrategyID)

	assert.True(t, StrategyID{}.IsZero())
	assert.False(t, id.IsZero())
}

func TestProtocolValidate(t *testing.T) {
	tests := []struct {
		name     string
		protocol Protocol
		wantErr  error
	}{
		{name: "stable lending", protocol: StableLending{PoolID: testID(1), ReserveAddress: testID(2), UtilizationBps: 10000}},
		{name: "stable lending missing pool", protocol: StableLending{ReserveAddress: testID(2)}, wantErr: ErrInvalidProtocolType},
		{name: "stable lending utilization", protocol: StableLending{PoolID: testID(1), ReserveAddress: testID(2), UtilizationBps: 10001}, wantErr: ErrInvalidAllocationPercentage},
		{name: "yield farming", protocol: YieldFarming{PairID: testID(1), TokenAMint: testID(2), TokenBMint: testID(3), RewardMultiplier: 10, FeeTierBps: 1000}},
		{name: "yield farming same mints", protocol: YieldFarming{PairID: testID(1), TokenAMint: testID(2), TokenBMint: testID(2), RewardMultiplier: 1}, wantErr: ErrInvalidTokenMint},
		{name: "yield farming zero mint", protocol: YieldFarming{PairID: testID(1), TokenAMint: testID(2), RewardMultiplier: 1}, wantErr: ErrInvalidTokenMint},
		{name: "yield farming multiplier", protocol: YieldFarming{PairID: testID(1), TokenAMint: testID(2), TokenBMint: testID(3), RewardMultiplier: 11}, wantErr: ErrInvalidAllocationPercentage},
		{name: "yield farming fee tier", protocol: YieldFarming{PairID: testID(1), TokenAMint: testID(2), TokenBMint: testID(3), RewardMultiplier: 1, FeeTierBps: 1001}, wantErr: ErrInvalidAllocationPercentage},
		{name: "liquid staking", protocol: LiquidStaking{ValidatorID: testID(1), StakePool: testID(2), CommissionBps: 1000, UnstakeDelayEpochs: 50}},
		{name: "liquid staking commission", protocol: LiquidStaking{ValidatorID: testID(1), StakePool: testID(2), CommissionBps: 1001}, wantErr: ErrInvalidAllocationPercentage},
		{name: "liquid staking delay", protocol: LiquidStaking{ValidatorID: testID(1), StakePool: testID(2), UnstakeDelayEpochs: 51}, wantErr: ErrInvalidAllocationPercentage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.protocol.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProtocolMinAllocation(t *testing.T) {
	assert.Equal(t, uint64(100_000_000), StableLending{}.MinAllocation())
	assert.Equal(t, uint64(500_000_000), YieldFarming{}.MinAllocation())
	assert.Equal(t, uint64(1_000_000_000), LiquidStaking{}.MinAllocation())
}

func TestProtocolEnvelope(t *testing.T) {
	original := YieldFarming{PairID: testID(1), TokenAMint: testID(2), TokenBMint: testID(3), RewardMultiplier: 3, FeeTierBps: 25}
	raw, err := MarshalProtocol(original)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"yield_farming"`)

	decoded, err := UnmarshalProtocol(raw)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	_, err = UnmarshalProtocol([]byte(`{"kind":"perpetuals","params":{}}`))
	assert.ErrorIs(t, err, ErrInvalidProtocolType)

	_, err = MarshalProtocol(nil)
	assert.ErrorIs(t, err, ErrInvalidProtocolType)
}

func TestStrategyJSONCarriesProtocol(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	strategy, err := NewStrategy(testID(9), LiquidStaking{ValidatorID: testID(1), StakePool: testID(2), CommissionBps: 700}, 2_000_000_000, now)
	require.NoError(t, err)

	raw, err := json.Marshal(strategy)
	require.NoError(t, err)

	var decoded Strategy
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, strategy.ID, decoded.ID)
	assert.Equal(t, strategy.Protocol, decoded.Protocol)
	assert.Equal(t, strategy.CurrentBalance, decoded.CurrentBalance)
	assert.True(t, strategy.CreationTime.Equal(decoded.CreationTime))
}

func TestNewStrategy(t *testing.T) {
	now := time.Now()
	protocol := StableLending{PoolID: testID(1), ReserveAddress: testID(2)}

	s, err := NewStrategy(testID(5), protocol, 1_000_000, now)
	require.NoError(t, err)
	assert.Equal(t, StrategyActive, s.Status)
	assert.Equal(t, uint64(1_000_000), s.TotalDeposits)
	assert.NoError(t, s.Validate())

	_, err = NewStrategy(StrategyID{}, protocol, 0, now)
	assert.ErrorIs(t, err, ErrInvalidStrategyID)

	_, err = NewStrategy(testID(5), protocol, MaxBalance, now)
	assert.ErrorIs(t, err, ErrBalanceTooLarge)

	_, err = NewStrategy(testID(5), nil, 0, now)
	assert.ErrorIs(t, err, ErrInvalidProtocolType)
}

func TestStrategyValidate(t *testing.T) {
	s, err := NewStrategy(testID(5), StableLending{PoolID: testID(1), ReserveAddress: testID(2)}, 0, time.Now())
	require.NoError(t, err)

	bad := s
	bad.YieldRate = MaxYieldRateBps + 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidYieldRate)

	bad = s
	bad.VolatilityScore = MaxVolatilityScore + 1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidVolatilityScore)

	bad = s
	bad.PercentileRank = 101
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPercentileRank)

	bad = s
	bad.Status = "closed"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidStrategyStatus)
}

func TestPortfolioRebalanceWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewPortfolio(testID(1), 25, 2*time.Hour, start)
	require.NoError(t, err)
	assert.Equal(t, DefaultPerformanceFeeBps, p.PerformanceFeeBps)

	assert.False(t, p.CanRebalance(start.Add(time.Hour)))
	assert.True(t, p.CanRebalance(start.Add(2*time.Hour)))

	p.EmergencyPause = true
	assert.False(t, p.CanRebalance(start.Add(3*time.Hour)))
}

func TestNewPortfolioValidation(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		threshold uint8
		interval  time.Duration
		wantErr   error
	}{
		{name: "threshold zero", threshold: 0, interval: time.Hour, wantErr: ErrInvalidRebalanceThreshold},
		{name: "threshold too high", threshold: 51, interval: time.Hour, wantErr: ErrInvalidRebalanceThreshold},
		{name: "interval too short", threshold: 10, interval: 59 * time.Minute, wantErr: ErrInvalidRebalanceInterval},
		{name: "interval too long", threshold: 10, interval: 25 * time.Hour, wantErr: ErrInvalidRebalanceInterval},
		{name: "bounds", threshold: 50, interval: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPortfolio(testID(1), tt.threshold, tt.interval, now)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRecordRebalance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := NewPortfolio(testID(1), 25, time.Hour, start)
	require.NoError(t, err)

	later := start.Add(90 * time.Minute)
	updated, err := p.RecordRebalance(5_000, later)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), updated.TotalCapitalMoved)
	assert.Equal(t, later, updated.LastRebalance)
	assert.Equal(t, start, p.LastRebalance, "receiver is not modified")

	updated.TotalCapitalMoved = math.MaxUint64
	_, err = updated.RecordRebalance(1, later)
	assert.ErrorIs(t, err, ErrBalanceTooLarge)
}

func TestRiskLimitsValidate(t *testing.T) {
	valid := RiskLimits{MaxSingleStrategyBps: 4000, MinSingleStrategyBps: 100, PlatformFeeBps: 50, ManagerFeeBps: 150, RiskToleranceBps: 8000}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		modify func(r *RiskLimits)
	}{
		{name: "zero max", modify: func(r *RiskLimits) { r.MaxSingleStrategyBps = 0 }},
		{name: "max above 100%", modify: func(r *RiskLimits) { r.MaxSingleStrategyBps = 10001 }},
		{name: "min above max", modify: func(r *RiskLimits) { r.MinSingleStrategyBps = 4001 }},
		{name: "fees above 100%", modify: func(r *RiskLimits) { r.PlatformFeeBps = 6000; r.ManagerFeeBps = 5000 }},
		{name: "zero tolerance", modify: func(r *RiskLimits) { r.RiskToleranceBps = 0 }},
		{name: "tolerance too high", modify: func(r *RiskLimits) { r.RiskToleranceBps = 20001 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.modify(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidRiskLimits)
		})
	}
}

func TestPerformanceUpdateValidate(t *testing.T) {
	assert.NoError(t, PerformanceUpdate{YieldRate: 50000, VolatilityScore: 10000, CurrentBalance: 1}.Validate())
	assert.ErrorIs(t, PerformanceUpdate{YieldRate: 50001}.Validate(), ErrInvalidYieldRate)
	assert.ErrorIs(t, PerformanceUpdate{CurrentBalance: MaxBalance}.Validate(), ErrBalanceTooLarge)
}
