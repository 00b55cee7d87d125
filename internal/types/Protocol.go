/*

This file contains the protocol classification for strategies. The set of protocols is closed:
every strategy is exactly one of StableLending, YieldFarming or LiquidStaking.

*/

package types

import (
	"encoding/json"
	"fmt"
)

// ProtocolKind is the discriminator stored alongside protocol parameters.
type ProtocolKind string

const (
	ProtocolStableLending ProtocolKind = "stable_lending"
	ProtocolYieldFarming  ProtocolKind = "yield_farming"
	ProtocolLiquidStaking ProtocolKind = "liquid_staking"
)

// Minimum allocation accepted per protocol, in lamports.
const (
	StableLendingMinAllocation uint64 = 100_000_000   // 0.1 unit
	YieldFarmingMinAllocation  uint64 = 500_000_000   // 0.5 unit, LP positions
	LiquidStakingMinAllocation uint64 = 1_000_000_000 // 1 unit
)

// Protocol is implemented only by the variants in this package.
type Protocol interface {
	Kind() ProtocolKind
	Name() string
	Validate() error
	// MinAllocation is the smallest allocation the protocol accepts.
	MinAllocation() uint64

	isProtocol()
}

// StableLending is a lending pool position.
type StableLending struct {
	PoolID         StrategyID `json:"pool_id"`
	ReserveAddress StrategyID `json:"reserve_address"`
	UtilizationBps uint16     `json:"utilization_bps"`
}

// YieldFarming is a liquidity-pair farming position.
type YieldFarming struct {
	PairID           StrategyID `json:"pair_id"`
	TokenAMint       StrategyID `json:"token_a_mint"`
	TokenBMint       StrategyID `json:"token_b_mint"`
	RewardMultiplier uint8      `json:"reward_multiplier"` // 1-10x
	FeeTierBps       uint16     `json:"fee_tier_bps"`
}

// LiquidStaking is a validator stake pool position.
type LiquidStaking struct {
	ValidatorID        StrategyID `json:"validator_id"`
	StakePool          StrategyID `json:"stake_pool"`
	CommissionBps      uint16     `json:"commission_bps"`
	UnstakeDelayEpochs uint32     `json:"unstake_delay_epochs"`
}

func (StableLending) Kind() ProtocolKind { return ProtocolStableLending }
func (YieldFarming) Kind() ProtocolKind  { return ProtocolYieldFarming }
func (LiquidStaking) Kind() ProtocolKind { return ProtocolLiquidStaking }

func (StableLending) Name() string { return "Stable Lending" }
func (YieldFarming) Name() string  { return "Yield Farming" }
func (LiquidStaking) Name() string { return "Liquid Staking" }

func (StableLending) MinAllocation() uint64 { return StableLendingMinAllocation }
func (YieldFarming) MinAllocation() uint64  { return YieldFarmingMinAllocation }
func (LiquidStaking) MinAllocation() uint64 { return LiquidStakingMinAllocation }

func (StableLending) isProtocol() {}
func (YieldFarming) isProtocol()  {}
func (LiquidStaking) isProtocol() {}

func (p StableLending) Validate() error {
	if p.PoolID.IsZero() || p.ReserveAddress.IsZero() {
		return fmt.Errorf("%w: stable lending pool and reserve must be set", ErrInvalidProtocolType)
	}
	if p.UtilizationBps > 10000 {
		return fmt.Errorf("%w: utilization %d bps exceeds 10000", ErrInvalidAllocationPercentage, p.UtilizationBps)
	}
	return nil
}

func (p YieldFarming) Validate() error {
	if p.PairID.IsZero() {
		return fmt.Errorf("%w: yield farming pair must be set", ErrInvalidProtocolType)
	}
	if p.TokenAMint.IsZero() || p.TokenBMint.IsZero() {
		return fmt.Errorf("%w: both token mints must be set", ErrInvalidTokenMint)
	}
	if p.TokenAMint == p.TokenBMint {
		return fmt.Errorf("%w: token mints must differ", ErrInvalidTokenMint)
	}
	if p.RewardMultiplier < 1 || p.RewardMultiplier > 10 {
		return fmt.Errorf("%w: reward multiplier %d outside 1-10", ErrInvalidAllocationPercentage, p.RewardMultiplier)
	}
	if p.FeeTierBps > 1000 {
		return fmt.Errorf("%w: fee tier %d bps exceeds 1000", ErrInvalidAllocationPercentage, p.FeeTierBps)
	}
	return nil
}

func (p LiquidStaking) Validate() error {
	if p.ValidatorID.IsZero() || p.StakePool.IsZero() {
		return fmt.Errorf("%w: validator and stake pool must be set", ErrInvalidProtocolType)
	}
	if p.CommissionBps > 1000 {
		return fmt.Errorf("%w: commission %d bps exceeds 1000", ErrInvalidAllocationPercentage, p.CommissionBps)
	}
	if p.UnstakeDelayEpochs > 50 {
		return fmt.Errorf("%w: unstake delay %d epochs exceeds 50", ErrInvalidAllocationPercentage, p.UnstakeDelayEpochs)
	}
	return nil
}

// protocolEnvelope is the JSON form of a Protocol.
type protocolEnvelope struct {
	Kind   ProtocolKind    `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// MarshalProtocol encodes a protocol as {"kind": ..., "params": {...}}.
func MarshalProtocol(p Protocol) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: protocol is nil", ErrInvalidProtocolType)
	}
	params, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s params: %w", p.Kind(), err)
	}
	return json.Marshal(protocolEnvelope{Kind: p.Kind(), Params: params})
}

// UnmarshalProtocol decodes the output of MarshalProtocol.
func UnmarshalProtocol(data []byte) (Protocol, error) {
	var env protocolEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal protocol envelope: %w", err)
	}

	var p Protocol
	var err error
	switch env.Kind {
	case ProtocolStableLending:
		var v StableLending
		err = json.Unmarshal(env.Params, &v)
		p = v
	case ProtocolYieldFarming:
		var v YieldFarming
		err = json.Unmarshal(env.Params, &v)
		p = v
	case ProtocolLiquidStaking:
		var v LiquidStaking
		err = json.Unmarshal(env.Params, &v)
		p = v
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidProtocolType, env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s params: %w", env.Kind, err)
	}
	return p, nil
}
