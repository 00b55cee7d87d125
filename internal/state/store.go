package state

import (
	"context"

	"github.com/elys-network/rebalancer/internal/types"
)

// PostgresStore exposes the package-level persistence functions as a value, so
// the rebalancer service and the web server can take an interface instead of
// the global pool.
type PostgresStore struct{}

func (PostgresStore) LoadPortfolio(ctx context.Context, manager types.StrategyID) (types.Portfolio, error) {
	return LoadPortfolio(ctx, manager)
}

func (PostgresStore) SavePortfolio(ctx context.Context, p types.Portfolio) error {
	return SavePortfolio(ctx, p)
}

func (PostgresStore) SetEmergencyPause(ctx context.Context, manager types.StrategyID, paused bool) error {
	return SetEmergencyPause(ctx, manager, paused)
}

func (PostgresStore) LoadStrategies(ctx context.Context, manager types.StrategyID) ([]types.Strategy, error) {
	return LoadStrategies(ctx, manager)
}

func (PostgresStore) LoadStrategy(ctx context.Context, manager, id types.StrategyID) (types.Strategy, error) {
	return LoadStrategy(ctx, manager, id)
}

func (PostgresStore) SaveStrategy(ctx context.Context, manager types.StrategyID, s types.Strategy) error {
	return SaveStrategy(ctx, manager, s)
}

func (PostgresStore) RegisterStrategy(ctx context.Context, p types.Portfolio, s types.Strategy) error {
	return RegisterStrategy(ctx, p, s)
}

func (PostgresStore) LoadActiveRiskLimits(ctx context.Context, configName string) (types.RiskLimits, error) {
	return LoadActiveRiskLimits(ctx, configName)
}

func (PostgresStore) CommitCycle(ctx context.Context, p types.Portfolio, ranked []types.Strategy) error {
	return CommitCycle(ctx, p, ranked)
}

func (PostgresStore) IncrementCycleNumber(ctx context.Context) (int64, error) {
	return IncrementCycleNumber(ctx)
}

func (PostgresStore) GetCurrentCycleNumber(ctx context.Context) (int64, error) {
	return GetCurrentCycleNumber(ctx)
}

func (PostgresStore) Ping() error {
	return TestDBConnection()
}
