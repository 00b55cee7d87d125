package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elys-network/rebalancer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managerHex = strings.Repeat("0a", 32)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PORTFOLIO_MANAGER", managerHex)
	t.Setenv("DB_USER", "rebalancer")
	t.Setenv("DB_NAME", "rebalancer")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	for _, key := range []string{"REBALANCE_THRESHOLD", "MIN_REBALANCE_INTERVAL_SECONDS", "LEGACY_FIXED_THRESHOLD",
		"PLATFORM_TREASURY", "MANAGER_TREASURY", "RISK_LIMITS_FILE", "WEB_PORT", "REBALANCE_SCHEDULE", "DB_PORT"} {
		t.Setenv(key, "")
	}

	require.NoError(t, LoadConfig())
	assert.Equal(t, managerHex, PortfolioManager.String())
	assert.Equal(t, DefaultRebalanceThreshold, RebalanceThreshold)
	assert.Equal(t, time.Hour, MinRebalanceInterval)
	assert.False(t, LegacyFixedThreshold)
	assert.True(t, PlatformTreasury.IsZero())
	assert.Equal(t, "8080", WebPort)
	assert.Equal(t, 5432, DBPort)
	assert.Equal(t, DefaultRebalanceSchedule, RebalanceSchedule)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REBALANCE_THRESHOLD", "10")
	t.Setenv("MIN_REBALANCE_INTERVAL_SECONDS", "7200")
	t.Setenv("LEGACY_FIXED_THRESHOLD", "true")
	t.Setenv("PLATFORM_TREASURY", strings.Repeat("0b", 32))
	t.Setenv("REBALANCE_SCHEDULE", "*/5 * * * *")

	require.NoError(t, LoadConfig())
	assert.Equal(t, uint8(10), RebalanceThreshold)
	assert.Equal(t, 2*time.Hour, MinRebalanceInterval)
	assert.True(t, LegacyFixedThreshold)
	assert.Equal(t, strings.Repeat("0b", 32), PlatformTreasury.String())
	assert.Equal(t, "*/5 * * * *", RebalanceSchedule)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr error
	}{
		{name: "threshold out of range", key: "REBALANCE_THRESHOLD", value: "51", wantErr: types.ErrInvalidRebalanceThreshold},
		{name: "threshold zero", key: "REBALANCE_THRESHOLD", value: "0", wantErr: types.ErrInvalidRebalanceThreshold},
		{name: "interval too short", key: "MIN_REBALANCE_INTERVAL_SECONDS", value: "60", wantErr: types.ErrInvalidRebalanceInterval},
		{name: "bad manager", key: "PORTFOLIO_MANAGER", value: "xyz", wantErr: types.ErrInvalidStrategyID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.value)
			assert.ErrorIs(t, LoadConfig(), tt.wantErr)
		})
	}

	t.Run("bad schedule", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("REBALANCE_SCHEDULE", "every so often")
		assert.Error(t, LoadConfig())
	})
}

func TestDefaultRiskLimitsAreValid(t *testing.T) {
	limits := DefaultRiskLimits()
	require.NoError(t, limits.Validate())
	assert.Equal(t, uint64(4000), limits.MaxSingleStrategyBps)
	assert.Equal(t, uint64(100), limits.MinSingleStrategyBps)
	assert.Equal(t, uint64(50), limits.PlatformFeeBps)
	assert.Equal(t, uint64(150), limits.ManagerFeeBps)
	assert.Equal(t, uint64(8000), limits.RiskToleranceBps)
}

func TestLoadRiskLimitsFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("overlay", func(t *testing.T) {
		path := filepath.Join(dir, "limits.yaml")
		content := "max_single_strategy_bps: 3000\nrisk_tolerance_bps: 10000\nmanager_treasury: " + strings.Repeat("0c", 32) + "\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		limits, err := LoadRiskLimitsFile(path)
		require.NoError(t, err)
		assert.Equal(t, uint64(3000), limits.MaxSingleStrategyBps)
		assert.Equal(t, uint64(10000), limits.RiskToleranceBps)
		assert.Equal(t, uint64(150), limits.ManagerFeeBps, "absent fields keep defaults")
		assert.Equal(t, strings.Repeat("0c", 32), limits.ManagerTreasury.String())
	})

	t.Run("invalid limits", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("min_single_strategy_bps: 9000\n"), 0o600))
		_, err := LoadRiskLimitsFile(path)
		assert.ErrorIs(t, err, ErrInvalidRiskLimitsFile)
		assert.ErrorIs(t, err, types.ErrInvalidRiskLimits)
	})

	t.Run("unknown field", func(t *testing.T) {
		path := filepath.Join(dir, "unknown.yaml")
		require.NoError(t, os.WriteFile(path, []byte("max_leverage: 3\n"), 0o600))
		_, err := LoadRiskLimitsFile(path)
		assert.ErrorIs(t, err, ErrInvalidRiskLimitsFile)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRiskLimitsFile(filepath.Join(dir, "missing.yaml"))
		assert.ErrorIs(t, err, ErrInvalidRiskLimitsFile)
	})
}
