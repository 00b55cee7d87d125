package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/elys-network/rebalancer/internal/types"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// PortfolioManager identifies the portfolio this rebalancer instance manages.
	PortfolioManager types.StrategyID

	// RebalanceThreshold is the configured threshold (1-50) used when LegacyFixedThreshold is set.
	RebalanceThreshold uint8
	// MinRebalanceInterval is the minimum time between two rebalance cycles.
	MinRebalanceInterval time.Duration
	// LegacyFixedThreshold ranks against RebalanceThreshold instead of the dynamic threshold.
	LegacyFixedThreshold bool

	// PlatformTreasury and ManagerTreasury receive the fee allocation records.
	PlatformTreasury types.StrategyID
	ManagerTreasury  types.StrategyID

	// RiskLimitsFile optionally points to a YAML file overriding DefaultRiskLimits.
	RiskLimitsFile string

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// PORTFOLIO_MANAGER and the database settings are required; everything else has a default.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	PortfolioManager, err = getEnvAsStrategyID("PORTFOLIO_MANAGER")
	if err != nil {
		return err
	}

	threshold, err := getEnvAsUint64OrDefault("REBALANCE_THRESHOLD", uint64(DefaultRebalanceThreshold))
	if err != nil {
		return err
	}
	if threshold > uint64(types.MaxRebalanceThreshold) {
		return fmt.Errorf("%w: REBALANCE_THRESHOLD=%d", types.ErrInvalidRebalanceThreshold, threshold)
	}
	RebalanceThreshold = uint8(threshold)
	if err := types.ValidateRebalanceThreshold(RebalanceThreshold); err != nil {
		return err
	}

	intervalSeconds, err := getEnvAsUint64OrDefault("MIN_REBALANCE_INTERVAL_SECONDS", uint64(DefaultMinRebalanceInterval/time.Second))
	if err != nil {
		return err
	}
	MinRebalanceInterval = time.Duration(intervalSeconds) * time.Second
	if err := types.ValidateMinInterval(MinRebalanceInterval); err != nil {
		return err
	}

	LegacyFixedThreshold, err = getEnvAsBoolOrDefault("LEGACY_FIXED_THRESHOLD", false)
	if err != nil {
		return err
	}

	if PlatformTreasury, err = getEnvAsStrategyIDOrZero("PLATFORM_TREASURY"); err != nil {
		return err
	}
	if ManagerTreasury, err = getEnvAsStrategyIDOrZero("MANAGER_TREASURY"); err != nil {
		return err
	}

	RiskLimitsFile = getEnvOrDefault("RISK_LIMITS_FILE", "")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("PortfolioManager", PortfolioManager.Short()).
		Uint8("RebalanceThreshold", RebalanceThreshold).
		Dur("MinRebalanceInterval", MinRebalanceInterval).
		Bool("LegacyFixedThreshold", LegacyFixedThreshold).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable, falling back to defaultValue when unset or empty.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

func getEnvAsUint64OrDefault(key string, defaultValue uint64) (uint64, error) {
	if getEnvOrDefault(key, "") == "" {
		return defaultValue, nil
	}
	return getEnvAsUint64(key)
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsStrategyID retrieves a required 64-character hex identifier.
func getEnvAsStrategyID(key string) (types.StrategyID, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return types.StrategyID{}, err
	}
	id, err := types.ParseStrategyID(valueStr)
	if err != nil {
		return types.StrategyID{}, fmt.Errorf("environment variable %s: %w", key, err)
	}
	return id, nil
}

func getEnvAsStrategyIDOrZero(key string) (types.StrategyID, error) {
	if getEnvOrDefault(key, "") == "" {
		return types.StrategyID{}, nil
	}
	return getEnvAsStrategyID(key)
}
