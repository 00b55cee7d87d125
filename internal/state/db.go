package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var (
	ErrDBNotInitialized   = errors.New("database not initialized")
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrRiskLimitsNotFound = errors.New("no active risk limits found")
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// Amounts are lamports up to u64 max, which database/sql refuses to bind as
// integers above MaxInt64, so they travel as NUMERIC(20,0) text.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS portfolios (
		manager VARCHAR(64) PRIMARY KEY,
		rebalance_threshold SMALLINT NOT NULL CHECK (rebalance_threshold BETWEEN 1 AND 50),
		min_rebalance_interval_seconds INTEGER NOT NULL CHECK (min_rebalance_interval_seconds BETWEEN 3600 AND 86400),
		last_rebalance TIMESTAMPTZ NOT NULL,
		portfolio_creation TIMESTAMPTZ NOT NULL,
		emergency_pause BOOLEAN NOT NULL DEFAULT FALSE,
		performance_fee_bps INTEGER NOT NULL DEFAULT 200,
		total_strategies INTEGER NOT NULL DEFAULT 0,
		total_capital_moved NUMERIC(20, 0) NOT NULL DEFAULT 0,
		legacy_fixed_threshold BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS strategies (
		strategy_id VARCHAR(64) PRIMARY KEY,
		manager VARCHAR(64) NOT NULL REFERENCES portfolios(manager) ON DELETE CASCADE,
		protocol JSONB NOT NULL,
		current_balance NUMERIC(20, 0) NOT NULL DEFAULT 0,
		yield_rate BIGINT NOT NULL DEFAULT 0 CHECK (yield_rate BETWEEN 0 AND 50000),
		volatility_score INTEGER NOT NULL DEFAULT 0 CHECK (volatility_score BETWEEN 0 AND 10000),
		performance_score BIGINT NOT NULL DEFAULT 0 CHECK (performance_score BETWEEN 0 AND 10000),
		percentile_rank SMALLINT NOT NULL DEFAULT 0 CHECK (percentile_rank BETWEEN 0 AND 100),
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		total_deposits NUMERIC(20, 0) NOT NULL DEFAULT 0,
		total_withdrawals NUMERIC(20, 0) NOT NULL DEFAULT 0,
		creation_time TIMESTAMPTZ NOT NULL,
		last_updated TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_strategies_manager ON strategies(manager);
	CREATE INDEX IF NOT EXISTS idx_strategies_manager_status ON strategies(manager, status);

	CREATE TABLE IF NOT EXISTS risk_limits (
		limits_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		max_single_strategy_bps INTEGER NOT NULL,
		min_single_strategy_bps INTEGER NOT NULL,
		platform_fee_bps INTEGER NOT NULL,
		manager_fee_bps INTEGER NOT NULL,
		risk_tolerance_bps INTEGER NOT NULL,
		platform_treasury VARCHAR(64) NOT NULL,
		manager_treasury VARCHAR(64) NOT NULL,
		CONSTRAINT uq_risk_limits_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_risk_limits_config_active_timestamp ON risk_limits(config_name, is_active, activated_at DESC);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema(ctx context.Context) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	if _, err := DB.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table owned by the rebalancer.
func DropSchema(ctx context.Context) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	dropSQL := `
		DROP TABLE IF EXISTS strategies CASCADE;
		DROP TABLE IF EXISTS portfolios CASCADE;
		DROP TABLE IF EXISTS risk_limits CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := DB.ExecContext(ctx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Dropped rebalancer tables")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// rollback is deferred by every transactional writer.
func rollback(tx *sql.Tx, err *error) {
	if p := recover(); p != nil {
		tx.Rollback()
		panic(p)
	} else if *err != nil {
		tx.Rollback()
	}
}
