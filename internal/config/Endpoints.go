package config

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DBHost, DBPort, DBUser, DBPassword, DBName and DBSSLMode locate the PostgreSQL database.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// WebPort is the port the HTTP API listens on.
	WebPort string

	// RebalanceSchedule is the cron schedule the scheduler runs cycles on, e.g. "@every 10m".
	RebalanceSchedule string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	DBHost = getEnvOrDefault("DB_HOST", "localhost")

	port, err := getEnvAsUint64OrDefault("DB_PORT", 5432)
	if err != nil {
		return err
	}
	DBPort = int(port)

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword = getEnvOrDefault("DB_PASSWORD", "")

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	RebalanceSchedule = getEnvOrDefault("REBALANCE_SCHEDULE", DefaultRebalanceSchedule)
	if _, err := cron.ParseStandard(RebalanceSchedule); err != nil {
		return err
	}

	log.Debug().
		Str("DBHost", DBHost).
		Int("DBPort", DBPort).
		Str("DBName", DBName).
		Str("WebPort", WebPort).
		Str("RebalanceSchedule", RebalanceSchedule).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
