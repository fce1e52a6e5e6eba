package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ServerConfig holds development backend configuration.
type ServerConfig struct {
	// Addr is the listen address for the HTTP server.
	Addr         string
	DatabasePath string
	MasterSecret string
	Debug        bool
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string

	// CommitDelay hides a newly created session from the realtime endpoint
	// for this long, reproducing a backend whose writes become visible
	// after a lag.
	CommitDelay time.Duration
	// Questions is how many questions the scripted interviewer asks before
	// its final decision.
	Questions int
	// TokenTTL is the lifetime of issued access tokens.
	TokenTTL time.Duration
}

// ServerOverrides optionally overrides values from environment variables.
//
// A nil pointer means "use the environment/default value".
type ServerOverrides struct {
	Addr         *string
	DatabasePath *string
	MasterSecret *string
	Debug        *bool
	CommitDelay  *time.Duration
	Questions    *int
}

// LoadServer loads dev backend configuration from environment variables and
// applies any explicit overrides.
func LoadServer(overrides ServerOverrides) (*ServerConfig, error) {
	port := 8000
	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", portStr, err)
		}
		port = p
	}
	addr := fmt.Sprintf(":%d", port)
	if overrides.Addr != nil {
		addr = *overrides.Addr
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./gradcompass.db"
	}
	if overrides.DatabasePath != nil {
		dbPath = *overrides.DatabasePath
	}

	masterSecret := os.Getenv("GRADCOMPASS_MASTER_SECRET")
	if overrides.MasterSecret != nil {
		masterSecret = *overrides.MasterSecret
	}
	if masterSecret == "" {
		return nil, fmt.Errorf("GRADCOMPASS_MASTER_SECRET environment variable is required")
	}

	debug := false
	if debugStr := os.Getenv("DEBUG"); debugStr == "true" || debugStr == "1" {
		debug = true
	}
	if overrides.Debug != nil {
		debug = *overrides.Debug
	}

	var commitDelay time.Duration
	if v := os.Getenv("GRADCOMPASS_COMMIT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid GRADCOMPASS_COMMIT_DELAY %q: %w", v, err)
		}
		commitDelay = d
	}
	if overrides.CommitDelay != nil {
		commitDelay = *overrides.CommitDelay
	}

	questions := 3
	if overrides.Questions != nil && *overrides.Questions > 0 {
		questions = *overrides.Questions
	}

	return &ServerConfig{
		Addr:           addr,
		DatabasePath:   dbPath,
		MasterSecret:   masterSecret,
		Debug:          debug,
		AllowedOrigins: []string{"*"},
		CommitDelay:    commitDelay,
		Questions:      questions,
		TokenTTL:       7 * 24 * time.Hour,
	}, nil
}
