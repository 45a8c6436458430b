// Package config provides configuration loading for the verifier service.
// It handles environment variable parsing and provides default values for
// every setting except the required hostname.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package
// initialization. godotenv.Load does not override already-set variables,
// preserving OS env > .env precedence. Production deployments rely solely on
// real environment variables.
func init() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}
}

// Config captures environment-driven settings for the verifier service.
type Config struct {
	Env            string        // Deployment environment (dev, staging, prod)
	Address        string        // HTTP server address
	MetricsAddress string        // Metrics server address
	Hostname       string        // This host's own IdP identity (required)
	MasterIdP      string        // Implicitly trusted fallback authority
	KeyDir         string        // Directory holding <name>.secretkey / <name>.cert
	KeyName        string        // Key pair name, default "root"
	AuthPath       string        // Local support document authentication path
	ProvPath       string        // Local support document provisioning path
	ShimEntries    []string      // "<domain>|<origin>|<path>" test shims
	ShimDir        string        // Base directory for relative shim body paths
	FetchTimeout   time.Duration // Per-hop support document fetch deadline
	AuditBackend   string        // Audit log backend (memory, postgres)
	DatabaseDSN    string        // PostgreSQL DSN for the postgres backend
}

const (
	defaultAddress        = ":8080"
	defaultMetricsAddress = ":9090"
	defaultMasterIdP      = "login.persona.org"
	defaultKeyDir         = "keys"
	defaultKeyName        = "root"
	defaultAuthPath       = "/browserid/authenticate"
	defaultProvPath       = "/browserid/provision"
	defaultFetchTimeout   = 10 * time.Second
)

// Load reads environment variables and produces a Config suitable for
// wiring the service. Returns an error if required parameters are missing
// or invalid.
func Load() (Config, error) {
	cfg := Config{
		Env:            getEnv("BID_ENV", "dev"),
		Address:        getEnv("BID_HTTP_ADDR", defaultAddress),
		MetricsAddress: getEnv("BID_METRICS_ADDR", defaultMetricsAddress),
		MasterIdP:      strings.ToLower(getEnv("BID_MASTER_IDP", defaultMasterIdP)),
		KeyDir:         getEnv("BID_KEY_DIR", defaultKeyDir),
		KeyName:        getEnv("BID_KEY_NAME", defaultKeyName),
		AuthPath:       getEnv("BID_AUTH_PATH", defaultAuthPath),
		ProvPath:       getEnv("BID_PROV_PATH", defaultProvPath),
		ShimDir:        getEnv("BID_SHIM_DIR", "."),
		AuditBackend:   strings.ToLower(getEnv("BID_AUDIT_BACKEND", "memory")),
	}

	hostname, exists := os.LookupEnv("BID_HOSTNAME")
	if !exists || hostname == "" {
		return Config{}, errors.New("BID_HOSTNAME is required")
	}
	cfg.Hostname = strings.ToLower(hostname)

	if raw, exists := os.LookupEnv("BID_SHIM"); exists && raw != "" {
		for _, entry := range strings.Split(raw, ",") {
			if entry = strings.TrimSpace(entry); entry != "" {
				cfg.ShimEntries = append(cfg.ShimEntries, entry)
			}
		}
	}

	if raw, exists := os.LookupEnv("BID_FETCH_TIMEOUT_SECONDS"); exists {
		d, err := parseSeconds(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BID_FETCH_TIMEOUT_SECONDS: %w", err)
		}
		cfg.FetchTimeout = d
	} else {
		cfg.FetchTimeout = defaultFetchTimeout
	}

	if dsn, exists := os.LookupEnv("BID_DB_DSN"); exists {
		cfg.DatabaseDSN = dsn
	}
	if cfg.AuditBackend == "postgres" && cfg.DatabaseDSN == "" {
		return Config{}, errors.New("BID_DB_DSN is required for the postgres audit backend")
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if
// not set or empty.
func getEnv(key, fallback string) string {
	if v, exists := os.LookupEnv(key); exists && v != "" {
		return v
	}
	return fallback
}

// parseSeconds converts a string representation of seconds to a
// time.Duration. Returns an error if the value is not a positive integer.
func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if seconds <= 0 {
		return 0, errors.New("value must be > 0")
	}
	return time.Duration(seconds) * time.Second, nil
}
