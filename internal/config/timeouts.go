package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds every wait ceiling, poll interval and retry budget.
// These values can be customized via environment variables.
type Timeouts struct {
	ServerCreate time.Duration // Timeout for server creation and IP assignment
	Delete       time.Duration // Timeout for all delete operations

	ReadinessMaxWait     time.Duration // Ceiling for the node readiness wait
	ReadinessInterval    time.Duration // First delay between readiness probes
	ReadinessMultiplier  float64       // Probe interval growth; 1 polls at a fixed interval
	ReadinessMaxInterval time.Duration // Cap for the grown probe interval

	DeploymentMaxWait     time.Duration // Ceiling for the deployment status wait, health included
	DeploymentInterval    time.Duration // First delay between status polls
	DeploymentMaxInterval time.Duration // Cap for the grown status interval

	ServiceVerifyRetries int           // Attempts when verifying a restarted service
	ServiceVerifyDelay   time.Duration // Initial delay between verification attempts
	CommandTimeout       time.Duration // Ceiling for a single remote install step

	RetryMaxAttempts  int           // Maximum number of retry attempts for API calls and uploads
	RetryInitialDelay time.Duration // Initial delay between retries
}

// LoadTimeouts loads timeout configuration from the process environment.
func LoadTimeouts() *Timeouts {
	return LoadTimeoutsFrom(os.Getenv)
}

// LoadTimeoutsFrom loads timeout configuration through getenv.
// If a variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - EDGERUN_TIMEOUT_SERVER_CREATE (default: 10m)
//   - EDGERUN_TIMEOUT_DELETE (default: 5m)
//   - EDGERUN_TIMEOUT_READINESS (default: 10m)
//   - EDGERUN_INTERVAL_READINESS (default: 5s)
//   - EDGERUN_BACKOFF_READINESS (default: 1)
//   - EDGERUN_MAX_INTERVAL_READINESS (default: 30s)
//   - EDGERUN_TIMEOUT_DEPLOYMENT (default: 30m)
//   - EDGERUN_INTERVAL_DEPLOYMENT (default: 10s)
//   - EDGERUN_MAX_INTERVAL_DEPLOYMENT (default: 1m)
//   - EDGERUN_SERVICE_VERIFY_RETRIES (default: 10)
//   - EDGERUN_SERVICE_VERIFY_DELAY (default: 2s)
//   - EDGERUN_TIMEOUT_COMMAND (default: 15m)
//   - EDGERUN_RETRY_MAX_ATTEMPTS (default: 5)
//   - EDGERUN_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeoutsFrom(getenv func(string) string) *Timeouts {
	return &Timeouts{
		ServerCreate:          parseDuration(getenv, "EDGERUN_TIMEOUT_SERVER_CREATE", 10*time.Minute),
		Delete:                parseDuration(getenv, "EDGERUN_TIMEOUT_DELETE", 5*time.Minute),
		ReadinessMaxWait:      parseDuration(getenv, "EDGERUN_TIMEOUT_READINESS", 10*time.Minute),
		ReadinessInterval:     parseDuration(getenv, "EDGERUN_INTERVAL_READINESS", 5*time.Second),
		ReadinessMultiplier:   parseFloat(getenv, "EDGERUN_BACKOFF_READINESS", 1),
		ReadinessMaxInterval:  parseDuration(getenv, "EDGERUN_MAX_INTERVAL_READINESS", 30*time.Second),
		DeploymentMaxWait:     parseDuration(getenv, "EDGERUN_TIMEOUT_DEPLOYMENT", 30*time.Minute),
		DeploymentInterval:    parseDuration(getenv, "EDGERUN_INTERVAL_DEPLOYMENT", 10*time.Second),
		DeploymentMaxInterval: parseDuration(getenv, "EDGERUN_MAX_INTERVAL_DEPLOYMENT", time.Minute),
		ServiceVerifyRetries:  parseInt(getenv, "EDGERUN_SERVICE_VERIFY_RETRIES", 10),
		ServiceVerifyDelay:    parseDuration(getenv, "EDGERUN_SERVICE_VERIFY_DELAY", 2*time.Second),
		CommandTimeout:        parseDuration(getenv, "EDGERUN_TIMEOUT_COMMAND", 15*time.Minute),
		RetryMaxAttempts:      parseInt(getenv, "EDGERUN_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:     parseDuration(getenv, "EDGERUN_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// parseDuration parses a positive duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(getenv func(string) string, envVar string, defaultVal time.Duration) time.Duration {
	val := getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a positive integer from an environment variable.
func parseInt(getenv func(string) string, envVar string, defaultVal int) int {
	val := getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return defaultVal
	}

	return i
}

func parseFloat(getenv func(string) string, envVar string, defaultVal float64) float64 {
	val := getenv(envVar)
	if val == "" {
		return defaultVal
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f < 1 {
		return defaultVal
	}

	return f
}

// TestTimeouts returns short timeouts for unit tests.
func TestTimeouts() *Timeouts {
	return &Timeouts{
		ServerCreate:          30 * time.Second,
		Delete:                30 * time.Second,
		ReadinessMaxWait:      time.Minute,
		ReadinessInterval:     5 * time.Second,
		ReadinessMultiplier:   1,
		ReadinessMaxInterval:  5 * time.Second,
		DeploymentMaxWait:     2 * time.Minute,
		DeploymentInterval:    10 * time.Second,
		DeploymentMaxInterval: 10 * time.Second,
		ServiceVerifyRetries:  3,
		ServiceVerifyDelay:    10 * time.Millisecond,
		CommandTimeout:        30 * time.Second,
		RetryMaxAttempts:      3,
		RetryInitialDelay:     10 * time.Millisecond,
	}
}
