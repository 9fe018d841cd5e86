package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Timeouts holds all configurable timing values.
// These values can be customized via environment variables.
type Timeouts struct {
	ResolveInterval     time.Duration // Poll interval of the DHCP lease resolver
	ResolveMaxAttempts  int           // Lease polls before giving up
	HarvestMaxAttempts  int           // DHCP table collections during deploy
	HarvestInitialDelay time.Duration // First delay between collections
	HarvestMaxDelay     time.Duration // Cap on the delay between collections
	ProviderTasks       time.Duration // Bound on waiting for hypervisor tasks, 0 waits forever
	TaskPollInterval    time.Duration // Poll interval for hypervisor tasks
	RetryMaxAttempts    int           // Maximum number of retry attempts for provider calls
	RetryInitialDelay   time.Duration // Initial delay between retries
}

// LoadTimeouts loads timing configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - DROPSHIP_RESOLVE_INTERVAL (default: 5s)
//   - DROPSHIP_RESOLVE_MAX_ATTEMPTS (default: 5000)
//   - DROPSHIP_HARVEST_MAX_ATTEMPTS (default: 10)
//   - DROPSHIP_HARVEST_INITIAL_DELAY (default: 15s)
//   - DROPSHIP_HARVEST_MAX_DELAY (default: 2m)
//   - DROPSHIP_TIMEOUT_PROVIDER_TASKS (default: 0, unbounded)
//   - DROPSHIP_TASK_POLL_INTERVAL (default: 3s)
//   - DROPSHIP_RETRY_MAX_ATTEMPTS (default: 5)
//   - DROPSHIP_RETRY_INITIAL_DELAY (default: 1s)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		ResolveInterval:     parseDuration("DROPSHIP_RESOLVE_INTERVAL", 5*time.Second),
		ResolveMaxAttempts:  parseInt("DROPSHIP_RESOLVE_MAX_ATTEMPTS", 5000),
		HarvestMaxAttempts:  parseInt("DROPSHIP_HARVEST_MAX_ATTEMPTS", 10),
		HarvestInitialDelay: parseDuration("DROPSHIP_HARVEST_INITIAL_DELAY", 15*time.Second),
		HarvestMaxDelay:     parseDuration("DROPSHIP_HARVEST_MAX_DELAY", 2*time.Minute),
		ProviderTasks:       parseDuration("DROPSHIP_TIMEOUT_PROVIDER_TASKS", 0),
		TaskPollInterval:    parseDuration("DROPSHIP_TASK_POLL_INTERVAL", 3*time.Second),
		RetryMaxAttempts:    parseInt("DROPSHIP_RETRY_MAX_ATTEMPTS", 5),
		RetryInitialDelay:   parseDuration("DROPSHIP_RETRY_INITIAL_DELAY", 1*time.Second),
	}
}

// String renders the timeouts for diagnostics.
func (t *Timeouts) String() string {
	provider := "unbounded"
	if t.ProviderTasks > 0 {
		provider = t.ProviderTasks.String()
	}
	return fmt.Sprintf("resolve=%s×%d harvest=%d(%s..%s) provider_tasks=%s poll=%s retries=%d",
		t.ResolveInterval, t.ResolveMaxAttempts,
		t.HarvestMaxAttempts, t.HarvestInitialDelay, t.HarvestMaxDelay,
		provider, t.TaskPollInterval, t.RetryMaxAttempts)
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}

	return d
}

// parseInt parses an integer from an environment variable.
// If the variable is not set or parsing fails, the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}

	return i
}
