package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

type (
	// Config is the top-level configuration surface, decoded from a TOML
	// file of the form:
	//
	//	[polling]
	//	interval_ms = 5000
	//	continue_on_error = true
	//
	//	[dispatcher]
	//	max_concurrency = 10
	//	continue_on_error = true
	Config struct {
		Polling    PollingConfig    `toml:"polling"`
		Dispatcher DispatcherConfig `toml:"dispatcher"`
	}

	// PollingConfig configures every PollingPublisher built via a factory
	// using this Config, unless overridden per-publisher.
	PollingConfig struct {
		IntervalMS      int64 `toml:"interval_ms"`
		ContinueOnError *bool `toml:"continue_on_error"`
	}

	// DispatcherConfig configures the global concurrency cap and error
	// policy of any Dispatcher built via a factory using this Config.
	DispatcherConfig struct {
		MaxConcurrency  int   `toml:"max_concurrency"`
		ContinueOnError *bool `toml:"continue_on_error"`
	}
)

const (
	// DefaultPollIntervalMS is the default interval between poll ticks.
	DefaultPollIntervalMS = 5000

	// DefaultMaxConcurrency is the default global concurrency cap.
	DefaultMaxConcurrency = 10
)

// Default returns a Config populated with the baseline defaults: a 5s
// poll interval, maxConcurrency 10, continueOnError true for both the
// polling and dispatcher surfaces.
func Default() Config {
	t := true
	return Config{
		Polling: PollingConfig{
			IntervalMS:      DefaultPollIntervalMS,
			ContinueOnError: &t,
		},
		Dispatcher: DispatcherConfig{
			MaxConcurrency:  DefaultMaxConcurrency,
			ContinueOnError: &t,
		},
	}
}

// Load decodes a TOML file at path into a Config seeded with Default(),
// then applies environment-variable overrides (see ApplyEnv). Zero-valued
// fields missing from the file keep the defaults - toml.Decode only
// overwrites fields present in the document.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides IntervalMS and MaxConcurrency from the
// REVIEWPIPELINE_POLL_INTERVAL_MS and REVIEWPIPELINE_MAX_CONCURRENCY
// environment variables, if set and parseable. Unset or unparseable values
// are left untouched.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("REVIEWPIPELINE_POLL_INTERVAL_MS"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Polling.IntervalMS = n
		}
	}
	if v, ok := os.LookupEnv("REVIEWPIPELINE_MAX_CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Dispatcher.MaxConcurrency = n
		}
	}
}

// PollInterval returns the configured poll interval as a time.Duration,
// falling back to DefaultPollIntervalMS if IntervalMS is non-positive.
func (p PollingConfig) PollInterval() time.Duration {
	ms := p.IntervalMS
	if ms <= 0 {
		ms = DefaultPollIntervalMS
	}
	return time.Duration(ms) * time.Millisecond
}

// ContinueOnErrorOrDefault returns the configured flag, defaulting to true
// when unset.
func (p PollingConfig) ContinueOnErrorOrDefault() bool {
	if p.ContinueOnError == nil {
		return true
	}
	return *p.ContinueOnError
}

// ContinueOnErrorOrDefault returns the configured flag, defaulting to true
// when unset.
func (d DispatcherConfig) ContinueOnErrorOrDefault() bool {
	if d.ContinueOnError == nil {
		return true
	}
	return *d.ContinueOnError
}

// MaxConcurrencyOrDefault returns the configured cap, falling back to
// DefaultMaxConcurrency if non-positive.
func (d DispatcherConfig) MaxConcurrencyOrDefault() int {
	if d.MaxConcurrency <= 0 {
		return DefaultMaxConcurrency
	}
	return d.MaxConcurrency
}
