package report

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config contains the configuration options for a pipeline run.
type Config struct {
	// LogLevel controls the verbosity of the default reporter
	// (debug, info, warn, error).
	LogLevel string
	// SourceCacheSize is the maximum number of source workbooks kept open
	// during one run. 0 disables the cache.
	SourceCacheSize int
	// StrictSource promotes "both File and Query specified" in the Sources
	// sheet from a warning to a hard validation error.
	StrictSource bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		SourceCacheSize: 16,
	}
}

// ConfigFromEnvironment creates a configuration from environment variables.
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	if val := os.Getenv("AUTOREPORT_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}
	if val := os.Getenv("AUTOREPORT_SOURCE_CACHE_SIZE"); val != "" {
		if size, err := strconv.Atoi(val); err == nil {
			config.SourceCacheSize = size
		}
	}
	if val := os.Getenv("AUTOREPORT_STRICT_SOURCE"); val != "" {
		config.StrictSource = parseBool(val)
	}

	return config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.SourceCacheSize < 0 {
		return errors.New("source cache size cannot be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return errors.New("invalid log level: " + c.LogLevel)
	}

	return nil
}

// parseBool parses a boolean value from a string.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
