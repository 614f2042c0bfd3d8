package internal

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds ambient application configuration: logging, retry ceilings,
// and defaults not already carried on a URLTask.
type Config struct {
	DefaultConnections int
	DefaultTimeout     int
	MaxRetries         int
	DefaultUserAgent   string
	DefaultMaxSpeed    int64
	DefaultDirectory   string
	CheckCertificate   bool

	LogLevel    string
	EnableDebug bool
	QuietMode   bool
	LogFile     string
}

// DefaultConfig returns the built-in defaults, the lowest-precedence layer
// in the merge order flag > env > config file > default (§4.11).
func DefaultConfig() *Config {
	return &Config{
		DefaultConnections: 8,
		DefaultTimeout:     30,
		MaxRetries:         15,
		DefaultUserAgent:   "swiftget/1.0",
		CheckCertificate:   true,

		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "",
	}
}

// LoadFromEnv overlays SWIFTGET_* environment variables onto the config,
// generalizing the teacher's TERAFETCH_* convention.
func (c *Config) LoadFromEnv() {
	if conns := os.Getenv("SWIFTGET_CONNECTIONS"); conns != "" {
		if n, err := strconv.Atoi(conns); err == nil && n > 0 && n <= 32 {
			c.DefaultConnections = n
		}
	}
	if timeout := os.Getenv("SWIFTGET_TIMEOUT"); timeout != "" {
		if t, err := strconv.Atoi(timeout); err == nil && t > 0 {
			c.DefaultTimeout = t
		}
	}
	if ua := os.Getenv("SWIFTGET_USER_AGENT"); ua != "" {
		c.DefaultUserAgent = ua
	}
	if logLevel := os.Getenv("SWIFTGET_LOG_LEVEL"); logLevel != "" {
		c.LogLevel = logLevel
	}
	if debug := os.Getenv("SWIFTGET_DEBUG"); debug != "" {
		c.EnableDebug = debug == "true" || debug == "1"
	}
	if quiet := os.Getenv("SWIFTGET_QUIET"); quiet != "" {
		c.QuietMode = quiet == "true" || quiet == "1"
	}
	if logFile := os.Getenv("SWIFTGET_LOG_FILE"); logFile != "" {
		c.LogFile = logFile
	}
}

// GetEnvWithDefault returns the environment variable value or a fallback.
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig checks the ambient config for internal consistency.
func (c *Config) ValidateConfig() error {
	if c.DefaultConnections < 1 || c.DefaultConnections > 32 {
		return fmt.Errorf("invalid default connections: %d (must be 1-32)", c.DefaultConnections)
	}
	if c.DefaultTimeout < 1 {
		return fmt.Errorf("invalid default timeout: %d (must be > 0)", c.DefaultTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("invalid max retries: %d (must be >= 0)", c.MaxRetries)
	}
	if c.DefaultUserAgent == "" {
		return fmt.Errorf("default user agent cannot be empty")
	}
	return nil
}
