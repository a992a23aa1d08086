package render

import (
	"time"
)

// The UA Chrome 114 shipped on Linux; matching it keeps rendered pages
// consistent between the headless and static paths.
const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

// Config holds the configuration for a renderer instance
type Config struct {
	ChromePath  string        // Browser binary path; autodetected when empty
	UserAgent   string        // User agent for all rendered requests
	Timeout     time.Duration // Upper bound for one render session
	Settle      time.Duration // Post-navigation delay so late scripts and XHRs land
	MaxSessions int64         // Maximum concurrent browser sessions
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		UserAgent:   defaultUserAgent,
		Timeout:     60 * time.Second,
		Settle:      1 * time.Second,
		MaxSessions: 4,
	}
}
