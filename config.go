package authemu

import (
	"errors"
	"net/url"
	"time"

	"github.com/MrEthical07/authemu/state"
)

// Config defines the engine-wide defaults. Project-level settings (usage
// mode, duplicate emails) start from these values and can be changed at
// runtime through the emulator config operation.
type Config struct {
	// DefaultProjectID is used when a request does not name a project.
	DefaultProjectID string

	// OobBaseURL is the origin OOB action links point at when the request
	// context does not carry one.
	OobBaseURL string

	OneAccountPerEmail bool
	UsageMode          state.UsageMode

	IDToken       IDTokenConfig
	SessionCookie SessionCookieConfig
	Events        EventsConfig
	Metrics       MetricsConfig
}

// IDTokenConfig controls ID token issuance.
type IDTokenConfig struct {
	TTL time.Duration
}

// SessionCookieConfig bounds the validity of session cookies.
type SessionCookieConfig struct {
	MinDuration time.Duration
	MaxDuration time.Duration
}

// EventsConfig controls the asynchronous operation event sink.
type EventsConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the configuration used when Builder.WithConfig is
// never called.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		DefaultProjectID:   "demo-project",
		OobBaseURL:         "http://127.0.0.1:9099",
		OneAccountPerEmail: true,
		UsageMode:          state.UsageModeDefault,
		IDToken: IDTokenConfig{
			TTL: time.Hour,
		},
		SessionCookie: SessionCookieConfig{
			MinDuration: 5 * time.Minute,
			MaxDuration: 14 * 24 * time.Hour,
		},
		Events: EventsConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration field that is out of range.
func (c *Config) Validate() error {
	if c.DefaultProjectID == "" {
		return errors.New("DefaultProjectID is required")
	}
	if c.OobBaseURL != "" {
		u, err := url.Parse(c.OobBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("OobBaseURL must be an absolute URL")
		}
	}
	switch c.UsageMode {
	case "", state.UsageModeDefault, state.UsageModePassthrough:
	default:
		return errors.New("UsageMode must be DEFAULT or PASSTHROUGH")
	}

	if c.IDToken.TTL <= 0 {
		return errors.New("IDToken TTL must be > 0")
	}
	if c.IDToken.TTL%time.Second != 0 {
		return errors.New("IDToken TTL must be a whole number of seconds")
	}

	if c.SessionCookie.MinDuration <= 0 {
		return errors.New("SessionCookie MinDuration must be > 0")
	}
	if c.SessionCookie.MaxDuration < c.SessionCookie.MinDuration {
		return errors.New("SessionCookie MaxDuration must be >= MinDuration")
	}

	if c.Events.Enabled && c.Events.BufferSize <= 0 {
		return errors.New("Events BufferSize must be > 0 when events are enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	return nil
}
