package main

import (
	"net"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/authemu"
)

type serverConfig struct {
	Host      string `env:"AUTHEMU_HOST" envDefault:"127.0.0.1"`
	Port      string `env:"AUTHEMU_PORT" envDefault:"9099"`
	ProjectID string `env:"AUTHEMU_PROJECT_ID" envDefault:"demo-project"`

	// PublicURL overrides the origin used in OOB links when requests do not
	// carry a usable Host header.
	PublicURL string `env:"AUTHEMU_PUBLIC_URL"`

	RedisURL     string `env:"AUTHEMU_REDIS_URL"`
	RedisList    string `env:"AUTHEMU_REDIS_LIST"`
	RedisChannel string `env:"AUTHEMU_REDIS_CHANNEL"`

	// Events reports every operation to Redis when it is configured, or to
	// the log otherwise.
	Events bool `env:"AUTHEMU_EVENTS" envDefault:"false"`

	Metrics           bool `env:"AUTHEMU_METRICS" envDefault:"true"`
	LatencyHistograms bool `env:"AUTHEMU_LATENCY_HISTOGRAMS" envDefault:"false"`

	CORSOrigins     []string      `env:"AUTHEMU_CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `env:"AUTHEMU_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	LogLevel string `env:"LOG_LEVEL"`
	LogDev   bool   `env:"LOG_DEV"`
}

func loadConfig() (serverConfig, error) {
	// best-effort: a missing .env just means the real environment is used
	_ = godotenv.Load()
	var cfg serverConfig
	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c serverConfig) engineConfig() authemu.Config {
	cfg := authemu.DefaultConfig()
	cfg.DefaultProjectID = c.ProjectID
	cfg.Metrics.Enabled = c.Metrics
	cfg.Metrics.EnableLatencyHistograms = c.LatencyHistograms
	switch {
	case c.PublicURL != "":
		cfg.OobBaseURL = c.PublicURL
	case c.Host == "" || c.Host == "0.0.0.0" || c.Host == "::":
		cfg.OobBaseURL = "http://" + net.JoinHostPort("127.0.0.1", c.Port)
	default:
		cfg.OobBaseURL = "http://" + c.addr()
	}
	return cfg
}
