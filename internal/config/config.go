// Package config provides YAML-based configuration for botreport.
// Supports validation, defaults and BOTREPORT_* environment overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sureshkrishnan-v/botreport/internal/api"
	"github.com/sureshkrishnan-v/botreport/internal/cache"
	"github.com/sureshkrishnan-v/botreport/internal/constants"
	"github.com/sureshkrishnan-v/botreport/internal/delivery"
	"github.com/sureshkrishnan-v/botreport/internal/filter"
	"github.com/sureshkrishnan-v/botreport/internal/ingest"
	"github.com/sureshkrishnan-v/botreport/internal/onebot"
	"github.com/sureshkrishnan-v/botreport/internal/reporter"
)

// Config is the top-level configuration for botreport.
type Config struct {
	Bot         BotConfig         `yaml:"bot"`
	Report      ReportConfig      `yaml:"report"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Delivery    delivery.Config   `yaml:"delivery"`
	Agent       AgentConfig       `yaml:"agent"`
	API         api.Config        `yaml:"api"`
	NATS        ingest.NATSConfig `yaml:"nats"`
	Redis       cache.RedisConfig `yaml:"redis"`
	Performance PerformanceConfig `yaml:"performance"`
}

// BotConfig identifies the bot being reported.
type BotConfig struct {
	ID int64 `yaml:"id" env:"BOT_ID"`
}

// ReportConfig is the report target.
type ReportConfig struct {
	PostURL       string `yaml:"post_url" env:"POST_URL"`
	Secret        string `yaml:"secret" env:"SECRET"`
	MessageFormat string `yaml:"post_message_format"`
	Filter        string `yaml:"filter"` // CEL expression over `event`
}

// HeartbeatConfig holds heartbeat settings.
type HeartbeatConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// AgentConfig holds global process settings.
type AgentConfig struct {
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
}

// PerformanceConfig holds performance tuning parameters.
type PerformanceConfig struct {
	EventBusBuffer int `yaml:"event_bus_buffer"`
}

// Default returns a Config with sensible production defaults.
func Default() *Config {
	return &Config{
		Report: ReportConfig{
			MessageFormat: constants.MessageFormatString,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  false,
			Interval: constants.DefaultHeartbeatInterval,
		},
		Delivery: delivery.DefaultConfig(),
		Agent: AgentConfig{
			MetricsAddr: constants.DefaultMetricsAddr,
			LogLevel:    constants.DefaultLogLevel,
		},
		API:   api.DefaultConfig(),
		NATS:  ingest.DefaultNATSConfig(),
		Redis: cache.DefaultRedisConfig(),
		Performance: PerformanceConfig{
			EventBusBuffer: constants.DefaultEventBusBuffer,
		},
	}
}

// Load reads a YAML config file and merges with defaults.
// If the file doesn't exist, returns defaults.
// Environment variables override: BOTREPORT_POST_URL, BOTREPORT_SECRET,
// BOTREPORT_BOT_ID, BOTREPORT_LOG_LEVEL, BOTREPORT_METRICS_ADDR,
// BOTREPORT_NATS_URL, BOTREPORT_REDIS_ADDR, BOTREPORT_API_ADDR.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

// load is Load with an explicit environment; nil means the process environment.
func load(path string, environ map[string]string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// No config file, use defaults + env overrides
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	opts := env.Options{Prefix: constants.EnvPrefix, Environment: environ}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for logical errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Report.PostURL != "" {
		u, err := url.Parse(c.Report.PostURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "report.post_url must be an absolute http(s) URL")
		}
	}
	if _, err := onebot.ParseFormat(c.Report.MessageFormat); err != nil {
		errs = append(errs, "report.post_message_format: "+err.Error())
	}
	if _, err := filter.NewCEL(c.Report.Filter, nil); err != nil {
		errs = append(errs, "report.filter: "+err.Error())
	}
	if c.Heartbeat.Enabled && c.Heartbeat.Interval <= 0 {
		errs = append(errs, "heartbeat.interval must be > 0 when heartbeat is enabled")
	}
	if c.Delivery.Timeout <= 0 {
		errs = append(errs, "delivery.timeout must be > 0")
	}
	if c.Delivery.MaxInflight < 1 {
		errs = append(errs, "delivery.max_inflight must be >= 1")
	}
	if c.Delivery.RateLimit < 0 {
		errs = append(errs, "delivery.rate_limit must be >= 0")
	}
	if c.Agent.MetricsAddr == "" {
		errs = append(errs, "agent.metrics_addr is required")
	}
	if _, err := zapcore.ParseLevel(c.Agent.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("agent.log_level %q is not a log level", c.Agent.LogLevel))
	}
	if c.Performance.EventBusBuffer < constants.MinEventBusBuffer {
		errs = append(errs, fmt.Sprintf("performance.event_bus_buffer must be >= %d", constants.MinEventBusBuffer))
	}
	if c.NATS.Enabled && (c.NATS.URL == "" || c.NATS.EventSubject == "") {
		errs = append(errs, "nats.url and nats.event_subject are required when nats is enabled")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required when redis is enabled")
	}
	if c.API.Enabled && c.API.Addr == "" {
		errs = append(errs, "api.addr is required when api is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// ReporterConfig returns the immutable reporter settings.
func (c *Config) ReporterConfig() reporter.Config {
	return reporter.Config{
		PostURL:       c.Report.PostURL,
		Secret:        c.Report.Secret,
		MessageFormat: c.Report.MessageFormat,
		Heartbeat:     c.Heartbeat.Enabled,
		Interval:      c.Heartbeat.Interval,
	}
}
