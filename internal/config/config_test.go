package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "botreport.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "nope.yaml"), map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Report.PostURL != "" {
		t.Errorf("post_url = %q, want empty", cfg.Report.PostURL)
	}
	if cfg.Heartbeat.Interval != 15*time.Second {
		t.Errorf("heartbeat.interval = %v, want 15s", cfg.Heartbeat.Interval)
	}
	if cfg.Delivery.MaxInflight != 64 {
		t.Errorf("delivery.max_inflight = %d, want 64", cfg.Delivery.MaxInflight)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, `
bot:
  id: 123
report:
  post_url: http://127.0.0.1:8080/report
  secret: from-file
  post_message_format: array
  filter: event.post_type == "message"
heartbeat:
  enabled: true
  interval: 5s
delivery:
  connect_retries: 1
nats:
  enabled: true
  queue: reporters
`)
	cfg, err := load(path, map[string]string{
		"BOTREPORT_SECRET":   "from-env",
		"BOTREPORT_NATS_URL": "nats://nats:4222",
		"UNRELATED":          "x",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"bot.id", cfg.Bot.ID, int64(123)},
		{"report.secret", cfg.Report.Secret, "from-env"},
		{"report.post_message_format", cfg.Report.MessageFormat, "array"},
		{"heartbeat.interval", cfg.Heartbeat.Interval, 5 * time.Second},
		{"delivery.connect_retries", cfg.Delivery.ConnectRetries, uint(1)},
		{"delivery.timeout (default kept)", cfg.Delivery.Timeout, 10 * time.Second},
		{"nats.url", cfg.NATS.URL, "nats://nats:4222"},
		{"nats.event_subject (default kept)", cfg.NATS.EventSubject, "botreport.events"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	rc := cfg.ReporterConfig()
	if !rc.Heartbeat || rc.Interval != 5*time.Second || rc.Secret != "from-env" {
		t.Errorf("ReporterConfig() = %+v", rc)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := load(writeFile(t, "report: [unclosed"), map[string]string{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"relative url", func(c *Config) { c.Report.PostURL = "/report" }, "report.post_url"},
		{"bad format", func(c *Config) { c.Report.MessageFormat = "xml" }, "post_message_format"},
		{"bad filter", func(c *Config) { c.Report.Filter = "event.post_type ==" }, "report.filter"},
		{"zero heartbeat", func(c *Config) { c.Heartbeat.Enabled = true; c.Heartbeat.Interval = 0 }, "heartbeat.interval"},
		{"inflight", func(c *Config) { c.Delivery.MaxInflight = 0 }, "max_inflight"},
		{"log level", func(c *Config) { c.Agent.LogLevel = "loud" }, "log_level"},
		{"bus buffer", func(c *Config) { c.Performance.EventBusBuffer = 1 }, "event_bus_buffer"},
		{"redis addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}
