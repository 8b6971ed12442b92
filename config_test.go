package dashclient

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidateEnums(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "api base url empty",
			mutate:    func(c *Config) { c.API.BaseURL = " " },
			wantValid: false,
		},
		{
			name:      "api base url relative",
			mutate:    func(c *Config) { c.API.BaseURL = "/api/v1" },
			wantValid: false,
		},
		{
			name:      "api base url https",
			mutate:    func(c *Config) { c.API.BaseURL = "https://api.sentimenta.example/api/v1" },
			wantValid: true,
		},
		{
			name:      "identity kratos without url",
			mutate:    func(c *Config) { c.Identity.Provider = IdentityKratos },
			wantValid: false,
		},
		{
			name: "identity kratos with url",
			mutate: func(c *Config) {
				c.Identity.Provider = IdentityKratos
				c.Identity.KratosURL = "http://127.0.0.1:4433"
			},
			wantValid: true,
		},
		{
			name:      "identity unknown",
			mutate:    func(c *Config) { c.Identity.Provider = "oauth" },
			wantValid: false,
		},
		{
			name:      "session backend unknown",
			mutate:    func(c *Config) { c.Session.Backend = "sqlite" },
			wantValid: false,
		},
		{
			name: "session redis without prefix",
			mutate: func(c *Config) {
				c.Session.Backend = SessionRedis
				c.Session.RedisPrefix = ""
			},
			wantValid: false,
		},
		{
			name: "session age identity on memory backend",
			mutate: func(c *Config) {
				c.Session.Backend = SessionMemory
				c.Session.AgeIdentityFile = "/tmp/key.txt"
			},
			wantValid: false,
		},
		{
			name:      "session negative ttl",
			mutate:    func(c *Config) { c.Session.RedisTTL = -time.Second },
			wantValid: false,
		},
		{
			name:      "stream max retry below default",
			mutate:    func(c *Config) { c.Stream.MaxRetry = time.Second },
			wantValid: false,
		},
		{
			name:      "stream unlimited reconnects",
			mutate:    func(c *Config) { c.Stream.MaxReconnects = -1 },
			wantValid: true,
		},
		{
			name:      "stream zero poll interval",
			mutate:    func(c *Config) { c.Stream.PollInterval = 0 },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "latency without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name:      "log level unknown",
			mutate:    func(c *Config) { c.LogLevel = "trace" },
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatalf("expected invalid config")
			}
		})
	}
}

func TestBuilderRejectsSecondBuild(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Backend = SessionMemory

	b := New().WithConfig(cfg)
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := b.Build(); err != ErrBuilderUsed {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuilderRedisBackendNeedsClientOrAddr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Backend = SessionRedis

	if _, err := New().WithConfig(cfg).Build(); err != ErrRedisRequired {
		t.Fatalf("expected ErrRedisRequired, got %v", err)
	}
}
