package dashclient

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config configures a [Client]. Build it with [DefaultConfig] and adjust the
// sections that differ.
type Config struct {
	API      APIConfig
	Identity IdentityConfig
	Session  SessionConfig
	Stream   StreamConfig
	Metrics  MetricsConfig
	Audit    AuditConfig
	LogLevel string
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the backend.
type APIConfig struct {
	// BaseURL includes the version prefix, e.g. http://localhost:8000/api/v1.
	BaseURL string
	// RequestTimeout bounds plain request/response calls. Streams are not
	// affected.
	RequestTimeout time.Duration
	// RetryDelay is the pause before the single retry after a network error.
	RetryDelay time.Duration
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityProvider selects how the gate verifies a token.
type IdentityProvider string

const (
	// IdentityAPI verifies against the backend's /auth/me endpoint.
	IdentityAPI IdentityProvider = "api"
	// IdentityKratos verifies against an Ory Kratos whoami endpoint.
	IdentityKratos IdentityProvider = "kratos"
)

// IdentityConfig configures token verification.
type IdentityConfig struct {
	Provider  IdentityProvider
	KratosURL string
	// ClientID is the identity provider client id. The core never reads it;
	// it is carried for commands that start an interactive login.
	ClientID string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionBackend selects where the credential pair is persisted.
type SessionBackend string

const (
	SessionFile   SessionBackend = "file"
	SessionRedis  SessionBackend = "redis"
	SessionMemory SessionBackend = "memory"
	// SessionNone models unavailable storage: reads are absent and writes fail.
	SessionNone SessionBackend = "none"
)

// SessionConfig configures credential persistence.
type SessionConfig struct {
	Backend SessionBackend
	// FilePath overrides the default credentials file location.
	FilePath string
	// AgeIdentityFile, when set, encrypts the credentials file to the
	// X25519 identity stored there.
	AgeIdentityFile string
	RedisAddr       string
	RedisPrefix     string
	// RedisTTL expires the stored credential. Zero keeps it until cleared.
	RedisTTL time.Duration
}

/*
====================================
STREAM CONFIG
====================================
*/

// StreamConfig configures the event stream transport.
type StreamConfig struct {
	// DefaultRetry is the reconnect delay until the server sends "retry:".
	DefaultRetry time.Duration
	// MaxRetry caps the exponential reconnect delay.
	MaxRetry time.Duration
	// MaxReconnects closes a channel after this many consecutive failed
	// reconnects. Negative means unlimited.
	MaxReconnects int
	// PollInterval is used by [Client.PollRun].
	PollInterval time.Duration
}

// AuditConfig configures the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration used by the dashboard CLI when no
// overrides are given.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://localhost:8000/api/v1",
			RequestTimeout: 15 * time.Second,
			RetryDelay:     300 * time.Millisecond,
		},
		Identity: IdentityConfig{
			Provider: IdentityAPI,
		},
		Session: SessionConfig{
			Backend:     SessionFile,
			RedisPrefix: "sentimenta",
		},
		Stream: StreamConfig{
			DefaultRetry:  3 * time.Second,
			MaxRetry:      time.Minute,
			MaxReconnects: 10,
			PollInterval:  4 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		LogLevel: "info",
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate checks cfg for values that would make a [Client] misbehave.
func (c *Config) Validate() error {
	// API
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("API BaseURL must be set")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.RequestTimeout < 0 {
		return errors.New("API RequestTimeout must be >= 0")
	}
	if c.API.RetryDelay < 0 {
		return errors.New("API RetryDelay must be >= 0")
	}

	// Identity
	switch c.Identity.Provider {
	case IdentityAPI:
	case IdentityKratos:
		if strings.TrimSpace(c.Identity.KratosURL) == "" {
			return errors.New("Identity KratosURL is required for the kratos provider")
		}
	default:
		return errors.New("Identity Provider must be 'api' or 'kratos'")
	}

	// Session
	switch c.Session.Backend {
	case SessionFile, SessionMemory, SessionNone:
	case SessionRedis:
		if strings.TrimSpace(c.Session.RedisPrefix) == "" {
			return errors.New("Session RedisPrefix must be set for the redis backend")
		}
	default:
		return errors.New("Session Backend must be 'file', 'redis', 'memory' or 'none'")
	}
	if c.Session.RedisTTL < 0 {
		return errors.New("Session RedisTTL must be >= 0")
	}
	if c.Session.AgeIdentityFile != "" && c.Session.Backend != SessionFile {
		return errors.New("Session AgeIdentityFile requires the file backend")
	}

	// Stream
	if c.Stream.DefaultRetry <= 0 {
		return errors.New("Stream DefaultRetry must be > 0")
	}
	if c.Stream.MaxRetry < c.Stream.DefaultRetry {
		return errors.New("Stream MaxRetry must be >= DefaultRetry")
	}
	if c.Stream.PollInterval <= 0 {
		return errors.New("Stream PollInterval must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.New("LogLevel must be debug, info, warn or error")
	}

	return nil
}
