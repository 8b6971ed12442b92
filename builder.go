package dashclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/gate"
	"github.com/sentimenta/dashclient/identity/kratos"
	"github.com/sentimenta/dashclient/session"
	"github.com/sentimenta/dashclient/stream"
	"github.com/sentimenta/dashclient/stream/eventsource"
)

// Builder assembles a [Client]. A Builder is single use.
type Builder struct {
	config Config

	backend    session.Backend
	redis      redis.UniversalClient
	verifier   gate.Verifier
	transport  stream.Transport
	httpClient *http.Client
	logger     *zap.Logger
	auditSink  AuditSink

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithSessionBackend overrides the backend selected by Config.Session.
func (b *Builder) WithSessionBackend(backend session.Backend) *Builder {
	b.backend = backend
	return b
}

// WithRedis supplies the client used by the redis session backend. The
// caller keeps ownership of client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithVerifier overrides the verifier selected by Config.Identity.
func (b *Builder) WithVerifier(v gate.Verifier) *Builder {
	b.verifier = v
	return b
}

// WithTransport overrides the HTTP event stream transport.
func (b *Builder) WithTransport(t stream.Transport) *Builder {
	b.transport = t
	return b
}

// WithHTTPClient sets the HTTP client for API calls. Streams use a copy
// without the client timeout.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
	}

	// -------- SESSION STORE --------
	backend, err := b.sessionBackend(cfg, c)
	if err != nil {
		return nil, err
	}
	c.store = session.NewStore(backend)

	// -------- API CLIENT --------
	apiHTTP := b.httpClient
	if apiHTTP == nil {
		apiHTTP = &http.Client{Timeout: cfg.API.RequestTimeout}
	}
	c.api, err = api.NewClient(cfg.API.BaseURL,
		api.WithHTTPClient(apiHTTP),
		api.WithRetryDelay(cfg.API.RetryDelay),
		api.WithLogger(logger.Named("api")),
	)
	if err != nil {
		c.closeOwned()
		return nil, err
	}

	// -------- VERIFIER --------
	c.verifier = b.verifier
	if c.verifier == nil {
		switch cfg.Identity.Provider {
		case IdentityKratos:
			c.verifier = kratos.NewVerifier(cfg.Identity.KratosURL, apiHTTP)
		default:
			c.verifier = c.api
		}
	}

	// -------- STREAM TRANSPORT --------
	c.transport = b.transport
	if c.transport == nil {
		streamHTTP := &http.Client{}
		if b.httpClient != nil {
			copied := *b.httpClient
			copied.Timeout = 0
			streamHTTP = &copied
		}
		c.transport = eventsource.New(eventsource.Config{
			HTTPClient:    streamHTTP,
			DefaultRetry:  cfg.Stream.DefaultRetry,
			MaxRetry:      cfg.Stream.MaxRetry,
			MaxReconnects: cfg.Stream.MaxReconnects,
			Logger:        logger.Named("eventsource"),
		})
	}

	c.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)

	b.built = true
	logger.Debug("client built",
		zap.String("api", cfg.API.BaseURL),
		zap.String("identity", string(cfg.Identity.Provider)),
		zap.String("session_backend", string(cfg.Session.Backend)),
	)

	return c, nil
}

func (b *Builder) sessionBackend(cfg Config, c *Client) (session.Backend, error) {
	if b.backend != nil {
		return b.backend, nil
	}

	switch cfg.Session.Backend {
	case SessionMemory:
		return session.NewMemoryBackend(), nil
	case SessionNone:
		return session.Unavailable{}, nil
	case SessionRedis:
		rdb := b.redis
		if rdb == nil {
			if strings.TrimSpace(cfg.Session.RedisAddr) == "" {
				return nil, ErrRedisRequired
			}
			owned := redis.NewClient(&redis.Options{Addr: cfg.Session.RedisAddr})
			c.ownedRedis = owned
			rdb = owned
		}
		return session.NewRedisBackend(rdb, cfg.Session.RedisPrefix, cfg.Session.RedisTTL), nil
	default:
		path := cfg.Session.FilePath
		if path == "" {
			p, err := session.DefaultPath()
			if errors.Is(err, session.ErrStorageUnavailable) {
				c.logger.Debug("no user config directory, credentials will not be persisted", zap.Error(err))
				return session.Unavailable{}, nil
			}
			if err != nil {
				return nil, fmt.Errorf("resolve credentials path: %w", err)
			}
			path = p
		}
		var opts []session.FileOption
		if cfg.Session.AgeIdentityFile != "" {
			id, err := session.LoadAgeIdentity(cfg.Session.AgeIdentityFile)
			if err != nil {
				return nil, err
			}
			opts = append(opts, session.WithAgeIdentity(id))
		}
		return session.NewFileBackend(path, opts...), nil
	}
}
