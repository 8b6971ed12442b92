package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sentimenta/dashclient"
)

// Configuration keys. With the SENTIMENTA env prefix each key is also read
// from SENTIMENTA_<KEY>, e.g. SENTIMENTA_API_URL.
const (
	keyAPIURL             = "api_url"
	keyGoogleClientID     = "google_client_id"
	keyIdentityProvider   = "identity_provider"
	keyKratosURL          = "kratos_url"
	keySessionBackend     = "session_backend"
	keySessionFile        = "session_file"
	keySessionAgeIdentity = "session_age_identity"
	keyRedisAddr          = "redis_addr"
	keyRedisPrefix        = "redis_prefix"
	keyRedisTTL           = "redis_ttl"
	keyStreamMaxRetry     = "stream_max_retry"
	keyStreamReconnects   = "stream_max_reconnects"
	keyPollInterval       = "poll_interval"
	keyAudit              = "audit"
	keyLogLevel           = "log_level"
)

// loadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func loadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// loadConfig resolves the client configuration from defaults, the optional
// config file and SENTIMENTA_* environment variables, in increasing
// precedence.
func loadConfig(v *viper.Viper, cfgFile string) (dashclient.Config, error) {
	base := dashclient.DefaultConfig()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/sentimenta")
	}

	v.SetEnvPrefix("SENTIMENTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyAPIURL, base.API.BaseURL)
	v.SetDefault(keyIdentityProvider, string(base.Identity.Provider))
	v.SetDefault(keySessionBackend, string(base.Session.Backend))
	v.SetDefault(keyRedisPrefix, base.Session.RedisPrefix)
	v.SetDefault(keyStreamMaxRetry, base.Stream.MaxRetry)
	v.SetDefault(keyStreamReconnects, base.Stream.MaxReconnects)
	v.SetDefault(keyPollInterval, base.Stream.PollInterval)
	v.SetDefault(keyLogLevel, base.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return dashclient.Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := base
	cfg.API.BaseURL = strings.TrimRight(v.GetString(keyAPIURL), "/")
	cfg.Identity.Provider = dashclient.IdentityProvider(strings.ToLower(v.GetString(keyIdentityProvider)))
	cfg.Identity.KratosURL = v.GetString(keyKratosURL)
	cfg.Identity.ClientID = v.GetString(keyGoogleClientID)
	cfg.Session.Backend = dashclient.SessionBackend(strings.ToLower(v.GetString(keySessionBackend)))
	cfg.Session.FilePath = v.GetString(keySessionFile)
	cfg.Session.AgeIdentityFile = v.GetString(keySessionAgeIdentity)
	cfg.Session.RedisAddr = v.GetString(keyRedisAddr)
	cfg.Session.RedisPrefix = v.GetString(keyRedisPrefix)
	cfg.Session.RedisTTL = v.GetDuration(keyRedisTTL)
	cfg.Stream.MaxRetry = v.GetDuration(keyStreamMaxRetry)
	cfg.Stream.MaxReconnects = v.GetInt(keyStreamReconnects)
	cfg.Stream.PollInterval = v.GetDuration(keyPollInterval)
	cfg.Audit.Enabled = v.GetBool(keyAudit)
	cfg.LogLevel = v.GetString(keyLogLevel)

	if err := cfg.Validate(); err != nil {
		return dashclient.Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}
