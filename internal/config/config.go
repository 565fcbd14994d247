package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bnema/coplay/internal/adapters/history/opendota"
	"github.com/bnema/coplay/internal/domain"
	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".config/coplay"

	keyTrackedAccount = "tracked_account"
	keyHistoryBaseURL = "history.base_url"
	keyHistoryAPIKey  = "history.api_key"
	keyHistoryTimeout = "history.request_timeout"
	keySessionURL     = "session.url"
	keySessionUser    = "session.username"
	keySessionSecret  = "session.secret_ref"
	keySessionLoginID = "session.login_id"
	keyGatePeriod     = "gate.period"
	keyGateTimeout    = "gate.timeout"
	keyStatsRedisAddr = "stats.redis_addr"
	keyStatsPrefix    = "stats.redis_prefix"
	keyAuditBrokers   = "audit.kafka_brokers"
	keyAuditTopic     = "audit.kafka_topic"
	keyMetricsFile    = "metrics.textfile"
	keyOTLPEndpoint   = "telemetry.otlp_endpoint"
	keySecretsDir     = "secrets.dir"
	keySecretsBackend = "secrets.backend"

	defaultSessionURL = "ws://127.0.0.1:27060/gateway"
	defaultStatsKey   = "coplay:gate"
	defaultAuditTopic = "coplay.renames"

	SecretsBackendAuto = "auto"
	SecretsBackendFile = "file"
	SecretsBackendPass = "pass"
)

var ErrMissingTrackedAccount = errors.New("tracked account is not configured")

type Config struct {
	TrackedAccount domain.AccountID
	History        HistoryConfig
	Session        SessionConfig
	Gate           GateConfig
	Stats          StatsConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Telemetry      TelemetryConfig
	Secrets        SecretsConfig
}

type SecretsConfig struct {
	Dir     string
	Backend string
}

type HistoryConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

type SessionConfig struct {
	URL       string
	Username  string
	Password  string
	SecretRef string
	LoginID   uint32
}

type GateConfig struct {
	Period  time.Duration
	Timeout time.Duration
}

type StatsConfig struct {
	RedisAddr   string
	RedisPrefix string
}

type AuditConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

type MetricsConfig struct {
	Textfile string
}

type TelemetryConfig struct {
	OTLPEndpoint string
}

// environment overrides the file. Empty variables leave the file value.
type environment struct {
	TrackedAccount  int64    `env:"COPLAY_TRACKED_ACCOUNT"`
	HistoryBaseURL  string   `env:"COPLAY_HISTORY_BASE_URL"`
	HistoryAPIKey   string   `env:"COPLAY_HISTORY_API_KEY"`
	SessionURL      string   `env:"COPLAY_SESSION_URL"`
	SessionUsername string   `env:"COPLAY_SESSION_USERNAME"`
	SessionPassword string   `env:"COPLAY_SESSION_PASSWORD"`
	RedisAddr       string   `env:"COPLAY_REDIS_ADDR"`
	KafkaBrokers    []string `env:"COPLAY_KAFKA_BROKERS" envSeparator:","`
	OTLPEndpoint    string   `env:"COPLAY_OTEL_ENDPOINT"`
}

type Options struct {
	HomeDir string
	// File replaces the lookup of config.toml under HomeDir when set.
	File string
}

// Load reads the config file, tolerating its absence, and applies the
// environment on top.
func Load(v *viper.Viper, opts Options) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	dir := filepath.Join(opts.HomeDir, configDir)
	setDefaults(v, dir)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		TrackedAccount: domain.AccountID(v.GetInt64(keyTrackedAccount)),
		History: HistoryConfig{
			BaseURL:        v.GetString(keyHistoryBaseURL),
			APIKey:         v.GetString(keyHistoryAPIKey),
			RequestTimeout: v.GetDuration(keyHistoryTimeout),
		},
		Session: SessionConfig{
			URL:       v.GetString(keySessionURL),
			Username:  v.GetString(keySessionUser),
			SecretRef: v.GetString(keySessionSecret),
			LoginID:   v.GetUint32(keySessionLoginID),
		},
		Gate: GateConfig{
			Period:  v.GetDuration(keyGatePeriod),
			Timeout: v.GetDuration(keyGateTimeout),
		},
		Stats: StatsConfig{
			RedisAddr:   v.GetString(keyStatsRedisAddr),
			RedisPrefix: v.GetString(keyStatsPrefix),
		},
		Audit: AuditConfig{
			KafkaBrokers: v.GetStringSlice(keyAuditBrokers),
			KafkaTopic:   v.GetString(keyAuditTopic),
		},
		Metrics:    MetricsConfig{Textfile: v.GetString(keyMetricsFile)},
		Telemetry:  TelemetryConfig{OTLPEndpoint: v.GetString(keyOTLPEndpoint)},
		Secrets: SecretsConfig{
			Dir:     v.GetString(keySecretsDir),
			Backend: strings.ToLower(v.GetString(keySecretsBackend)),
		},
	}

	var overlay environment
	if err := env.Parse(&overlay); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	overlay.apply(&cfg)

	if cfg.Session.SecretRef == "" && cfg.Session.Username != "" {
		cfg.Session.SecretRef = domain.SessionPasswordKey(cfg.Session.Username)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault(keyHistoryBaseURL, opendota.DefaultBaseURL)
	v.SetDefault(keyHistoryTimeout, 30*time.Second)
	v.SetDefault(keySessionURL, defaultSessionURL)
	v.SetDefault(keySessionLoginID, domain.DefaultLoginID)
	v.SetDefault(keyGatePeriod, domain.GateRefreshPeriod)
	v.SetDefault(keyGateTimeout, domain.GateAdmitTimeout)
	v.SetDefault(keyStatsPrefix, defaultStatsKey)
	v.SetDefault(keyAuditTopic, defaultAuditTopic)
	v.SetDefault(keySecretsDir, filepath.Join(dir, "secrets"))
	v.SetDefault(keySecretsBackend, SecretsBackendAuto)
}

func (e environment) apply(cfg *Config) {
	if e.TrackedAccount != 0 {
		cfg.TrackedAccount = domain.AccountID(e.TrackedAccount)
	}
	setIfNotEmpty(&cfg.History.BaseURL, e.HistoryBaseURL)
	setIfNotEmpty(&cfg.History.APIKey, e.HistoryAPIKey)
	setIfNotEmpty(&cfg.Session.URL, e.SessionURL)
	setIfNotEmpty(&cfg.Session.Username, e.SessionUsername)
	setIfNotEmpty(&cfg.Session.Password, e.SessionPassword)
	setIfNotEmpty(&cfg.Stats.RedisAddr, e.RedisAddr)
	setIfNotEmpty(&cfg.Telemetry.OTLPEndpoint, e.OTLPEndpoint)
	if len(e.KafkaBrokers) > 0 {
		cfg.Audit.KafkaBrokers = e.KafkaBrokers
	}
}

// validate keeps the gate timeout just above one refresh period, which is
// what lets the first waiter in a period through.
func (c Config) validate() error {
	if c.Gate.Period <= 0 {
		return fmt.Errorf("gate period must be positive, got %s", c.Gate.Period)
	}
	if c.Gate.Timeout <= c.Gate.Period {
		return fmt.Errorf("gate timeout %s must exceed the refresh period %s", c.Gate.Timeout, c.Gate.Period)
	}
	switch c.Secrets.Backend {
	case SecretsBackendAuto, SecretsBackendFile, SecretsBackendPass:
	default:
		return fmt.Errorf("unsupported secrets backend %q", c.Secrets.Backend)
	}
	if c.History.RequestTimeout < 0 {
		return fmt.Errorf("history request timeout must not be negative, got %s", c.History.RequestTimeout)
	}
	return nil
}

// RequireTrackedAccount applies an explicit account, then checks one is set.
func (c *Config) RequireTrackedAccount(override int64) error {
	if override != 0 {
		c.TrackedAccount = domain.AccountID(override)
	}
	if c.TrackedAccount <= 0 {
		return ErrMissingTrackedAccount
	}
	return nil
}

// RequireSession checks what a session logon needs, except the password,
// which may still come from the secret store.
func (c Config) RequireSession() error {
	var missing []string
	if strings.TrimSpace(c.Session.URL) == "" {
		missing = append(missing, keySessionURL)
	}
	if strings.TrimSpace(c.Session.Username) == "" {
		missing = append(missing, keySessionUser)
	}
	if len(missing) > 0 {
		return fmt.Errorf("session is not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func setIfNotEmpty(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
