package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	kafkaaudit "github.com/bnema/coplay/internal/adapters/audit/kafka"
	"github.com/bnema/coplay/internal/adapters/gate"
	"github.com/bnema/coplay/internal/adapters/history/opendota"
	"github.com/bnema/coplay/internal/adapters/metrics"
	chainstore "github.com/bnema/coplay/internal/adapters/secrets/chain"
	filestore "github.com/bnema/coplay/internal/adapters/secrets/file"
	passstore "github.com/bnema/coplay/internal/adapters/secrets/pass"
	"github.com/bnema/coplay/internal/adapters/session/gateway"
	"github.com/bnema/coplay/internal/adapters/telemetry"
	"github.com/bnema/coplay/internal/application"
	"github.com/bnema/coplay/internal/config"
	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/platform/logging"
	"github.com/bnema/coplay/internal/ports"
	"github.com/bnema/coplay/internal/version"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const serviceName = "coplay"

type app struct {
	cfg         config.Config
	log         *logrus.Logger
	secretStore ports.SecretStore
	metrics     *metrics.Metrics
	gateStats   *gate.MemoryStatsStore
	redis       *redis.Client
	httpClient  *http.Client
	now         func() time.Time
	// interactive is true when stderr is a terminal; progress is then drawn
	// with a spinner instead of info logs.
	interactive bool

	shutdownTelemetry telemetry.ShutdownFunc
}

func wireApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	cfg, err := config.Load(viper.New(), config.Options{HomeDir: homeDir, File: flags.configFile})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	interactive := logging.IsTerminal(cmd.ErrOrStderr())
	level := flags.logLevel
	if level == "" && interactive {
		level = logrus.WarnLevel.String()
	}

	log, err := logging.New(logging.Options{Level: level, Format: flags.logFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return nil, fmt.Errorf("wire logger: %w", err)
	}

	secretStore, err := newSecretStore(cfg.Secrets)
	if err != nil {
		return nil, fmt.Errorf("wire secret store: %w", err)
	}

	shutdownTelemetry, err := telemetry.Setup(cmd.Context(), serviceName, version.Version, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("wire telemetry: %w", err)
	}

	a := &app{
		cfg:               cfg,
		log:               log,
		secretStore:       secretStore,
		metrics:           metrics.New(),
		gateStats:         gate.NewMemoryStatsStore(),
		httpClient:        http.DefaultClient,
		now:               time.Now,
		interactive:       interactive,
		shutdownTelemetry: shutdownTelemetry,
	}

	if cfg.Stats.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Stats.RedisAddr})
	}

	return a, nil
}

func newSecretStore(cfg config.SecretsConfig) (ports.SecretStore, error) {
	switch cfg.Backend {
	case config.SecretsBackendFile:
		return filestore.NewStore(cfg.Dir), nil
	case config.SecretsBackendPass:
		return passstore.NewStore(), nil
	default:
		store, err := chainstore.NewPassFirstWithFileFallback(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (a *app) newGate() *gate.Gate {
	stats := gate.MultiStatsStore{a.gateStats, a.metrics}
	if a.redis != nil {
		stats = append(stats, gate.NewRedisStatsStore(a.redis, gate.WithStatsPrefix(a.cfg.Stats.RedisPrefix)))
	}

	return gate.New(a.cfg.Gate.Period, a.cfg.Gate.Timeout, gate.WithStats(stats), gate.WithLogger(a.log))
}

func (a *app) newAggregator(ctx context.Context) (*application.Aggregator, error) {
	apiKey, err := a.historyAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	client := &opendota.Client{
		BaseURL:        a.cfg.History.BaseURL,
		APIKey:         apiKey,
		HTTPClient:     a.httpClient,
		RequestTimeout: a.cfg.History.RequestTimeout,
	}

	return application.NewAggregator(client, a.newGate(), a.log), nil
}

// historyAPIKey prefers the configured key. A key kept in the secret store
// is optional: the public history API works without one.
func (a *app) historyAPIKey(ctx context.Context) (string, error) {
	if a.cfg.History.APIKey != "" {
		return a.cfg.History.APIKey, nil
	}

	key, err := a.secretStore.Get(ctx, domain.HistoryAPIKeyKey())
	if errors.Is(err, domain.ErrSecretNotFound) {
		return "", nil
	}
	if err != nil {
		a.log.WithError(err).Warn("history api key lookup failed, continuing without a key")
		return "", nil
	}
	return key, nil
}

func (a *app) sessionCredentials(ctx context.Context) (domain.Credentials, error) {
	if err := a.cfg.RequireSession(); err != nil {
		return domain.Credentials{}, err
	}

	password := a.cfg.Session.Password
	if password == "" {
		stored, err := a.secretStore.Get(ctx, a.cfg.Session.SecretRef)
		if errors.Is(err, domain.ErrSecretNotFound) {
			return domain.Credentials{}, fmt.Errorf("session password for %q not found: set COPLAY_SESSION_PASSWORD or run `coplay secret set`: %w", a.cfg.Session.Username, err)
		}
		if err != nil {
			return domain.Credentials{}, fmt.Errorf("load session password: %w", err)
		}
		password = stored
	}

	return domain.Credentials{
		Username: a.cfg.Session.Username,
		Password: password,
		LoginID:  a.cfg.Session.LoginID,
	}, nil
}

func (a *app) newSession(creds domain.Credentials) *application.SessionClient {
	transport := gateway.New(a.cfg.Session.URL, a.log)
	return application.NewSessionClient(transport, creds, a.log)
}

// renameSinks returns the audit sinks for a sync and a func closing the
// ones this call opened.
func (a *app) renameSinks() ([]ports.RenameSink, func() error, error) {
	sinks := []ports.RenameSink{a.metrics}
	closeSinks := func() error { return nil }

	if len(a.cfg.Audit.KafkaBrokers) > 0 {
		publisher, err := kafkaaudit.NewPublisher(a.cfg.Audit.KafkaBrokers, a.cfg.Audit.KafkaTopic)
		if err != nil {
			return nil, nil, fmt.Errorf("wire kafka audit: %w", err)
		}
		sinks = append(sinks, publisher)
		closeSinks = publisher.Close
	}

	return sinks, closeSinks, nil
}

// runWork shows the stages of work on an interactive terminal unless the
// output is machine readable.
func (a *app) runWork(cmd *cobra.Command, title string, jsonOutput bool, work func(context.Context) error) error {
	if a.interactive && !jsonOutput {
		return runWithStages(cmd.Context(), cmd.ErrOrStderr(), title, work)
	}
	return work(cmd.Context())
}

// close flushes run-scoped outputs and releases connections.
func (a *app) close(ctx context.Context) error {
	total := a.gateStats.Total()
	a.log.WithFields(logrus.Fields{
		"allowed": total.Allowed,
		"denied":  total.Denied,
		"waited":  total.Waited.String(),
	}).Info("gate totals")

	var errs []error
	if a.cfg.Metrics.Textfile != "" {
		a.metrics.MarkFinished(float64(a.now().Unix()))
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}

	return errors.Join(errs...)
}
