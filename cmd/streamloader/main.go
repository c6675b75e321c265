// Command streamloader runs the streaming warehouse loader: it consumes
// analytics events from a configured source, inserts them into a Snowflake
// table via a cold-swap streaming channel, and dead-letters malformed or
// rejected events.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"

	"streamloader/internal/alert"
	"streamloader/internal/badrow"
	"streamloader/internal/config"
	"streamloader/internal/crashreport"
	"streamloader/internal/health"
	"streamloader/internal/iglu"
	"streamloader/internal/log"
	"streamloader/internal/metrics"
	"streamloader/internal/pipeline"
	"streamloader/internal/retry"
	"streamloader/internal/sink"
	"streamloader/internal/source"
	"streamloader/internal/transform"
	"streamloader/internal/warehouse"
)

const processorName = "streamloader"

// version is set at build time via -ldflags.
var version = "dev"

const (
	defaultFlushTimeout = 5 * time.Second
	defaultAlertMinGap  = 30 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := os.Getenv("STREAMLOADER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	logger := log.New(os.Getenv("STREAMLOADER_LOG_LEVEL"))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Errorf("failed to load config: %v", err)
		return 1
	}

	crashReporter := buildCrashReporter(cfg, logger)
	defer crashReporter.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	driver, closeFn, err := wire(ctx, cfg, logger, crashReporter)
	if err != nil {
		logger.Errorf("failed to wire loader: %v", err)
		crashReporter.CaptureFatal(err, map[string]string{"phase": "startup"})
		crashReporter.Flush(defaultFlushTimeout)
		return 1
	}
	defer closeFn()

	err = driver.Run(ctx)
	if err == nil || err == context.Canceled {
		logger.Infof("shutting down cleanly")
		return 0
	}
	logger.Errorf("pipeline terminated: %v", err)
	crashReporter.Flush(defaultFlushTimeout)
	return 1
}

func buildCrashReporter(cfg *config.Config, logger log.Modular) crashreport.Reporter {
	if cfg.Monitoring.Sentry.DSN == "" {
		return crashreport.Noop{}
	}
	r, err := crashreport.NewSentry(cfg.Monitoring.Sentry.DSN, "", cfg.Monitoring.Sentry.Tags)
	if err != nil {
		logger.Warnf("failed to initialize crash reporter: %v", err)
		return crashreport.Noop{}
	}
	return r
}

func buildAlerter(cfg *config.Config, logger log.Modular) alert.Alerter {
	if cfg.Monitoring.Webhook.Endpoint == "" {
		return alert.Noop{}
	}
	return alert.NewWebhook(cfg.Monitoring.Webhook.Endpoint, cfg.Monitoring.Webhook.Tags, defaultAlertMinGap, logger)
}

func buildMetrics(cfg *config.Config, logger log.Modular) metrics.Reporter {
	if cfg.Monitoring.Metrics.Statsd.Host == "" {
		return metrics.Noop{}
	}
	sc := cfg.Monitoring.Metrics.Statsd
	return metrics.NewStatsd(sc.Host, sc.Port, sc.Prefix, sc.Tags, sc.Period, logger)
}

func buildSource(cfg *config.Config, logger log.Modular) (source.Source, error) {
	batching := source.BatchingParams{MaxBytes: cfg.Batching.MaxBytes, MaxDelay: cfg.Batching.MaxDelay}
	switch cfg.Input.Type {
	case "kafka":
		return source.NewKafka([]string{cfg.Input.StreamName}, cfg.Input.StreamName, cfg.Input.ConsumerAppName, batching, logger)
	default:
		client, err := pubsub.NewClient(context.Background(), projectFromSubscription(cfg.Input.SubscriptionID))
		if err != nil {
			return nil, fmt.Errorf("failed to create pubsub client: %w", err)
		}
		return source.NewPubSub(client, cfg.Input.SubscriptionID, batching, logger), nil
	}
}

func buildSink(cfg *config.Config, retryEngine *retry.Engine) (sink.Sink, error) {
	switch cfg.Output.Bad.Type {
	case "file":
		return sink.NewFile(cfg.Output.Bad.Destination)
	default:
		return sink.NewHTTP(cfg.Output.Bad.Destination, retryEngine, cfg.Output.Bad.BackoffDelay, cfg.Output.Bad.BackoffMaxRetries+1), nil
	}
}

func wire(ctx context.Context, cfg *config.Config, logger log.Modular, crashReporter crashreport.Reporter) (*pipeline.Driver, func(), error) {
	healthCell := health.NewCell("starting up")
	alerter := buildAlerter(cfg, logger)
	retryEngine := retry.New(healthCell, alerter, logger)

	db, err := warehouse.Open(warehouse.ConnParams{
		Account:        cfg.Output.Good.URL,
		User:           cfg.Output.Good.User,
		PrivateKeyPEM:  cfg.Output.Good.PrivateKey,
		Passphrase:     cfg.Output.Good.Passphrase,
		Role:           cfg.Output.Good.Role,
		Database:       cfg.Output.Good.Database,
		Schema:         cfg.Output.Good.Schema,
		Table:          cfg.Output.Good.Table,
		ChannelName:    cfg.Output.Good.ChannelName,
		LoginTimeout:   cfg.Output.Good.LoginTimeout,
		NetworkTimeout: cfg.Output.Good.NetworkTimeout,
		QueryTimeout:   cfg.Output.Good.QueryTimeout,
	})
	if err != nil {
		return nil, func() {}, err
	}

	fqn := fmt.Sprintf("%s.%s.%s", cfg.Output.Good.Database, cfg.Output.Good.Schema, cfg.Output.Good.Table)
	tableManager := warehouse.NewTableManager(db, fqn, retryEngine, cfg.Retries.SetupErrors.Delay, logger)
	if err := tableManager.Initialize(ctx); err != nil {
		closeDB(db)
		return nil, func() {}, fmt.Errorf("failed to initialize table: %w", err)
	}

	opener := warehouse.NewSnowflakeOpener(db, fqn)
	provider := warehouse.NewProvider(opener, retryEngine, cfg.Retries.SetupErrors.Delay, logger)

	processor := badrow.Processor{Name: processorName, Version: version}
	insertStage := &warehouse.InsertStage{
		Provider:          provider,
		Table:             tableManager,
		Processor:         processor,
		Logger:            logger,
		Retry:             retryEngine,
		TransientDelay:    cfg.Retries.TransientErrors.Delay,
		TransientAttempts: cfg.Retries.TransientErrors.Attempts,
	}

	transformStage := &transform.Stage{
		Collaborator: transform.DefaultCollaborator{},
		Caster:       transform.DefaultCaster{},
		SkipSchemas:  iglu.NewSkipList(cfg.SkipSchemas),
		Processor:    processor,
	}

	src, err := buildSource(cfg, logger)
	if err != nil {
		closeDB(db)
		return nil, func() {}, err
	}

	dlSink, err := buildSink(cfg, retryEngine)
	if err != nil {
		closeDB(db)
		return nil, func() {}, err
	}

	metricsReporter := buildMetrics(cfg, logger)

	driver := &pipeline.Driver{
		Source:       src,
		Transform:    transformStage,
		Insert:       insertStage,
		Sink:         dlSink,
		Metrics:      metricsReporter,
		Crash:        crashReporter,
		Processor:    processor,
		Logger:       logger,
		PrefetchSize: cfg.Batching.UploadConcurrency,
	}

	closeFn := func() {
		_ = provider.Finalize()
		_ = dlSink.Close()
		_ = metricsReporter.Close()
		_ = src.Close()
		closeDB(db)
	}

	return driver, closeFn, nil
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}

// projectFromSubscription extracts a GCP project id from a fully qualified
// subscription id of the form "projects/<id>/subscriptions/<name>", falling
// back to treating the whole string as a bare subscription within the
// default project when it isn't fully qualified.
func projectFromSubscription(subscriptionID string) string {
	const prefix = "projects/"
	if len(subscriptionID) > len(prefix) && subscriptionID[:len(prefix)] == prefix {
		rest := subscriptionID[len(prefix):]
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				return rest[:i]
			}
		}
	}
	return pubsub.DetectProjectID
}
