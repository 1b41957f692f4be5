package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/jdziat/simple-report-runs/pkg/collab"
	"github.com/jdziat/simple-report-runs/pkg/config"
	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/dashboard"
	"github.com/jdziat/simple-report-runs/pkg/executor"
	"github.com/jdziat/simple-report-runs/pkg/notify"
	"github.com/jdziat/simple-report-runs/pkg/orchestrator"
	"github.com/jdziat/simple-report-runs/pkg/schedule"
	"github.com/jdziat/simple-report-runs/pkg/server"
	"github.com/jdziat/simple-report-runs/pkg/stats"
	"github.com/jdziat/simple-report-runs/pkg/storage"
	"github.com/jdziat/simple-report-runs/pkg/tracking"
)

func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return config.Load()
}

// app is every component wired from one Config.
type app struct {
	cfg *config.Config
	log zerolog.Logger

	db       *gorm.DB
	store    *storage.GormStorage
	reports  *collab.ReportStore
	stats    stats.Storage
	resolver *schedule.Resolver
	registry *executor.Registry
	tracker  *tracking.Tracker
	cache    *dashboard.Cache
	s3       *dashboard.S3Publisher
	orch     *orchestrator.Orchestrator
}

// newApp builds the component graph. A run store that cannot be opened is
// logged and the app continues untracked.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	if cfg.TrackingEnabled() {
		if err := a.openStore(ctx); err != nil {
			log.Warn().Err(err).Str("driver", cfg.DatabaseDriver).Msg("run store unavailable, runs will not be tracked")
			_ = a.Close()
			a.db, a.store, a.reports, a.stats = nil, nil, nil, nil
		}
	}

	resolver, err := schedule.NewResolver(schedule.WithLocation(cfg.Location))
	if err != nil {
		return nil, err
	}
	a.resolver = resolver

	a.registry = executor.Standard(a.executorConfig())

	var store core.RunStore
	if a.store != nil {
		store = a.store
	}
	a.tracker = tracking.New(store, tracking.WithLogger(log))

	a.cache = dashboard.NewCache(0)
	signalers := dashboard.Multi{a.cache}
	if cfg.S3Bucket != "" {
		pub, err := a.openS3(ctx)
		if err != nil {
			return nil, err
		}
		a.s3 = pub
		signalers = append(signalers, pub)
	}

	alerter, err := a.alerter()
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(log),
		orchestrator.WithRunDeadline(cfg.RunDeadline),
		orchestrator.WithCache(signalers),
		orchestrator.WithAlerter(alerter),
		orchestrator.WithSignalTimeout(cfg.CacheSignalTimeout),
	}
	if len(cfg.RequireTracking) > 0 {
		opts = append(opts, orchestrator.RequireTracking(cfg.RequireTracking...))
	}
	a.orch = orchestrator.New(a.resolver, a.registry, a.tracker, opts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	db, err := storage.Open(a.cfg.DatabaseDriver, a.cfg.DatabaseDSN, a.log,
		storage.WithMaxOpenConns(a.cfg.DatabaseMaxConns))
	if err != nil {
		return err
	}
	a.db = db
	a.store = storage.NewGormStorage(db)
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate runs: %w", err)
	}
	a.reports = collab.NewReportStore(db)
	if err := a.reports.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate reports: %w", err)
	}
	a.stats = stats.NewGormStorage(db)
	if err := a.stats.MigrateStats(ctx); err != nil {
		return fmt.Errorf("migrate stats: %w", err)
	}
	return nil
}

func (a *app) openS3(ctx context.Context) (*dashboard.S3Publisher, error) {
	s3cfg := dashboard.S3Config{
		Bucket:          a.cfg.S3Bucket,
		Prefix:          a.cfg.S3Prefix,
		Region:          a.cfg.AWSRegion,
		Endpoint:        a.cfg.S3Endpoint,
		AccessKeyID:     a.cfg.AWSAccessKeyID,
		SecretAccessKey: a.cfg.AWSSecretAccessKey,
	}
	client, err := dashboard.NewS3Client(ctx, s3cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return dashboard.NewS3Publisher(client, s3cfg, a.log)
}

func (a *app) alerter() (core.Alerter, error) {
	if a.cfg.AlertWebhookURL == "" {
		return notify.Log{Logger: a.log}, nil
	}
	return notify.NewWebhook(a.cfg.AlertWebhookURL,
		notify.WithTimeout(a.cfg.AlertTimeout),
		notify.WithLogger(a.log),
	)
}

func (a *app) clientOptions() []collab.ClientOption {
	opts := []collab.ClientOption{
		collab.WithTimeout(a.cfg.CollaboratorTimeout),
		collab.WithLogger(a.log),
	}
	if a.cfg.CollaboratorAPIKey != "" {
		opts = append(opts, collab.WithHeader("Authorization", "Bearer "+a.cfg.CollaboratorAPIKey))
	}
	return opts
}

// executorConfig only sets collaborators that have a URL, so an absent
// collaborator stays a nil interface.
func (a *app) executorConfig() executor.Config {
	opts := a.clientOptions()
	ec := executor.Config{
		Watchlist:           a.cfg.Watchlist,
		CollaboratorTimeout: a.cfg.CollaboratorTimeout,
		ModelTimeout:        a.cfg.ModelTimeout,
		FetchConcurrency:    a.cfg.FetchConcurrency,
		HistoryDays:         a.cfg.HistoryDays,
	}
	if a.cfg.MarketDataURL != "" {
		ec.Market = collab.NewMarket(a.cfg.MarketDataURL, opts...)
	}
	if a.cfg.NewsURL != "" {
		ec.News = collab.NewNews(a.cfg.NewsURL, opts...)
	}
	// Model calls get their own, longer client timeout.
	modelOpts := append(opts[:len(opts):len(opts)], collab.WithTimeout(a.cfg.ModelTimeout))
	if a.cfg.PrimaryModelURL != "" {
		ec.Primary = collab.NewModel("primary", a.cfg.PrimaryModelURL, modelOpts...)
	}
	if a.cfg.SecondaryModelURL != "" {
		ec.Secondary = collab.NewModel("secondary", a.cfg.SecondaryModelURL, modelOpts...)
	}
	if a.cfg.SideChannelURLs != "" {
		ec.SideChannels = collab.ParseSideFeeds(a.cfg.SideChannelURLs, opts...)
	}
	if a.reports != nil {
		ec.Sink = a.reports
	}
	return ec
}

// runReader, reportReader and statsReader avoid handing the server a typed nil.
func (a *app) runReader() server.RunReader {
	if a.store == nil {
		return nil
	}
	return a.store
}

func (a *app) reportReader() server.ReportReader {
	if a.reports == nil {
		return nil
	}
	return a.reports
}

func (a *app) statsReader() server.StatsReader {
	if a.stats == nil {
		return nil
	}
	return a.stats
}

func (a *app) Close() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
