package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/tvgrid/internal/config"
	"github.com/jmylchreest/tvgrid/internal/database"
	"github.com/jmylchreest/tvgrid/internal/database/migrations"
	"github.com/jmylchreest/tvgrid/internal/export"
	"github.com/jmylchreest/tvgrid/internal/guide"
	internalhttp "github.com/jmylchreest/tvgrid/internal/http"
	"github.com/jmylchreest/tvgrid/internal/http/handlers"
	"github.com/jmylchreest/tvgrid/internal/ingest"
	"github.com/jmylchreest/tvgrid/internal/logocache"
	"github.com/jmylchreest/tvgrid/internal/repository"
	"github.com/jmylchreest/tvgrid/internal/scheduler"
	"github.com/jmylchreest/tvgrid/internal/session"
	"github.com/jmylchreest/tvgrid/internal/urlutil"
	"github.com/jmylchreest/tvgrid/internal/version"
	"github.com/jmylchreest/tvgrid/pkg/httpclient"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tvgrid server",
	Long: `Start the tvgrid HTTP server and API.

The server provides:
- REST API for channels, guide data, favorites, settings, and sources
- M3U playlist and XMLTV guide downloads at /export
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Like the global flags, these overlay the loaded config only when
	// explicitly set, so an untouched flag default never shadows an
	// environment or config file value.
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "tvgrid.db", "Database DSN (file path for sqlite)")
	serveCmd.Flags().String("data-dir", "./data", "Data directory for logos and exports")
}

// applyServeFlags overlays explicitly-set CLI flags onto the loaded
// configuration.
func applyServeFlags(flags *pflag.FlagSet, cfg *config.Config) {
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("database") {
		cfg.Database.DSN, _ = flags.GetString("database")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.BaseDir, _ = flags.GetString("data-dir")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd.Flags(), cfg)

	// Initialize database
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Initialize repositories
	sourceRepo := repository.NewSourceRepository(db.DB)
	favoriteRepo := repository.NewFavoriteRepository(db.DB)
	settingRepo := repository.NewSettingRepository(db.DB)

	// Shutdown context shared by every background service
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// HTTP client for playlist and EPG downloads
	sourceHTTP := httpclient.DefaultConfig()
	sourceHTTP.Timeout = cfg.Sources.HTTPTimeout
	sourceHTTP.RetryAttempts = cfg.Sources.RetryAttempts
	sourceHTTP.RetryDelay = cfg.Sources.RetryDelay
	sourceHTTP.MaxResponseSize = cfg.Sources.MaxResponseSize.Bytes()
	sourceHTTP.UserAgent = version.UserAgent()
	sourceHTTP.Logger = logger
	sourceClient := httpclient.New(sourceHTTP)
	httpclient.DefaultRegistry.Register("source-fetcher", sourceClient)

	loader := ingest.NewLoader(sourceHTTP, logger).
		WithFetcher(urlutil.NewResourceFetcherWithClient(sourceClient))

	// Guide session
	sess := session.New(loader, guide.MatcherOptions{
		Fuzzy:            cfg.Guide.FuzzyMatching,
		FuzzyMaxDistance: cfg.Guide.FuzzyMaxDistance,
	}, logger)

	// Create HTTP client for logo fetching. Missing logos are expected
	// and shouldn't trip the circuit breaker, so 404 is acceptable by
	// default.
	logoCodes, err := httpclient.ParseStatusCodes(cfg.Logos.AcceptableStatusCodes)
	if err != nil {
		return fmt.Errorf("parsing logos.acceptable_status_codes: %w", err)
	}
	logoHTTP := httpclient.DefaultConfig()
	logoHTTP.Timeout = cfg.Logos.Timeout
	logoHTTP.RetryAttempts = cfg.Logos.RetryAttempts
	logoHTTP.MaxResponseSize = cfg.Storage.MaxLogoSize.Bytes()
	logoHTTP.AcceptableStatusCodes = logoCodes
	logoHTTP.UserAgent = version.UserAgent()
	logoHTTP.Logger = logger
	logoClient := httpclient.New(logoHTTP)
	httpclient.DefaultRegistry.Register("logo-fetcher", logoClient)

	// Logo cache with startup index scan
	logoCache, err := logocache.New(cfg.Storage.LogoPath(), logoClient, logger)
	if err != nil {
		return fmt.Errorf("initializing logo cache: %w", err)
	}
	logoStats, err := logoCache.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading logo index: %w", err)
	}
	logger.Info("logo cache loaded",
		slog.Int("entries", logoStats.Entries),
		slog.Int64("bytes", logoStats.TotalBytes),
	)

	if cfg.Logos.Enabled {
		warmer := logocache.NewWarmer(logoCache, sess, cfg.Logos.Concurrency, logger)
		go func() {
			if err := warmer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("logo warmer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	// Exporter keeps the on-disk M3U/XMLTV files current
	exporter := export.New(sess, favoriteRepo, cfg.Storage.ExportPath(), logger)
	go func() {
		if err := exporter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("exporter stopped", slog.String("error", err.Error()))
		}
	}()

	// Scheduler fires reloads as source schedules come due
	sched := scheduler.New(sourceRepo, sess).
		WithLogger(logger).
		WithConfig(scheduler.Config{
			DefaultRefreshCron: cfg.Sources.RefreshCron,
			LogoRetention:      cfg.Storage.LogoRetention.Duration(),
		}).
		WithLogoMaintenance(logoCache)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer sched.Stop()

	// Initial load runs in the background so a slow provider doesn't
	// hold up the listener. The watcher starts afterwards because it
	// needs the resolved source pair.
	go func() {
		if err := sched.RefreshNow(ctx); err != nil {
			if errors.Is(err, session.ErrNoPlaylist) {
				logger.Info("no enabled playlist source, waiting for configuration")
			} else {
				logger.Warn("initial refresh failed", slog.String("error", err.Error()))
			}
		}
		if cfg.Sources.WatchLocalFiles {
			watcher := session.NewWatcher(sess, logger).WithDebounce(cfg.Sources.WatchDebounce)
			if err := watcher.Start(ctx, sess.Sources()); err != nil {
				logger.Warn("starting file watcher", slog.String("error", err.Error()))
			}
		}
	}()

	// Initialize HTTP server
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	// Register OpenAPI docs handler with system theme detection (dark/light)
	docsHandler := handlers.NewDocsHandler("tvgrid API", "/openapi.yaml", handlers.WithSystemTheme())
	server.Router().Get("/docs", docsHandler.ServeHTTP)

	// Register handlers
	healthHandler := handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithSession(sess).
		WithRegistry(httpclient.DefaultRegistry)
	healthHandler.Register(server.API())

	channelHandler := handlers.NewChannelHandler(sess, favoriteRepo, logoCache, logger)
	channelHandler.Register(server.API())

	guideHandler := handlers.NewGuideHandler(sess)
	guideHandler.Register(server.API())

	favoriteHandler := handlers.NewFavoriteHandler(favoriteRepo, sess, logger)
	favoriteHandler.Register(server.API())

	settingsHandler := handlers.NewSettingsHandler(settingRepo, logger)
	settingsHandler.Register(server.API())

	sourceHandler := handlers.NewSourceHandler(sourceRepo, sched, cfg.Sources.RefreshCron, logger)
	sourceHandler.Register(server.API())

	statusHandler := handlers.NewStatusHandler(sess)
	statusHandler.Register(server.API())

	logoHandler := handlers.NewLogoHandler(logoCache).WithLogger(logger)
	logoHandler.Register(server.API())

	systemHandler := handlers.NewSystemHandler(db.DB, sess, cfg.Storage.BaseDir).WithLogoCache(logoCache)
	systemHandler.Register(server.API())

	versionHandler := handlers.NewVersionHandler()
	versionHandler.Register(server.API())

	outputHandler := handlers.NewOutputHandler(exporter).WithLogger(logger)
	outputHandler.Register(server.API())

	// Raw file routes go in after the API registrations so the streaming
	// handlers win the route while the operations stay in the OpenAPI
	// description.
	outputHandler.RegisterFileServer(server.Router())
	logoHandler.RegisterFileServer(server.Router())

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Start server
	logger.Info("starting tvgrid server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

func runMigrations(db *database.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	return migrator.Up(context.Background())
}
