package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruziba3vich/tax-filing-service/config"
	"github.com/ruziba3vich/tax-filing-service/internal/application"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/cache/redis"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/persistence"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/persistence/postgres"
	apphttp "github.com/ruziba3vich/tax-filing-service/internal/interfaces/http"
	"github.com/ruziba3vich/tax-filing-service/internal/interfaces/http/handlers"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, cfg *config.Config, inMemory bool) error {
	// Initialize logger
	log, logWriter, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)
	if logWriter != nil {
		defer logWriter.Close()
	}

	log.Info("Starting tax filing service...",
		logger.Component("main"),
		logger.Bool("in_memory", inMemory),
	)

	// Initialize infrastructure
	var (
		repos  *persistence.Repositories
		checks []handlers.Dependency
	)
	if inMemory {
		repos = persistence.NewInMemoryRepositories()
	} else {
		db, redisClient, err := initInfrastructure(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()
		defer redisClient.Close()

		repos = persistence.NewRepositories(db, redisClient, cfg.Session.CacheTTL)
		checks = []handlers.Dependency{
			{Name: "database", Checker: db},
			{Name: "redis", Checker: redisClient},
		}
	}

	// Initialize application
	deps := application.NewDependencies(cfg, log)
	svcs := application.NewServices(repos, deps, cfg, log)
	defer svcs.Close()

	router, server := newServer(cfg, svcs, deps, checks, log, logWriter)
	defer router.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.Stats.Run(gctx)
	})

	// Start log cleanup job if enabled
	if logWriter != nil {
		g.Go(func() error {
			return logWriter.RunCleanup(gctx)
		})
		log.Info("Log cleanup job started",
			logger.Component("main"),
			logger.Int("retention_days", cfg.Logging.RetentionDays),
		)
	}

	g.Go(func() error {
		log.Info("Server listening",
			logger.Component("server"),
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...", logger.Component("server"))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Server exited", logger.Component("server"))
	return nil
}

func initLogger(cfg *config.Config) (logger.Logger, *logger.SQLiteWriter, error) {
	logCfg := logger.Config{
		ServiceName:     logger.DefaultServiceName,
		Level:           cfg.Logging.Level,
		Environment:     cfg.Logging.Environment,
		EnableConsole:   true,
		EnableSQLite:    cfg.Logging.ViewerEnabled,
		SQLiteDBPath:    cfg.Logging.SQLiteDBPath,
		AsyncBufferSize: cfg.Logging.AsyncBufferSize,
		RetentionDays:   cfg.Logging.RetentionDays,
	}

	var writer *logger.SQLiteWriter
	var err error

	if logCfg.EnableSQLite {
		writer, err = logger.NewSQLiteWriter(logCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create SQLite log writer: %w", err)
		}
	}

	// A nil *SQLiteWriter must not reach logger.New as a non-nil interface.
	var sink logger.LogWriter
	if writer != nil {
		sink = writer
	}

	log, err := logger.New(logCfg, sink)
	if err != nil {
		if writer != nil {
			writer.Close()
		}
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, writer, nil
}

func initInfrastructure(ctx context.Context, cfg *config.Config, log logger.Logger) (*postgres.DB, *redis.Client, error) {
	db, err := postgres.NewDB(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("Connected to PostgreSQL",
		logger.Component("infrastructure"),
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
	)

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Connected to Redis",
		logger.Component("infrastructure"),
		logger.String("host", cfg.Redis.Host),
		logger.Int("port", cfg.Redis.Port),
	)

	return db, redisClient, nil
}

func newServer(
	cfg *config.Config,
	svcs *application.Services,
	deps *application.Dependencies,
	checks []handlers.Dependency,
	log logger.Logger,
	logWriter *logger.SQLiteWriter,
) (*apphttp.Router, *http.Server) {
	routerDeps := &apphttp.RouterDeps{
		Services:     svcs,
		Tokens:       deps.Tokens,
		Dependencies: checks,
		Logger:       log,
	}
	if logWriter != nil {
		routerDeps.LogWriter = logWriter
	}

	router := apphttp.NewRouter(cfg, routerDeps)

	return router, &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}
