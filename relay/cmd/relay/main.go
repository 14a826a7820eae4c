package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloomwatch/bloomwatch-stack/common/database"
	"github.com/bloomwatch/bloomwatch-stack/common/logging"
	"github.com/bloomwatch/bloomwatch-stack/common/messaging"
	"github.com/bloomwatch/bloomwatch-stack/common/middleware"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/config"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/events"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/handlers"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/history"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/metrics"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/scorer"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/server"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/service"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/stats"
	"github.com/bloomwatch/bloomwatch-stack/relay/migrations"

	natsclient "github.com/bloomwatch/bloomwatch-stack/common/messaging/nats"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("relay"))
	logging.SetDefault(logger)

	slog.Info("Starting prediction relay",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Initialize scorer
	runner, err := scorer.New(scorer.Config{
		Executable:     cfg.Scorer.Executable,
		Script:         cfg.Scorer.Script,
		WorkDir:        cfg.Scorer.WorkDir,
		Timeout:        cfg.Scorer.Timeout,
		MaxOutputBytes: cfg.Scorer.MaxOutputBytes,
		MaxConcurrent:  cfg.Scorer.MaxConcurrent,
	}, logger.WithGroup("scorer"))
	if err != nil {
		log.Fatalf("Failed to configure scorer: %v", err)
	}
	if err := runner.Check(); err != nil {
		// /readyz keeps failing until this is fixed
		slog.Warn("Scorer is not runnable yet", logging.Error(err))
	}
	slog.Info("Scorer configured",
		logging.Command(runner.CommandLine()),
		slog.Duration("timeout", cfg.Scorer.Timeout),
		slog.Int("max_concurrent", cfg.Scorer.MaxConcurrent),
	)

	observers := []service.Observer{metrics.Observer{}}
	readiness := []handlers.ReadinessCheck{{
		Name:  "scorer",
		Check: func(context.Context) error { return runner.Check() },
	}}

	// Initialize Redis outcome stats
	var (
		statsClient    *stats.Client
		statsCollector *stats.Collector
	)
	if cfg.Redis.Enabled {
		statsClient, statsCollector = setupStats(cfg, logger)
		if statsClient != nil {
			observers = append(observers, statsCollector)
			readiness = append(readiness, handlers.ReadinessCheck{Name: "redis", Check: statsClient.Ping})
			defer statsClient.Close()
		}
	} else {
		slog.Info("Redis disabled - prediction stats will not be collected")
	}

	// Initialize PostgreSQL history
	var repo *history.PostgresRepository
	if cfg.Database.Enabled {
		repo, err = setupHistory(cfg.Database.Postgres)
		if err != nil {
			log.Fatalf("Failed to initialize prediction history: %v", err)
		}
		defer repo.Close()
		observers = append(observers, repo)
		readiness = append(readiness, handlers.ReadinessCheck{Name: "postgres", Check: repo.Ping})
		slog.Info("Prediction history enabled", slog.String("host", cfg.Database.Postgres.Host))
	} else {
		slog.Info("Database disabled - prediction history will not be stored")
	}

	// Initialize NATS outcome events
	var natsClient *natsclient.Client
	if cfg.NATS.Enabled {
		natsClient, err = natsclient.NewClient(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          "bloomwatch-relay",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Username:      cfg.NATS.Username,
			Password:      cfg.NATS.Password,
			Token:         cfg.NATS.Token,
			Logger:        logger.Logger,
		})
		if err != nil {
			slog.Warn("Failed to connect to NATS - prediction events will not be published", logging.Error(err))
		} else {
			observers = append(observers, events.NewPublisher(natsClient))
			readiness = append(readiness, handlers.ReadinessCheck{Name: "nats", Check: natsReady(natsClient)})
			slog.Info("Prediction events enabled", slog.String("nats_url", cfg.NATS.URL))
		}
	} else {
		slog.Info("NATS disabled - prediction events will not be published")
	}

	// Initialize service and handlers
	svc := service.NewService(runner, logger, observers...)

	handler := handlers.NewHandler(svc, cfg.Server.MaxBodyBytes, logger)
	if statsClient != nil {
		handler.WithStats(statsClient)
	}
	if repo != nil {
		handler.WithHistory(repo)
	}
	for _, rc := range readiness {
		handler.AddReadinessCheck(rc.Name, rc.Check)
	}

	corsConfig := middleware.PermissiveCORS()
	if len(cfg.CORS.AllowedOrigins) > 0 {
		corsConfig.AllowedOrigins = cfg.CORS.AllowedOrigins
	}

	router := server.NewRouter(server.RouterConfig{
		Handler:   handler,
		CORS:      corsConfig,
		StaticDir: cfg.Web.StaticDir,
		Logger:    logger,
	})

	// Create server with config values
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Prediction relay listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}
	if err := svc.Close(shutdownCtx); err != nil {
		slog.Warn("Prediction observers did not finish", logging.Error(err))
	}
	if statsCollector != nil {
		statsCollector.Stop()
	}
	if natsClient != nil {
		if err := natsClient.Drain(); err != nil {
			slog.Warn("Failed to drain NATS connection", logging.Error(err))
		}
	}

	slog.Info("Server stopped")
}

func setupStats(cfg *config.Config, logger *logging.Logger) (*stats.Client, *stats.Collector) {
	instanceID := cfg.Stats.InstanceID
	if instanceID == "" {
		hostname, _ := os.Hostname()
		instanceID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	client, err := stats.NewClient(cfg.Redis.URL, cfg.Stats.Prefix, instanceID)
	if err != nil {
		slog.Warn("Failed to initialize prediction stats", logging.Error(err))
		slog.Info("Prediction stats will not be collected")
		return nil, nil
	}

	collector := stats.NewCollector(client, cfg.Stats.FlushInterval, logger.Logger)
	slog.Info("Prediction stats enabled",
		slog.Duration("flush_interval", cfg.Stats.FlushInterval),
		slog.String("instance", instanceID),
	)
	return client, collector
}

func setupHistory(pg database.PostgresConfig) (*history.PostgresRepository, error) {
	connString := pg.ConnString()

	slog.Info("Running database migrations...")
	if err := database.Migrate(connString, migrations.FS, "."); err != nil {
		return nil, err
	}
	slog.Info("Database migrations completed")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := database.NewPool(ctx, connString, pg.MaxConns, pg.MinConns)
	if err != nil {
		return nil, err
	}
	return history.NewPostgresRepository(pool), nil
}

func natsReady(client messaging.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if status := messaging.CheckClientHealth(ctx, client); status.Error != "" {
			return errors.New(status.Error)
		}
		return nil
	}
}
