// Command luckengine is the process entry point: a cobra root with a
// `serve` subcommand that wires config, store, batch processor,
// aggregator, broadcaster, sweeper and HTTP/websocket surfaces
// together, and a `migrate` subcommand for schema setup. Grounded on
// the teacher's godotenv+gorm.Open wiring in cmd/main.go, generalized
// with the graceful-shutdown shape the slot-game-module server uses.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"luckengine/internal/admin"
	"luckengine/internal/aggregator"
	"luckengine/internal/audit"
	"luckengine/internal/batchapi"
	"luckengine/internal/broadcast"
	"luckengine/internal/cache"
	"luckengine/internal/clock"
	"luckengine/internal/config"
	"luckengine/internal/logging"
	"luckengine/internal/reward"
	"luckengine/internal/rng"
	"luckengine/internal/store/pgstore"
	"luckengine/internal/sweeper"
	"luckengine/internal/wsapi"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "luckengine",
		Short: "Reward-distribution engine for luck campaigns",
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepOnceCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file found, continuing with environment/config file")
	}
	return config.Load(configFile)
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{})
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			return pgstore.New(db).Migrate()
		},
	}
}

func sweepOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-once",
		Short: "Run a single lifecycle-sweep pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.New(cfg.Logging)
			db, err := openDB(cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			st := pgstore.New(db)
			sw := sweeper.New(st, clock.NewReal(), sweeper.Config{Interval: time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second}, logger)
			sw.Sweep(context.Background())
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reward engine HTTP/websocket server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Logging)

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	st := pgstore.New(db)
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	auditPublisher, err := audit.New(audit.Config{Brokers: cfg.Kafka.Brokers}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("audit publisher disabled")
	}
	defer auditPublisher.Close()

	var cacheClient *cache.Client
	if cfg.Redis.Addr != "" {
		cacheClient, err = cache.New(cache.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			logger.Warn().Err(err).Msg("idempotency cache disabled, falling back to store probe only")
		} else {
			defer cacheClient.Close()
		}
	}

	processorCfg := reward.Config{
		MaxRetries:       cfg.Batch.RetryCount,
		RetryBackoffBase: time.Duration(cfg.Batch.RetryBackoffMs) * time.Millisecond,
	}
	processor := reward.New(st, clock.NewReal(), rng.New(time.Now().UnixNano()), processorCfg, logger)
	if cacheClient != nil {
		processor.Cache = cacheClient
	}
	if auditPublisher != nil {
		processor.Audit = auditPublisher
	}

	hub := broadcast.NewHub()
	agg := aggregator.New(processor, hub, aggregator.Config{
		TickPeriod:   time.Duration(cfg.Batch.TickPeriodMs) * time.Millisecond,
		MaxBatchSize: cfg.Batch.MaxBatchSize,
	}, logger)

	sw := sweeper.New(st, clock.NewReal(), sweeper.Config{
		Interval: time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second,
	}, logger)
	if auditPublisher != nil {
		sw.Audit = auditPublisher
	}

	ctx, cancel := context.WithCancel(context.Background())
	go agg.Run(ctx)
	go sw.Run(ctx)

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.Default()

	admin.NewHandler(st, logger).Register(engine)
	batchapi.NewHandler(processor, st, logger).Register(engine)
	wsapi.NewHandler(hub, logger).Register(engine)
	engine.POST("/play", playHandler(agg))
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Environment).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancel()
	sw.Stop()
	agg.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// playRequest mirrors spec §6's message-oriented "/app/game/play" send
// destination, exposed here as a plain HTTP enqueue endpoint.
type playRequest struct {
	GameID   string `json:"gameId" binding:"required"`
	Username string `json:"username" binding:"required"`
}

func playHandler(agg *aggregator.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req playRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		agg.Enqueue(req.GameID, req.Username)
		c.Status(http.StatusAccepted)
	}
}
