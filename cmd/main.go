package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/carmandale/AIMS-sub000/internal/calculator"
	"github.com/carmandale/AIMS-sub000/internal/clients"
	"github.com/carmandale/AIMS-sub000/internal/config"
	"github.com/carmandale/AIMS-sub000/internal/controllers"
	"github.com/carmandale/AIMS-sub000/internal/messaging"
	"github.com/carmandale/AIMS-sub000/internal/middleware"
	mongorepo "github.com/carmandale/AIMS-sub000/internal/repositories/mongo"
	"github.com/carmandale/AIMS-sub000/internal/scheduler"
	"github.com/carmandale/AIMS-sub000/internal/services"
	"github.com/carmandale/AIMS-sub000/pkg/cache"
	"github.com/carmandale/AIMS-sub000/pkg/database"
	"github.com/carmandale/AIMS-sub000/pkg/logger"
)

func main() {
	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logrus.Fatal("Invalid configuration: ", err)
	}

	// Initialize logger
	logger.Init(cfg.Logger)
	log := logrus.StandardLogger()
	log.WithField("service", "analytics-api").Info("Starting analytics API service...")

	// Initialize database connection
	db, err := database.NewMongoDB(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB: ", err)
	}
	defer db.Disconnect()

	// Initialize Redis cache
	redisClient, err := cache.NewRedisClient(cfg.Cache)
	if err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	defer redisClient.Close()

	resultCache := cache.NewResultCache(redisClient, cfg.Cache.ResultTTL, log)

	// Initialize repositories and clients
	snapshotRepo := mongorepo.NewSnapshotRepository(db.GetDatabase())
	benchmarkClient := clients.NewBenchmarkClient(cfg.Benchmark)

	// Initialize calculators and the analytics service
	metricsCalc := calculator.NewMetricsCalculator(calculator.MetricsCalculatorConfig{
		RiskFreeRate: cfg.Analytics.RiskFreeRate,
	})
	drawdownEngine := calculator.NewDrawdownEngine(calculator.DrawdownEngineConfig{
		MaterialityThresholdPercent: cfg.Analytics.MaterialityThreshold,
	})

	analyticsService := services.NewAnalyticsService(
		snapshotRepo,
		benchmarkClient,
		metricsCalc,
		drawdownEngine,
		cfg.AlertThresholdConfig(),
		resultCache,
		log,
	)

	// Initialize RabbitMQ consumer and publisher
	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	var snapshotConsumer *messaging.SnapshotConsumer
	var alertPublisher *messaging.AlertPublisher
	if cfg.RabbitMQ.Enabled {
		snapshotConsumer, err = messaging.NewSnapshotConsumer(cfg.RabbitMQ, snapshotRepo, analyticsService, log)
		if err != nil {
			log.Error("Failed to initialize snapshot consumer: ", err)
		} else if err := snapshotConsumer.Start(consumerCtx); err != nil {
			log.Error("Failed to start snapshot consumer: ", err)
		}

		alertPublisher, err = messaging.NewAlertPublisher(cfg.RabbitMQ, log)
		if err != nil {
			log.Error("Failed to initialize alert publisher: ", err)
		}
	}

	// Initialize the alert sweeper
	var alertSweeper *scheduler.AlertSweeper
	if cfg.Scheduler.Enabled && alertPublisher != nil {
		alertSweeper = scheduler.NewAlertSweeper(snapshotRepo, analyticsService, alertPublisher, cfg.Scheduler, log)
		if err := alertSweeper.Start(); err != nil {
			log.Error("Failed to start alert sweeper: ", err)
			alertSweeper = nil
		}
	}

	// Setup HTTP server
	analyticsController := controllers.NewAnalyticsController(analyticsService, cfg.Analytics, log)
	router := setupRouter(cfg, log, db, redisClient, analyticsController)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: ", err)
	}

	if alertSweeper != nil {
		alertSweeper.Stop()
	}
	cancelConsumer()
	if snapshotConsumer != nil {
		snapshotConsumer.Close()
	}
	if alertPublisher != nil {
		alertPublisher.Close()
	}

	log.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	log *logrus.Logger,
	db *database.MongoDB,
	redisClient *cache.RedisClient,
	analyticsController *controllers.AnalyticsController,
) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logging(log))
	router.Use(middleware.Metrics())

	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	// Health and metrics
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		mongoHealthy := db.IsHealthy(ctx)
		redisHealthy := redisClient.Ping(ctx) == nil

		status := http.StatusOK
		if !mongoHealthy || !redisHealthy {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"status":    map[bool]string{true: "healthy", false: "degraded"}[mongoHealthy && redisHealthy],
			"service":   "analytics-api",
			"mongo":     mongoHealthy,
			"redis":     redisHealthy,
			"timestamp": time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api")
	{
		analytics := api.Group("/analytics")
		analyticsController.RegisterRoutes(analytics)
	}

	return router
}
