package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"algodata/internal/cache"
	"algodata/internal/config"
	"algodata/internal/connector"
	"algodata/internal/connector/movingaverage"
	"algodata/internal/connector/simulated"
	cronrunner "algodata/internal/cron"
	"algodata/internal/db"
	"algodata/internal/feature"
	"algodata/internal/handler"
	"algodata/internal/logger"
	"algodata/internal/pricedata"
	gormrepository "algodata/internal/repository/gorm"
	"algodata/internal/scheduler"
	"algodata/internal/summary"
	"algodata/internal/upsert"
)

func main() {
	cfgPath := os.Getenv("AD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AD_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	registry := connector.NewRegistry()
	if cfg.Simulated.Enabled {
		if err := registry.RegisterSource(simulated.Name, simulated.New); err != nil {
			logger.Fatal("register simulated source failed", zap.Error(err))
		}
	}
	if err := registry.RegisterFeature(movingaverage.Name, movingaverage.New); err != nil {
		logger.Fatal("register moving average feature failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	engineSvc := upsert.New(dbConn.Gorm)

	pricesSvc := &pricedata.Service{
		Repo:            store,
		Registry:        registry,
		Engine:          engineSvc,
		Logger:          logger,
		MaxBatchSpan:    cfg.Retrieval.MaxBatchSpan,
		UpsertBatchSize: cfg.Retrieval.UpsertBatchSize,
	}
	featureSvc := &feature.Service{
		Repo:            store,
		Registry:        registry,
		Engine:          engineSvc,
		Logger:          logger,
		UpsertBatchSize: cfg.Retrieval.UpsertBatchSize,
	}
	summarySvc := &summary.Service{
		Repo:            store,
		Engine:          engineSvc,
		Logger:          logger,
		UpsertBatchSize: cfg.Summary.UpsertBatchSize,
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	qualityCache := cache.New(redisClient, cfg.Redis.TTL, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	reconciler := scheduler.New(cronRunner, store, pricesSvc, featureSvc, logger)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	sourcesHandler := &handler.SourcesHandler{
		Repo:       store,
		Registry:   registry,
		Prices:     pricesSvc,
		Reconciler: reconciler,
		Logger:     logger,
	}
	sourcesHandler.Register(engine)
	symbolsHandler := &handler.SymbolsHandler{Repo: store, Logger: logger}
	symbolsHandler.Register(engine)
	featuresHandler := &handler.FeaturesHandler{
		Repo:       store,
		Registry:   registry,
		Features:   featureSvc,
		Reconciler: reconciler,
		Logger:     logger,
	}
	featuresHandler.Register(engine)
	qualityHandler := &handler.QualityHandler{
		Repo:    store,
		Summary: summarySvc,
		Cache:   qualityCache,
		Logger:  logger,
	}
	qualityHandler.Register(engine)

	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.SummaryBatch, func(ctx context.Context) {
			if err := summarySvc.RunBatch(ctx); err != nil {
				logger.Warn("cron summary batch failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register summary batch failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.SymbolRefresh, func(ctx context.Context) {
			if err := pricesSvc.RefreshAllSymbols(ctx); err != nil {
				logger.Warn("cron symbol refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register symbol refresh failed", zap.Error(err))
		}
		_, err = cronRunner.Add(cfg.Cron.Reconcile, func(ctx context.Context) {
			if err := reconciler.Reconcile(ctx); err != nil {
				logger.Warn("cron schedule reconcile failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register reconcile failed", zap.Error(err))
		}

		if err := reconciler.Reconcile(ctx); err != nil {
			logger.Warn("initial schedule reconcile failed (continuing)", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
