package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pcstore-service/config"
	"pcstore-service/internal/api"
	"pcstore-service/internal/broker"
	"pcstore-service/internal/catalog"
	"pcstore-service/internal/compat"
	"pcstore-service/internal/pricing"
	"pcstore-service/internal/protocol"
	"pcstore-service/internal/redisclient"
	"pcstore-service/internal/service"
	"pcstore-service/internal/store"
	"pcstore-service/internal/util"
	"pcstore-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting pcstore service", zap.String("env", cfg.Server.Env))

	tp, err := util.InitTracer("pcstore-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	tables, err := config.LoadTables(cfg.Business.TablesPath)
	if err != nil {
		logger.Fatal("Failed to load business tables", zap.Error(err))
	}
	resolver, err := compat.NewResolver(tables.Rules)
	if err != nil {
		logger.Fatal("Invalid compatibility rules", zap.Error(err))
	}
	engine := pricing.NewEngine(tables.Tax, tables.Shipping)

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.Migrate {
		if err := db.Migrate(context.Background()); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
	defer producer.Close()
	publisher := broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))

	clock := util.SystemClock{}
	cat := catalog.New(db, redisClient, cfg.Business.CatalogCacheTTL)
	protocols := protocol.NewGenerator(redisClient, db, clock, cfg.Business.ProtocolMaxAttempts)

	configService := service.NewConfigurationService(cat, resolver)
	orderService := service.NewOrderService(db, cat, resolver, engine, protocols, publisher, clock)
	ticketService := service.NewTicketService(db, protocols, publisher, clock)
	paymentHandler := service.NewPaymentHandler(db, orderService)

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayments, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, paymentHandler)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(configService, orderService, ticketService, map[string]api.Pinger{
		"postgres": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := paymentWorker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("payment worker: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		if err := paymentWorker.Stop(); err != nil {
			logger.Error("Failed to stop payment worker", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}
