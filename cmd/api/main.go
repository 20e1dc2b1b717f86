package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abkawan/banking-transfers/internal/api"
	"github.com/abkawan/banking-transfers/internal/config"
	"github.com/abkawan/banking-transfers/internal/db"
	"github.com/abkawan/banking-transfers/internal/queue"
	"github.com/abkawan/banking-transfers/internal/service"
	"github.com/abkawan/banking-transfers/internal/session"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Connecting to Postgres
	logger.Info("connecting to PostgreSQL", zap.Bool("lock_balance_rows", cfg.LockBalanceRows))
	postgres, err := db.NewPostgres(cfg.PostgresURI, db.WithRowLocking(cfg.LockBalanceRows))
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer postgres.Close()

	logger.Info("creating the schema")
	if err := postgres.InitSchema(ctx); err != nil {
		logger.Fatal("failed to create schema", zap.Error(err))
	}

	// Pending transfers live in Redis when configured, in process otherwise
	var holder session.Holder
	if cfg.RedisAddr != "" {
		logger.Info("connecting to Redis", zap.String("addr", cfg.RedisAddr))
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer client.Close()
		holder = session.NewRedis(client, cfg.PendingTransferTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, holding pending transfers in memory")
		holder = session.NewMemory(cfg.PendingTransferTTL)
	}

	transferOpts := []service.TransferOption{
		service.WithLogger(logger),
		service.WithFeePolicy(cfg.FeeMode, cfg.DefaultFee),
		service.WithOwnershipCheck(cfg.EnforceOwnership),
	}

	var rabbitmq *queue.RabbitMQ
	if cfg.RabbitMQURI != "" {
		logger.Info("connecting to RabbitMQ")
		rabbitmq, err = queue.NewRabbitMQ(cfg.RabbitMQURI, logger)
		if err != nil {
			logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer rabbitmq.Close()
		transferOpts = append(transferOpts, service.WithPublisher(rabbitmq))
	}

	var history service.HistoryReader
	if cfg.MongoURI != "" {
		logger.Info("connecting to MongoDB", zap.String("db", cfg.MongoDBName))
		mongodb, err := db.NewMongoDB(cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			logger.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer mongodb.Close(context.Background())
		history = mongodb

		if rabbitmq != nil && cfg.EmbedProcessor {
			logger.Info("starting history projector")
			projector := service.NewHistoryProjector(rabbitmq, mongodb, logger)
			if err := projector.Start(ctx); err != nil {
				logger.Fatal("failed to start history projector", zap.Error(err))
			}
		}
	}

	// Create services
	accountService := service.NewAccountService(postgres, history)
	transferService := service.NewTransferService(postgres, holder, transferOpts...)

	// Create router and set up routes
	router := mux.NewRouter()
	api.SetupRoutes(router, api.NewHandler(accountService, transferService, logger))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return
	}
	cancel()

	logger.Info("server shut down successfully")
}
