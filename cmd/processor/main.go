package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/abkawan/banking-transfers/internal/config"
	"github.com/abkawan/banking-transfers/internal/db"
	"github.com/abkawan/banking-transfers/internal/queue"
	"github.com/abkawan/banking-transfers/internal/service"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// processor projects committed transfers from RabbitMQ into the MongoDB
// history collection.
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.MongoURI == "" || cfg.RabbitMQURI == "" {
		logger.Fatal("MONGO_URI and RABBITMQ_URI are required")
	}

	// Connect to MongoDB
	logger.Info("connecting to MongoDB", zap.String("db", cfg.MongoDBName))
	mongodb, err := db.NewMongoDB(cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		logger.Fatal("failed to connect to MongoDB", zap.Error(err))
	}
	defer mongodb.Close(context.Background())

	// Connect to RabbitMQ
	logger.Info("connecting to RabbitMQ")
	rabbitmq, err := queue.NewRabbitMQ(cfg.RabbitMQURI, logger)
	if err != nil {
		logger.Fatal("failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitmq.Close()

	projector := service.NewHistoryProjector(rabbitmq, mongodb, logger)
	if err := projector.Start(ctx); err != nil {
		logger.Fatal("failed to start history projector", zap.Error(err))
	}
	logger.Info("history projector started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down processor")
	cancel()
	logger.Info("processor shut down successfully")
}
