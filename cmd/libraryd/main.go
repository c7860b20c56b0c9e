package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shelfmark/library/internal/config"
	"github.com/shelfmark/library/internal/dashboard"
	"github.com/shelfmark/library/internal/db"
	"github.com/shelfmark/library/internal/events"
	"github.com/shelfmark/library/internal/repo"
	"github.com/shelfmark/library/internal/server"
	"github.com/shelfmark/library/pkg/logger"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Library service starting")

	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.PGDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	catalogRepo := repo.NewCatalogRepository(database, log)
	memberRepo := repo.NewMemberRepository(database, log)
	loanRepo := repo.NewLoanRepository(database, log, cfg.LoanDurationDays)
	aggregator := dashboard.NewAggregator(database, log)

	// The broker is optional: lifecycle events are dropped when it is down.
	var publisher events.Publisher
	log.Info("Connecting to RabbitMQ")
	amqpPublisher, err := events.NewPublisher(cfg.RabbitMQURL, log)
	if err != nil {
		log.Warn("RabbitMQ unavailable, lifecycle events disabled", zap.Error(err))
	} else {
		publisher = amqpPublisher
		defer amqpPublisher.Close()
	}

	srv := server.New(database, catalogRepo, memberRepo, loanRepo, aggregator, publisher, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      srv.Router(cfg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("Server stopped")
}
