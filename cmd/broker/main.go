package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"sharedlog/internal/broker"
	"sharedlog/internal/retention"
	"sharedlog/internal/store"
)

func main() {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	logDir := "./data"
	if v := os.Getenv("SHAREDLOG_DIR"); v != "" {
		logDir = v
	}

	s, err := store.Open(logDir, store.WithLogger(logger))
	if err != nil {
		logger.Fatalw("failed to open store", "error", err)
	}
	defer s.Close()

	scheduler := retention.NewScheduler(retention.Config{Interval: 5 * time.Minute}, logger)
	scheduler.Register(s)
	scheduler.Start()
	defer scheduler.Stop()

	listenAddr := ":9092"
	if v := os.Getenv("SHAREDLOG_LISTEN"); v != "" {
		listenAddr = v
	}
	brk := broker.New(broker.Config{ListenAddr: listenAddr}, s, logger)

	go func() {
		if err := brk.Start(); err != nil {
			logger.Fatalw("broker failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Infow("shutting down")
	brk.Stop()
	logger.Infow("broker stopped")
}
