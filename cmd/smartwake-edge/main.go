package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartwake/common/logger"
	"smartwake/internal/config"
	"smartwake/internal/httpapi"
	"smartwake/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "smartwake-edge")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. service
	svc, err := service.NewSmartWakeService(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to create smart wake service", zap.Error(err))
	}

	serviceDone := make(chan error, 1)
	go func() {
		serviceDone <- svc.Start(ctx)
	}()

	// 4. status server
	srv := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(svc, log), log)
	httpErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			httpErrChan <- err
		}
	}()

	// 5. wait for shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serviceExited := false
	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-serviceDone:
		serviceExited = true
		if err != nil {
			log.Error("Service error", zap.Error(err))
		}
	case err := <-httpErrChan:
		log.Error("HTTP server error", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	// the loop must be gone before its connections are closed
	if !serviceExited {
		select {
		case err := <-serviceDone:
			if err != nil {
				log.Error("Service error", zap.Error(err))
			}
		case <-shutdownCtx.Done():
			log.Warn("Service did not stop in time")
		}
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Warn("Service shutdown incomplete", zap.Error(err))
	}

	log.Info("Smart wake service stopped")
}
