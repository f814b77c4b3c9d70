// Package main provides the entry point for the orchestration API gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orchestrationapi/internal/app"
	"orchestrationapi/internal/config"
	"orchestrationapi/internal/utils"

	"github.com/sirupsen/logrus"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("failed to load configuration: %v", err)
	}

	utils.SetupLogger(configManager)
	defer utils.CloseLogger()

	configManager.DisplayServerConfig()

	application, err := app.New(configManager)
	if err != nil {
		logrus.Fatalf("failed to build application: %v", err)
	}

	if err := application.Start(); err != nil {
		logrus.Fatalf("failed to start application: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	logrus.Infof("received signal: %v, initiating graceful shutdown...", sig)

	serverConfig := configManager.GetEffectiveServerConfig()
	shutdownTimeout := time.Duration(serverConfig.GracefulShutdownTimeout) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		application.Stop(shutdownCtx)
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("graceful shutdown completed successfully")
	case <-quit:
		logrus.Warn("second interrupt signal received, forcing immediate exit")
		os.Exit(1)
	case <-shutdownCtx.Done():
		logrus.Warn("shutdown timeout exceeded, forcing exit")
		os.Exit(1)
	}
}
