package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-sheet-sync/internal/api"
	"github.com/ignite/campaign-sheet-sync/internal/app"
	"github.com/ignite/campaign-sheet-sync/internal/config"
	"github.com/ignite/campaign-sheet-sync/internal/pkg/logger"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		fatal("failed to load config", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", err)
	}

	addr := cfg.Server.Addr()
	if err := checkPortAvailable(addr); err != nil {
		fatal("pre-flight check failed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		fatal("failed to initialize pipeline", err)
	}
	defer pipeline.Close()

	handlers := api.NewHandlers(pipeline.Service, pipeline.Journal, cfg.Upload)
	server := api.NewServer(cfg.Server, handlers)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			fatal("server error", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
