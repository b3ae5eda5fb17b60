package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comigor/wanderchat/internal/config"
	"github.com/comigor/wanderchat/internal/llm"
	"github.com/comigor/wanderchat/internal/logger"
	"github.com/comigor/wanderchat/internal/relay"
	"github.com/comigor/wanderchat/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	completer, err := llm.NewCompleter(ctx, cfg.LLM)
	if err != nil {
		logger.L.Error("failed to create upstream client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	if c, ok := completer.(io.Closer); ok {
		defer c.Close()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.New(relay.New(completer)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.L.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.L.Error("shutdown failed", "error", err)
		}
	}()

	logger.L.Info("starting relay", "address", srv.Addr, "provider", cfg.LLM.Provider)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.L.Error("server error", "error", err)
		os.Exit(1)
	}
}
