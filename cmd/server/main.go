package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/chart-collab-backend/internal/config"
	"github.com/DoyleJ11/chart-collab-backend/internal/httpapi"
	"github.com/DoyleJ11/chart-collab-backend/internal/hub"
	"github.com/DoyleJ11/chart-collab-backend/internal/logging"
	"github.com/DoyleJ11/chart-collab-backend/internal/room"
	"github.com/DoyleJ11/chart-collab-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.ParseServerFlags(os.Args[1:])
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.NewHub(ctx, log, hub.Config{
		Room: room.Options{IdleTimeout: cfg.RoomIdleTimeout},
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		Socket: ws.Options{
			QueueSize:    cfg.SendQueueSize,
			PingInterval: cfg.PingInterval,
		},
	}, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-exit:
		log.Info("signal caught, shutting down", zap.String("signal", sig.String()))
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	// Rooms go first so their sockets close with a going-away status.
	h.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	return nil
}
