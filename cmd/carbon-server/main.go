// Command carbon-server is Carbon's process entrypoint: it wires the
// config, log, store, registry, event bus, auth, and protocol packages
// together and runs the TCP and HTTP front-ends until signaled to stop.
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
	"golang.org/x/sync/errgroup"

	"github.com/carbonlabs/carbon/internal/auth"
	"github.com/carbonlabs/carbon/internal/config"
	"github.com/carbonlabs/carbon/internal/configstore"
	"github.com/carbonlabs/carbon/internal/dataplane"
	"github.com/carbonlabs/carbon/internal/eventbus"
	"github.com/carbonlabs/carbon/internal/httpapi"
	carbonlog "github.com/carbonlabs/carbon/internal/log"
	binaryproto "github.com/carbonlabs/carbon/internal/protocol/binary"
	"github.com/carbonlabs/carbon/internal/registry"
	"github.com/carbonlabs/carbon/internal/store"
)

func main() {
	cfg := config.FromEnv()

	logger, err := carbonlog.New(cfg.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("carbon-server exited with error", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cfgStore, err := configstore.Open(cfg.DataDir + "/carbon.db")
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer cfgStore.Close()

	reg := registry.New(cfgStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.Rehydrate(ctx, store.New, func(name string, rehydrateErr error) {
		logger.Warn("skipping cache with invalid persisted config",
			zap.String("cache", name), zap.Error(rehydrateErr))
	}); err != nil {
		return fmt.Errorf("rehydrate registry: %w", err)
	}

	bus := eventbus.New(logger, eventbus.DefaultBufferSize)
	dp := dataplane.New(reg, bus)

	sessions := auth.NewSessionStore(time.Duration(auth.DefaultSessionTTLMs)*time.Millisecond, time.Minute)
	defer sessions.Close()

	users := auth.NewUserStore(cfgStore)
	roles := auth.NewRoleStore(cfgStore)
	if err := auth.SeedBootstrapAdmin(users, roles, cfg.BootstrapUser, cfg.BootstrapPassword); err != nil {
		return fmt.Errorf("seed bootstrap admin: %w", err)
	}

	logins := auth.NewLoginLimiter(1, 5)
	gate := auth.NewAuthGate(sessions, users, roles, logins)

	tcpServer := binaryproto.NewServer(cfg.TCPAddr, dp, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(dp, reg, bus, gate, logger).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("binary protocol listening", zap.String("addr", cfg.TCPAddr))
		if err := tcpServer.ListenAndServe(gctx); err != nil {
			return fmt.Errorf("tcp server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http api listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received")
	case <-gctx.Done():
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}
