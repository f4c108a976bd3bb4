// Package main provides the entry point for the rex runtime server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rexsandbox/rex-runtime/internal/bashsession"
	"github.com/rexsandbox/rex-runtime/internal/config"
	"github.com/rexsandbox/rex-runtime/internal/httpserver"
	"github.com/rexsandbox/rex-runtime/internal/logging"
	"github.com/rexsandbox/rex-runtime/internal/registry"
	"github.com/rexsandbox/rex-runtime/internal/runtimefacade"
	"github.com/rexsandbox/rex-runtime/pkg/types"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	if err := logging.Init(&logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatalf("failed to init logging: %v", err)
	}
	defer logging.Sync()

	reg := registry.New(func(name string, sessCfg types.SessionConfig) *bashsession.Session {
		if sessCfg.DefaultTimeout == 0 {
			sessCfg.DefaultTimeout = cfg.DefaultTimeout
		}
		sessCfg.StartupSources = append(append([]string(nil), cfg.StartupSources...), sessCfg.StartupSources...)
		return bashsession.New(name, sessCfg, bashsession.Options{
			PS1:             cfg.PS1,
			PS2:             cfg.PS2,
			StartupTimeout:  cfg.StartupTimeout,
			RecoveryTimeout: cfg.RecoveryTimeout,
		})
	})

	facade := runtimefacade.New(reg, cfg.WorkspaceRoot)

	srv := httpserver.New(httpserver.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	}, facade)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shutdownDone := make(chan struct{})
	go func() {
		<-sigCh
		logging.Info("shutting down rex-server")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logging.Error("graceful shutdown failed", logging.Err(err))
		}
		facade.Close()
		close(shutdownDone)
	}()

	logging.Info("rex-server listening",
		logging.String("host", cfg.Host),
		logging.Int("port", cfg.Port),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Fatal("server failed", logging.Err(err))
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for the
	// sessions to be closed before exiting.
	<-shutdownDone
}
