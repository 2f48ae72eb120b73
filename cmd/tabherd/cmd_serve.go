// Copyright (C) 2026 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tabherd/pkg/logging"
	"github.com/AleutianAI/tabherd/pkg/ux"
	"github.com/AleutianAI/tabherd/services/organizer"
	"github.com/AleutianAI/tabherd/services/organizer/config"
	"github.com/AleutianAI/tabherd/services/organizer/observability"
)

// runServe starts the daemon and blocks until SIGINT or SIGTERM.
//
// # Description
//
// Loads the config (creating a default file on first run), wires the
// organizer service, and serves the HTTP/WebSocket surface on the
// configured loopback address. Shutdown drains in-flight HTTP
// requests within Server.ShutdownTimeout, then stops the service,
// which flushes the store.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		ux.Error(fmt.Sprintf("Config: %v", err))
		os.Exit(1)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		ux.Error(fmt.Sprintf("Config: %v", err))
		os.Exit(1)
	}
	if serveDebug {
		level = logging.LevelDebug
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		Dir:     cfg.Log.Dir,
		Service: "tabherd",
		JSON:    cfg.Log.JSON,
	})
	if err != nil {
		ux.Error(fmt.Sprintf("Logging: %v", err))
		os.Exit(1)
	}
	defer func() { _ = logger.Close() }()
	slogger := logger.Slog()

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svc, err := organizer.NewService(cfg, slogger, observability.InitMetrics())
	if err != nil {
		ux.Error(fmt.Sprintf("Startup: %v", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		ux.Error(fmt.Sprintf("Startup: %v", err))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if serveDebug {
		router.Use(gin.Logger())
	}
	organizer.RegisterRoutes(router, organizer.NewHandlers(svc))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	printBanner(cfg)

	select {
	case <-ctx.Done():
		slogger.Info("Shutdown signal received")
	case err := <-serveErr:
		slogger.Error("HTTP server failed", "error", err)
		ux.Error(fmt.Sprintf("Listen on %s: %v", cfg.Server.Addr, err))
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slogger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		slogger.Warn("Service stop incomplete", "error", err)
	}
	slogger.Info("Daemon stopped")
}

// printBanner shows the startup summary on stdout; the plain variant
// stays greppable for service managers.
func printBanner(cfg *config.Config) {
	if ux.Plain() {
		fmt.Printf("tabherd %s listening on %s provider=%s\n",
			organizer.ServiceVersion, cfg.Server.Addr, cfg.Classifier.Provider)
		return
	}

	content := fmt.Sprintf(
		"Herding tabs on http://%s\n\n"+
			"  %s  extension socket   ws://%s/ws\n"+
			"  %s  status             tabherd status\n"+
			"  %s  organize now       tabherd organize\n"+
			"  %s  metrics            http://%s/metrics\n\n"+
			"Provider: %s   Autopilot: %v\n"+
			"Press Ctrl+C to stop",
		cfg.Server.Addr,
		ux.IconArrow.Render(), cfg.Server.Addr,
		ux.IconArrow.Render(),
		ux.IconArrow.Render(),
		ux.IconArrow.Render(), cfg.Server.Addr,
		cfg.Classifier.Provider, cfg.Organizer.Autopilot,
	)
	ux.Box(fmt.Sprintf("TABHERD %s", organizer.ServiceVersion), content)
}
