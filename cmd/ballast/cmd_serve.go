// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
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
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ballast/cmd/ballast/config"
	"github.com/AleutianAI/ballast/pkg/telemetry"
	"github.com/AleutianAI/ballast/services/balance"
	"github.com/AleutianAI/ballast/services/balance/middleware"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the balance API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// runServe runs the HTTP server, the session sweeper and the archive GC
// until SIGINT or SIGTERM, then drains requests within the shutdown timeout.
func runServe(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := a.logger.Slog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tcfg := a.cfg.Telemetry
	tcfg.ServiceVersion = balance.ServiceVersion
	tcfg.Registry = reg
	tel, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	be, err := openBackend(a.cfg, logger, reg, operatorWindow)
	if err != nil {
		return err
	}
	defer be.Close()

	metricsHandler := tel.MetricsHandler()
	if metricsHandler == nil {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	router, err := newRouter(a.cfg, be.svc, metricsHandler)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("balance server listening",
			slog.String("address", srv.Addr),
			slog.String("version", balance.ServiceVersion),
			slog.Bool("archive", be.archive != nil))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return be.svc.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down balance server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newRouter builds the gin engine: recovery, tracing, HTTP metrics, the
// balance routes with per-client search limits, and /metrics.
func newRouter(cfg *config.Config, svc *balance.Service, metrics http.Handler) (*gin.Engine, error) {
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = cfg.Balance.MaxUploadBytes
	router.Use(gin.Recovery())
	if cfg.Server.Debug {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))

	httpMetrics, err := telemetry.NewHTTPMetrics(otel.Meter("ballast/http"))
	if err != nil {
		return nil, fmt.Errorf("create http metrics: %w", err)
	}
	router.Use(telemetry.GinMetrics(httpMetrics))

	router.GET("/metrics", gin.WrapH(metrics))

	var limits []gin.HandlerFunc
	throttle := middleware.NewThrottle(cfg.Server.SearchRate, cfg.Server.SearchBurst)
	if throttle.Enabled() {
		limits = append(limits, throttle.Middleware())
	}

	v1 := router.Group("/v1")
	balance.RegisterRoutes(v1, balance.NewHandlers(svc), limits...)
	return router, nil
}
