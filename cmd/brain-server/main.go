// Package main wires the regime-brain decision pipeline into a long-running
// HTTP/WebSocket server: every engine package, a file-backed store, a
// bounded worker pool, an event bus, and a Prometheus listener separate
// from the API router.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/regimebrain/brain/internal/config"
	"github.com/regimebrain/brain/internal/eventbus"
	"github.com/regimebrain/brain/internal/httpapi"
	"github.com/regimebrain/brain/internal/store/memstore"
	"github.com/regimebrain/brain/internal/telemetry"
	"github.com/regimebrain/brain/internal/workerpool"
	"github.com/regimebrain/brain/pkg/types"
)

func main() {
	host := flag.String("host", "", "override server bind host (leave empty to use config's server.addr)")
	port := flag.Int("port", 0, "override server bind port (0 keeps config's server.addr)")
	dataDir := flag.String("data", "", "override data directory (defaults to config's dataDir)")
	configPath := flag.String("config", "", "path to a YAML config file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	optimizerModeFlag := flag.String("optimizer-mode", "on", "default optimizer mode for the live decision path (off, preview, on)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *host != "" || *port != 0 {
		h, p := splitAddr(cfg.Server.Addr)
		if *host != "" {
			h = *host
		}
		if *port != 0 {
			p = *port
		}
		cfg.Server.Addr = fmt.Sprintf("%s:%d", h, p)
	}

	logger, err := telemetry.NewLogger(*logLevel == "debug")
	if err != nil {
		fmt.Fprintln(os.Stderr, "initializing logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	optimizerMode, err := parseOptimizerMode(*optimizerModeFlag)
	if err != nil {
		logger.Fatal("invalid optimizer mode", zap.Error(err))
	}

	logger.Info("starting regime brain",
		zap.String("addr", cfg.Server.Addr),
		zap.String("metricsAddr", cfg.Server.MetricsAddr),
		zap.String("dataDir", cfg.DataDir),
		zap.String("optimizerMode", string(optimizerMode)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := memstore.New(logger, cfg.DataDir)
	if err != nil {
		logger.Fatal("initializing store", zap.Error(err))
	}

	metrics := telemetry.NewMetrics()
	pool := workerpool.New(logger, workerpool.Config{
		NumWorkers: cfg.WorkerPool.NumWorkers,
		QueueSize:  cfg.WorkerPool.QueueSize,
	})
	bus := eventbus.New(logger, eventbus.DefaultConfig())
	bus.Start(ctx)

	pipeline := NewPipeline(logger, cfg, st, pool, metrics, bus, optimizerMode)

	logger.Info("bootstrapping forecaster models")
	pipeline.bootstrapForecasters(ctx)

	deps := httpapi.Dependencies{
		Decision:                pipeline.Decide,
		World:                   pipeline.World,
		Forecast:                pipeline.Forecast,
		CompareTimeline:         pipeline.CompareTimeline,
		SimRun:                  pipeline.SimRun,
		SimReport:               pipeline.SimReport,
		OptimizerPreview:        pipeline.OptimizerPreview,
		CalibrationRun:          pipeline.CalibrationRun,
		CalibrationActive:       pipeline.CalibrationActive,
		CalibrationPromote:      pipeline.CalibrationPromote,
		PromotionRecommendation: pipeline.PromotionRecommendation,
	}

	apiServer := httpapi.New(logger, cfg.Server, deps, bus, metrics)

	metricsServer := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("api server error", zap.Error(err))
		}
	}()

	logger.Info("regime brain started",
		zap.String("http", "http://"+cfg.Server.Addr),
		zap.String("metrics", "http://"+cfg.Server.MetricsAddr+"/metrics"),
	)

	<-sigChan
	logger.Info("shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during api server shutdown", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during metrics server shutdown", zap.Error(err))
	}
	bus.Stop()

	logger.Info("regime brain stopped")
}

func parseOptimizerMode(s string) (types.OptimizerMode, error) {
	switch types.OptimizerMode(s) {
	case types.OptimizerOff, types.OptimizerPreview, types.OptimizerOn:
		return types.OptimizerMode(s), nil
	default:
		return "", fmt.Errorf("unknown optimizer mode %q", s)
	}
}

// splitAddr pulls the host and port out of a "host:port" address, tolerating
// the bare ":port" form the config defaults use.
func splitAddr(addr string) (string, int) {
	host, portStr := "", "8080"
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host, portStr = addr[:i], addr[i+1:]
			break
		}
	}
	port := 0
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}
