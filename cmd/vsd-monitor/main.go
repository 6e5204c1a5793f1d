// Package main is the entry point for the VSD fleet monitor.
// It initializes all components and manages the application lifecycle.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utilitysc/vsd-monitor/internal/adapter/config"
	"github.com/utilitysc/vsd-monitor/internal/adapter/modbus"
	"github.com/utilitysc/vsd-monitor/internal/adapter/store"
	"github.com/utilitysc/vsd-monitor/internal/health"
	"github.com/utilitysc/vsd-monitor/internal/metrics"
	"github.com/utilitysc/vsd-monitor/internal/service"
	"github.com/utilitysc/vsd-monitor/pkg/logging"
)

const (
	serviceName    = "vsd-monitor"
	serviceVersion = "1.0.0"
)

func main() {
	logger := logging.New(serviceName, serviceVersion)
	logger.Info().Msg("Starting VSD fleet monitor")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger = logging.NewWithConfig(serviceName, serviceVersion, logging.LogConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger.Info().Str("env", cfg.Environment).Msg("Configuration loaded")

	registry, layout, err := config.LoadFleet(cfg.FleetConfigPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.FleetConfigPath).Msg("Failed to load fleet definition")
	}
	logger.Info().
		Int("units", registry.Len()).
		Int("blocks", len(layout.Blocks)).
		Int("tables", len(layout.Tables())).
		Msg("Fleet definition loaded")

	metricsRegistry := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	var st *store.SQLStore
	switch cfg.Storage.Driver {
	case "postgres":
		st, err = store.OpenPostgres(cfg.Storage.DSN, logger)
	default:
		st, err = store.OpenSQLite(cfg.Storage.Path, logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer st.Close()

	// Every table exists before the first cycle runs.
	unitNames := registry.Names()
	for _, m := range layout.Metrics {
		if err := st.CreateSchema(ctx, m.Table, unitNames, store.ColumnNumeric); err != nil {
			logger.Fatal().Err(err).Str("table", m.Table).Msg("Failed to create schema")
		}
	}
	for _, table := range []string{layout.Status.RunTable, layout.Status.FaultTable, layout.Status.AlarmTable} {
		if err := st.CreateSchema(ctx, table, unitNames, store.ColumnLabel); err != nil {
			logger.Fatal().Err(err).Str("table", table).Msg("Failed to create schema")
		}
	}
	logger.Info().Int("tables", len(layout.Tables())).Msg("Storage schema ensured")

	// Field bus
	conn, err := modbus.NewConnection(modbus.Config{
		Address:            cfg.Fieldbus.Address,
		Timeout:            cfg.ReadTimeout(registry.Len()),
		IdleTimeout:        cfg.Fieldbus.IdleTimeout,
		CBInterval:         cfg.Fieldbus.CBInterval,
		CBTimeout:          cfg.Fieldbus.CBTimeout,
		CBFailureThreshold: cfg.Fieldbus.CBFailureThreshold,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create field-bus connection")
	}
	defer conn.Close()

	// An unreachable gateway at boot is not fatal; the runner records
	// invalid markers until it comes up.
	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := conn.EnsureConnected(dialCtx); err != nil {
		logger.Warn().Err(err).Msg("Field bus unreachable at startup")
	}
	dialCancel()

	// Cycle runner
	runner := service.NewRunner(service.RunnerConfig{
		Interval:        cfg.Polling.Interval,
		ShutdownTimeout: cfg.Polling.ShutdownTimeout,
	}, conn, st, registry, layout, logger, metricsRegistry)

	if err := runner.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start cycle runner")
	}

	// Health checks and HTTP server
	healthChecker := health.NewChecker(health.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
	})
	healthChecker.AddCheck("storage", st, health.Critical)
	healthChecker.AddCheck("fieldbus", conn, health.Degrading)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		stats := runner.Stats()
		connStats := conn.Stats()
		fmt.Fprintf(w, `{"service":%q,"version":%q,"connection_state":%q,"cycles":%d,"rows_persisted":%d,"persist_errors":%d,"reads":%d,"read_errors":%d,"reconnects":%d}`,
			serviceName, serviceVersion, conn.State(),
			stats.Cycles.Load(), stats.RowsPersisted.Load(), stats.PersistErrors.Load(),
			connStats.ReadCount.Load(), connStats.ErrorCount.Load(), connStats.Reconnects.Load())
	})

	// Recent history per table, the read path the dashboard uses.
	mux.HandleFunc("/api/recent", recentHandler(st, layout.Tables()))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Polling.ShutdownTimeout)
	defer shutdownCancel()

	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Cycle runner shutdown failed")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	cancel()

	logger.Info().Msg("Shutdown complete")
}

// recentHandler serves the last rows of one metric table as JSON.
func recentHandler(st store.Store, tables []string) http.HandlerFunc {
	known := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		known[t] = struct{}{}
	}

	type cell struct {
		Number *float64 `json:"number,omitempty"`
		Label  *string  `json:"label,omitempty"`
	}
	type row struct {
		ID    int64  `json:"id"`
		Date  string `json:"date"`
		Time  string `json:"time"`
		Cells []cell `json:"cells"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		table := r.URL.Query().Get("table")
		if _, ok := known[table]; !ok {
			http.Error(w, "unknown table", http.StatusNotFound)
			return
		}

		limit := 10
		if q := r.URL.Query().Get("limit"); q != "" {
			if n, err := strconv.Atoi(q); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		rows, err := st.RecentRows(r.Context(), table, limit)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}

		out := make([]row, len(rows))
		for i, rr := range rows {
			cells := make([]cell, len(rr.Values))
			for j, v := range rr.Values {
				cells[j] = cell{Number: v.Number, Label: v.Label}
			}
			out[i] = row{ID: rr.ID, Date: rr.Date, Time: rr.Time, Cells: cells}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
