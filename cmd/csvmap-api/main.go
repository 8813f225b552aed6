package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"go-csvmap/internal/api"
	"go-csvmap/internal/api/handler"
	"go-csvmap/internal/config"
	"go-csvmap/internal/logger"
	"go-csvmap/internal/pipeline"
	"go-csvmap/internal/sink"
	"go-csvmap/internal/store"
	"go-csvmap/pkg/router"
	"go-csvmap/pkg/utils"
)

// @title CSV Map API
// @version 1.0
// @description Maps JSON records into relational tables linked by primary and parent keys.
// @host localhost:8080
// @BasePath /api/v1
func main() {
	flags := pflag.NewFlagSet("csvmap-api", pflag.ExitOnError)
	flags.String("config", "", "config file (default ./config.yaml)")
	flags.String("host", "", "listen host")
	flags.String("port", "", "listen port")
	flags.String("db", "", "job store database")
	flags.String("output", "", "base output directory for job tables")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format: text or json")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLogger(cfg)

	// Init DB
	st, err := store.InitDB(cfg.Store.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to open job store")
	}
	defer st.Close()

	if err := utils.NewOutputManager(cfg.Output.Dir).EnsureOutputDirExists(); err != nil {
		log.WithError(err).Fatal("Failed to create output directory")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := handler.NewJobHandler(ctx, st, pipeline.Options{
		OutputDir: cfg.Output.Dir,
		RootTable: cfg.Mapper.RootTable,
		Metrics:   sink.NewMetrics(registry),
		Log:       log,
	})

	// Create router
	r := router.New(log)
	r.ReadTimeout = time.Duration(cfg.Server.ReadTimeout) * time.Second
	r.WriteTimeout = time.Duration(cfg.Server.WriteTimeout) * time.Second

	// Register API routes
	api.RegisterRoutes(r, h, metricsHandler)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := r.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Failed to shut down server")
		}
	}()

	// Start server
	if err := r.Start(cfg.Server.Addr()); err != nil {
		log.WithError(err).Error("Server failed")
		stop()
	}

	h.Wait()
	log.Info("Server stopped")
}
