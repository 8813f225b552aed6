package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"go-csvmap/internal/config"
	"go-csvmap/internal/logger"
	"go-csvmap/internal/mapper"
	"go-csvmap/internal/model"
	"go-csvmap/internal/pipeline"
	"go-csvmap/internal/sink"
)

func main() {
	flags := pflag.NewFlagSet("csvmap", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: csvmap --mapping FILE --data FILE|URL [flags]\n\nMaps JSON records into linked CSV tables.\n\n")
		flags.PrintDefaults()
	}

	mappingFile := flags.String("mapping", "", "mapping file (JSON or YAML)")
	dataSource := flags.String("data", "", "JSON document or JSON Lines file holding the records (path or http(s) URL)")
	sourceType := flags.String("data-type", model.SourceJSON, "data format: json or jsonl")
	dataPath := flags.String("data-path", "", "path of the record array inside the document, e.g. data.items")
	userDataFile := flags.String("user-data", "", "JSON object whose values fill user columns")
	timeout := flags.String("timeout", "", "abort the run after this duration, e.g. 30s")
	flags.String("config", "", "config file (default ./config.yaml)")
	flags.String("output", "", "output directory")
	flags.String("format", config.FormatCSV, "output format: csv or sqlite")
	flags.String("table", mapper.DefaultTableName, "name of the root table")
	flags.Bool("no-header", false, "do not write CSV header rows")
	flags.Bool("manifest", false, "write a manifest next to every CSV table")
	flags.String("log-level", "", "log level")
	flags.String("log-format", "", "log format: text or json")
	flags.String("metrics-textfile", "", "write run metrics to this file in the Prometheus text format")

	_ = flags.Parse(os.Args[1:])

	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewLogger(cfg)

	if *mappingFile == "" || *dataSource == "" {
		flags.Usage()
		os.Exit(2)
	}

	job, err := buildJob(cfg, *mappingFile, *userDataFile, model.Source{Type: *sourceType, URL: *dataSource, DataPath: *dataPath}, *timeout)
	if err != nil {
		log.WithError(err).Fatal("Invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	jobID := uuid.New().String()
	result, err := pipeline.Run(ctx, jobID, job, pipeline.Options{
		OutputDir: cfg.Output.Dir,
		InPlace:   true,
		RootTable: cfg.Mapper.RootTable,
		Metrics:   sink.NewMetrics(registry),
		Log:       log.WithJob(jobID),
	})

	if cfg.Metrics.Textfile != "" {
		if werr := prometheus.WriteToTextfile(cfg.Metrics.Textfile, registry); werr != nil {
			log.WithError(werr).Error("Failed to write metrics")
		}
	}

	if err != nil {
		// the pipeline has logged the failure
		var badData *mapper.BadDataError
		if errors.As(err, &badData) {
			os.Exit(3)
		}
		os.Exit(1)
	}

	for _, t := range result.Tables {
		log.WithTable(t.Name).WithFields(logrus.Fields{
			"rows": t.RowCount,
			"path": t.Path,
		}).Info("Wrote table")
	}
}

func buildJob(cfg *config.Config, mappingFile, userDataFile string, source model.Source, timeout string) (model.JobSpec, error) {
	mappingData, err := os.ReadFile(mappingFile)
	if err != nil {
		return model.JobSpec{}, fmt.Errorf("failed to read mapping: %w", err)
	}

	var userData map[string]interface{}
	if userDataFile != "" {
		file, err := os.Open(userDataFile)
		if err != nil {
			return model.JobSpec{}, fmt.Errorf("failed to read user data: %w", err)
		}
		defer file.Close()
		dec := json.NewDecoder(file)
		dec.UseNumber()
		if err := dec.Decode(&userData); err != nil {
			return model.JobSpec{}, fmt.Errorf("failed to decode user data: %w", err)
		}
	}

	writeHeader := cfg.Output.WriteHeader
	return model.JobSpec{
		Mapping:  mappingData,
		Source:   &source,
		UserData: userData,
		Export: model.Export{
			Format:      cfg.Output.Format,
			WriteHeader: &writeHeader,
			Manifest:    cfg.Output.Manifest,
		},
		TableName: cfg.Mapper.RootTable,
		Timeout:   timeout,
	}, nil
}
