package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/archive"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/storage"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		outputFile = flag.String("output", "", "Output Parquet file path")
	)
	flag.Parse()

	if *outputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s --output archive.parquet [--config configs/config.yaml]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if !cfg.Storage.Enabled {
		fmt.Fprintln(os.Stderr, "Object storage is not enabled; nothing to archive")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling export...")
		cancel()
	}()

	store, err := storage.NewObjectStore(ctx, storage.Config{
		Bucket:   cfg.Storage.Bucket,
		Region:   cfg.Storage.Region,
		Endpoint: cfg.Storage.Endpoint,
		Prefix:   cfg.Storage.Prefix,
	}, log.WithComponent("storage").Logger)
	if err != nil {
		log.Fatal("Failed to initialize object store", zap.Error(err))
	}

	out, err := os.Create(*outputFile)
	if err != nil {
		log.Fatal("Failed to create output file", zap.Error(err))
	}

	exporter := archive.NewExporter(store, archive.Config{}, log.WithComponent("archive"))
	result, err := exporter.Export(ctx, out)
	if err != nil {
		out.Close()
		os.Remove(*outputFile)
		log.Fatal("Export failed", zap.Error(err))
	}
	if err := out.Close(); err != nil {
		log.Fatal("Failed to close output file", zap.Error(err))
	}

	log.Info("Archive written",
		zap.String("file", *outputFile),
		zap.Int64("sessions", result.Sessions),
		zap.Int64("messages", result.Messages),
		zap.Duration("duration", result.Duration),
	)
}
