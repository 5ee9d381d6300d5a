package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SteelMorgan/vpngate-harvester/internal/clickhouse"
	"github.com/SteelMorgan/vpngate-harvester/internal/config"
	"github.com/SteelMorgan/vpngate-harvester/internal/fetch"
	"github.com/SteelMorgan/vpngate-harvester/internal/mcp"
	"github.com/SteelMorgan/vpngate-harvester/internal/observability"
	"github.com/SteelMorgan/vpngate-harvester/internal/service"
	"github.com/SteelMorgan/vpngate-harvester/internal/sources"
	"github.com/SteelMorgan/vpngate-harvester/internal/store"
	"github.com/SteelMorgan/vpngate-harvester/internal/writer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

func main() {
	once := flag.Bool("once", false, "harvest a single time and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("version", version).
		Bool("once", *once).
		Msg("Starting VPN Gate harvester")

	// Initialize tracer (no-op when disabled)
	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    observability.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.OTELEndpoint,
		Protocol:       cfg.OTELProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdownTracer(context.Background())
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open server store")
	}
	defer gateway.Close()

	sourceMap, err := sources.LoadSourceMap(cfg.SourcesPath, cfg.SourceURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load sources")
	}

	metrics := observability.NewIngestMetrics(prometheus.DefaultRegisterer)
	manager := service.NewManager(gateway,
		service.WithPruneStale(cfg.PruneStale),
		service.WithIngestMetrics(metrics),
	)

	var mirror writer.SampleMirror
	if cfg.ClickHouseEnabled {
		chClient, err := clickhouse.NewClient(ctx, cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
		}
		chMirror, err := writer.NewClickHouseMirror(ctx, chClient)
		if err != nil {
			chClient.Close()
			log.Fatal().Err(err).Msg("Failed to prepare ClickHouse mirror")
		}
		defer chMirror.Close()
		mirror = chMirror
	}

	harvestSvc, err := service.NewHarvestService(service.HarvestConfig{
		Manager:  manager,
		Fetcher:  fetch.NewFetcher(cfg.FetchTimeout),
		Sources:  sourceMap,
		Mirror:   mirror,
		Metrics:  metrics,
		Interval: cfg.HarvestInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create harvest service")
	}

	if *once {
		if err := manager.Reset(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to load stored servers")
		}
		report := harvestSvc.RunOnce(ctx)
		if report.Failed == report.Sources && report.Sources > 0 {
			log.Error().Msg("Every source failed")
			os.Exit(1)
		}
		return
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.MetricsAddr, prometheus.DefaultGatherer); err != nil {
				log.Error().Err(err).Msg("Metrics server error")
			}
		}()
	}

	// The store is locked by this process, so the query tools run here too
	toolServer, err := mcp.NewServer(cfg, gateway)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MCP server")
	}
	go toolServer.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start harvest service
	errChan := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := harvestSvc.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	log.Info().Msg("Harvest service started successfully")

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("Harvest service error")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	harvestSvc.Stop()
	cancel()
	<-done // a running cycle still uses the store

	if err := toolServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("Harvester stopped")
}
