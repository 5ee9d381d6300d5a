package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/SteelMorgan/vpngate-harvester/internal/config"
	"github.com/SteelMorgan/vpngate-harvester/internal/mcp"
	"github.com/SteelMorgan/vpngate-harvester/internal/observability"
	"github.com/SteelMorgan/vpngate-harvester/internal/store"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

func main() {
	stdio := flag.Bool("stdio", false, "speak MCP JSON-RPC on stdin/stdout instead of HTTP")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if *stdio {
		observability.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFile)
	} else {
		observability.InitLogger(cfg.LogLevel, cfg.LogFile)
	}

	log.Info().
		Str("version", version).
		Msg("Starting VPN Gate MCP Server")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "vpngate-mcp",
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

	// A running harvester serves the same tools itself
	gateway, err := store.OpenReadOnly(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open server store")
	}
	defer gateway.Close()

	// Create MCP server
	mcpServer, err := mcp.NewServer(cfg, gateway)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MCP server")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *stdio {
		if err := mcp.NewMCPProtocol(mcpServer, version).Start(ctx); err != nil {
			log.Error().Err(err).Msg("MCP stdio protocol error")
		}
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start MCP server
	errChan := make(chan error, 1)
	go func() {
		if err := mcpServer.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	log.Info().
		Int("port", cfg.MCPPort).
		Msg("MCP server started successfully")

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Info().Msg("Received shutdown signal")
	case err := <-errChan:
		log.Error().Err(err).Msg("MCP server error")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	cancel()

	if err := mcpServer.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("MCP server stopped")
}
