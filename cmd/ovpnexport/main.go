package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/SteelMorgan/vpngate-harvester/internal/config"
	"github.com/SteelMorgan/vpngate-harvester/internal/export"
	"github.com/SteelMorgan/vpngate-harvester/internal/fetch"
	"github.com/SteelMorgan/vpngate-harvester/internal/observability"
	"github.com/SteelMorgan/vpngate-harvester/internal/snapshot"
	"github.com/rs/zerolog/log"
)

func main() {
	file := flag.String("file", "", "CSV snapshot file to export")
	url := flag.String("url", "", "CSV snapshot URL to export (default SOURCE_URL)")
	out := flag.String("out", "", "output directory (default OVPN_DIR)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	if *file != "" && *url != "" {
		log.Fatal().Msg("Use either -file or -url, not both")
	}
	dir := cfg.OvpnDir
	if *out != "" {
		dir = *out
	}

	fetcher := fetch.NewFetcher(cfg.FetchTimeout)
	var text string
	if *file != "" {
		text, err = fetcher.ReadFile(*file)
	} else {
		source := cfg.SourceURL
		if *url != "" {
			source = *url
		}
		text, err = fetcher.FetchURL(context.Background(), source)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch snapshot")
	}

	doc, err := snapshot.Parse(text)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to parse snapshot")
	}

	report, err := export.WriteProfiles(dir, doc)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to export profiles")
	}

	fmt.Printf("Wrote %d profiles to %s (%d skipped)\n", len(report.Written), dir, report.Skipped)
}
