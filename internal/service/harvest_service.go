package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/fetch"
	"github.com/SteelMorgan/vpngate-harvester/internal/observability"
	"github.com/SteelMorgan/vpngate-harvester/internal/snapshot"
	"github.com/SteelMorgan/vpngate-harvester/internal/sources"
	"github.com/SteelMorgan/vpngate-harvester/internal/writer"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	tracerName           = "vpngate-harvester/service"
	maxConcurrentFetches = 4
)

// Snapshot outcomes reported to vpngate_snapshots_total
const (
	resultOK         = "ok"
	resultFetchError = "fetch_error"
	resultParseError = "parse_error"
)

// HarvestService periodically fetches every enabled source and merges it
// into the Manager
type HarvestService struct {
	manager  *Manager
	fetcher  *fetch.Fetcher
	sources  *sources.SourceMap
	mirror   writer.SampleMirror
	metrics  *observability.IngestMetrics
	interval time.Duration
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// HarvestConfig wires a HarvestService
type HarvestConfig struct {
	Manager  *Manager
	Fetcher  *fetch.Fetcher
	Sources  *sources.SourceMap
	Mirror   writer.SampleMirror // optional
	Metrics  *observability.IngestMetrics
	Interval time.Duration
}

// CycleReport summarizes one harvest cycle
type CycleReport struct {
	RunID   string
	Sources int
	Failed  int
	Sync    SyncReport
	Save    *SaveReport
}

// NewHarvestService creates a new harvest service
func NewHarvestService(cfg HarvestConfig) (*HarvestService, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Sources == nil {
		return nil, fmt.Errorf("source map is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	return &HarvestService{
		manager:  cfg.Manager,
		fetcher:  cfg.Fetcher,
		sources:  cfg.Sources,
		mirror:   cfg.Mirror,
		metrics:  cfg.Metrics,
		interval: cfg.Interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start loads stored servers, harvests once and then on every tick until
// ctx is cancelled or Stop is called
func (s *HarvestService) Start(ctx context.Context) error {
	log.Info().
		Dur("interval", s.interval).
		Int("sources", len(s.sources.Enabled())).
		Msg("Harvest service starting...")

	if err := s.manager.Reset(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Harvest service context cancelled")
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// Stop stops the harvest loop; a running cycle finishes first
func (s *HarvestService) Stop() error {
	log.Info().Msg("Harvest service stopping...")
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

type fetched struct {
	source sources.Source
	text   string
	at     time.Time
	err    error
}

// RunOnce fetches all enabled sources concurrently, then syncs and saves
// them one after another
func (s *HarvestService) RunOnce(ctx context.Context) CycleReport {
	runID := uuid.NewString()
	ctx, span := observability.StartSpan(ctx, tracerName, "harvest.cycle",
		attribute.String("run_id", runID),
	)
	start := time.Now()

	enabled := s.sources.Enabled()
	report := CycleReport{RunID: runID, Sources: len(enabled)}
	logger := log.With().Str("run_id", runID).Logger()

	results := make([]fetched, len(enabled))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, src := range enabled {
		i, src := i, src
		g.Go(func() error {
			text, err := s.fetchSource(gctx, src)
			// Snapshots carry millisecond precision like the stored rows
			results[i] = fetched{source: src, text: text, at: s.now().Truncate(time.Millisecond), err: err}
			return nil
		})
	}
	g.Wait()

	for _, r := range results {
		if r.err != nil {
			report.Failed++
			s.metrics.SnapshotProcessed(r.source.Name, resultFetchError)
			logger.Warn().
				Err(r.err).
				Str("source", r.source.Name).
				Str("location", r.source.Location()).
				Msg("Failed to fetch snapshot")
			continue
		}

		doc, err := snapshot.Parse(r.text)
		if err != nil {
			report.Failed++
			s.metrics.SnapshotProcessed(r.source.Name, resultParseError)
			logger.Warn().
				Err(err).
				Str("source", r.source.Name).
				Msg("Failed to parse snapshot")
			continue
		}

		_, syncSpan := observability.StartSpan(ctx, tracerName, "harvest.sync",
			attribute.String("source", r.source.Name),
			attribute.Int("rows", len(doc.Rows)),
		)
		sr := s.manager.Sync(ctx, doc, r.at)
		observability.EndSpan(syncSpan, nil, "synced")

		s.metrics.SnapshotProcessed(r.source.Name, resultOK)
		report.Sync = report.Sync.add(sr)
	}

	saveCtx, saveSpan := observability.StartSpan(ctx, tracerName, "harvest.save")
	save, err := s.manager.Save(saveCtx)
	observability.EndSpan(saveSpan, err, "saved")
	report.Save = save
	if err != nil {
		logger.Error().
			Err(err).
			Msg("Some servers could not be saved")
	}

	s.mirrorSamples(ctx, save)

	logger.Info().
		Int("sources", report.Sources).
		Int("failed_sources", report.Failed).
		Int("servers_added", report.Sync.Added).
		Int("servers_updated", report.Sync.Updated).
		Int("metrics_added", report.Sync.MetricsAdded).
		Dur("duration", time.Since(start)).
		Msg("Harvest cycle finished")

	observability.EndSpan(span, nil, "harvest cycle finished")
	return report
}

func (s *HarvestService) fetchSource(ctx context.Context, src sources.Source) (string, error) {
	ctx, span := observability.StartSpan(ctx, tracerName, "harvest.fetch",
		attribute.String("source", src.Name),
		attribute.String("kind", string(src.Kind())),
	)

	var (
		text string
		err  error
	)
	switch {
	case src.Kind() == sources.KindFile:
		text, err = s.fetcher.ReadFile(src.Path)
	case src.AnyContentType:
		text, err = s.fetcher.FetchURLAnyType(ctx, src.URL)
	default:
		text, err = s.fetcher.FetchURL(ctx, src.URL)
	}

	observability.EndSpan(span, err, "fetched")
	return text, err
}

func (s *HarvestService) mirrorSamples(ctx context.Context, save *SaveReport) {
	if s.mirror == nil || save == nil || len(save.Persisted) == 0 {
		return
	}

	batches := make([]writer.SampleBatch, 0, len(save.Persisted))
	for _, p := range save.Persisted {
		batches = append(batches, writer.SampleBatch{
			ServerName:  p.Name,
			ServerID:    p.ServerID,
			CountryCode: p.CountryCode,
			Metrics:     p.Metrics,
			Tests:       p.Tests,
		})
	}

	ctx, span := observability.StartSpan(ctx, tracerName, "harvest.mirror")
	err := s.mirror.WriteSamples(ctx, batches)
	observability.EndSpan(span, err, "mirrored")
	if err != nil {
		// bbolt already holds the samples
		log.Error().
			Err(err).
			Int("servers", len(batches)).
			Msg("Failed to mirror samples to ClickHouse")
	}
}

func (r SyncReport) add(o SyncReport) SyncReport {
	r.Rows += o.Rows
	r.Added += o.Added
	r.Updated += o.Updated
	r.Unchanged += o.Unchanged
	r.Failed += o.Failed
	r.Pruned += o.Pruned
	r.MetricsAdded += o.MetricsAdded
	r.MetricsCompacted += o.MetricsCompacted
	return r
}
