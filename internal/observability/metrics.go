package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// IngestMetrics holds the harvest counters.
// A nil *IngestMetrics discards every observation.
type IngestMetrics struct {
	snapshots *prometheus.CounterVec
	inserted  *prometheus.CounterVec
	compacted *prometheus.CounterVec
	failures  *prometheus.CounterVec
	servers   prometheus.Gauge
}

// NewIngestMetrics creates the counters and registers them on reg
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	m := &IngestMetrics{
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpngate_snapshots_total",
				Help: "Snapshots processed per source and result",
			},
			[]string{"source", "result"},
		),
		inserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpngate_samples_inserted_total",
				Help: "Samples stored after deduplication",
			},
			[]string{"kind"},
		),
		compacted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpngate_samples_compacted_total",
				Help: "Samples discarded because a neighbor carried the same values",
			},
			[]string{"kind"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vpngate_merge_failures_total",
				Help: "Per-server merge failures by reason",
			},
			[]string{"reason"},
		),
		servers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vpngate_servers",
				Help: "Servers currently tracked",
			},
		),
	}

	reg.MustRegister(m.snapshots, m.inserted, m.compacted, m.failures, m.servers)
	return m
}

func (m *IngestMetrics) SnapshotProcessed(source, result string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(source, result).Inc()
}

func (m *IngestMetrics) SamplesInserted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.inserted.WithLabelValues(kind).Add(float64(n))
}

func (m *IngestMetrics) SamplesCompacted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.compacted.WithLabelValues(kind).Add(float64(n))
}

func (m *IngestMetrics) MergeFailed(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

func (m *IngestMetrics) SetServers(n int) {
	if m == nil {
		return
	}
	m.servers.Set(float64(n))
}

// ServeMetrics exposes /metrics on addr until ctx is done
func ServeMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
