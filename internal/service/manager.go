package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
	"github.com/SteelMorgan/vpngate-harvester/internal/observability"
	"github.com/SteelMorgan/vpngate-harvester/internal/snapshot"
	"github.com/SteelMorgan/vpngate-harvester/internal/store"
	"github.com/rs/zerolog/log"
)

// Manager keeps every known server history in memory, merges fresh
// snapshots into it and writes the changed histories back to the gateway.
type Manager struct {
	mu         sync.Mutex
	gateway    store.Gateway
	decoder    *snapshot.Decoder
	metrics    *observability.IngestMetrics
	pruneStale bool

	servers map[string]*domain.ServerHistory
	dirty   map[string]struct{}
	deleted map[string]struct{}
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithPruneStale removes servers missing from a synced snapshot
func WithPruneStale(prune bool) ManagerOption {
	return func(m *Manager) { m.pruneStale = prune }
}

// WithIngestMetrics reports merge counters to Prometheus
func WithIngestMetrics(metrics *observability.IngestMetrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHeadingCache shares a heading cache with other decoders
func WithHeadingCache(cache *snapshot.HeadingCache) ManagerOption {
	return func(m *Manager) { m.decoder = snapshot.NewDecoder(cache) }
}

// NewManager creates an empty manager. Call Reset to load stored servers.
func NewManager(gateway store.Gateway, opts ...ManagerOption) *Manager {
	m := &Manager{
		gateway: gateway,
		servers: make(map[string]*domain.ServerHistory),
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.decoder == nil {
		m.decoder = snapshot.NewDecoder(nil)
	}
	return m
}

// SyncReport summarizes one Sync call
type SyncReport struct {
	Rows             int
	Added            int
	Updated          int
	Unchanged        int
	Failed           int
	Pruned           int
	MetricsAdded     int
	MetricsCompacted int
}

// SaveReport summarizes one Save call
type SaveReport struct {
	Persisted []PersistedServer
	Deleted   int
	Failed    int
}

// PersistedServer is what one upsert newly wrote
type PersistedServer struct {
	Name        string
	CountryCode string
	ServerID    int64
	Inserted    bool
	Metrics     []domain.MetricSample
	Tests       []domain.TestSample
}

// Reset drops in-memory state and reloads all servers from the gateway
func (m *Manager) Reset(ctx context.Context) error {
	histories, err := m.gateway.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset servers: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.servers = make(map[string]*domain.ServerHistory, len(histories))
	m.dirty = make(map[string]struct{})
	m.deleted = make(map[string]struct{})
	for _, h := range histories {
		m.servers[h.Name()] = h
	}
	m.metrics.SetServers(len(m.servers))

	log.Info().
		Int("servers", len(m.servers)).
		Msg("Server histories loaded")

	return nil
}

// Sync merges every row of doc, observed at savedAt, into the in-memory
// histories. A failing server is logged and skipped; the rest of the
// document is still merged.
func (m *Manager) Sync(ctx context.Context, doc *snapshot.Document, savedAt time.Time) SyncReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := SyncReport{Rows: len(doc.Rows)}
	seen := make(map[string]struct{}, len(doc.Rows))
	nameIdx := doc.Index(snapshot.HeadingHostName)

	for i, row := range doc.Rows {
		if nameIdx >= 0 && nameIdx < len(row) && row[nameIdx] != "" {
			seen[row[nameIdx]] = struct{}{}
		}

		fresh, err := m.decoder.DecodeRow(doc.Header, row, savedAt)
		if err != nil {
			report.Failed++
			m.metrics.MergeFailed("decode")
			log.Warn().
				Err(err).
				Int("row", i).
				Msg("Skipping undecodable row")
			continue
		}
		name := fresh.Name()

		existing, ok := m.servers[name]
		if !ok {
			m.servers[name] = fresh
			m.dirty[name] = struct{}{}
			report.Added++
			report.MetricsAdded += fresh.MetricCount()
			continue
		}

		res, err := existing.MergeFrom(fresh)
		if err != nil {
			report.Failed++
			m.metrics.MergeFailed(failureReason(err))
			log.Warn().
				Err(err).
				Str("server_name", name).
				Time("saved_at", savedAt).
				Msg("Could not update server")
			continue
		}

		report.MetricsAdded += res.MetricsAdded
		report.MetricsCompacted += fresh.MetricCount() - res.MetricsAdded
		if res.Changed() {
			m.dirty[name] = struct{}{}
			report.Updated++
		} else {
			report.Unchanged++
		}
	}

	if m.pruneStale {
		for name := range m.servers {
			if _, ok := seen[name]; !ok {
				m.deleteLocked(name)
				report.Pruned++
			}
		}
	}

	m.metrics.SamplesInserted("metric", report.MetricsAdded)
	m.metrics.SamplesCompacted("metric", report.MetricsCompacted)
	m.metrics.SetServers(len(m.servers))

	log.Info().
		Int("rows", report.Rows).
		Int("added", report.Added).
		Int("updated", report.Updated).
		Int("unchanged", report.Unchanged).
		Int("failed", report.Failed).
		Int("pruned", report.Pruned).
		Int("metrics_compacted", report.MetricsCompacted).
		Msg("Snapshot synced")

	return report
}

// Delete removes a server from memory and queues its deletion
func (m *Manager) Delete(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(name)
}

func (m *Manager) deleteLocked(name string) bool {
	if _, ok := m.servers[name]; !ok {
		log.Warn().
			Str("server_name", name).
			Msg("Attempted to delete unknown server")
		return false
	}

	delete(m.servers, name)
	delete(m.dirty, name)
	m.deleted[name] = struct{}{}

	log.Info().
		Str("server_name", name).
		Msg("Server marked for deletion")
	return true
}

// RecordTest stores a user latency/throughput test for a known server
func (m *Manager) RecordTest(name string, test domain.TestSample) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.servers[name]
	if !ok {
		return false, fmt.Errorf("server %q is not loaded", name)
	}

	added, err := h.InsertTest(test)
	if err != nil {
		return false, fmt.Errorf("server %q: %w", name, err)
	}
	if added {
		m.dirty[name] = struct{}{}
		m.metrics.SamplesInserted("test", 1)
	} else {
		m.metrics.SamplesCompacted("test", 1)
	}
	return added, nil
}

// Save deletes queued servers and upserts dirty ones. Servers that fail
// stay queued for the next Save; the joined error lists them.
func (m *Manager) Save(ctx context.Context) (*SaveReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := &SaveReport{}
	var errs []error

	// Deletions go first so a name that was dropped and seen again
	// starts over with a fresh history.
	for _, name := range sortedKeys(m.deleted) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := m.gateway.Delete(ctx, name); err != nil {
			report.Failed++
			errs = append(errs, err)
			log.Error().
				Err(err).
				Str("server_name", name).
				Msg("Failed to delete server")
			continue
		}
		delete(m.deleted, name)
		report.Deleted++
	}

	for _, name := range sortedKeys(m.dirty) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		h, ok := m.servers[name]
		if !ok {
			delete(m.dirty, name)
			continue
		}

		res, err := m.gateway.Upsert(ctx, h)
		if err != nil {
			report.Failed++
			errs = append(errs, err)
			log.Error().
				Err(err).
				Str("server_name", name).
				Msg("Failed to save server")
			continue
		}

		delete(m.dirty, name)
		report.Persisted = append(report.Persisted, PersistedServer{
			Name:        name,
			CountryCode: h.Identity.CountryCode,
			ServerID:    res.ServerID,
			Inserted:    res.Inserted,
			Metrics:     res.Metrics,
			Tests:       res.Tests,
		})
	}

	log.Info().
		Int("upserted", len(report.Persisted)).
		Int("deleted", report.Deleted).
		Int("failed", report.Failed).
		Msg("Save complete")

	return report, errors.Join(errs...)
}

// Server returns the history stored under name
// The returned history must not be mutated
func (m *Manager) Server(name string) (*domain.ServerHistory, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.servers[name]
	return h, ok
}

// Len returns the number of servers in memory
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.servers)
}

// Pending returns the number of dirty and queued-for-deletion servers
func (m *Manager) Pending() (dirty, deleted int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.dirty), len(m.deleted)
}

func failureReason(err error) string {
	var (
		mismatch *domain.IdentityMismatchError
		idc      *domain.IdConflictError
		tsc      *domain.TimestampConflictError
	)
	switch {
	case errors.As(err, &mismatch):
		return "identity_mismatch"
	case errors.As(err, &idc):
		return "id_conflict"
	case errors.As(err, &tsc):
		return "timestamp_conflict"
	default:
		return "other"
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
