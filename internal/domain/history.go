package domain

import (
	"fmt"
	"time"
)

// ServerHistory is one server's identity plus its deduplicated metric and
// test history. It is not safe for concurrent mutation; callers serialize
// access per server.
type ServerHistory struct {
	Identity ServerIdentity
	metrics  series[MetricSample]
	tests    series[TestSample]
}

// MergeResult describes what a successful MergeFrom changed.
type MergeResult struct {
	IdentityChanged bool
	MetricsAdded    int
	TestsAdded      int
}

// Changed reports whether the merge modified the history at all.
func (r MergeResult) Changed() bool {
	return r.IdentityChanged || r.MetricsAdded > 0 || r.TestsAdded > 0
}

// NewServerHistory creates an empty history for a freshly parsed identity.
func NewServerHistory(identity ServerIdentity) *ServerHistory {
	return &ServerHistory{
		Identity: identity,
		metrics:  newSeries[MetricSample]("metric"),
		tests:    newSeries[TestSample]("test"),
	}
}

// RestoreServerHistory rebuilds a history from persisted rows. Stored rows
// are placed as-is, without neighbor compaction.
func RestoreServerHistory(identity ServerIdentity, metrics []MetricSample, tests []TestSample) (*ServerHistory, error) {
	h := NewServerHistory(identity)
	for _, m := range metrics {
		m.SavedAt = NormalizeTime(m.SavedAt)
		if err := h.metrics.place(m); err != nil {
			return nil, fmt.Errorf("restore %q: %w", identity.Name, err)
		}
	}
	for _, t := range tests {
		t.SavedAt = NormalizeTime(t.SavedAt)
		if err := h.tests.place(t); err != nil {
			return nil, fmt.Errorf("restore %q: %w", identity.Name, err)
		}
	}
	return h, nil
}

// Name returns the identity key of the history.
func (h *ServerHistory) Name() string {
	return h.Identity.Name
}

// InsertMetric stores m unless an adjacent sample already carries the same
// metrics. A different sample at exactly m.SavedAt is a
// *TimestampConflictError; an equal one is a no-op.
func (h *ServerHistory) InsertMetric(m MetricSample) (bool, error) {
	m.SavedAt = NormalizeTime(m.SavedAt)
	return h.metrics.insert(m)
}

// InsertTest is InsertMetric for user test samples.
func (h *ServerHistory) InsertTest(t TestSample) (bool, error) {
	t.SavedAt = NormalizeTime(t.SavedAt)
	return h.tests.insert(t)
}

// MergeFrom merges other (typically a fresh scrape of the same server) into
// h. It is all-or-nothing: on error h is restored to its state before the
// call.
func (h *ServerHistory) MergeFrom(other *ServerHistory) (MergeResult, error) {
	var res MergeResult

	identity := h.Identity
	metrics := h.metrics.clone()
	tests := h.tests.clone()
	rollback := func() {
		h.Identity = identity
		h.metrics = metrics
		h.tests = tests
	}

	changed, err := h.Identity.MergeInto(&other.Identity)
	if err != nil {
		rollback()
		return MergeResult{}, err
	}
	res.IdentityChanged = changed

	for _, m := range other.metrics.values() {
		added, err := h.metrics.insert(m)
		if err != nil {
			rollback()
			return MergeResult{}, err
		}
		if added {
			res.MetricsAdded++
		}
	}

	for _, t := range other.tests.values() {
		added, err := h.tests.insert(t)
		if err != nil {
			rollback()
			return MergeResult{}, err
		}
		if added {
			res.TestsAdded++
		}
	}

	return res, nil
}

// Metrics returns the stored metric samples in ascending time order.
func (h *ServerHistory) Metrics() []MetricSample {
	return h.metrics.values()
}

// Tests returns the stored test samples in ascending time order.
func (h *ServerHistory) Tests() []TestSample {
	return h.tests.values()
}

// MetricAt returns the metric sample stored at exactly at.
func (h *ServerHistory) MetricAt(at time.Time) (MetricSample, bool) {
	return h.metrics.get(at)
}

// MetricCount returns the number of stored metric samples.
func (h *ServerHistory) MetricCount() int {
	return h.metrics.len()
}

// TestCount returns the number of stored test samples.
func (h *ServerHistory) TestCount() int {
	return h.tests.len()
}

// LastMetricAt returns the timestamp of the newest metric sample.
func (h *ServerHistory) LastMetricAt() (time.Time, bool) {
	return h.metrics.last()
}

// LastTestAt returns the timestamp of the newest test sample.
func (h *ServerHistory) LastTestAt() (time.Time, bool) {
	return h.tests.last()
}

// LatestMetric returns the newest metric sample.
func (h *ServerHistory) LatestMetric() (MetricSample, bool) {
	at, ok := h.metrics.last()
	if !ok {
		return MetricSample{}, false
	}
	return h.metrics.get(at)
}

// AssignMetricID records the persisted identifier of the sample at at.
func (h *ServerHistory) AssignMetricID(at time.Time, id int64) bool {
	return h.metrics.assignID(at, id)
}

// AssignTestID records the persisted identifier of the test at at.
func (h *ServerHistory) AssignTestID(at time.Time, id int64) bool {
	return h.tests.assignID(at, id)
}
