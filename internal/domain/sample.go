package domain

import "time"

// MetricSample is one timestamped observation of a server's published
// health and usage metrics.
type MetricSample struct {
	ID           int64
	SavedAt      time.Time
	Score        int64
	Ping         int64 // ms
	Speed        int64 // bps
	SessionCount int64
	Uptime       int64 // ms
	TotalUsers   int64
	TotalTraffic int64 // bytes
}

// Timestamp returns the instant the sample was observed.
func (m MetricSample) Timestamp() time.Time { return m.SavedAt }

// Equivalent reports metric-equality: every field except ID and SavedAt.
func (m MetricSample) Equivalent(other MetricSample) bool {
	return m.Score == other.Score &&
		m.Ping == other.Ping &&
		m.Speed == other.Speed &&
		m.SessionCount == other.SessionCount &&
		m.Uptime == other.Uptime &&
		m.TotalUsers == other.TotalUsers &&
		m.TotalTraffic == other.TotalTraffic
}

func (m MetricSample) withID(id int64) MetricSample {
	m.ID = id
	return m
}

// TestSample is a lightweight latency/throughput measurement taken by the
// user against a server.
type TestSample struct {
	ID      int64
	SavedAt time.Time
	Ping    int64 // ms
	Speed   int64 // bps
}

// Timestamp returns the instant the test was taken.
func (t TestSample) Timestamp() time.Time { return t.SavedAt }

// Equivalent reports equality ignoring ID and SavedAt.
func (t TestSample) Equivalent(other TestSample) bool {
	return t.Ping == other.Ping && t.Speed == other.Speed
}

func (t TestSample) withID(id int64) TestSample {
	t.ID = id
	return t
}

// NormalizeTime strips the monotonic reading and location so that equal
// instants produce equal keys.
func NormalizeTime(t time.Time) time.Time {
	return t.Round(0).UTC()
}
