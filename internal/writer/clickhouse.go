package writer

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"
)

// ClickHouse DateTime64 valid range: 1925-01-01 to 2283-11-11
var (
	minClickHouseDateTime = time.Date(1925, 1, 1, 0, 0, 0, 0, time.UTC)
	maxClickHouseDateTime = time.Date(2283, 11, 11, 23, 59, 59, 999999999, time.UTC)
)

// ensureValidDateTime clamps t into the ClickHouse DateTime64 range
func ensureValidDateTime(t time.Time) time.Time {
	switch {
	case t.Before(minClickHouseDateTime):
		return minClickHouseDateTime
	case t.After(maxClickHouseDateTime):
		return maxClickHouseDateTime
	}
	return t
}

// Conn is the subset of the ClickHouse client the mirror needs
type Conn interface {
	Database() string
	Exec(ctx context.Context, query string, args ...interface{}) error
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
	Close() error
}

// ClickHouseMirror writes samples to <db>.server_metrics and <db>.server_tests
type ClickHouseMirror struct {
	conn Conn
	db   string
}

// NewClickHouseMirror creates the tables if needed
func NewClickHouseMirror(ctx context.Context, conn Conn) (*ClickHouseMirror, error) {
	m := &ClickHouseMirror{conn: conn, db: conn.Database()}
	for _, stmt := range m.schema() {
		if err := conn.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create mirror schema: %w", err)
		}
	}

	log.Info().
		Str("database", m.db).
		Msg("ClickHouse sample mirror ready")

	return m, nil
}

func (m *ClickHouseMirror) schema() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", m.db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.server_metrics (
			server_name String,
			server_id Int64,
			country_code LowCardinality(String),
			saved_at DateTime64(9, 'UTC'),
			score Int64,
			ping_ms Int64,
			speed_bps Int64,
			num_vpn_sessions Int64,
			uptime_ms Int64,
			total_users Int64,
			total_traffic_bytes Int64,
			sample_hash String
		) ENGINE = ReplacingMergeTree
		ORDER BY (server_name, saved_at, sample_hash)`, m.db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.server_tests (
			server_name String,
			server_id Int64,
			saved_at DateTime64(9, 'UTC'),
			ping_ms Int64,
			speed_bps Int64,
			sample_hash String
		) ENGINE = ReplacingMergeTree
		ORDER BY (server_name, saved_at, sample_hash)`, m.db),
	}
}

// WriteSamples sends one batch per table
func (m *ClickHouseMirror) WriteSamples(ctx context.Context, batches []SampleBatch) error {
	metrics, tests := metricRows(batches), testRows(batches)

	if err := m.send(ctx, "server_metrics", metrics); err != nil {
		return err
	}
	if err := m.send(ctx, "server_tests", tests); err != nil {
		return err
	}

	log.Debug().
		Int("metrics", len(metrics)).
		Int("tests", len(tests)).
		Msg("Samples mirrored to ClickHouse")

	return nil
}

func (m *ClickHouseMirror) send(ctx context.Context, table string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := m.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s", m.db, table))
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append to %s batch: %w", table, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send %s batch: %w", table, err)
	}
	return nil
}

// Close closes the underlying connection
func (m *ClickHouseMirror) Close() error {
	return m.conn.Close()
}

func metricRows(batches []SampleBatch) [][]any {
	var rows [][]any
	for _, b := range batches {
		for _, s := range b.Metrics {
			rows = append(rows, []any{
				b.ServerName,
				b.ServerID,
				b.CountryCode,
				ensureValidDateTime(s.SavedAt),
				s.Score,
				s.Ping,
				s.Speed,
				s.SessionCount,
				s.Uptime,
				s.TotalUsers,
				s.TotalTraffic,
				metricHash(b.ServerName, s),
			})
		}
	}
	return rows
}

func testRows(batches []SampleBatch) [][]any {
	var rows [][]any
	for _, b := range batches {
		for _, s := range b.Tests {
			rows = append(rows, []any{
				b.ServerName,
				b.ServerID,
				ensureValidDateTime(s.SavedAt),
				s.Ping,
				s.Speed,
				testHash(b.ServerName, s),
			})
		}
	}
	return rows
}
