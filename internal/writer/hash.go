package writer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

// metricHash identifies a metric sample by server, instant and values.
// The ReplacingMergeTree collapses rows with the same hash.
func metricHash(server string, m domain.MetricSample) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", server)
	fmt.Fprintf(h, "%s|", m.SavedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(h, "%d|%d|%d|%d|%d|%d|%d|", m.Score, m.Ping, m.Speed, m.SessionCount, m.Uptime, m.TotalUsers, m.TotalTraffic)
	return hex.EncodeToString(h.Sum(nil))
}

// testHash identifies a user test sample
func testHash(server string, t domain.TestSample) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", server)
	fmt.Fprintf(h, "%s|", t.SavedAt.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(h, "%d|%d|", t.Ping, t.Speed)
	return hex.EncodeToString(h.Sum(nil))
}
