package writer

import (
	"context"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

// SampleMirror copies freshly persisted samples to an analytics store.
// Mirroring is best effort: the bbolt store stays the source of truth.
type SampleMirror interface {
	// WriteSamples appends the batches; re-sending a sample is harmless
	WriteSamples(ctx context.Context, batches []SampleBatch) error

	// Close releases the connection
	Close() error
}

// SampleBatch holds the new samples of one server
type SampleBatch struct {
	ServerName  string
	ServerID    int64
	CountryCode string
	Metrics     []domain.MetricSample
	Tests       []domain.TestSample
}
