package snapshot

import (
	"fmt"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

// Decoder turns snapshot rows into single-observation server histories.
// A Decoder may be shared between goroutines.
type Decoder struct {
	identities *RowMapper[domain.ServerIdentity]
	metrics    *RowMapper[domain.MetricSample]
}

// NewDecoder creates a decoder whose mappers share cache. A nil cache
// allocates one.
func NewDecoder(cache *HeadingCache) *Decoder {
	if cache == nil {
		cache = NewHeadingCache()
	}
	return &Decoder{
		identities: NewRowMapper(IdentityBindings, cache),
		metrics:    NewRowMapper(MetricBindings, cache),
	}
}

// DecodeRow builds a history holding the row's identity and one metric
// sample observed at savedAt.
func (d *Decoder) DecodeRow(header, row []string, savedAt time.Time) (*domain.ServerHistory, error) {
	identity, err := d.identities.Map(header, row)
	if err != nil {
		return nil, err
	}
	if identity.Name == "" {
		return nil, fmt.Errorf("row has an empty %s", HeadingHostName)
	}

	metric, err := d.metrics.Map(header, row)
	if err != nil {
		return nil, err
	}
	metric.SavedAt = savedAt

	h := domain.NewServerHistory(identity)
	if _, err := h.InsertMetric(metric); err != nil {
		return nil, fmt.Errorf("server %q: %w", identity.Name, err)
	}
	return h, nil
}
