package store

import (
	"context"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

// Gateway is the durable home of server histories.
// Implementations: BoltStore.
type Gateway interface {
	// Exists reports whether a server with this name is stored
	Exists(ctx context.Context, name string) (bool, error)

	// LoadByName loads one server with its samples
	// Returns nil, nil if nothing is stored under name
	LoadByName(ctx context.Context, name string) (*domain.ServerHistory, error)

	// LoadAll loads every stored server
	LoadAll(ctx context.Context) ([]*domain.ServerHistory, error)

	// Upsert inserts the identity if it has no id, otherwise updates it,
	// then appends samples that have no id yet. Generated ids are written
	// back onto the history.
	Upsert(ctx context.Context, history *domain.ServerHistory) (*UpsertResult, error)

	// Delete removes a server and all of its samples
	// Deleting an unknown name is a no-op
	Delete(ctx context.Context, name string) error

	// Close closes the store
	Close() error
}

// UpsertResult lists what an Upsert newly persisted.
type UpsertResult struct {
	ServerID int64
	Inserted bool // identity was inserted rather than updated
	Metrics  []domain.MetricSample
	Tests    []domain.TestSample
}
