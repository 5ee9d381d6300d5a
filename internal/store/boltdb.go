package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	serversBucket   = "servers"    // name -> identityRecord
	serverIDsBucket = "server_ids" // id -> name
	metricsBucket   = "metrics"    // id -> nested bucket: time -> metricRecord
	testsBucket     = "tests"      // id -> nested bucket: time -> testRecord
)

var allBuckets = []string{serversBucket, serverIDsBucket, metricsBucket, testsBucket}

// BoltStore implements Gateway using BoltDB
type BoltStore struct {
	db   *bbolt.DB
	path string
}

// Open opens (creating if needed) a BoltDB server store
func Open(dbPath string) (*BoltStore, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		// Locked files usually mean another harvester still holds the database
		return nil, fmt.Errorf("failed to open boltdb (file may be locked by another process): %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	log.Info().
		Str("db_path", dbPath).
		Msg("BoltDB server store initialized")

	return &BoltStore{db: db, path: dbPath}, nil
}

// OpenReadOnly opens an existing store with a shared lock. It fails while a
// harvester holds the file open for writing.
func OpenReadOnly(dbPath string) (*BoltStore, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout:  1 * time.Second,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb read-only (file may be locked by a running harvester): %w", err)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if tx.Bucket([]byte(name)) == nil {
				return fmt.Errorf("bucket %s is missing", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("not a server store: %w", err)
	}

	return &BoltStore{db: db, path: dbPath}, nil
}

// Exists reports whether name is stored
func (s *BoltStore) Exists(ctx context.Context, name string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket([]byte(serversBucket)).Get([]byte(name)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check server: %w", err)
	}
	return found, nil
}

// LoadByName loads one server
func (s *BoltStore) LoadByName(ctx context.Context, name string) (*domain.ServerHistory, error) {
	var history *domain.ServerHistory

	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket([]byte(serversBucket)).Get([]byte(name))
		if raw == nil {
			return nil
		}
		h, err := readHistory(tx, raw)
		if err != nil {
			return err
		}
		history = h
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load server %q: %w", name, err)
	}

	return history, nil
}

// LoadAll loads every stored server, ordered by name
func (s *BoltStore) LoadAll(ctx context.Context) ([]*domain.ServerHistory, error) {
	var result []*domain.ServerHistory

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(serversBucket)).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h, err := readHistory(tx, v)
			if err != nil {
				return fmt.Errorf("server %q: %w", string(k), err)
			}
			result = append(result, h)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load servers: %w", err)
	}

	log.Debug().
		Int("servers", len(result)).
		Msg("Loaded server histories")

	return result, nil
}

// Upsert writes history in a single transaction
func (s *BoltStore) Upsert(ctx context.Context, history *domain.ServerHistory) (*UpsertResult, error) {
	res := &UpsertResult{}
	identity := history.Identity

	err := s.db.Update(func(tx *bbolt.Tx) error {
		servers := tx.Bucket([]byte(serversBucket))
		ids := tx.Bucket([]byte(serverIDsBucket))

		var stored *identityRecord
		if raw := servers.Get([]byte(identity.Name)); raw != nil {
			var rec identityRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("invalid identity record: %w", err)
			}
			stored = &rec
		}

		switch {
		case stored == nil && identity.HasID():
			return fmt.Errorf("server %q with id %d is not stored", identity.Name, identity.ID)
		case stored == nil:
			seq, err := servers.NextSequence()
			if err != nil {
				return err
			}
			identity.ID = int64(seq)
			res.Inserted = true
		case !identity.HasID():
			// Same name already persisted: adopt its id.
			identity.ID = stored.ID
		case identity.ID != stored.ID:
			return &domain.IdConflictError{Current: identity.ID, Other: stored.ID}
		}
		res.ServerID = identity.ID

		raw, err := json.Marshal(toIdentityRecord(identity))
		if err != nil {
			return err
		}
		if err := servers.Put([]byte(identity.Name), raw); err != nil {
			return err
		}
		if err := ids.Put(idKey(identity.ID), []byte(identity.Name)); err != nil {
			return err
		}

		metrics, err := writeMetrics(tx, identity.ID, history.Metrics())
		if err != nil {
			return err
		}
		tests, err := writeTests(tx, identity.ID, history.Tests())
		if err != nil {
			return err
		}
		res.Metrics = metrics
		res.Tests = tests
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert server %q: %w", identity.Name, err)
	}

	// Ids are written back only once the transaction committed.
	history.Identity.ID = identity.ID
	for _, m := range res.Metrics {
		history.AssignMetricID(m.SavedAt, m.ID)
	}
	for _, t := range res.Tests {
		history.AssignTestID(t.SavedAt, t.ID)
	}

	log.Debug().
		Str("server_name", identity.Name).
		Int64("server_id", identity.ID).
		Bool("inserted", res.Inserted).
		Int("new_metrics", len(res.Metrics)).
		Int("new_tests", len(res.Tests)).
		Msg("Server upserted")

	return res, nil
}

// Delete removes a server and its samples
func (s *BoltStore) Delete(ctx context.Context, name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		servers := tx.Bucket([]byte(serversBucket))
		raw := servers.Get([]byte(name))
		if raw == nil {
			return nil
		}

		var rec identityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("invalid identity record: %w", err)
		}

		if err := servers.Delete([]byte(name)); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(serverIDsBucket)).Delete(idKey(rec.ID)); err != nil {
			return err
		}
		for _, b := range []string{metricsBucket, testsBucket} {
			err := tx.Bucket([]byte(b)).DeleteBucket(idKey(rec.ID))
			if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete server %q: %w", name, err)
	}

	log.Debug().
		Str("server_name", name).
		Msg("Server deleted")

	return nil
}

// Close closes the BoltDB database
func (s *BoltStore) Close() error {
	log.Info().Msg("Closing BoltDB server store")
	return s.db.Close()
}

func readHistory(tx *bbolt.Tx, raw []byte) (*domain.ServerHistory, error) {
	var rec identityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("invalid identity record: %w", err)
	}

	var metrics []domain.MetricSample
	if b := tx.Bucket([]byte(metricsBucket)).Bucket(idKey(rec.ID)); b != nil {
		err := b.ForEach(func(_, v []byte) error {
			var m metricRecord
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("invalid metric record: %w", err)
			}
			metrics = append(metrics, m.toDomain())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	var tests []domain.TestSample
	if b := tx.Bucket([]byte(testsBucket)).Bucket(idKey(rec.ID)); b != nil {
		err := b.ForEach(func(_, v []byte) error {
			var t testRecord
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("invalid test record: %w", err)
			}
			tests = append(tests, t.toDomain())
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return domain.RestoreServerHistory(rec.toDomain(), metrics, tests)
}

// writeMetrics appends samples without an id and returns them with the
// ids they were stored under. A row already present at the same instant is
// adopted if equal.
func writeMetrics(tx *bbolt.Tx, serverID int64, samples []domain.MetricSample) ([]domain.MetricSample, error) {
	top := tx.Bucket([]byte(metricsBucket))
	b, err := top.CreateBucketIfNotExists(idKey(serverID))
	if err != nil {
		return nil, err
	}

	var written []domain.MetricSample
	for _, m := range samples {
		if m.ID != 0 {
			continue
		}
		key := timeKey(m.SavedAt)
		if raw := b.Get(key); raw != nil {
			var existing metricRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return nil, fmt.Errorf("invalid metric record: %w", err)
			}
			if !existing.toDomain().Equivalent(m) {
				return nil, &domain.TimestampConflictError{Kind: "metric", SavedAt: m.SavedAt}
			}
			m.ID = existing.ID
			written = append(written, m)
			continue
		}

		seq, err := top.NextSequence()
		if err != nil {
			return nil, err
		}
		m.ID = int64(seq)
		raw, err := json.Marshal(toMetricRecord(m))
		if err != nil {
			return nil, err
		}
		if err := b.Put(key, raw); err != nil {
			return nil, err
		}
		written = append(written, m)
	}
	return written, nil
}

func writeTests(tx *bbolt.Tx, serverID int64, samples []domain.TestSample) ([]domain.TestSample, error) {
	top := tx.Bucket([]byte(testsBucket))
	b, err := top.CreateBucketIfNotExists(idKey(serverID))
	if err != nil {
		return nil, err
	}

	var written []domain.TestSample
	for _, t := range samples {
		if t.ID != 0 {
			continue
		}
		key := timeKey(t.SavedAt)
		if raw := b.Get(key); raw != nil {
			var existing testRecord
			if err := json.Unmarshal(raw, &existing); err != nil {
				return nil, fmt.Errorf("invalid test record: %w", err)
			}
			if !existing.toDomain().Equivalent(t) {
				return nil, &domain.TimestampConflictError{Kind: "test", SavedAt: t.SavedAt}
			}
			t.ID = existing.ID
			written = append(written, t)
			continue
		}

		seq, err := top.NextSequence()
		if err != nil {
			return nil, err
		}
		t.ID = int64(seq)
		raw, err := json.Marshal(toTestRecord(t))
		if err != nil {
			return nil, err
		}
		if err := b.Put(key, raw); err != nil {
			return nil, err
		}
		written = append(written, t)
	}
	return written, nil
}
