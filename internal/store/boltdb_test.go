package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "servers.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newHistory(t *testing.T, name string, at time.Time, score int64) *domain.ServerHistory {
	t.Helper()
	h := domain.NewServerHistory(domain.ServerIdentity{
		Name:        name,
		CountryCode: "JP",
		CountryName: "Japan",
		Address:     domain.ParseAddressOrNil("219.100.37.1"),
	})
	if _, err := h.InsertMetric(domain.MetricSample{SavedAt: at, Score: score, Ping: 10}); err != nil {
		t.Fatalf("InsertMetric: %v", err)
	}
	return h
}

func TestBoltStore_UpsertAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	h := newHistory(t, "public-vpn-1", at, 100)
	res, err := s.Upsert(ctx, h)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !res.Inserted || res.ServerID == 0 {
		t.Errorf("result = %+v", res)
	}
	if h.Identity.ID != res.ServerID {
		t.Errorf("history id = %d, want %d", h.Identity.ID, res.ServerID)
	}
	m, _ := h.MetricAt(at)
	if m.ID == 0 {
		t.Error("metric id not written back")
	}

	// Second upsert has nothing new.
	res, err = s.Upsert(ctx, h)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if res.Inserted || len(res.Metrics) != 0 {
		t.Errorf("second result = %+v", res)
	}
}

func TestBoltStore_LoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	h := newHistory(t, "public-vpn-1", base, 100)
	if _, err := h.InsertMetric(domain.MetricSample{SavedAt: base.Add(time.Hour), Score: 200}); err != nil {
		t.Fatalf("InsertMetric: %v", err)
	}
	if _, err := h.InsertTest(domain.TestSample{SavedAt: base.Add(-time.Hour), Ping: 5, Speed: 1000}); err != nil {
		t.Fatalf("InsertTest: %v", err)
	}
	if _, err := s.Upsert(ctx, h); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	loaded, err := s.LoadByName(ctx, "public-vpn-1")
	if err != nil {
		t.Fatalf("LoadByName: %v", err)
	}
	if loaded == nil {
		t.Fatal("server not found")
	}
	if !loaded.Identity.Equal(&h.Identity) {
		t.Errorf("identity = %+v, want %+v", loaded.Identity, h.Identity)
	}

	want := h.Metrics()
	got := loaded.Metrics()
	if len(got) != len(want) {
		t.Fatalf("metrics = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("metric %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if loaded.TestCount() != 1 {
		t.Errorf("tests = %d, want 1", loaded.TestCount())
	}
}

func TestBoltStore_LoadByNameMissing(t *testing.T) {
	s := openTestStore(t)

	h, err := s.LoadByName(context.Background(), "nope")
	if err != nil {
		t.Fatalf("LoadByName: %v", err)
	}
	if h != nil {
		t.Errorf("expected nil history, got %+v", h)
	}
}

func TestBoltStore_UpsertAdoptsStoredID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first := newHistory(t, "public-vpn-1", at, 100)
	if _, err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// A fresh history for the same name, e.g. after a cache reset.
	second := newHistory(t, "public-vpn-1", at.Add(time.Hour), 300)
	res, err := s.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if res.Inserted || second.Identity.ID != first.Identity.ID {
		t.Errorf("id = %d, want %d (result %+v)", second.Identity.ID, first.Identity.ID, res)
	}

	loaded, err := s.LoadByName(ctx, "public-vpn-1")
	if err != nil {
		t.Fatalf("LoadByName: %v", err)
	}
	if loaded.MetricCount() != 2 {
		t.Errorf("metrics = %d, want 2", loaded.MetricCount())
	}
}

func TestBoltStore_UpsertConflicts(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("different metric at the same instant", func(t *testing.T) {
		s := openTestStore(t)
		if _, err := s.Upsert(ctx, newHistory(t, "a", at, 1)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		_, err := s.Upsert(ctx, newHistory(t, "a", at, 2))
		var tc *domain.TimestampConflictError
		if !errors.As(err, &tc) {
			t.Fatalf("expected TimestampConflictError, got %v", err)
		}
	})

	t.Run("foreign id", func(t *testing.T) {
		s := openTestStore(t)
		if _, err := s.Upsert(ctx, newHistory(t, "a", at, 1)); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		h := newHistory(t, "a", at.Add(time.Hour), 1)
		h.Identity.ID = 999
		_, err := s.Upsert(ctx, h)
		var ic *domain.IdConflictError
		if !errors.As(err, &ic) {
			t.Fatalf("expected IdConflictError, got %v", err)
		}
		if h.Identity.ID != 999 {
			t.Errorf("failed upsert changed id to %d", h.Identity.ID)
		}
	})

	t.Run("id without stored row", func(t *testing.T) {
		s := openTestStore(t)
		h := newHistory(t, "a", at, 1)
		h.Identity.ID = 7
		if _, err := s.Upsert(ctx, h); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestBoltStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := s.Upsert(ctx, newHistory(t, "a", at, 1)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := s.Upsert(ctx, newHistory(t, "b", at, 1)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	ok, err := s.Exists(ctx, "a")
	if err != nil || ok {
		t.Errorf("Exists(a) = %v, %v", ok, err)
	}

	all, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 1 || all[0].Name() != "b" {
		t.Errorf("remaining = %d servers", len(all))
	}

	// Re-adding the name starts with an empty history.
	if _, err := s.Upsert(ctx, newHistory(t, "a", at, 2)); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}
	h, err := s.LoadByName(ctx, "a")
	if err != nil {
		t.Fatalf("LoadByName: %v", err)
	}
	if h.MetricCount() != 1 {
		t.Errorf("metrics = %d, want 1", h.MetricCount())
	}
}

func TestTimeKey_SortsChronologically(t *testing.T) {
	times := []time.Time{
		time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 1, time.UTC),
	}
	for i := 1; i < len(times); i++ {
		if string(timeKey(times[i-1])) >= string(timeKey(times[i])) {
			t.Errorf("timeKey(%v) does not sort before timeKey(%v)", times[i-1], times[i])
		}
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "servers.db")

	if _, err := OpenReadOnly(path + ".missing"); err == nil {
		t.Error("expected error for missing file")
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.Upsert(ctx, newHistory(t, "a", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ro, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer ro.Close()

	ok, err := ro.Exists(ctx, "a")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}
