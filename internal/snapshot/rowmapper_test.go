package snapshot

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

type pair struct {
	A, B string
}

var pairBindings = []Binding[pair]{
	{Heading: "a", Field: "A", Set: func(p *pair, v string) { p.A = v }},
	{Heading: "b", Field: "B", Set: func(p *pair, v string) { p.B = v }},
}

func TestRowMapper_Map(t *testing.T) {
	m := NewRowMapper(pairBindings, nil)

	got, err := m.Map([]string{"x", "b", "a"}, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got != (pair{A: "3", B: "2"}) {
		t.Errorf("Map = %+v", got)
	}
}

func TestRowMapper_ShortRow(t *testing.T) {
	m := NewRowMapper(pairBindings, nil)

	got, err := m.Map([]string{"a", "b"}, []string{"1"})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got != (pair{A: "1"}) {
		t.Errorf("Map = %+v", got)
	}
}

func TestRowMapper_MissingHeading(t *testing.T) {
	cache := NewHeadingCache()
	m := NewRowMapper(pairBindings, cache)

	_, err := m.Map([]string{"a", "c"}, []string{"1", "2"})
	var he *HeadingError
	if !errors.As(err, &he) {
		t.Fatalf("expected HeadingError, got %v", err)
	}
	if he.Heading != "b" {
		t.Errorf("Heading = %q, want b", he.Heading)
	}
	if cache.Len() != 0 {
		t.Errorf("failed resolution must not be cached")
	}
}

func TestRowMapper_CachesPerHeaderTuple(t *testing.T) {
	cache := NewHeadingCache()
	m := NewRowMapper(pairBindings, cache)

	for i := 0; i < 100; i++ {
		if _, err := m.Map([]string{"a", "b"}, []string{"1", "2"}); err != nil {
			t.Fatalf("Map: %v", err)
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("cache size = %d, want 1", cache.Len())
	}

	// Same heading set in another order is a distinct header tuple.
	got, err := m.Map([]string{"b", "a"}, []string{"1", "2"})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got != (pair{A: "2", B: "1"}) {
		t.Errorf("Map = %+v", got)
	}
	if cache.Len() != 2 {
		t.Errorf("cache size = %d, want 2", cache.Len())
	}
}

func TestRowMapper_CachedAndUncachedAgree(t *testing.T) {
	header := strings.Split(vpngateHeader, ",")
	values := strings.Split(row("public-vpn-1", "219.100.37.1", "100"), ",")

	warm := NewDecoder(nil)
	if _, err := warm.DecodeRow(header, values, time.Unix(0, 0)); err != nil {
		t.Fatalf("warm-up: %v", err)
	}

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	cached, err := warm.DecodeRow(header, values, at)
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	fresh, err := NewDecoder(nil).DecodeRow(header, values, at)
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}

	if !cached.Identity.Equal(&fresh.Identity) {
		t.Errorf("identity differs: %+v vs %+v", cached.Identity, fresh.Identity)
	}
	cm, _ := cached.MetricAt(at)
	fm, _ := fresh.MetricAt(at)
	if cm != fm {
		t.Errorf("metric differs: %+v vs %+v", cm, fm)
	}
}

func TestHeadingCache_SharedBetweenMappers(t *testing.T) {
	cache := NewHeadingCache()
	header := strings.Split(vpngateHeader, ",")
	values := strings.Split(row("public-vpn-1", "219.100.37.1", "100"), ",")

	ids := NewRowMapper(IdentityBindings, cache)
	metrics := NewRowMapper(MetricBindings, cache)

	identity, err := ids.Map(header, values)
	if err != nil {
		t.Fatalf("identity Map: %v", err)
	}
	metric, err := metrics.Map(header, values)
	if err != nil {
		t.Fatalf("metric Map: %v", err)
	}
	if identity.Name != "public-vpn-1" || metric.Score != 100 {
		t.Errorf("unexpected mapping: %+v / %+v", identity, metric)
	}
	if cache.Len() != 2 {
		t.Errorf("each mapper keeps its own table, cache size = %d", cache.Len())
	}
}

func TestParseCount(t *testing.T) {
	tests := map[string]int64{
		"":                     0,
		"123":                  123,
		"-5":                   0,
		"+5":                   0,
		"1.5":                  0,
		"99999999999999999999": 0,
		"007":                  7,
	}
	for in, want := range tests {
		if got := parseCount(in); got != want {
			t.Errorf("parseCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestDecodeRow(t *testing.T) {
	header := strings.Split(vpngateHeader, ",")
	values := strings.Split(row("public-vpn-1", "219.100.37.1", "100"), ",")
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	h, err := NewDecoder(nil).DecodeRow(header, values, at)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}

	id := h.Identity
	if id.Name != "public-vpn-1" || id.CountryCode != "JP" || id.CountryName != "Japan" || id.HasID() {
		t.Errorf("identity = %+v", id)
	}
	if _, ok := id.Address.(domain.IPv4); !ok || id.Address.String() != "219.100.37.1" {
		t.Errorf("address = %v", id.Address)
	}

	m, ok := h.MetricAt(at)
	if !ok {
		t.Fatal("metric not stored at savedAt")
	}
	want := domain.MetricSample{
		SavedAt:      at,
		Score:        100,
		Ping:         13,
		Speed:        54722431,
		SessionCount: 42,
		Uptime:       1189531640,
		TotalUsers:   98000,
		TotalTraffic: 1257418080832,
	}
	if m != want {
		t.Errorf("metric = %+v, want %+v", m, want)
	}
}

func TestDecodeRow_InvalidAddressIsAbsent(t *testing.T) {
	header := strings.Split(vpngateHeader, ",")
	values := strings.Split(row("public-vpn-1", "not-an-ip", "100"), ",")

	h, err := NewDecoder(nil).DecodeRow(header, values, time.Now())
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if h.Identity.Address != nil {
		t.Errorf("address = %v, want nil", h.Identity.Address)
	}
}

func TestDecodeRow_EmptyName(t *testing.T) {
	header := strings.Split(vpngateHeader, ",")
	values := strings.Split(row("", "1.1.1.1", "100"), ",")

	if _, err := NewDecoder(nil).DecodeRow(header, values, time.Now()); err == nil {
		t.Fatal("expected error for empty host name")
	}
}

func TestEndToEnd_ThreeIdenticalObservationsCollapse(t *testing.T) {
	text := strings.Join([]string{
		"*vpn_servers",
		"#" + vpngateHeader,
		row("public-vpn-1", "219.100.37.1", "100"),
		row("public-vpn-1", "219.100.37.1", "100"),
		row("public-vpn-1", "219.100.37.1", "100"),
	}, "\n")

	doc, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	dec := NewDecoder(nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var history *domain.ServerHistory
	for i, r := range doc.Rows {
		h, err := dec.DecodeRow(doc.Header, r, base.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("DecodeRow: %v", err)
		}
		if history == nil {
			history = h
			continue
		}
		if _, err := history.MergeFrom(h); err != nil {
			t.Fatalf("MergeFrom: %v", err)
		}
	}

	if history.MetricCount() != 1 {
		t.Fatalf("metrics = %d, want 1", history.MetricCount())
	}
	if at, _ := history.LastMetricAt(); !at.Equal(base) {
		t.Errorf("retained sample at %v, want first observation %v", at, base)
	}
}
