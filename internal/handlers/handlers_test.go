package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
	"github.com/SteelMorgan/vpngate-harvester/internal/store"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) store.Gateway {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "vpngate.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	servers := []struct {
		name, country string
		scores        []int64
	}{
		{"public-vpn-2", "JP", []int64{10, 20, 30}},
		{"public-vpn-1", "JP", []int64{5}},
		{"vpn-kr", "KR", []int64{7, 8}},
	}
	for _, srv := range servers {
		h := domain.NewServerHistory(domain.ServerIdentity{
			Name:             srv.name,
			CountryCode:      srv.country,
			Address:          domain.ParseAddressOrNil("219.100.37.1"),
			OvpnConfigBase64: "Y2xpZW50Cg==",
		})
		for i, score := range srv.scores {
			if _, err := h.InsertMetric(domain.MetricSample{
				SavedAt: base.Add(time.Duration(i) * time.Hour),
				Score:   score,
			}); err != nil {
				t.Fatalf("InsertMetric: %v", err)
			}
		}
		if _, err := s.Upsert(context.Background(), h); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return s
}

func TestListServers(t *testing.T) {
	h := NewListServersHandler(seedStore(t))

	tests := []struct {
		name      string
		params    ListServersParams
		wantNames []string
		total     int
		truncated bool
	}{
		{
			name:      "all ordered by name",
			params:    ListServersParams{},
			wantNames: []string{"public-vpn-1", "public-vpn-2", "vpn-kr"},
			total:     3,
		},
		{
			name:      "country filter ignores case",
			params:    ListServersParams{CountryCode: "jp"},
			wantNames: []string{"public-vpn-1", "public-vpn-2"},
			total:     2,
		},
		{
			name:      "limit truncates",
			params:    ListServersParams{Limit: 1},
			wantNames: []string{"public-vpn-1"},
			total:     3,
			truncated: true,
		},
		{
			name:      "no match",
			params:    ListServersParams{CountryCode: "US"},
			wantNames: []string{},
			total:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.ListServers(context.Background(), tt.params)
			if err != nil {
				t.Fatalf("ListServers: %v", err)
			}
			var res ListServersResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got := make([]string, 0, len(res.Servers))
			for _, s := range res.Servers {
				got = append(got, s.Name)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantNames, ",") {
				t.Errorf("names = %v, want %v", got, tt.wantNames)
			}
			if res.Total != tt.total || res.Truncated != tt.truncated {
				t.Errorf("total = %d truncated = %v", res.Total, res.Truncated)
			}
		})
	}
}

func TestListServers_Summary(t *testing.T) {
	out, err := NewListServersHandler(seedStore(t)).ListServers(context.Background(), ListServersParams{CountryCode: "KR"})
	if err != nil {
		t.Fatalf("ListServers: %v", err)
	}
	var res ListServersResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := res.Servers[0]
	if s.MetricCount != 2 || s.Latest == nil || s.Latest.Score != 8 {
		t.Errorf("summary = %+v", s)
	}
	if s.OvpnConfig != "" {
		t.Error("list_servers must not include the OpenVPN config")
	}
	if s.Address != "219.100.37.1" {
		t.Errorf("address = %q", s.Address)
	}
}

func TestListServers_Validation(t *testing.T) {
	h := NewListServersHandler(seedStore(t))
	for _, params := range []ListServersParams{
		{CountryCode: "JPN"},
		{Limit: -1},
		{Limit: maxLimit + 1},
	} {
		_, err := h.ListServers(context.Background(), params)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("ListServers(%+v) error = %v, want ValidationError", params, err)
		}
	}
}

func TestGetServerHistory(t *testing.T) {
	h := NewServerHistoryHandler(seedStore(t))

	tests := []struct {
		name       string
		params     ServerHistoryParams
		wantScores []int64
		wantOvpn   bool
	}{
		{
			name:       "whole history minimal",
			params:     ServerHistoryParams{Name: "public-vpn-2"},
			wantScores: []int64{10, 20, 30},
		},
		{
			name:       "bounds are inclusive",
			params:     ServerHistoryParams{Name: "public-vpn-2", From: base.Add(time.Hour), To: base.Add(2 * time.Hour)},
			wantScores: []int64{20, 30},
		},
		{
			name:       "open lower bound",
			params:     ServerHistoryParams{Name: "public-vpn-2", To: base},
			wantScores: []int64{10},
		},
		{
			name:       "full mode carries config",
			params:     ServerHistoryParams{Name: "public-vpn-1", Mode: ModeFull},
			wantScores: []int64{5},
			wantOvpn:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.GetServerHistory(context.Background(), tt.params)
			if err != nil {
				t.Fatalf("GetServerHistory: %v", err)
			}
			var res ServerHistoryResult
			if err := json.Unmarshal([]byte(out), &res); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(res.Metrics) != len(tt.wantScores) {
				t.Fatalf("metrics = %d, want %d", len(res.Metrics), len(tt.wantScores))
			}
			for i, m := range res.Metrics {
				if m.Score != tt.wantScores[i] {
					t.Errorf("metric %d score = %d, want %d", i, m.Score, tt.wantScores[i])
				}
			}
			if (res.Server.OvpnConfig != "") != tt.wantOvpn {
				t.Errorf("ovpn config present = %v", res.Server.OvpnConfig != "")
			}
		})
	}
}

func TestGetServerHistory_Errors(t *testing.T) {
	h := NewServerHistoryHandler(seedStore(t))

	_, err := h.GetServerHistory(context.Background(), ServerHistoryParams{Name: "missing"})
	if !errors.Is(err, ErrServerNotFound) {
		t.Errorf("missing server error = %v", err)
	}

	invalid := []ServerHistoryParams{
		{},
		{Name: "public-vpn-1", Mode: "verbose"},
		{Name: "public-vpn-1", From: base.Add(time.Hour), To: base},
	}
	for _, params := range invalid {
		_, err := h.GetServerHistory(context.Background(), params)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("GetServerHistory(%+v) error = %v, want ValidationError", params, err)
		}
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2025-03-01T12:00:00Z", base, false},
		{"2025-03-01 12:00", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.value, "from")
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTime(%q) error = %v", tt.value, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
