package handlers

import (
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

// MetricView is the JSON shape of one metric sample
type MetricView struct {
	SavedAt      time.Time `json:"saved_at"`
	Score        int64     `json:"score"`
	PingMs       int64     `json:"ping_ms"`
	SpeedBps     int64     `json:"speed_bps"`
	Sessions     int64     `json:"sessions"`
	UptimeMs     int64     `json:"uptime_ms"`
	TotalUsers   int64     `json:"total_users"`
	TotalTraffic int64     `json:"total_traffic_bytes"`
}

// TestView is the JSON shape of one user test
type TestView struct {
	SavedAt  time.Time `json:"saved_at"`
	PingMs   int64     `json:"ping_ms"`
	SpeedBps int64     `json:"speed_bps"`
}

// IdentityView is the JSON shape of a server identity. OvpnConfig is only
// filled in full mode.
type IdentityView struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	CountryCode     string `json:"country_code,omitempty"`
	CountryName     string `json:"country_name,omitempty"`
	Address         string `json:"address,omitempty"`
	LogType         string `json:"log_type,omitempty"`
	OperatorName    string `json:"operator_name,omitempty"`
	OperatorMessage string `json:"operator_message,omitempty"`
	OvpnConfig      string `json:"ovpn_config_base64,omitempty"`
}

func newMetricView(m domain.MetricSample) MetricView {
	return MetricView{
		SavedAt:      m.SavedAt,
		Score:        m.Score,
		PingMs:       m.Ping,
		SpeedBps:     m.Speed,
		Sessions:     m.SessionCount,
		UptimeMs:     m.Uptime,
		TotalUsers:   m.TotalUsers,
		TotalTraffic: m.TotalTraffic,
	}
}

func newTestView(t domain.TestSample) TestView {
	return TestView{SavedAt: t.SavedAt, PingMs: t.Ping, SpeedBps: t.Speed}
}

func newIdentityView(id domain.ServerIdentity, full bool) IdentityView {
	v := IdentityView{
		ID:              id.ID,
		Name:            id.Name,
		CountryCode:     id.CountryCode,
		CountryName:     id.CountryName,
		Address:         domain.AddressString(id.Address),
		LogType:         id.LogType,
		OperatorName:    id.OperatorName,
		OperatorMessage: id.OperatorMessage,
	}
	if full {
		v.OvpnConfig = id.OvpnConfigBase64
	}
	return v
}
