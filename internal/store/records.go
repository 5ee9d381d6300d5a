package store

import (
	"encoding/binary"
	"time"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

type identityRecord struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	IP               string `json:"ip,omitempty"`
	CountryCode      string `json:"country_code"`
	CountryName      string `json:"country_name"`
	LogType          string `json:"log_type,omitempty"`
	OperatorName     string `json:"operator_name,omitempty"`
	OperatorMessage  string `json:"operator_message,omitempty"`
	OvpnConfigBase64 string `json:"ovpn_config_base64,omitempty"`
}

type metricRecord struct {
	ID           int64     `json:"id"`
	SavedAt      time.Time `json:"saved_at"`
	Score        int64     `json:"score"`
	PingMs       int64     `json:"ping_ms"`
	SpeedBps     int64     `json:"speed_bps"`
	Sessions     int64     `json:"num_vpn_sessions"`
	UptimeMs     int64     `json:"uptime_ms"`
	TotalUsers   int64     `json:"total_users"`
	TrafficBytes int64     `json:"total_traffic_bytes"`
}

type testRecord struct {
	ID       int64     `json:"id"`
	SavedAt  time.Time `json:"saved_at"`
	PingMs   int64     `json:"ping_ms"`
	SpeedBps int64     `json:"speed_bps"`
}

func toIdentityRecord(s domain.ServerIdentity) identityRecord {
	return identityRecord{
		ID:               s.ID,
		Name:             s.Name,
		IP:               domain.AddressString(s.Address),
		CountryCode:      s.CountryCode,
		CountryName:      s.CountryName,
		LogType:          s.LogType,
		OperatorName:     s.OperatorName,
		OperatorMessage:  s.OperatorMessage,
		OvpnConfigBase64: s.OvpnConfigBase64,
	}
}

func (r identityRecord) toDomain() domain.ServerIdentity {
	return domain.ServerIdentity{
		ID:               r.ID,
		Name:             r.Name,
		Address:          domain.ParseAddressOrNil(r.IP),
		CountryCode:      r.CountryCode,
		CountryName:      r.CountryName,
		LogType:          r.LogType,
		OperatorName:     r.OperatorName,
		OperatorMessage:  r.OperatorMessage,
		OvpnConfigBase64: r.OvpnConfigBase64,
	}
}

func toMetricRecord(m domain.MetricSample) metricRecord {
	return metricRecord{
		ID:           m.ID,
		SavedAt:      m.SavedAt,
		Score:        m.Score,
		PingMs:       m.Ping,
		SpeedBps:     m.Speed,
		Sessions:     m.SessionCount,
		UptimeMs:     m.Uptime,
		TotalUsers:   m.TotalUsers,
		TrafficBytes: m.TotalTraffic,
	}
}

func (r metricRecord) toDomain() domain.MetricSample {
	return domain.MetricSample{
		ID:           r.ID,
		SavedAt:      domain.NormalizeTime(r.SavedAt),
		Score:        r.Score,
		Ping:         r.PingMs,
		Speed:        r.SpeedBps,
		SessionCount: r.Sessions,
		Uptime:       r.UptimeMs,
		TotalUsers:   r.TotalUsers,
		TotalTraffic: r.TrafficBytes,
	}
}

func toTestRecord(t domain.TestSample) testRecord {
	return testRecord{ID: t.ID, SavedAt: t.SavedAt, PingMs: t.Ping, SpeedBps: t.Speed}
}

func (r testRecord) toDomain() domain.TestSample {
	return domain.TestSample{ID: r.ID, SavedAt: domain.NormalizeTime(r.SavedAt), Ping: r.PingMs, Speed: r.SpeedBps}
}

// idKey encodes a sequence id so that keys sort numerically.
func idKey(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// timeKey encodes an instant so that keys sort chronologically, including
// instants before 1970.
func timeKey(t time.Time) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(domain.NormalizeTime(t).UnixNano())^(1<<63))
	return b
}
