package snapshot

import (
	"sort"
	"strconv"

	"github.com/SteelMorgan/vpngate-harvester/internal/domain"
)

// Column headings published in the VPN Gate server list.
const (
	HeadingHostName     = "HostName"
	HeadingIP           = "IP"
	HeadingScore        = "Score"
	HeadingPing         = "Ping"
	HeadingSpeed        = "Speed"
	HeadingCountryLong  = "CountryLong"
	HeadingCountryShort = "CountryShort"
	HeadingSessions     = "NumVpnSessions"
	HeadingUptime       = "Uptime"
	HeadingTotalUsers   = "TotalUsers"
	HeadingTotalTraffic = "TotalTraffic"
	HeadingLogType      = "LogType"
	HeadingOperator     = "Operator"
	HeadingMessage      = "Message"
	HeadingOvpnConfig   = "OpenVPN_ConfigData_Base64"
)

// IdentityBindings maps identity headings onto ServerIdentity fields.
var IdentityBindings = []Binding[domain.ServerIdentity]{
	{Heading: HeadingHostName, Field: "name", Set: func(s *domain.ServerIdentity, v string) { s.Name = v }},
	{Heading: HeadingCountryShort, Field: "countryCode", Set: func(s *domain.ServerIdentity, v string) { s.CountryCode = v }},
	{Heading: HeadingCountryLong, Field: "countryName", Set: func(s *domain.ServerIdentity, v string) { s.CountryName = v }},
	{Heading: HeadingIP, Field: "address", Set: func(s *domain.ServerIdentity, v string) { s.Address = domain.ParseAddressOrNil(v) }},
	{Heading: HeadingLogType, Field: "logType", Set: func(s *domain.ServerIdentity, v string) { s.LogType = v }},
	{Heading: HeadingOperator, Field: "operatorName", Set: func(s *domain.ServerIdentity, v string) { s.OperatorName = v }},
	{Heading: HeadingMessage, Field: "operatorMessage", Set: func(s *domain.ServerIdentity, v string) { s.OperatorMessage = v }},
	{Heading: HeadingOvpnConfig, Field: "ovpnConfigBase64", Set: func(s *domain.ServerIdentity, v string) { s.OvpnConfigBase64 = v }},
}

// MetricBindings maps metric headings onto MetricSample fields.
var MetricBindings = []Binding[domain.MetricSample]{
	{Heading: HeadingScore, Field: "score", Set: func(m *domain.MetricSample, v string) { m.Score = parseCount(v) }},
	{Heading: HeadingPing, Field: "ping", Set: func(m *domain.MetricSample, v string) { m.Ping = parseCount(v) }},
	{Heading: HeadingSpeed, Field: "speed", Set: func(m *domain.MetricSample, v string) { m.Speed = parseCount(v) }},
	{Heading: HeadingSessions, Field: "sessionCount", Set: func(m *domain.MetricSample, v string) { m.SessionCount = parseCount(v) }},
	{Heading: HeadingUptime, Field: "uptime", Set: func(m *domain.MetricSample, v string) { m.Uptime = parseCount(v) }},
	{Heading: HeadingTotalUsers, Field: "totalUsers", Set: func(m *domain.MetricSample, v string) { m.TotalUsers = parseCount(v) }},
	{Heading: HeadingTotalTraffic, Field: "totalTraffic", Set: func(m *domain.MetricSample, v string) { m.TotalTraffic = parseCount(v) }},
}

// RecognizedHeadings returns the full heading set of a snapshot, sorted.
func RecognizedHeadings() []string {
	out := make([]string, 0, len(IdentityBindings)+len(MetricBindings))
	for _, b := range IdentityBindings {
		out = append(out, b.Heading)
	}
	for _, b := range MetricBindings {
		out = append(out, b.Heading)
	}
	sort.Strings(out)
	return out
}

// parseCount converts a published counter. Anything that is not a plain run
// of ASCII digits (empty, "-", signed, overflowing) becomes 0.
func parseCount(v string) int64 {
	if v == "" {
		return 0
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return 0
		}
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
