package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DB_PATH", "HARVEST_INTERVAL", "FETCH_TIMEOUT", "PRUNE_STALE", "OTEL_PROTOCOL", "CLICKHOUSE_ENABLED", "MCP_PORT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "vpngate.db" || cfg.HarvestInterval != time.Hour || cfg.FetchTimeout != 20*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.PruneStale || cfg.ClickHouseEnabled {
		t.Errorf("optional features enabled by default: %+v", cfg)
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{name: "go duration", value: "90s", want: 90 * time.Second},
		{name: "plain seconds", value: "120", want: 2 * time.Minute},
		{name: "garbage falls back", value: "soon", want: time.Hour},
		{name: "unset", value: "", want: time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			if got := getEnvDuration("TEST_DURATION", time.Hour); got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DBPath:          "x.db",
			SourceURL:       "http://example/api",
			HarvestInterval: time.Hour,
			FetchTimeout:    time.Second,
			MCPPort:         8080,
			OTELProtocol:    "grpc",
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "interval too short", mutate: func(c *Config) { c.HarvestInterval = time.Second }, wantErr: true},
		{name: "bad protocol", mutate: func(c *Config) { c.OTELProtocol = "udp" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.MCPPort = 70000 }, wantErr: true},
		{name: "clickhouse without db", mutate: func(c *Config) { c.ClickHouseEnabled = true; c.ClickHouseHost = "h"; c.ClickHousePort = 9000 }, wantErr: true},
		{name: "clickhouse disabled ignores fields", mutate: func(c *Config) { c.ClickHousePort = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
