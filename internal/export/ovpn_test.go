package export

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/SteelMorgan/vpngate-harvester/internal/snapshot"
)

const vpngateHeader = "HostName,IP,Score,Ping,Speed,CountryLong,CountryShort,NumVpnSessions,Uptime,TotalUsers,TotalTraffic,LogType,Operator,Message,OpenVPN_ConfigData_Base64"

func row(name, config string) string {
	return name + ",219.100.37.1,100,13,54722431,Japan,JP,42,1189531640,98000,1257418080832,2weeks,op,," + config
}

func TestWriteProfiles(t *testing.T) {
	profile := "client\ndev tun\nproto udp\n"
	encoded := base64.StdEncoding.EncodeToString([]byte(profile))

	doc, err := snapshot.Parse(strings.Join([]string{
		"*vpn_servers",
		"#" + vpngateHeader,
		row("public-vpn-1", encoded),
		row("../../etc/passwd", encoded),
		row("public-vpn-2", "!!not-base64!!"),
		row("", encoded),
		"*",
	}, "\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "ovpns")
	report, err := WriteProfiles(dir, doc)
	if err != nil {
		t.Fatalf("WriteProfiles: %v", err)
	}
	if len(report.Written) != 2 || report.Skipped != 2 {
		t.Fatalf("report = %+v", report)
	}

	got, err := os.ReadFile(filepath.Join(dir, "public-vpn-1.ovpn"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != profile {
		t.Errorf("profile = %q", got)
	}

	for _, path := range report.Written {
		if filepath.Dir(path) != dir {
			t.Errorf("%s escaped %s", path, dir)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"public-vpn-1":    "public-vpn-1",
		" vpn 42 ":        "vpn_42",
		"../x":            "_x",
		"a/b\\c":          "a_b_c",
		"..":              "",
		"vpn.example.jp.": "vpn.example.jp",
	}
	for in, want := range tests {
		if got := fileName(in); got != want {
			t.Errorf("fileName(%q) = %q, want %q", in, got, want)
		}
	}
}
