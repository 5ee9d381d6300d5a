package export

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/SteelMorgan/vpngate-harvester/internal/snapshot"
	"github.com/rs/zerolog/log"
)

// ExportReport lists the profiles written by WriteProfiles
type ExportReport struct {
	Written []string // file paths
	Skipped int
}

// WriteProfiles decodes the OpenVPN configuration of every row into
// <dir>/<HostName>.ovpn. Rows without a host name or with an undecodable
// config are skipped.
func WriteProfiles(dir string, doc *snapshot.Document) (*ExportReport, error) {
	nameIdx := doc.Index(snapshot.HeadingHostName)
	cfgIdx := doc.Index(snapshot.HeadingOvpnConfig)
	if nameIdx < 0 || cfgIdx < 0 {
		return nil, fmt.Errorf("snapshot lacks %s or %s", snapshot.HeadingHostName, snapshot.HeadingOvpnConfig)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	report := &ExportReport{}
	for i, row := range doc.Rows {
		name := fileName(row[nameIdx])
		if name == "" {
			report.Skipped++
			log.Warn().Int("row", i).Msg("Skipping row without host name")
			continue
		}

		config, err := base64.StdEncoding.DecodeString(strings.TrimSpace(row[cfgIdx]))
		if err != nil || len(config) == 0 {
			report.Skipped++
			log.Warn().
				Err(err).
				Str("server_name", row[nameIdx]).
				Msg("Skipping row with invalid OpenVPN config")
			continue
		}

		path := filepath.Join(dir, name+".ovpn")
		if err := os.WriteFile(path, config, 0644); err != nil {
			return report, fmt.Errorf("failed to write %s: %w", path, err)
		}
		report.Written = append(report.Written, path)
	}

	log.Info().
		Str("dir", dir).
		Int("written", len(report.Written)).
		Int("skipped", report.Skipped).
		Msg("OpenVPN profiles exported")

	return report, nil
}

// fileName keeps host names from escaping the export directory
func fileName(host string) string {
	host = strings.TrimSpace(host)
	var b strings.Builder
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	return name
}
