package snapshot

import (
	"encoding/csv"
	"strings"
)

// Render writes header and rows in the snapshot layout accepted by Parse,
// framed by a leading and trailing comment line. Trailing blanks of the
// last cell do not survive Parse, which trims every line.
func Render(header []string, rows [][]string) (string, error) {
	var sb strings.Builder
	sb.WriteString("*vpn_servers\n")
	sb.WriteString(headerPrefix)

	line, err := encodeLine(header)
	if err != nil {
		return "", err
	}
	sb.WriteString(line)

	for _, row := range rows {
		line, err := encodeLine(row)
		if err != nil {
			return "", err
		}
		// A bare leading '#' or '*' would read back as a header or comment
		if len(row) > 0 && isMarked(row[0]) && !strings.HasPrefix(line, `"`) {
			line = `"` + row[0] + `"` + line[len(row[0]):]
		}
		sb.WriteString(line)
	}

	sb.WriteString("*\n")
	return sb.String(), nil
}

func encodeLine(record []string) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(record); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func isMarked(field string) bool {
	return strings.HasPrefix(field, commentPrefix) || strings.HasPrefix(field, headerPrefix)
}
