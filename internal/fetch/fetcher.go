package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

const maxSnapshotSize = 64 << 20

// Fetcher retrieves snapshot text. It never retries; a failed source is
// picked up again on the next harvest.
type Fetcher struct {
	http *http.Client
}

// NewFetcher creates a fetcher whose requests time out after timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchURL downloads a text/plain resource and decodes it using the charset
// from the Content-Type header.
func (f *Fetcher) FetchURL(ctx context.Context, url string) (string, error) {
	return f.fetch(ctx, url, true)
}

// FetchURLAnyType is FetchURL without the media type check.
func (f *Fetcher) FetchURLAnyType(ctx context.Context, url string) (string, error) {
	return f.fetch(ctx, url, false)
}

func (f *Fetcher) fetch(ctx context.Context, url string, requirePlain bool) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	res, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return "", fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return "", fmt.Errorf("request failed: %s", res.Status)
	}

	contentType := res.Header.Get("Content-Type")
	if requirePlain {
		mediaType, _, _ := mime.ParseMediaType(contentType)
		if !strings.EqualFold(mediaType, "text/plain") {
			return "", &MediaTypeError{URL: url, Got: mediaType}
		}
	}

	r, err := charset.NewReader(io.LimitReader(res.Body, maxSnapshotSize), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", url, err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}

	log.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Snapshot fetched")

	return string(body), nil
}

// ReadFile reads a snapshot saved on disk.
func (f *Fetcher) ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return string(data), nil
}

// MediaTypeError is returned when a source does not serve text/plain.
type MediaTypeError struct {
	URL string
	Got string
}

func (e *MediaTypeError) Error() string {
	return fmt.Sprintf("expected text/plain from %s, got %q", e.URL, e.Got)
}
