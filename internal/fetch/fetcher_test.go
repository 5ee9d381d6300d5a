package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetchURL(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        []byte
		want        string
		wantErr     bool
		mediaErr    bool
	}{
		{
			name:        "plain utf-8",
			status:      http.StatusOK,
			contentType: "text/plain; charset=utf-8",
			body:        []byte("*vpn_servers\n#HostName\n"),
			want:        "*vpn_servers\n#HostName\n",
		},
		{
			name:        "media type is case insensitive",
			status:      http.StatusOK,
			contentType: "Text/Plain",
			body:        []byte("ok"),
			want:        "ok",
		},
		{
			name:        "latin-1 is decoded",
			status:      http.StatusOK,
			contentType: "text/plain; charset=iso-8859-1",
			body:        []byte{'c', 'a', 'f', 0xE9},
			want:        "café",
		},
		{
			name:        "html rejected",
			status:      http.StatusOK,
			contentType: "text/html",
			body:        []byte("<html></html>"),
			wantErr:     true,
			mediaErr:    true,
		},
		{
			name:        "server error",
			status:      http.StatusServiceUnavailable,
			contentType: "text/plain",
			body:        []byte("busy"),
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(tt.status)
				w.Write(tt.body)
			}))
			defer srv.Close()

			got, err := NewFetcher(5*time.Second).FetchURL(context.Background(), srv.URL)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.mediaErr {
				var me *MediaTypeError
				if !errors.As(err, &me) {
					t.Errorf("expected MediaTypeError, got %v", err)
				}
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("FetchURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchURLAnyType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("data"))
	}))
	defer srv.Close()

	got, err := NewFetcher(5*time.Second).FetchURLAnyType(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchURLAnyType: %v", err)
	}
	if got != "data" {
		t.Errorf("got %q", got)
	}
}

func TestFetchURL_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFetcher(5*time.Second).FetchURL(ctx, srv.URL); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.csv")
	if err := os.WriteFile(path, []byte("#HostName\n"), 0644); err != nil {
		t.Fatal(err)
	}

	f := NewFetcher(time.Second)
	got, err := f.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "#HostName\n" {
		t.Errorf("ReadFile = %q", got)
	}

	if _, err := f.ReadFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
