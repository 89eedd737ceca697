package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/parser"
)

const testPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.9,
segment001.ts
#EXT-X-DISCONTINUITY
#EXTINF:10.0,
segment002.ts
#EXTINF:10.1,
https://cdn.example.com/segment003.ts
#EXT-X-ENDLIST
`

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func TestLoad_HTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(testPlaylist))
	}))
	defer server.Close()

	doc, err := New(createTestLogger()).Load(context.Background(), server.URL+"/playlist.m3u8")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if doc.Body != testPlaylist {
		t.Errorf("Expected body to match served playlist, got %q", doc.Body)
	}
	if doc.Location != server.URL+"/playlist.m3u8" {
		t.Errorf("Expected location to be kept, got %s", doc.Location)
	}
}

func TestLoad_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := New(createTestLogger()).Load(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for HTTP 404, got nil")
	}
	if !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("Expected status in error, got %v", err)
	}
}

func TestLoad_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testPlaylist))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(createTestLogger()).Load(ctx, server.URL)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlist.m3u8")
	if err := os.WriteFile(path, []byte(testPlaylist), 0o644); err != nil {
		t.Fatalf("Failed to write playlist: %v", err)
	}

	doc, err := New(createTestLogger()).Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if doc.Body != testPlaylist {
		t.Errorf("Expected file content, got %q", doc.Body)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := New(createTestLogger()).Load(context.Background(), filepath.Join(t.TempDir(), "missing.m3u8"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestLoad_Stdin(t *testing.T) {
	loader := New(createTestLogger())
	loader.stdin = strings.NewReader(testPlaylist)

	doc, err := loader.Load(context.Background(), StdinLocation)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if doc.Body != testPlaylist {
		t.Errorf("Expected stdin content, got %q", doc.Body)
	}
}

func TestLoad_TooLarge(t *testing.T) {
	// A complete playlist one byte over the limit must fail, not parse as a prefix
	limit := int64(len(testPlaylist) - 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testPlaylist))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "playlist.m3u8")
	if err := os.WriteFile(path, []byte(testPlaylist), 0o644); err != nil {
		t.Fatalf("Failed to write playlist: %v", err)
	}

	tests := []struct {
		name     string
		location string
	}{
		{"stdin", StdinLocation},
		{"http", server.URL + "/playlist.m3u8"},
		{"file", path},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := New(createTestLogger())
			loader.maxSize = limit
			loader.stdin = strings.NewReader(testPlaylist)

			pl, err := loader.LoadAndParse(context.Background(), tt.location)
			if !errors.Is(err, ErrTooLarge) {
				t.Fatalf("Expected ErrTooLarge, got %v", err)
			}
			if pl != nil {
				t.Error("Expected no playlist when the input is over the limit")
			}
		})
	}
}

func TestLoad_AtLimit(t *testing.T) {
	loader := New(createTestLogger())
	loader.maxSize = int64(len(testPlaylist))
	loader.stdin = strings.NewReader(testPlaylist)

	pl, err := loader.LoadAndParse(context.Background(), StdinLocation)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !pl.Ended || len(pl.Segments) != 3 {
		t.Errorf("Expected the full playlist, got %d segments, ended=%t", len(pl.Segments), pl.Ended)
	}
}

func TestLoadAndParse(t *testing.T) {
	loader := New(createTestLogger())

	loader.stdin = strings.NewReader(testPlaylist)
	pl, err := loader.LoadAndParse(context.Background(), StdinLocation)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(pl.Segments) != 3 {
		t.Errorf("Expected 3 segments, got %d", len(pl.Segments))
	}

	loader.stdin = strings.NewReader("not a valid m3u8 file")
	_, err = loader.LoadAndParse(context.Background(), StdinLocation)
	if !errors.Is(err, parser.ErrHeaderMismatch) {
		t.Errorf("Expected ErrHeaderMismatch, got %v", err)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		relativeURL string
		expected    string
		shouldError bool
	}{
		{
			name:        "relative path",
			baseURL:     "http://example.com/path/playlist.m3u8",
			relativeURL: "segment.ts",
			expected:    "http://example.com/path/segment.ts",
		},
		{
			name:        "absolute URL",
			baseURL:     "http://example.com/playlist.m3u8",
			relativeURL: "https://cdn.example.com/segment.ts",
			expected:    "https://cdn.example.com/segment.ts",
		},
		{
			name:        "relative path with subdirectory",
			baseURL:     "http://example.com/playlist.m3u8",
			relativeURL: "segments/segment.ts",
			expected:    "http://example.com/segments/segment.ts",
		},
		{
			name:        "root relative path",
			baseURL:     "http://example.com/path/playlist.m3u8",
			relativeURL: "/segments/segment.ts",
			expected:    "http://example.com/segments/segment.ts",
		},
		{
			name:        "invalid base",
			baseURL:     "http://[::1",
			relativeURL: "segment.ts",
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolveURL(tt.baseURL, tt.relativeURL)
			if tt.shouldError && err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !tt.shouldError && err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if !tt.shouldError && result != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, result)
			}
		})
	}
}

func TestResolveSegments(t *testing.T) {
	pl, err := parser.Parse(testPlaylist)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	resolved, err := ResolveSegments("http://example.com/vod/playlist.m3u8", pl)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := []string{
		"http://example.com/vod/segment001.ts",
		"http://example.com/vod/segment002.ts",
		"https://cdn.example.com/segment003.ts",
	}
	for i, uri := range want {
		if resolved.Segments[i].URI != uri {
			t.Errorf("Segment %d: expected %s, got %s", i, uri, resolved.Segments[i].URI)
		}
	}

	if len(resolved.Discontinuities) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(resolved.Discontinuities))
	}
	if resolved.Discontinuities[1].Segments[0].URI != want[1] {
		t.Errorf("Expected runs to carry resolved URIs, got %s", resolved.Discontinuities[1].Segments[0].URI)
	}
	if resolved.Discontinuities[1].TotalDuration != pl.Discontinuities[1].TotalDuration {
		t.Errorf("Expected run total to be unchanged")
	}

	if pl.Segments[0].URI != "segment001.ts" {
		t.Errorf("Expected original playlist untouched, got %s", pl.Segments[0].URI)
	}
}
