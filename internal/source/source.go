// Package source loads playlist text from URLs, local files or stdin.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/parser"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/pkg/segment"
)

// StdinLocation makes Load read from standard input.
const StdinLocation = "-"

// MaxBodySize caps how much of a playlist is read into memory.
const MaxBodySize = 32 << 20

// ErrTooLarge is returned when a playlist is longer than the loader's limit.
var ErrTooLarge = errors.New("playlist too large")

// Document is raw playlist text together with where it came from.
type Document struct {
	// Location is the URL or path the content was loaded from
	Location string

	// Body is the full playlist text
	Body string
}

// Loader fetches playlist documents.
type Loader struct {
	client  *http.Client
	stdin   io.Reader
	maxSize int64
	logger  *slog.Logger
}

// New creates a Loader with a 30 second HTTP timeout.
func New(logger *slog.Logger) *Loader {
	return &Loader{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		stdin:   os.Stdin,
		maxSize: MaxBodySize,
		logger:  logger,
	}
}

// Load reads the playlist at location. http and https URLs are fetched,
// StdinLocation reads standard input, and anything else is treated as a path.
func (l *Loader) Load(ctx context.Context, location string) (*Document, error) {
	var (
		body []byte
		err  error
	)

	switch {
	case location == StdinLocation:
		l.logger.Debug("reading playlist from stdin")
		body, err = l.readAll(l.stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	case isRemote(location):
		body, err = l.fetch(ctx, location)
		if err != nil {
			return nil, err
		}
	default:
		l.logger.Debug("reading playlist file", "path", location)
		body, err = l.readFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to read playlist: %w", err)
		}
	}

	return &Document{Location: location, Body: string(body)}, nil
}

// LoadAndParse loads location and parses the result.
func (l *Loader) LoadAndParse(ctx context.Context, location string) (*parser.MediaPlaylist, error) {
	doc, err := l.Load(ctx, location)
	if err != nil {
		return nil, err
	}

	pl, err := parser.Parse(doc.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse playlist: %w", err)
	}

	l.logger.Debug("parsed playlist",
		"location", location,
		"segments", len(pl.Segments),
		"runs", len(pl.Discontinuities),
		"ended", pl.Ended,
	)
	return pl, nil
}

func (l *Loader) fetch(ctx context.Context, playlistURL string) ([]byte, error) {
	l.logger.Debug("fetching playlist", "url", playlistURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch playlist: HTTP %d", resp.StatusCode)
	}

	body, err := l.readAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read playlist body: %w", err)
	}
	return body, nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return l.readAll(f)
}

// readAll reads r to EOF, failing rather than truncating when r holds more
// than maxSize bytes.
func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, l.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > l.maxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, l.maxSize)
	}
	return body, nil
}

func isRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ResolveURL resolves a possibly relative URL against a base URL.
func ResolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}

// ResolveSegments returns a copy of pl whose segment URIs are absolute,
// resolved against baseURL. pl itself is not modified.
func ResolveSegments(baseURL string, pl *parser.MediaPlaylist) (*parser.MediaPlaylist, error) {
	resolved := *pl
	resolved.Segments = make([]segment.Segment, len(pl.Segments))

	for i, seg := range pl.Segments {
		uri, err := ResolveURL(baseURL, seg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve segment %d: %w", i, err)
		}
		seg.URI = uri
		resolved.Segments[i] = seg
	}

	// Runs are rebuilt from the resolved flat list so the partition still
	// reproduces Segments exactly.
	resolved.Discontinuities = make([]segment.DiscontinuityRun, len(pl.Discontinuities))
	start := 0
	for i, run := range pl.Discontinuities {
		end := start + len(run.Segments)
		resolved.Discontinuities[i] = segment.NewRun(resolved.Segments[start:end])
		start = end
	}

	return &resolved, nil
}
