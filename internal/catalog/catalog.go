// Package catalog stores parsed playlists by name.
package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/parser"
)

// ErrNotFound is returned when no entry exists for a name.
var ErrNotFound = errors.New("playlist not found")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Entry is a parsed playlist kept in the catalog.
type Entry struct {
	// Name identifies the entry
	Name string

	// Source is where the playlist text came from (URL, path, or "upload")
	Source string

	// ParsedAt is when the playlist was parsed
	ParsedAt time.Time

	// Playlist is the parse result
	Playlist *parser.MediaPlaylist
}

// Store is implemented by the in-process catalog and the replicated cluster catalog.
type Store interface {
	Put(entry Entry) error
	Get(name string) (Entry, error)
	List() []Entry
	Delete(name string) error
	Len() int
}

// ValidateName checks that name is usable as an entry key and URL path element.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid playlist name %q", name)
	}
	return nil
}

// Memory is a Store held in process memory.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	logger  *slog.Logger
}

// NewMemory creates an empty in-memory catalog.
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		logger:  logger,
	}
}

// Put stores entry, replacing any entry with the same name.
func (m *Memory) Put(entry Entry) error {
	if err := ValidateName(entry.Name); err != nil {
		return err
	}
	if entry.Playlist == nil {
		return fmt.Errorf("entry %q has no playlist", entry.Name)
	}

	m.mu.Lock()
	m.entries[entry.Name] = entry
	m.mu.Unlock()

	m.logger.Debug("stored playlist", "name", entry.Name, "segments", len(entry.Playlist.Segments))
	return nil
}

// Get returns the entry stored under name.
func (m *Memory) Get(name string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return entry, nil
}

// List returns every entry ordered by name.
func (m *Memory) List() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return SortedEntries(m.entries)
}

// Delete removes the entry stored under name.
func (m *Memory) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.entries, name)
	return nil
}

// Len returns the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// SortedEntries returns the values of entries ordered by name.
func SortedEntries(entries map[string]Entry) []Entry {
	list := make([]Entry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
