// Package cluster replicates the playlist catalog across nodes with Raft.
package cluster

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/catalog"
)

func init() {
	// Register types for gob encoding/decoding
	gob.Register(PutCommand{})
	gob.Register(DeleteCommand{})
}

// CommandType identifies the type of Raft command.
type CommandType uint8

const (
	// CommandPut stores or replaces a catalog entry.
	CommandPut CommandType = 1
	// CommandDelete removes a catalog entry.
	CommandDelete CommandType = 2
)

// Command represents a Raft log command.
type Command struct {
	Type CommandType
	Data any
}

// PutCommand stores Entry under Entry.Name.
//
// gob drops pointers to zero values, so an explicit "#EXT-X-VERSION:0" would
// decode as no version at all. VersionSet carries the presence bit.
type PutCommand struct {
	Entry      catalog.Entry
	VersionSet bool
}

// NewPutCommand wraps entry for replication.
func NewPutCommand(entry catalog.Entry) PutCommand {
	return PutCommand{
		Entry:      entry,
		VersionSet: entry.Playlist != nil && entry.Playlist.Version != nil,
	}
}

func (c PutCommand) entry() catalog.Entry {
	e := c.Entry
	if c.VersionSet && e.Playlist != nil && e.Playlist.Version == nil {
		e.Playlist.Version = new(uint32)
	}
	return e
}

// DeleteCommand removes the entry called Name.
type DeleteCommand struct {
	Name string
}

// CatalogFSM implements the raft.FSM interface over a name -> entry map.
type CatalogFSM struct {
	mu      sync.RWMutex
	entries map[string]catalog.Entry
	logger  *slog.Logger
}

// NewCatalogFSM creates an empty CatalogFSM.
func NewCatalogFSM(logger *slog.Logger) *CatalogFSM {
	return &CatalogFSM{
		entries: make(map[string]catalog.Entry),
		logger:  logger,
	}
}

// Apply applies a Raft log entry to the FSM. The returned value is nil on
// success or an error, and reaches the proposer through ApplyFuture.Response.
func (f *CatalogFSM) Apply(log *raft.Log) any {
	var cmd Command
	if err := gob.NewDecoder(bytes.NewReader(log.Data)).Decode(&cmd); err != nil {
		f.logger.Error("failed to decode command", "error", err)
		return fmt.Errorf("decode command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Type {
	case CommandPut:
		return f.applyPut(cmd.Data)
	case CommandDelete:
		return f.applyDelete(cmd.Data)
	default:
		f.logger.Error("unknown command type", "type", cmd.Type)
		return fmt.Errorf("unknown command type: %d", cmd.Type)
	}
}

func (f *CatalogFSM) applyPut(data any) any {
	put, ok := data.(PutCommand)
	if !ok {
		return fmt.Errorf("invalid put command data")
	}

	f.entries[put.Entry.Name] = put.entry()
	f.logger.Debug("applied put", "name", put.Entry.Name)
	return nil
}

func (f *CatalogFSM) applyDelete(data any) any {
	del, ok := data.(DeleteCommand)
	if !ok {
		return fmt.Errorf("invalid delete command data")
	}

	if _, ok := f.entries[del.Name]; !ok {
		return fmt.Errorf("%w: %s", catalog.ErrNotFound, del.Name)
	}
	delete(f.entries, del.Name)
	f.logger.Debug("applied delete", "name", del.Name)
	return nil
}

// Snapshot returns an FSMSnapshot for creating a point-in-time snapshot.
func (f *CatalogFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return &fsmSnapshot{records: f.records()}, nil
}

// Restore restores the FSM state from a snapshot.
func (f *CatalogFSM) Restore(snapshot io.ReadCloser) error {
	defer snapshot.Close()

	var records []PutCommand
	if err := gob.NewDecoder(snapshot).Decode(&records); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	entries := make(map[string]catalog.Entry, len(records))
	for _, rec := range records {
		entries[rec.Entry.Name] = rec.entry()
	}

	f.mu.Lock()
	f.entries = entries
	f.mu.Unlock()

	f.logger.Info("restored catalog from snapshot", "entries", len(entries))
	return nil
}

// Get returns the entry stored under name.
func (f *CatalogFSM) Get(name string) (catalog.Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entry, ok := f.entries[name]
	if !ok {
		return catalog.Entry{}, fmt.Errorf("%w: %s", catalog.ErrNotFound, name)
	}
	return entry, nil
}

// List returns every entry ordered by name.
func (f *CatalogFSM) List() []catalog.Entry {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return catalog.SortedEntries(f.entries)
}

// Len returns the number of entries.
func (f *CatalogFSM) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// records lists the catalog in name order. Entries are never mutated after
// being applied, so sharing their playlists is safe. Caller must hold the lock.
func (f *CatalogFSM) records() []PutCommand {
	sorted := catalog.SortedEntries(f.entries)
	out := make([]PutCommand, len(sorted))
	for i, e := range sorted {
		out[i] = NewPutCommand(e)
	}
	return out
}

// fsmSnapshot implements raft.FSMSnapshot.
type fsmSnapshot struct {
	records []PutCommand
}

// Persist writes the snapshot to the given sink.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.records); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("write snapshot: %w", err)
	}

	return sink.Close()
}

// Release releases any resources held by the snapshot.
func (s *fsmSnapshot) Release() {}

// EncodeCommand encodes a command for Raft submission.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return buf.Bytes(), nil
}
