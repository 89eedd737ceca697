package cluster

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hashicorp/raft"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/catalog"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/parser"
)

const testPlaylist = `#EXTM3U
#EXT-X-VERSION:0
#EXT-X-TARGETDURATION:10
#EXTINF:9.5,
a.ts
#EXTINF:10,
b.ts
#EXT-X-DISCONTINUITY
#EXTINF:4.25,
c.ts
#EXT-X-ENDLIST
`

func testEntry(t *testing.T, name string) catalog.Entry {
	t.Helper()

	pl, err := parser.Parse(testPlaylist)
	if err != nil {
		t.Fatalf("failed to parse test playlist: %v", err)
	}
	return catalog.Entry{
		Name:     name,
		Source:   "upload",
		ParsedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Playlist: pl,
	}
}

func applyCommand(t *testing.T, fsm *CatalogFSM, cmd Command) any {
	t.Helper()

	data, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("failed to encode command: %v", err)
	}
	return fsm.Apply(&raft.Log{Data: data})
}

func TestCatalogFSM_Apply_Put(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewCatalogFSM(logger)

	if resp := applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "show"))}); resp != nil {
		t.Fatalf("Apply() response = %v, want nil", resp)
	}

	entry, err := fsm.Get("show")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if entry.Source != "upload" {
		t.Errorf("Source = %q, want upload", entry.Source)
	}
	if !entry.ParsedAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("ParsedAt = %v", entry.ParsedAt)
	}

	pl := entry.Playlist
	if pl.TargetDuration != 10 {
		t.Errorf("TargetDuration = %d, want 10", pl.TargetDuration)
	}
	if pl.Version == nil || *pl.Version != 0 {
		t.Errorf("Version = %v, want explicit 0", pl.Version)
	}
	if !pl.Ended {
		t.Error("Ended should survive encoding")
	}
	if len(pl.Segments) != 3 {
		t.Fatalf("Segments = %d, want 3", len(pl.Segments))
	}
	if pl.Segments[2].Duration != 4250*time.Millisecond {
		t.Errorf("Segments[2].Duration = %v, want 4.25s", pl.Segments[2].Duration)
	}
	if len(pl.Discontinuities) != 2 {
		t.Fatalf("Discontinuities = %d, want 2", len(pl.Discontinuities))
	}
	if pl.Discontinuities[0].TotalDuration != 19500*time.Millisecond {
		t.Errorf("Discontinuities[0].TotalDuration = %v, want 19.5s", pl.Discontinuities[0].TotalDuration)
	}
}

func TestCatalogFSM_Apply_NoVersion(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewCatalogFSM(logger)

	entry := testEntry(t, "plain")
	entry.Playlist.Version = nil
	applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(entry)})

	got, err := fsm.Get("plain")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Playlist.Version != nil {
		t.Errorf("Version = %d, want nil", *got.Playlist.Version)
	}
}

func TestCatalogFSM_Apply_Delete(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewCatalogFSM(logger)

	applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "a"))})
	applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "b"))})

	tests := []struct {
		name    string
		target  string
		wantErr error
		wantLen int
	}{
		{"existing entry", "a", nil, 1},
		{"already deleted", "a", catalog.ErrNotFound, 1},
		{"never stored", "zzz", catalog.ErrNotFound, 1},
		{"last entry", "b", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := applyCommand(t, fsm, Command{Type: CommandDelete, Data: DeleteCommand{Name: tt.target}})

			if tt.wantErr == nil {
				if resp != nil {
					t.Errorf("Apply() response = %v, want nil", resp)
				}
			} else {
				err, ok := resp.(error)
				if !ok || !errors.Is(err, tt.wantErr) {
					t.Errorf("Apply() response = %v, want %v", resp, tt.wantErr)
				}
			}
			if fsm.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", fsm.Len(), tt.wantLen)
			}
		})
	}
}

func TestCatalogFSM_Apply_Invalid(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewCatalogFSM(logger)

	tests := []struct {
		name string
		cmd  Command
	}{
		{"unknown type", Command{Type: 99, Data: DeleteCommand{Name: "a"}}},
		{"put with delete data", Command{Type: CommandPut, Data: DeleteCommand{Name: "a"}}},
		{"delete with put data", Command{Type: CommandDelete, Data: NewPutCommand(testEntry(t, "a"))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := applyCommand(t, fsm, tt.cmd)
			if _, ok := resp.(error); !ok {
				t.Errorf("Apply() response = %v, want an error", resp)
			}
		})
	}

	if resp := fsm.Apply(&raft.Log{Data: []byte("garbage")}); resp == nil {
		t.Error("Apply() of undecodable data should return an error")
	}
	if fsm.Len() != 0 {
		t.Errorf("Len() = %d, want 0", fsm.Len())
	}
}

func TestCatalogFSM_SnapshotRestore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewCatalogFSM(logger)

	applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "one"))})
	applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "two"))})

	snapshot, err := fsm.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	defer snapshot.Release()

	// Later writes must not leak into the snapshot
	applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "three"))})

	// Persist snapshot
	var buf bytes.Buffer
	sink := &mockSnapshotSink{buf: &buf}
	if err := snapshot.Persist(sink); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	// Restore into an FSM that already holds unrelated state
	fsm2 := NewCatalogFSM(logger)
	applyCommand(t, fsm2, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "stale"))})
	if err := fsm2.Restore(io.NopCloser(&buf)); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	list := fsm2.List()
	if len(list) != 2 || list[0].Name != "one" || list[1].Name != "two" {
		t.Fatalf("List() = %s, want [one two]", names(list))
	}
	if v := list[0].Playlist.Version; v == nil || *v != 0 {
		t.Errorf("restored Version = %v, want explicit 0", v)
	}
	if len(list[1].Playlist.Discontinuities) != 2 {
		t.Errorf("restored Discontinuities = %d, want 2", len(list[1].Playlist.Discontinuities))
	}
}

func TestCatalogFSM_Restore_Corrupt(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewCatalogFSM(logger)
	applyCommand(t, fsm, Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "keep"))})

	if err := fsm.Restore(io.NopCloser(bytes.NewBufferString("not gob"))); err == nil {
		t.Fatal("Restore() of corrupt data should fail")
	}
	if _, err := fsm.Get("keep"); err != nil {
		t.Errorf("failed restore should leave state intact, Get() error = %v", err)
	}
}

func TestCatalogFSM_Concurrent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	fsm := NewCatalogFSM(logger)

	putData, err := EncodeCommand(Command{Type: CommandPut, Data: NewPutCommand(testEntry(t, "hot"))})
	if err != nil {
		t.Fatalf("failed to encode put command: %v", err)
	}

	// Concurrent reads and writes
	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = fsm.List()
				_, _ = fsm.Get("hot")
			}
			done <- true
		}()
	}

	go func() {
		for j := 0; j < 50; j++ {
			fsm.Apply(&raft.Log{Data: putData})
		}
		done <- true
	}()

	// Wait for all goroutines
	for i := 0; i < 11; i++ {
		<-done
	}

	if fsm.Len() != 1 {
		t.Errorf("Len() = %d, want 1", fsm.Len())
	}
}

// mockSnapshotSink implements raft.SnapshotSink for testing.
type mockSnapshotSink struct {
	buf *bytes.Buffer
}

func (m *mockSnapshotSink) Write(p []byte) (n int, err error) {
	return m.buf.Write(p)
}

func (m *mockSnapshotSink) Close() error {
	return nil
}

func (m *mockSnapshotSink) ID() string {
	return "mock"
}

func (m *mockSnapshotSink) Cancel() error {
	return nil
}
