package cluster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/raft"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/catalog"
)

// ErrNotLeader is returned for writes submitted to a follower.
var ErrNotLeader = errors.New("not the raft leader")

// Manager runs a Raft node whose FSM is the playlist catalog. It implements
// catalog.Store: writes go through the Raft log, reads come from the local FSM.
type Manager struct {
	config    Config
	raft      *raft.Raft
	fsm       *CatalogFSM
	transport *raft.NetworkTransport
	raftLog   io.Writer
	logger    *slog.Logger
	mu        sync.RWMutex
	shutdown  bool
}

var _ catalog.Store = (*Manager)(nil)

// NewManager creates a new cluster manager. raftLog receives Raft's own log
// output when config.RaftLogLevel is not "off".
func NewManager(config Config, raftLog io.Writer, logger *slog.Logger) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if raftLog == nil {
		raftLog = io.Discard
	}

	return &Manager{
		config:  config,
		fsm:     NewCatalogFSM(logger),
		raftLog: raftLog,
		logger:  logger,
	}, nil
}

// Start initializes and starts the Raft node.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.raft != nil {
		return fmt.Errorf("cluster already started")
	}

	// Create Raft configuration
	raftConfig := raft.DefaultConfig()
	// Use bind address as LocalID for consistency with bootstrap configuration
	raftConfig.LocalID = raft.ServerID(m.config.BindAddr)
	raftConfig.HeartbeatTimeout = m.config.HeartbeatTimeout
	raftConfig.ElectionTimeout = m.config.ElectionTimeout
	raftConfig.LeaderLeaseTimeout = m.config.HeartbeatTimeout
	raftConfig.SnapshotInterval = m.config.SnapshotInterval
	raftConfig.SnapshotThreshold = m.config.SnapshotThreshold
	raftConfig.Logger = newRaftLogger(m.raftLog, m.config.RaftLogLevel)

	// Create in-memory stores
	logStore := raft.NewInmemStore()
	stableStore := raft.NewInmemStore()
	snapshotStore := raft.NewInmemSnapshotStore()

	addr, err := net.ResolveTCPAddr("tcp", m.config.BindAddr)
	if err != nil {
		return fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.config.BindAddr, addr, 3, 10*time.Second, raftLogOutput(m.raftLog, m.config.RaftLogLevel))
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}
	m.transport = transport

	r, err := raft.NewRaft(raftConfig, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		transport.Close()
		return fmt.Errorf("create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: make([]raft.Server, 0, len(m.config.Peers)),
	}

	for _, peer := range m.config.Peers {
		// Use peer address as both ID and address for simplicity
		configuration.Servers = append(configuration.Servers, raft.Server{
			ID:       raft.ServerID(peer),
			Address:  raft.ServerAddress(peer),
			Suffrage: raft.Voter,
		})
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		// The node may be joining an existing cluster
		m.logger.Error("failed to bootstrap cluster", "error", err)
	}

	m.logger.Info("cluster started",
		"node_id", m.config.RaftID,
		"bind", m.config.BindAddr,
		"peers", len(m.config.Peers))

	return nil
}

// Put replicates entry to every node.
func (m *Manager) Put(entry catalog.Entry) error {
	if err := catalog.ValidateName(entry.Name); err != nil {
		return err
	}
	if entry.Playlist == nil {
		return fmt.Errorf("entry %q has no playlist", entry.Name)
	}

	return m.apply(Command{Type: CommandPut, Data: NewPutCommand(entry)})
}

// Delete removes the entry called name from every node.
func (m *Manager) Delete(name string) error {
	return m.apply(Command{Type: CommandDelete, Data: DeleteCommand{Name: name}})
}

// Get returns the entry from this node's copy of the catalog.
func (m *Manager) Get(name string) (catalog.Entry, error) {
	return m.fsm.Get(name)
}

// List returns this node's copy of the catalog ordered by name.
func (m *Manager) List() []catalog.Entry {
	return m.fsm.List()
}

// Len returns the number of entries in this node's copy of the catalog.
func (m *Manager) Len() int {
	return m.fsm.Len()
}

func (m *Manager) apply(cmd Command) error {
	m.mu.RLock()
	if m.shutdown {
		m.mu.RUnlock()
		return fmt.Errorf("cluster is shut down")
	}
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return fmt.Errorf("cluster not started")
	}

	if r.State() != raft.Leader {
		return fmt.Errorf("%w: leader is %q", ErrNotLeader, m.LeaderAddr())
	}

	data, err := EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	future := r.Apply(data, m.config.ApplyTimeout)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			return fmt.Errorf("%w: leader is %q", ErrNotLeader, m.LeaderAddr())
		}
		return fmt.Errorf("apply command: %w", err)
	}

	if resp, ok := future.Response().(error); ok && resp != nil {
		return resp
	}
	return nil
}

// IsLeader returns true if this node is the Raft leader.
func (m *Manager) IsLeader() bool {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return false
	}

	return r.State() == raft.Leader
}

// LeaderAddr returns the address of the current Raft leader.
func (m *Manager) LeaderAddr() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return ""
	}

	leaderAddr, _ := r.LeaderWithID()
	return string(leaderAddr)
}

// State returns the current Raft state.
func (m *Manager) State() string {
	m.mu.RLock()
	r := m.raft
	m.mu.RUnlock()

	if r == nil {
		return "NotStarted"
	}

	return r.State().String()
}

// NodeID returns this node's Raft ID.
func (m *Manager) NodeID() string {
	return m.config.RaftID
}

// Shutdown gracefully shuts down the Raft node.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}

	m.shutdown = true

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			m.logger.Error("failed to shutdown raft", "error", err)
			return fmt.Errorf("shutdown raft: %w", err)
		}
	}

	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Error("failed to close transport", "error", err)
			return fmt.Errorf("close transport: %w", err)
		}
	}

	m.logger.Info("cluster shut down")
	return nil
}

// WaitForLeader blocks until a leader is elected or context is canceled.
func (m *Manager) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.LeaderAddr() != "" {
				return nil
			}
		}
	}
}
