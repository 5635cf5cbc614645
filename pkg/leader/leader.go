package leader

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/batchsched/pkg/metrics"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Config configures a replica's Raft participation.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Node wraps a Raft instance for one meta-scheduler replica.
type Node struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *FSM
}

// New returns a Node; call Bootstrap or Join to actually start Raft.
func New(cfg Config, fsm *FSM) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Node{nodeID: cfg.NodeID, bindAddr: cfg.BindAddr, dataDir: cfg.DataDir, fsm: fsm}, nil
}

func (n *Node) newRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(n.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", n.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(n.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create transport: %w", err)
	}
	snapshotStore, err := raft.NewFileSnapshotStore(n.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("create snapshot store: %w", err)
	}
	logStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(n.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, n.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("create raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap starts a new single-replica Raft cluster with this node as
// its only voting member.
func (n *Node) Bootstrap() error {
	r, transport, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{{ID: raft.ServerID(n.nodeID), Address: transport.LocalAddr()}},
	}
	if err := n.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	return nil
}

// Join starts Raft without bootstrapping, expecting the existing
// leader to call AddVoter for this node's ID/address (typically via
// the admin API's /raft/join handler).
func (n *Node) Join() error {
	r, _, err := n.newRaft()
	if err != nil {
		return err
	}
	n.raft = r
	return nil
}

// AddVoter adds a new replica to the cluster. Must be called on the
// current leader.
func (n *Node) AddVoter(nodeID, address string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", n.LeaderAddr())
	}
	if err := n.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a replica from the cluster. Must be called on
// the current leader.
func (n *Node) RemoveServer(nodeID string) error {
	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !n.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", n.LeaderAddr())
	}
	if err := n.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error(); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	return nil
}

// IsLeader reports whether this replica currently runs the scheduling
// loop.
func (n *Node) IsLeader() bool {
	return n.raft != nil && n.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's bind address, if known.
func (n *Node) LeaderAddr() string {
	if n.raft == nil {
		return ""
	}
	return string(n.raft.Leader())
}

// GetRaftStats returns a snapshot of Raft's internal counters, for the
// admin API's /status endpoint.
func (n *Node) GetRaftStats() map[string]interface{} {
	if n.raft == nil {
		return nil
	}
	stats := map[string]interface{}{
		"state":          n.raft.State().String(),
		"last_log_index": n.raft.LastIndex(),
		"applied_index":  n.raft.AppliedIndex(),
		"leader":         string(n.raft.Leader()),
		"peers":          uint64(0),
	}
	if cfg := n.raft.GetConfiguration(); cfg.Error() == nil {
		stats["peers"] = uint64(len(cfg.Configuration().Servers))
	}
	return stats
}

// ReportMetrics samples the current Raft leadership/peer-count state
// into metrics.RaftLeader/metrics.RaftPeers, for a caller to invoke
// periodically (GetRaftStats itself is pull-only and only hit when the
// admin API's /status endpoint is queried).
func (n *Node) ReportMetrics() {
	if n.raft == nil {
		return
	}
	if n.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}
	peers := float64(0)
	if cfg := n.raft.GetConfiguration(); cfg.Error() == nil {
		peers = float64(len(cfg.Configuration().Servers))
	}
	metrics.RaftPeers.Set(peers)
}

// Apply submits a command to the Raft log and waits for it to commit.
func (n *Node) Apply(cmd Command) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if n.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	future := n.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// SetQueueState replicates a queue state change through Raft.
func (n *Node) SetQueueState(name string, state types.QueueState) error {
	data, err := json.Marshal(setQueueStateData{Name: name, State: state})
	if err != nil {
		return err
	}
	return n.Apply(Command{Op: OpSetQueueState, Data: data})
}
