package leader

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/hashicorp/raft"
)

// Command operation names applied through Raft.
const (
	OpSetQueueState  = "set_queue_state"
	OpSaveResource   = "save_resource"
	OpDeleteResource = "delete_resource"
)

// Command is a Raft log entry: an operation name plus its JSON payload.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type setQueueStateData struct {
	Name  string          `json:"name"`
	State types.QueueState `json:"state"`
}

// FSM replicates the queue table and resource pool across replicas.
type FSM struct {
	mu    sync.RWMutex
	store platform.Store
}

// NewFSM returns an FSM backed by store.
func NewFSM(store platform.Store) *FSM {
	return &FSM{store: store}
}

// Apply applies one committed Raft log entry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case OpSetQueueState:
		var data setQueueStateData
		if err := json.Unmarshal(cmd.Data, &data); err != nil {
			return err
		}
		return f.store.SetQueueState(data.Name, data.State)

	case OpSaveResource:
		var r types.Resource
		if err := json.Unmarshal(cmd.Data, &r); err != nil {
			return err
		}
		return f.saveResource(&r)

	case OpDeleteResource:
		var rid int
		if err := json.Unmarshal(cmd.Data, &rid); err != nil {
			return err
		}
		return f.deleteResource(rid)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

func (f *FSM) saveResource(r *types.Resource) error {
	bs, ok := f.store.(*platform.BoltStore)
	if !ok {
		return fmt.Errorf("resource replication requires a BoltStore-backed platform.Store")
	}
	return bs.SaveResource(r)
}

func (f *FSM) deleteResource(rid int) error {
	bs, ok := f.store.(*platform.BoltStore)
	if !ok {
		return fmt.Errorf("resource replication requires a BoltStore-backed platform.Store")
	}
	return bs.DeleteResource(rid)
}

// Snapshot captures the replicated queue table and resource pool.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	queues, err := f.store.ListQueues()
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	resources, err := f.store.ListResources()
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}

	return &Snapshot{Queues: queues, Resources: resources}, nil
}

// Restore replaces the local queue table and resource pool with the
// contents of a snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	bs, ok := f.store.(*platform.BoltStore)
	if !ok {
		return fmt.Errorf("snapshot restore requires a BoltStore-backed platform.Store")
	}
	for _, q := range snap.Queues {
		if err := bs.SaveQueue(q); err != nil {
			return fmt.Errorf("restore queue %s: %w", q.Name, err)
		}
	}
	for _, r := range snap.Resources {
		if err := bs.SaveResource(r); err != nil {
			return fmt.Errorf("restore resource %d: %w", r.RID, err)
		}
	}
	return nil
}

// Snapshot is the point-in-time replicated state.
type Snapshot struct {
	Queues    []*types.Queue
	Resources []*types.Resource
}

// Persist writes the snapshot to sink.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

// Release is a no-op; Snapshot holds no external resources.
func (s *Snapshot) Release() {}
