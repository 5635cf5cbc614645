package leader

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/stretchr/testify/require"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForLeader(t *testing.T, n *Node) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n.IsLeader() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("node never became leader")
}

func TestBootstrapSingleNodeBecomesLeader(t *testing.T) {
	store, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	node, err := New(Config{NodeID: "sched-1", BindAddr: freeAddr(t), DataDir: t.TempDir()}, NewFSM(store))
	require.NoError(t, err)
	require.NoError(t, node.Bootstrap())

	waitForLeader(t, node)
	require.Equal(t, node.LeaderAddr(), node.LeaderAddr())

	stats := node.GetRaftStats()
	require.Equal(t, "Leader", stats["state"])
	require.Equal(t, uint64(1), stats["peers"])
}

func TestApplySetQueueStateReplicatesToStore(t *testing.T) {
	store, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", State: types.QueueActive}))

	node, err := New(Config{NodeID: "sched-1", BindAddr: freeAddr(t), DataDir: t.TempDir()}, NewFSM(store))
	require.NoError(t, err)
	require.NoError(t, node.Bootstrap())
	waitForLeader(t, node)

	require.NoError(t, node.SetQueueState("default", types.QueueNotActive))

	queues, err := store.ListQueues()
	require.NoError(t, err)
	require.Len(t, queues, 1)
	require.Equal(t, types.QueueNotActive, queues[0].State)
}

func TestApplyBeforeBootstrapFails(t *testing.T) {
	store, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	node, err := New(Config{NodeID: "sched-1", BindAddr: freeAddr(t), DataDir: t.TempDir()}, NewFSM(store))
	require.NoError(t, err)
	require.Error(t, node.Apply(Command{Op: OpSetQueueState}))
}

func TestAddVoterRequiresLeader(t *testing.T) {
	store, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	node, err := New(Config{NodeID: "sched-1", BindAddr: freeAddr(t), DataDir: t.TempDir()}, NewFSM(store))
	require.NoError(t, err)
	require.Error(t, node.AddVoter("sched-2", "127.0.0.1:9999"))
}
