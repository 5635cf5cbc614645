package energy

import (
	"context"
	"testing"

	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/resourceset"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	halted, woken []string
	checked       int
}

func (f *fakeAgent) Halt(ctx context.Context, hostnames []string) error {
	f.halted = append(f.halted, hostnames...)
	return nil
}
func (f *fakeAgent) WakeUp(ctx context.Context, hostnames []string) error {
	f.woken = append(f.woken, hostnames...)
	return nil
}
func (f *fakeAgent) Check(ctx context.Context) error { f.checked++; return nil }

func newStore(t *testing.T) *platform.BoltStore {
	t.Helper()
	s, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunHaltsLongIdleNodeWithNoSoonJob(t *testing.T) {
	store := newStore(t)
	resources := []*types.Resource{
		{RID: 1, State: types.ResourceAlive, IdleSince: 0, HierarchyPath: map[string]string{"host": "node1"}},
	}
	resources[0].IdleSince = 1000
	rs := resourceset.New(resources, []string{"host"})

	agent := &fakeAgent{}
	dec := New(store, agent, Config{Enabled: true, HostLabel: "host", IdleTime: 300, SleepTime: 600, WakeupTime: 120})
	require.NoError(t, dec.Run(context.Background(), 2000, rs))

	require.Equal(t, []string{"node1"}, agent.halted)
	require.Equal(t, 0, agent.checked)
}

func TestRunSkipsHaltWhenJobSoon(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveJob(&types.Job{JID: 1, State: types.JobWaiting}))
	require.NoError(t, store.SaveAssignment(1, 1, 2100, interval.FromIDs([]int{1})))

	resources := []*types.Resource{
		{RID: 1, State: types.ResourceAlive, IdleSince: 1000, HierarchyPath: map[string]string{"host": "node1"}},
	}
	rs := resourceset.New(resources, []string{"host"})

	agent := &fakeAgent{}
	dec := New(store, agent, Config{Enabled: true, HostLabel: "host", IdleTime: 300, SleepTime: 600, WakeupTime: 120})
	require.NoError(t, dec.Run(context.Background(), 2000, rs))

	require.Empty(t, agent.halted)
}

func TestRunWakesAbsentNodeNeededSoon(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveJob(&types.Job{JID: 1, State: types.JobWaiting}))
	require.NoError(t, store.SaveAssignment(1, 1, 2050, interval.FromIDs([]int{1})))

	resources := []*types.Resource{
		{RID: 1, State: types.ResourceAbsent, HierarchyPath: map[string]string{"host": "node1"}},
	}
	rs := resourceset.New(resources, []string{"host"})

	agent := &fakeAgent{}
	dec := New(store, agent, Config{Enabled: true, HostLabel: "host", IdleTime: 300, SleepTime: 600, WakeupTime: 120})
	require.NoError(t, dec.Run(context.Background(), 2000, rs))

	require.Equal(t, []string{"node1"}, agent.woken)
}

func TestRunChecksWhenNoTraffic(t *testing.T) {
	store := newStore(t)
	resources := []*types.Resource{
		{RID: 1, State: types.ResourceAlive, IdleSince: 1900, HierarchyPath: map[string]string{"host": "node1"}},
	}
	rs := resourceset.New(resources, []string{"host"})

	agent := &fakeAgent{}
	dec := New(store, agent, Config{Enabled: true, HostLabel: "host", IdleTime: 300, SleepTime: 600, WakeupTime: 120})
	require.NoError(t, dec.Run(context.Background(), 2000, rs))

	require.Empty(t, agent.halted)
	require.Empty(t, agent.woken)
	require.Equal(t, 1, agent.checked)
}

func TestRunDisabledIsNoop(t *testing.T) {
	store := newStore(t)
	agent := &fakeAgent{}
	dec := New(store, agent, Config{Enabled: false})
	require.NoError(t, dec.Run(context.Background(), 2000, resourceset.New(nil, nil)))
	require.Equal(t, 0, agent.checked)
}
