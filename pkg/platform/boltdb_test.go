package platform

import (
	"testing"

	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQueueRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveQueue(&types.Queue{Name: "default", Priority: 1, State: types.QueueActive, SchedulerPolicy: "kamelot"}))

	queues, err := s.ListQueues()
	require.NoError(t, err)
	require.Len(t, queues, 1)
	require.Equal(t, types.QueueActive, queues[0].State)

	require.NoError(t, s.SetQueueState("default", types.QueueNotActive))
	queues, err = s.ListQueues()
	require.NoError(t, err)
	require.Equal(t, types.QueueNotActive, queues[0].State)
}

func TestJobLifecycleMutators(t *testing.T) {
	s := newTestStore(t)
	job := &types.Job{
		JID: 42, Queue: "default", State: types.JobWaiting, Reservation: types.ReservationNone,
		MldResRqts: []types.MoldableRequest{{MoldableID: 1, Walltime: 3600}},
	}
	require.NoError(t, s.SaveJob(job))

	got, err := s.GetJob(42)
	require.NoError(t, err)
	require.Equal(t, types.JobWaiting, got.State)

	require.NoError(t, s.SetJobStartTimeAndMoldable(42, 1000, 1))
	require.NoError(t, s.SetJobState(42, types.JobToLaunch))
	require.NoError(t, s.SetJobReservationState(42, types.ReservationScheduled))
	require.NoError(t, s.SetJobMessage(42, "launched"))
	require.NoError(t, s.SetMoldableWalltime(42, 3000))

	got, err = s.GetJob(42)
	require.NoError(t, err)
	require.Equal(t, int64(1000), got.StartTime)
	require.Equal(t, int64(3000), got.Walltime)
	require.Equal(t, types.JobToLaunch, got.State)
	require.Equal(t, types.ReservationScheduled, got.Reservation)
	require.Equal(t, "launched", got.Message)
}

func TestListJobsInStatesAndWaiting(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveJob(&types.Job{JID: 1, Queue: "default", State: types.JobWaiting, Reservation: types.ReservationNone}))
	require.NoError(t, s.SaveJob(&types.Job{JID: 2, Queue: "default", State: types.JobRunning}))
	require.NoError(t, s.SaveJob(&types.Job{JID: 3, Queue: "besteffort", State: types.JobWaiting, Reservation: types.ReservationToSchedule}))

	running, err := s.ListJobsInStates(types.JobRunning, types.JobLaunching)
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, 2, running[0].JID)

	waiting, err := s.ListWaitingJobs("default", types.ReservationNone)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	require.Equal(t, 1, waiting[0].JID)
}

func TestGanttAssignmentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	resSet := interval.FromIDs([]int{1, 2, 3})
	require.NoError(t, s.SaveJob(&types.Job{JID: 7, State: types.JobWaiting}))
	require.NoError(t, s.SaveAssignment(7, 1, 5000, resSet))

	assignments, err := s.ListGanttAssignments()
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, int64(5000), assignments[0].StartTime)

	require.NoError(t, s.SetGanttStartTime(7, 6000))
	require.NoError(t, s.RemoveGanttResources(7, interval.FromIDs([]int{2})))
	assignments, err = s.ListGanttAssignments()
	require.NoError(t, err)
	require.Equal(t, int64(6000), assignments[0].StartTime)
	require.Equal(t, []int{1, 3}, assignments[0].ResSet.ToIDs())

	require.NoError(t, s.DeleteGanttAssignment(7))
	assignments, err = s.ListGanttAssignments()
	require.NoError(t, err)
	require.Empty(t, assignments)
}

func TestEventLogAppendAndList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendEvent(&types.EventLog{Type: types.EventBesteffortKill, JID: 9, Description: "preempted"}))
	require.NoError(t, s.AppendEvent(&types.EventLog{Type: types.EventCheckpoint, JID: 9, Description: "sent SIGUSR2"}))
	require.NoError(t, s.AppendEvent(&types.EventLog{Type: types.EventCheckpoint, JID: 10, Description: "other job"}))

	events, err := s.ListEvents(9)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "preempted", events[0].Description)
	require.Equal(t, "sent SIGUSR2", events[1].Description)
}

func TestResourceList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveResource(&types.Resource{RID: 1, State: types.ResourceAlive}))
	require.NoError(t, s.SaveResource(&types.Resource{RID: 2, State: types.ResourceAbsent}))

	resources, err := s.ListResources()
	require.NoError(t, err)
	require.Len(t, resources, 2)
}
