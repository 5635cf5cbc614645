package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/stretchr/testify/require"
)

var errNotifyFailed = errors.New("notify failed")

type fakeNotifier struct {
	launched     []int
	stateChanges int
	termed       []int
	acked        []string
	errored      []string
	predicted    []string
	failAck      bool
	failError    bool
	failLaunch   bool
}

func (f *fakeNotifier) NotifyLaunch(jid int) error {
	if f.failLaunch {
		return errNotifyFailed
	}
	f.launched = append(f.launched, jid)
	return nil
}
func (f *fakeNotifier) NotifyStateChange() error { f.stateChanges++; return nil }
func (f *fakeNotifier) NotifyTerm(jid int) error { f.termed = append(f.termed, jid); return nil }
func (f *fakeNotifier) NotifyReservationAck(addr string) error {
	if f.failAck {
		return errNotifyFailed
	}
	f.acked = append(f.acked, addr)
	return nil
}
func (f *fakeNotifier) NotifyError(addr, message string) error {
	if f.failError {
		return errNotifyFailed
	}
	f.errored = append(f.errored, addr+":"+message)
	return nil
}
func (f *fakeNotifier) NotifyStartPrediction(addr, nowSQL, startSQL, message string) error {
	f.predicted = append(f.predicted, addr)
	return nil
}

func newStore(t *testing.T) *platform.BoltStore {
	t.Helper()
	s, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newScheduler(store platform.Store, notifier Notifier) *Scheduler {
	return New(Config{
		Store:                   store,
		Notifier:                notifier,
		SecurityTime:            60,
		WaitingResourcesTimeout: 300,
		HierarchyLabels:         []string{"resource_id"},
	})
}

func TestRunIterationSkipsInactiveQueue(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", Priority: 1, State: types.QueueNotActive}))
	require.NoError(t, store.SaveResource(&types.Resource{RID: 1, State: types.ResourceAlive}))

	notifier := &fakeNotifier{}
	sched := newScheduler(store, notifier)

	code, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestRunIterationSkipsWhenNotLeader(t *testing.T) {
	store := newStore(t)
	notifier := &fakeNotifier{}
	cfg := Config{Store: store, Notifier: notifier, HierarchyLabels: []string{"resource_id"}, IsLeader: func() bool { return false }}
	sched := New(cfg)

	code, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, 0, code)
}

func TestRunIterationLaunchesDueJob(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", Priority: 1, State: types.QueueActive}))
	require.NoError(t, store.SaveResource(&types.Resource{RID: 1, State: types.ResourceAlive}))
	require.NoError(t, store.SaveJob(&types.Job{
		JID: 1, State: types.JobWaiting, Queue: "default", MoldableID: 1,
		MldResRqts: []types.MoldableRequest{{MoldableID: 1, Walltime: 600}},
	}))
	require.NoError(t, store.SaveAssignment(1, 1, 1000, interval.FromIDs([]int{1})))

	notifier := &fakeNotifier{}
	sched := newScheduler(store, notifier)

	code, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Equal(t, []int{1}, notifier.launched)

	job, err := store.GetJob(1)
	require.NoError(t, err)
	require.Equal(t, types.JobToLaunch, job.State)
}

func TestRunIterationAcksReservationAndReportsLateStart(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", Priority: 1, State: types.QueueActive}))
	require.NoError(t, store.SaveJob(&types.Job{
		JID: 5, State: types.JobToAckReservation, Queue: "default",
		Reservation: types.ReservationScheduled, InfoType: "10.0.0.1:9000", StartTime: 999,
	}))

	notifier := &fakeNotifier{}
	sched := newScheduler(store, notifier)

	code, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, 1, code) // start time already passed
	require.Equal(t, []string{"10.0.0.1:9000"}, notifier.acked)

	job, err := store.GetJob(5)
	require.NoError(t, err)
	require.Equal(t, types.JobWaiting, job.State)
}

func TestRunIterationFragsReservationWhenAckFails(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveJob(&types.Job{
		JID: 6, State: types.JobToAckReservation, Queue: "default",
		Reservation: types.ReservationScheduled, InfoType: "10.0.0.1:9000", StartTime: 2000,
	}))

	notifier := &fakeNotifier{failAck: true}
	sched := newScheduler(store, notifier)

	code, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, 2, code)

	job, err := store.GetJob(6)
	require.NoError(t, err)
	require.Equal(t, types.JobError, job.State)

	evs, err := store.ListEvents(6)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, types.EventCannotNotifyOarsub, evs[0].Type)
}

func TestRunIterationNotifiesErrorThenTransitionsRegardless(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveJob(&types.Job{
		JID: 7, State: types.JobToError, Kind: types.JobInteractive,
		InfoType: "10.0.0.1:9001", Message: "no matching resources",
	}))

	notifier := &fakeNotifier{failError: true}
	sched := newScheduler(store, notifier)

	code, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, 2, code)

	job, err := store.GetJob(7)
	require.NoError(t, err)
	require.Equal(t, types.JobError, job.State)
}

func TestRunIterationResumesDrainedNoopJob(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveJob(&types.Job{
		JID: 8, State: types.JobResuming, ResSet: interval.FromIDs([]int{3}),
		Types: map[types.JobType]string{types.JobTypeNoop: ""},
	}))

	notifier := &fakeNotifier{}
	sched := newScheduler(store, notifier)

	code, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)
	require.Equal(t, 0, code)

	job, err := store.GetJob(8)
	require.NoError(t, err)
	require.Equal(t, types.JobRunning, job.State)
}

func TestRunIterationKeepsResumingJobBlockedByHolder(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveJob(&types.Job{
		JID: 9, State: types.JobResuming, ResSet: interval.FromIDs([]int{4}),
		Types: map[types.JobType]string{types.JobTypeNoop: ""},
	}))
	require.NoError(t, store.SaveJob(&types.Job{
		JID: 11, State: types.JobRunning, ResSet: interval.FromIDs([]int{4}),
	}))

	notifier := &fakeNotifier{}
	sched := newScheduler(store, notifier)

	_, err := sched.RunIteration(context.Background(), 1000)
	require.NoError(t, err)

	job, err := store.GetJob(9)
	require.NoError(t, err)
	require.Equal(t, types.JobResuming, job.State)
}
