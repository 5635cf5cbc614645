package platform

import (
	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/types"
)

// Store is the persistence seam the meta-scheduler core depends on. It
// deliberately says nothing about how state got there (submission,
// admin API, a previous iteration) or how it is stored (teacher's
// storage.Store shows the bucket-per-entity bbolt idiom this package
// follows in BoltStore).
type Store interface {
	Close() error

	// ListQueues returns every configured queue, in no particular
	// order; the scheduler core sorts by Priority.
	ListQueues() ([]*types.Queue, error)
	// SetQueueState persists a queue's Active/notActive flag, e.g. after
	// a policy invocation crashes (spec §4.6).
	SetQueueState(name string, state types.QueueState) error

	// ListResources returns every resource snapshot known at the start
	// of an iteration (Alive, Absent, and Suspected alike — the caller
	// decides what's schedulable).
	ListResources() ([]*types.Resource, error)

	// ListJobsInStates returns every job whose State is one of states,
	// in JID order.
	ListJobsInStates(states ...types.JobState) ([]*types.Job, error)
	// ListWaitingJobs returns Waiting jobs in queue, restricted to the
	// given reservation state (ReservationNone for ordinary jobs,
	// ReservationToSchedule/ReservationScheduled for AR jobs).
	ListWaitingJobs(queue string, reservation types.ReservationState) ([]*types.Job, error)
	// GetJob loads a single job by id, or (nil, nil) if it doesn't
	// exist.
	GetJob(jid int) (*types.Job, error)
	// SaveJob upserts a job record whole; used by test fixtures, never
	// by the core loop itself (the core only ever narrows a job's
	// state/assignment).
	SaveJob(job *types.Job) error

	// SetJobState transitions a job's State field.
	SetJobState(jid int, state types.JobState) error
	// SetJobMessage records the human-readable reason attached to a
	// toError/frag transition.
	SetJobMessage(jid int, message string) error
	// SetJobReservationState transitions a job's Reservation field.
	SetJobReservationState(jid int, state types.ReservationState) error
	// SetJobStartTimeAndMoldable records which moldable alternative was
	// selected and when it is due to start.
	SetJobStartTimeAndMoldable(jid int, start int64, moldableID int) error
	// SetMoldableWalltime overrides a job's effective walltime, e.g.
	// when an advance reservation started late and must be shrunk
	// (spec §4.6).
	SetMoldableWalltime(jid int, walltime int64) error

	// SaveAssignment persists a gantt entry: the moldable alternative
	// selected for jid, its start time, and its assigned resources.
	SaveAssignment(jid int, moldableID int, start int64, resSet interval.Set) error
	// ListGanttAssignments returns every persisted gantt entry.
	ListGanttAssignments() ([]*types.GanttAssignment, error)
	// SetGanttStartTime updates a gantt entry's start time in place,
	// e.g. when an AR's start is clamped forward to now (spec §4.7).
	SetGanttStartTime(jid int, start int64) error
	// RemoveGanttResources narrows a gantt entry's resource set, e.g.
	// when an advance reservation drops resources that are still missing.
	RemoveGanttResources(jid int, missing interval.Set) error
	// DeleteGanttAssignment removes jid's gantt entry entirely, e.g.
	// once it transitions out of the scheduled-but-not-running window.
	DeleteGanttAssignment(jid int) error

	// AppendEvent appends one row to the append-only event_logs
	// relation (spec §6).
	AppendEvent(ev *types.EventLog) error
	// ListEvents returns jid's event history in insertion order.
	ListEvents(jid int) ([]*types.EventLog, error)

	// RefreshGanttVisualization is the per-iteration hook for refreshing
	// a read-optimized gantt projection; safe to call every iteration.
	// BoltStore keeps no such projection, so its implementation does
	// nothing and the admin API reads live gantt state.
	RefreshGanttVisualization() error
}
