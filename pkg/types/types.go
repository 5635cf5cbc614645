package types

import (
	"time"

	"github.com/cuemby/batchsched/pkg/interval"
)

// ResourceState is the liveness state of a Resource.
type ResourceState string

const (
	ResourceAlive     ResourceState = "Alive"
	ResourceAbsent    ResourceState = "Absent"
	ResourceSuspected ResourceState = "Suspected"
	ResourceDead      ResourceState = "Dead"
)

// NeverAvailableUpto is the sentinel for Resource.AvailableUpto: 0 means
// the resource never becomes unusable.
const NeverAvailableUpto int64 = 0

// Resource is immutable for the duration of one meta-scheduler
// iteration: it is a point-in-time snapshot loaded by the platform
// adapter at the start of the loop.
type Resource struct {
	RID           int
	State         ResourceState
	AvailableUpto int64 // epoch seconds; 0 = never retires
	Attributes    map[string]string
	// HierarchyPath gives this resource's position at every configured
	// hierarchy level, outermost first, e.g.
	// {"network_address": "node3", "cpu": "node3-cpu1", "core": "3-12"}.
	HierarchyPath map[string]string
	// IdleSince is the epoch instant this resource's host last went
	// idle (no running job holding it); 0 means currently busy. The
	// energy-saving decider reads it to find halt candidates.
	IdleSince int64
}

// JobType is a flag carried in Job.Types; see spec §3 "types set".
type JobType string

const (
	JobTypeTimesharing JobType = "timesharing"
	JobTypePlaceholder JobType = "placeholder"
	JobTypeAllow       JobType = "allow"
	JobTypeBesteffort  JobType = "besteffort"
	JobTypeContainer   JobType = "container"
	JobTypeInner       JobType = "inner"
	JobTypeNoop        JobType = "noop"
	JobTypeDeploy      JobType = "deploy"
	JobTypeCosystem    JobType = "cosystem"
)

// JobKind distinguishes interactive (oarsub -I) from passive jobs.
type JobKind string

const (
	JobInteractive JobKind = "INTERACTIVE"
	JobPassive     JobKind = "PASSIVE"
)

// JobState is a state of the job state machine in spec §4.8, covering
// both core-driven and execution-agent-driven states.
type JobState string

const (
	JobWaiting          JobState = "Waiting"
	JobHold             JobState = "Hold"
	JobToAckReservation JobState = "toAckReservation"
	JobToLaunch         JobState = "toLaunch"
	JobLaunching        JobState = "Launching"
	JobRunning          JobState = "Running"
	JobFinishing        JobState = "Finishing"
	JobSuspended        JobState = "Suspended"
	JobResuming         JobState = "Resuming"
	JobToError          JobState = "toError"
	JobError            JobState = "Error"
	JobTerminated       JobState = "Terminated"
)

// ReservationState tracks a job's advance-reservation lifecycle.
type ReservationState string

const (
	ReservationNone       ReservationState = "None"
	ReservationToSchedule ReservationState = "toSchedule"
	ReservationScheduled  ReservationState = "Scheduled"
)

// PlaceholderMode controls how a job interacts with named future
// capacity reservations.
type PlaceholderMode string

const (
	NoPlaceholder    PlaceholderMode = "NO_PLACEHOLDER"
	UsePlaceholder   PlaceholderMode = "USE_PLACEHOLDER"
	AllowPlaceholder PlaceholderMode = "ALLOW_PLACEHOLDER"
)

// HierarchyRequestItem is one level of a hierarchical resource request,
// e.g. {Label: "network_address", Count: 2}, ordered outermost first.
type HierarchyRequestItem struct {
	Label string
	Count int
}

// MoldableRequest is one alternative (walltime, hierarchical request)
// for a moldable job; a job may offer several and the scheduler picks
// one.
type MoldableRequest struct {
	MoldableID int
	Walltime   int64 // seconds
	Hierarchy  []HierarchyRequestItem
}

// Job is the mutable unit of work the scheduler places, launches, and
// tracks across its state machine.
type Job struct {
	JID         int
	User        string
	Project     string
	Queue       string
	Kind        JobKind
	State       JobState
	Reservation ReservationState

	StartTime  int64 // epoch seconds; 0 = unscheduled
	MoldableID int    // selected among MldResRqts
	Walltime   int64  // seconds, for the selected moldable

	ResSet interval.Set // assigned rids; empty until scheduled

	MldResRqts []MoldableRequest
	Types      map[JobType]string // flag set; value holds e.g. timesharing key

	TimeSharing bool
	Placeholder PlaceholderMode

	Checkpoint int64  // seconds; 0 disables
	InfoType   string // "host:port" for interactive notifications
	Message    string

	SubmissionTime time.Time
}

// HasType reports whether the job carries the given type flag.
func (j *Job) HasType(t JobType) bool {
	if j.Types == nil {
		return false
	}
	_, ok := j.Types[t]
	return ok
}

// End returns the job's scheduled end instant, start+walltime.
func (j *Job) End() int64 {
	return j.StartTime + j.Walltime
}

// Slot covers [Begin, End] (inclusive seconds) and carries the set of
// resources free throughout that window. SID/Prev/Next are stable
// integer identities within one SlotSet's arena; 0 is the sentinel.
type Slot struct {
	SID   int
	Prev  int
	Next  int
	Begin int64
	End   int64 // MaxTime sentinel for the open-ended final slot
	Itvs  interval.Set

	// TSOccupants records, for timesharing/placeholder jobs only, which
	// tag currently holds which resources in this slot, so a compatible
	// future job can be matched against resources a compatible peer
	// already holds. See pkg/slotset's timesharing compatibility rule.
	TSOccupants []TSOccupant
}

// TSOccupant is one timesharing- or placeholder-tagged hold on
// resources within a single Slot.
type TSOccupant struct {
	Tag  string
	Itvs interval.Set
}

// GanttAssignment is the persisted projection of a scheduled-but-not-
// yet-running job: a moldable alternative, its start time, and its
// assigned resources.
type GanttAssignment struct {
	JID        int
	MoldableID int
	StartTime  int64
	ResSet     interval.Set
}

// QueueState controls whether a queue's policy is invoked this
// iteration.
type QueueState string

const (
	QueueActive    QueueState = "Active"
	QueueNotActive QueueState = "notActive"
)

// Queue groups jobs under a priority and a pluggable scheduling policy.
type Queue struct {
	Name            string
	Priority        int
	State           QueueState
	SchedulerPolicy string
}

// EventKind names an append-only event_logs row's type, per spec §6.
type EventKind string

const (
	EventBesteffortKill            EventKind = "BESTEFFORT_KILL"
	EventReduceReservationWalltime EventKind = "REDUCE_RESERVATION_WALLTIME"
	EventReduceResourcesForAR      EventKind = "SCHEDULER_REDUCE_NB_RESSOURCES_FOR_ADVANCE_RESERVATION"
	EventCannotNotifyOarsub        EventKind = "CANNOT_NOTIFY_OARSUB"
	EventCheckpoint                EventKind = "CHECKPOINT"
)

// EventLog is one append-only row of the event_logs relation.
type EventLog struct {
	Type        EventKind
	JID         int
	Date        time.Time
	Description string // truncated to 255 runes by the platform adapter
	ToCheck     bool
	Hostnames   []string
}
