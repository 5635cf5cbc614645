package reservation

import (
	"fmt"
	"regexp"

	"github.com/cuemby/batchsched/pkg/hierarchy"
	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/log"
	"github.com/cuemby/batchsched/pkg/metrics"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/resourceset"
	"github.com/cuemby/batchsched/pkg/slotset"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/rs/zerolog"
)

// Manager implements the two phases of spec §4.5.
type Manager struct {
	Store platform.Store
	// SecurityTime mirrors SCHEDULER_JOB_SECURITY_TIME: the trailing
	// window subtracted from a reservation's walltime before it is
	// matched or subtracted from the slot set.
	SecurityTime int64
	// WaitingResourcesTimeout mirrors RESERVATION_WAITING_RESOURCES_TIMEOUT.
	WaitingResourcesTimeout int64
}

// New returns a Manager with the given timing parameters.
func New(store platform.Store, securityTime, waitingResourcesTimeout int64) *Manager {
	return &Manager{Store: store, SecurityTime: securityTime, WaitingResourcesTimeout: waitingResourcesTimeout}
}

// Reconcile runs the "already-accepted reservations" phase of spec
// §4.5 over queue's Scheduled reservations: expiring, delaying, or
// shrinking each against all, the full (not schedulable-filtered)
// resource snapshot so liveness can be checked.
func (m *Manager) Reconcile(queue string, now int64, all *resourceset.ResourceSet) error {
	jobs, err := m.Store.ListWaitingJobs(queue, types.ReservationScheduled)
	if err != nil {
		return fmt.Errorf("list scheduled reservations for %s: %w", queue, err)
	}
	if len(jobs) == 0 {
		return nil
	}

	assignments, err := m.Store.ListGanttAssignments()
	if err != nil {
		return fmt.Errorf("list gantt assignments: %w", err)
	}
	byJID := make(map[int]*types.GanttAssignment, len(assignments))
	for _, ga := range assignments {
		byJID[ga.JID] = ga
	}

	qlog := log.WithQueue(queue)
	for _, job := range jobs {
		ga := byJID[job.JID]
		if ga == nil {
			continue
		}
		if err := m.reconcileOne(qlog, job, ga, now, all); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) reconcileOne(qlog zerolog.Logger, job *types.Job, ga *types.GanttAssignment, now int64, all *resourceset.ResourceSet) error {
	end := ga.StartTime + job.Walltime
	if now > end {
		qlog.Warn().Int("job_id", job.JID).Msg("reservation expired")
		if err := m.Store.SetJobState(job.JID, types.JobError); err != nil {
			return err
		}
		return m.Store.SetJobMessage(job.JID, "Reservation expired before it could be honored")
	}

	aliveCount := 0
	var missing interval.Set
	for _, id := range ga.ResSet.ToIDs() {
		r := all.Resource(id)
		if r != nil && r.State == types.ResourceAlive {
			aliveCount++
		} else {
			missing = interval.Union(missing, interval.FromIDs([]int{id}))
		}
	}

	if ga.StartTime >= now {
		return nil
	}

	if aliveCount == 0 {
		return m.Store.SetGanttStartTime(job.JID, now+1)
	}

	if len(missing) > 0 {
		if now <= ga.StartTime+m.WaitingResourcesTimeout {
			return m.Store.SetGanttStartTime(job.JID, now+1)
		}

		if err := m.Store.RemoveGanttResources(job.JID, missing); err != nil {
			return err
		}
		newCount := ga.ResSet.Size() - missing.Size()
		qlog.Warn().Int("job_id", job.JID).Int("missing", missing.Size()).Msg("shrinking advance reservation: resources went missing")
		if err := m.Store.SetJobMessage(job.JID, rewriteCount(job.Message, newCount)); err != nil {
			return err
		}
		if err := m.Store.AppendEvent(&types.EventLog{
			Type:        types.EventReduceResourcesForAR,
			JID:         job.JID,
			Description: fmt.Sprintf("reduced advance reservation to %d resources", newCount),
			ToCheck:     true,
		}); err != nil {
			return err
		}
		metrics.ReservationsShrunkTotal.Inc()
		return nil
	}
	return nil
}

var countPattern = regexp.MustCompile(`R=\d+`)

// rewriteCount replaces an "R=<n>" token in msg with the new count,
// appending one if absent.
func rewriteCount(msg string, n int) string {
	token := fmt.Sprintf("R=%d", n)
	if countPattern.MatchString(msg) {
		return countPattern.ReplaceAllString(msg, token)
	}
	if msg == "" {
		return token
	}
	return msg + " " + token
}

// ValidateNew runs the "validate new reservations" phase of spec §4.5
// over queue's toSchedule candidates, matching each against ss (the
// live, already-narrowed-by-higher-priority-queues slot set) and the
// schedulable resource set.
func (m *Manager) ValidateNew(queue string, now int64, ss *slotset.SlotSet, schedulable *resourceset.ResourceSet) error {
	jobs, err := m.Store.ListWaitingJobs(queue, types.ReservationToSchedule)
	if err != nil {
		return fmt.Errorf("list reservation candidates for %s: %w", queue, err)
	}

	for _, job := range jobs {
		if len(job.MldResRqts) == 0 {
			continue
		}
		req := job.MldResRqts[0]

		if now >= job.StartTime+job.Walltime {
			if err := m.Store.SetJobState(job.JID, types.JobToError); err != nil {
				return err
			}
			if err := m.Store.SetJobMessage(job.JID, "Reservation too old: requested window has already elapsed"); err != nil {
				return err
			}
			continue
		}

		start := job.StartTime
		if now > start {
			start = now
		}

		tEnd := start + req.Walltime - m.SecurityTime - 1
		sidLeft, sidRight := ss.EncompassingSlots(start, tEnd)
		if sidLeft == 0 {
			continue
		}
		avail := ss.IntersecItvsSlots(sidLeft, sidRight)
		resSet := hierarchy.Find(avail, req.Hierarchy, schedulable)

		if len(resSet) == 0 {
			if err := m.Store.SetJobState(job.JID, types.JobToError); err != nil {
				return err
			}
			if err := m.Store.SetJobMessage(job.JID, "Reservation rejected: not enough resources"); err != nil {
				return err
			}
			continue
		}

		if err := m.Store.SaveAssignment(job.JID, req.MoldableID, start, resSet); err != nil {
			return err
		}
		if err := m.Store.SetJobStartTimeAndMoldable(job.JID, start, req.MoldableID); err != nil {
			return err
		}
		if err := m.Store.SetJobReservationState(job.JID, types.ReservationScheduled); err != nil {
			return err
		}
		if err := m.Store.SetJobState(job.JID, types.JobToAckReservation); err != nil {
			return err
		}
		ss.SplitSlotsJobs([]*types.Job{{JID: job.JID, StartTime: start, Walltime: req.Walltime, ResSet: resSet}}, m.SecurityTime)
	}
	return nil
}
