package launchkill

import (
	"fmt"
	"regexp"
	"time"

	"github.com/cuemby/batchsched/pkg/log"
	"github.com/cuemby/batchsched/pkg/metrics"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/slotset"
	"github.com/cuemby/batchsched/pkg/types"
)

// Notifier is the execution-agent half of the notification gateway
// (spec §4.9/§6) that the launch/kill decider drives. It is declared
// here, not imported from pkg/notify, so pkg/notify can in turn depend
// on job/queue state without a cycle.
type Notifier interface {
	// NotifyLaunch sends OARRUNJOB_<jid>.
	NotifyLaunch(jid int) error
	// NotifyStateChange sends ChState after any best-effort kill.
	NotifyStateChange() error
	// NotifyTerm sends Term, telling the execution agent to act on jid
	// per its persisted checkpoint/kill intent.
	NotifyTerm(jid int) error
}

// Outcome summarizes one Run for the core loop's exit-code computation
// (spec §5: code 2 if a kill or notification failure occurred).
type Outcome struct {
	KillIssued   bool
	NotifyFailed bool
	LaunchedJIDs []int
}

// Decider implements spec §4.6.
type Decider struct {
	Store        platform.Store
	Notifier     Notifier
	SecurityTime int64

	// notified is the process-local idempotent "already notified" set;
	// it lives for the process's lifetime, not just one iteration, so a
	// launch is never re-announced after a crash-free restart of the
	// loop (only a process restart clears it).
	notified map[int]bool
}

// New returns a Decider with its own notified-set.
func New(store platform.Store, notifier Notifier, securityTime int64) *Decider {
	return &Decider{Store: store, Notifier: notifier, SecurityTime: securityTime, notified: make(map[int]bool)}
}

// Run executes one launch/kill pass across all queues (spec §4.6 is
// explicitly global, unlike the per-queue reservation/policy steps).
func (d *Decider) Run(now int64) (Outcome, error) {
	var out Outcome

	waiting, err := d.Store.ListJobsInStates(types.JobWaiting)
	if err != nil {
		return out, fmt.Errorf("list waiting jobs: %w", err)
	}
	assignments, err := d.Store.ListGanttAssignments()
	if err != nil {
		return out, fmt.Errorf("list gantt assignments: %w", err)
	}
	byJID := make(map[int]*types.GanttAssignment, len(assignments))
	for _, ga := range assignments {
		byJID[ga.JID] = ga
	}

	var toLaunch []*types.Job
	for _, job := range waiting {
		ga := byJID[job.JID]
		if ga != nil && ga.StartTime <= now+d.SecurityTime {
			toLaunch = append(toLaunch, job)
		}
	}
	if len(toLaunch) == 0 {
		return out, nil
	}

	running, err := d.Store.ListJobsInStates(types.JobRunning)
	if err != nil {
		return out, fmt.Errorf("list running jobs: %w", err)
	}
	holder := make(map[int]*types.Job) // rid -> besteffort holder
	for _, job := range running {
		if !job.HasType(types.JobTypeBesteffort) {
			continue
		}
		for _, rid := range job.ResSet.ToIDs() {
			holder[rid] = job
		}
	}

	rootLog := log.WithComponent("launchkill")

	killed := make(map[int]bool)
	for _, job := range toLaunch {
		ga := byJID[job.JID]
		for _, rid := range ga.ResSet.ToIDs() {
			besteffort, ok := holder[rid]
			if !ok || killed[besteffort.JID] {
				continue
			}
			jTag, bTag := slotset.TimesharingTag(job), slotset.TimesharingTag(besteffort)
			if jTag != "" && bTag != "" && slotset.Compatible(jTag, bTag) {
				continue
			}

			sendFirst, waiting, err := d.checkpointStatus(besteffort, now)
			if err != nil {
				return out, err
			}
			if sendFirst {
				if err := d.Store.AppendEvent(&types.EventLog{Type: types.EventCheckpoint, JID: besteffort.JID, Date: time.Unix(now, 0), Description: "checkpoint grace period started"}); err != nil {
					return out, err
				}
				if err := d.Notifier.NotifyTerm(besteffort.JID); err != nil {
					rootLog.Warn().Int("job_id", besteffort.JID).Err(err).Msg("checkpoint notification failed")
					out.NotifyFailed = true
				}
				metrics.BesteffortCheckpointsTotal.Inc()
				continue
			}
			if waiting {
				continue
			}

			if err := d.Store.AppendEvent(&types.EventLog{Type: types.EventBesteffortKill, JID: besteffort.JID, Description: fmt.Sprintf("preempted by job %d", job.JID)}); err != nil {
				return out, err
			}
			if err := d.Notifier.NotifyTerm(besteffort.JID); err != nil {
				rootLog.Warn().Int("job_id", besteffort.JID).Err(err).Msg("kill notification failed")
				out.NotifyFailed = true
			}
			killed[besteffort.JID] = true
			out.KillIssued = true
		}
	}

	if out.KillIssued {
		// to-launch transitions are deferred to a subsequent loop.
		if err := d.Notifier.NotifyStateChange(); err != nil {
			rootLog.Warn().Err(err).Msg("ChState notification failed")
			out.NotifyFailed = true
		}
		return out, nil
	}

	for _, job := range toLaunch {
		ga := byJID[job.JID]

		if job.Reservation == types.ReservationScheduled && ga.StartTime < now {
			newWalltime := job.Walltime - (now - ga.StartTime)
			if newWalltime < 0 {
				newWalltime = 0
			}
			if err := d.Store.SetMoldableWalltime(job.JID, newWalltime); err != nil {
				return out, err
			}
			if err := d.Store.SetJobMessage(job.JID, rewriteWalltime(job.Message, newWalltime)); err != nil {
				return out, err
			}
			if err := d.Store.AppendEvent(&types.EventLog{Type: types.EventReduceReservationWalltime, JID: job.JID, Description: "advance reservation started late; walltime shrunk"}); err != nil {
				return out, err
			}
		}

		if err := d.Store.SetJobStartTimeAndMoldable(job.JID, now, job.MoldableID); err != nil {
			return out, err
		}
		if err := d.Store.SetJobState(job.JID, types.JobToLaunch); err != nil {
			return out, err
		}

		if !d.notified[job.JID] {
			if err := d.Notifier.NotifyLaunch(job.JID); err != nil {
				rootLog.Warn().Int("job_id", job.JID).Err(err).Msg("launch notification failed")
				out.NotifyFailed = true
			} else {
				d.notified[job.JID] = true
			}
		}
		out.LaunchedJIDs = append(out.LaunchedJIDs, job.JID)
	}

	return out, nil
}

// NotifyLaunchOnce sends OARRUNJOB_<jid> unless this Decider has already
// delivered it for jid; jid is recorded as notified only on success.
func (d *Decider) NotifyLaunchOnce(jid int) error {
	if d.notified[jid] {
		return nil
	}
	if err := d.Notifier.NotifyLaunch(jid); err != nil {
		return err
	}
	d.notified[jid] = true
	return nil
}

// checkpointStatus implements the grace-period decision for killing a
// checkpointable best-effort job: sendFirst is true the first time
// besteffort is encountered with Checkpoint>0 (no event recorded yet);
// waiting is true while a previously sent checkpoint's grace window
// (Checkpoint seconds) hasn't elapsed. When both are false, the job's
// grace period (if any) has run out and it is safe to kill.
func (d *Decider) checkpointStatus(besteffort *types.Job, now int64) (sendFirst, waiting bool, err error) {
	if besteffort.Checkpoint <= 0 {
		return false, false, nil
	}
	events, err := d.Store.ListEvents(besteffort.JID)
	if err != nil {
		return false, false, err
	}
	var lastCheckpoint *types.EventLog
	for _, ev := range events {
		if ev.Type == types.EventCheckpoint {
			lastCheckpoint = ev
		}
	}
	if lastCheckpoint == nil {
		return true, false, nil
	}
	if now-lastCheckpoint.Date.Unix() < besteffort.Checkpoint {
		return false, true, nil
	}
	return false, false, nil
}

var walltimePattern = regexp.MustCompile(`W=\d{2}:\d{2}:\d{2}`)

// rewriteWalltime replaces a "W=HH:MM:SS" token in msg, appending one
// if absent.
func rewriteWalltime(msg string, seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	token := fmt.Sprintf("W=%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	if walltimePattern.MatchString(msg) {
		return walltimePattern.ReplaceAllString(msg, token)
	}
	if msg == "" {
		return token
	}
	return msg + " " + token
}
