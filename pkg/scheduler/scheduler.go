package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/batchsched/pkg/energy"
	"github.com/cuemby/batchsched/pkg/events"
	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/launchkill"
	"github.com/cuemby/batchsched/pkg/log"
	"github.com/cuemby/batchsched/pkg/metrics"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/policy"
	"github.com/cuemby/batchsched/pkg/reservation"
	"github.com/cuemby/batchsched/pkg/resourceset"
	"github.com/cuemby/batchsched/pkg/slotset"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/rs/zerolog"
)

// Notifier is the interactive-client half of the notification gateway
// (spec §4.9/§6) the core loop drives directly, as opposed to the
// execution-agent half launchkill.Notifier covers.
type Notifier interface {
	launchkill.Notifier
	NotifyReservationAck(addr string) error
	NotifyError(addr, message string) error
	NotifyStartPrediction(addr, nowSQL, startSQL, message string) error
}

// PolicyResolver returns the executable path for queue's scheduler
// policy, or "" if the queue should be skipped this iteration (e.g. no
// policy configured).
type PolicyResolver func(queue *types.Queue) string

// Config wires every collaborator one meta-scheduler iteration needs.
type Config struct {
	Store        platform.Store
	Notifier     Notifier
	PolicyDir    PolicyResolver
	PolicyTimeout time.Duration

	SecurityTime            int64
	WaitingResourcesTimeout  int64
	HierarchyLabels          []string
	IterationInterval        time.Duration

	Energy *energy.Decider

	Events *events.Broker

	// IsLeader, when set, gates RunIteration to the current Raft
	// leader; a nil func means "always run" (standalone mode).
	IsLeader func() bool
}

// Scheduler runs the meta-scheduler core loop (spec §5).
type Scheduler struct {
	cfg         Config
	reservation *reservation.Manager
	launchkill  *launchkill.Decider
	logger      zerolog.Logger
	mu          sync.Mutex
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// New returns a Scheduler.
func New(cfg Config) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		reservation: reservation.New(cfg.Store, cfg.SecurityTime, cfg.WaitingResourcesTimeout),
		launchkill:  launchkill.New(cfg.Store, cfg.Notifier, cfg.SecurityTime),
		logger:      log.WithComponent("scheduler"),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the ticking core loop.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the core loop to stop ticking and blocks until any
// in-flight RunIteration finishes and the loop goroutine has actually
// returned, so a caller can rely on no further scheduler activity once
// Stop returns (spec §5: let the current step complete, then exit).
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	tickInterval := s.cfg.IterationInterval
	if tickInterval <= 0 {
		tickInterval = 30 * time.Second
	}
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunIteration(context.Background(), time.Now().Unix()); err != nil {
				s.logger.Error().Err(err).Msg("iteration failed")
			}
		case <-s.stopCh:
			return
		}
	}
}

// RunIteration runs exactly one meta_schedule() pass at instant now and
// returns an OAR-style exit code: 0 idle/launched, 1 a reservation's
// start already passed, 2 a best-effort kill or notify failure
// occurred. Only one iteration ever runs at a time.
func (s *Scheduler) RunIteration(ctx context.Context, now int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.IsLeader != nil && !s.cfg.IsLeader() {
		return 0, nil
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.IterationDuration)
		metrics.IterationsTotal.Inc()
	}()

	resources, err := s.cfg.Store.ListResources()
	if err != nil {
		return 0, fmt.Errorf("list resources: %w", err)
	}
	all := resourceset.New(resources, s.cfg.HierarchyLabels)

	var alive []*types.Resource
	for _, r := range resources {
		if r.State == types.ResourceAlive {
			alive = append(alive, r)
		}
	}
	schedulable := resourceset.New(alive, s.cfg.HierarchyLabels)

	queues, err := s.cfg.Store.ListQueues()
	if err != nil {
		return 0, fmt.Errorf("list queues: %w", err)
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].Priority > queues[j].Priority })

	ss := slotset.New(schedulable.RoidItvs, now)
	retirements := make(map[int64]interval.Set)
	for _, t := range schedulable.AvailableUptoTimes() {
		retirements[t] = schedulable.ResourcesRetiringAt(t)
	}
	ss.ApplyAvailability(retirements)

	for _, queue := range queues {
		if queue.State != types.QueueActive {
			continue
		}
		s.runQueue(ctx, queue, now, all, schedulable, ss)
	}

	outcome, err := s.launchkill.Run(now)
	if err != nil {
		return 0, fmt.Errorf("launch/kill pass: %w", err)
	}
	if outcome.KillIssued {
		metrics.BesteffortKillsTotal.Inc()
		if s.cfg.Events != nil {
			s.cfg.Events.Publish(&events.Event{Type: events.EventBesteffortKilled, Timestamp: time.Unix(now, 0), Message: "best-effort job preempted to free resources"})
		}
	}
	for _, jid := range outcome.LaunchedJIDs {
		metrics.JobsLaunchedTotal.Inc()
		if s.cfg.Events != nil {
			s.cfg.Events.Publish(&events.Event{Type: events.EventJobLaunched, Timestamp: time.Unix(now, 0), Message: fmt.Sprintf("job %d launched", jid)})
		}
	}
	if outcome.NotifyFailed {
		metrics.NotifyFailuresTotal.WithLabelValues("exec_agent").Inc()
		if s.cfg.Events != nil {
			s.cfg.Events.Publish(&events.Event{Type: events.EventNotifyFailed, Timestamp: time.Unix(now, 0), Message: "execution agent notification failed"})
		}
	}

	if err := s.cfg.Store.RefreshGanttVisualization(); err != nil {
		return 0, fmt.Errorf("refresh gantt visualization: %w", err)
	}

	if s.cfg.Energy != nil {
		if err := s.cfg.Energy.Run(ctx, now, all); err != nil {
			s.logger.Warn().Err(err).Msg("energy-saving pass failed")
		}
	}

	if err := s.reconcileResumingJobs(now); err != nil {
		s.logger.Warn().Err(err).Msg("resuming-job reconciliation failed")
	}

	if err := s.notifyStartPredictions(now); err != nil {
		s.logger.Warn().Err(err).Msg("start-prediction notification failed")
	}

	exitCode := 0
	if outcome.KillIssued || outcome.NotifyFailed {
		exitCode = 2
	}

	if code, err := s.processToError(now); err != nil {
		return exitCode, err
	} else if code > exitCode {
		exitCode = code
	}

	if code, err := s.processToAckReservation(now, exitCode); err != nil {
		return exitCode, err
	} else if code > exitCode {
		exitCode = code
	}

	if err := s.processToLaunch(); err != nil {
		return exitCode, err
	}

	return exitCode, nil
}

// runQueue invokes queue's external policy (if configured) and then
// its two reservation phases, deactivating the queue if the policy
// subprocess fails (spec §4.4/§4.6).
func (s *Scheduler) runQueue(ctx context.Context, queue *types.Queue, now int64, all, schedulable *resourceset.ResourceSet, ss *slotset.SlotSet) {
	qlog := log.WithQueue(queue.Name)
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.QueueSchedulingDuration, queue.Name)

	if s.cfg.PolicyDir != nil {
		if program := s.cfg.PolicyDir(queue); program != "" {
			inv := policy.New(program, s.cfg.PolicyTimeout)
			if err := inv.Invoke(ctx, queue.Name, time.Unix(now, 0)); err != nil {
				qlog.Error().Err(err).Msg("policy invocation failed, deactivating queue")
				if serr := s.cfg.Store.SetQueueState(queue.Name, types.QueueNotActive); serr != nil {
					qlog.Error().Err(serr).Msg("failed to deactivate queue")
				} else if s.cfg.Events != nil {
					s.cfg.Events.Publish(&events.Event{Type: events.EventQueueStateChanged, Timestamp: time.Unix(now, 0), Message: fmt.Sprintf("queue %s deactivated after policy failure", queue.Name)})
				}
			}
		}
	}

	if err := s.reservation.Reconcile(queue.Name, now, all); err != nil {
		qlog.Error().Err(err).Msg("reservation reconciliation failed")
	}
	if err := s.reservation.ValidateNew(queue.Name, now, ss, schedulable); err != nil {
		qlog.Error().Err(err).Msg("new reservation validation failed")
	}
}

// reconcileResumingJobs implements the drain check for jobs coming out
// of Suspended: a Resuming job may resume once none of its resources
// are held by another Running/Launching/Resuming job.
func (s *Scheduler) reconcileResumingJobs(now int64) error {
	resuming, err := s.cfg.Store.ListJobsInStates(types.JobResuming)
	if err != nil {
		return fmt.Errorf("list resuming jobs: %w", err)
	}
	if len(resuming) == 0 {
		return nil
	}

	holders, err := s.cfg.Store.ListJobsInStates(types.JobRunning, types.JobLaunching, types.JobResuming)
	if err != nil {
		return fmt.Errorf("list resource holders: %w", err)
	}

	for _, job := range resuming {
		blocked := false
		for _, holder := range holders {
			if holder.JID == job.JID {
				continue
			}
			if interval.Intersect(job.ResSet, holder.ResSet).Size() > 0 {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}

		if job.HasType(types.JobTypeNoop) {
			if err := s.cfg.Store.SetJobState(job.JID, types.JobRunning); err != nil {
				return fmt.Errorf("resume noop job %d: %w", job.JID, err)
			}
			continue
		}
		// Non-noop jobs resume through the execution agent's own
		// resume path; OARRUNJOB_<jid> is the generic "act on this job"
		// signal and covers resume the same way it covers a first launch.
		if err := s.cfg.Notifier.NotifyLaunch(job.JID); err != nil {
			s.logger.Warn().Int("job_id", job.JID).Err(err).Msg("resume notification failed")
			continue
		}
		if err := s.cfg.Store.SetJobState(job.JID, types.JobRunning); err != nil {
			return fmt.Errorf("resume job %d: %w", job.JID, err)
		}
	}
	return nil
}

// notifyStartPredictions tells interactive clients with a waiting,
// already-gantt-scheduled job its predicted start time.
func (s *Scheduler) notifyStartPredictions(now int64) error {
	waiting, err := s.cfg.Store.ListJobsInStates(types.JobWaiting)
	if err != nil {
		return fmt.Errorf("list waiting jobs: %w", err)
	}
	assignments, err := s.cfg.Store.ListGanttAssignments()
	if err != nil {
		return fmt.Errorf("list gantt assignments: %w", err)
	}
	byJID := make(map[int]*types.GanttAssignment, len(assignments))
	for _, ga := range assignments {
		byJID[ga.JID] = ga
	}

	nowSQL := formatSQL(now)
	for _, job := range waiting {
		if job.Kind != types.JobInteractive || job.InfoType == "" {
			continue
		}
		ga := byJID[job.JID]
		if ga == nil {
			continue
		}
		startSQL := formatSQL(ga.StartTime)
		if err := s.cfg.Notifier.NotifyStartPrediction(job.InfoType, nowSQL, startSQL, job.Message); err != nil {
			s.logger.Warn().Int("job_id", job.JID).Err(err).Msg("start prediction notification failed")
		}
	}
	return nil
}

// processToError notifies interactive (or scheduled-reservation
// passive) clients of a job's error before transitioning it to Error
// unconditionally, mirroring meta_schedule()'s toError handling: the
// transition happens whether or not the client was reachable.
func (s *Scheduler) processToError(now int64) (int, error) {
	jobs, err := s.cfg.Store.ListJobsInStates(types.JobToError)
	if err != nil {
		return 0, fmt.Errorf("list toError jobs: %w", err)
	}
	exitCode := 0
	for _, job := range jobs {
		notifiable := job.Kind == types.JobInteractive ||
			(job.Kind == types.JobPassive && job.Reservation == types.ReservationScheduled)
		if notifiable && job.InfoType != "" {
			if err := s.cfg.Notifier.NotifyError(job.InfoType, job.Message); err != nil {
				s.logger.Warn().Int("job_id", job.JID).Err(err).Msg("error notification failed")
				metrics.NotifyFailuresTotal.WithLabelValues("interactive_client").Inc()
				exitCode = 2
			}
		}
		if err := s.cfg.Store.SetJobState(job.JID, types.JobError); err != nil {
			return exitCode, fmt.Errorf("set job %d to Error: %w", job.JID, err)
		}
		metrics.JobsErroredTotal.Inc()
		if s.cfg.Events != nil {
			s.cfg.Events.Publish(&events.Event{Type: events.EventJobStateChanged, Timestamp: time.Unix(now, 0), Message: fmt.Sprintf("job %d errored: %s", job.JID, job.Message)})
		}
	}
	return exitCode, nil
}

// processToAckReservation notifies a toAckReservation job's client that
// its advance reservation was accepted; on notify failure the
// reservation is fragged (rejected) instead of honored.
func (s *Scheduler) processToAckReservation(now int64, baseExitCode int) (int, error) {
	jobs, err := s.cfg.Store.ListJobsInStates(types.JobToAckReservation)
	if err != nil {
		return baseExitCode, fmt.Errorf("list toAckReservation jobs: %w", err)
	}
	exitCode := baseExitCode
	for _, job := range jobs {
		if job.InfoType == "" {
			if err := s.ackReservation(job, now); err != nil {
				return exitCode, err
			}
			if job.StartTime-1 <= now && exitCode == 0 {
				exitCode = 1
			}
			continue
		}

		if err := s.cfg.Notifier.NotifyReservationAck(job.InfoType); err != nil {
			s.logger.Warn().Int("job_id", job.JID).Err(err).Msg("reservation ack notification failed")
			metrics.NotifyFailuresTotal.WithLabelValues("interactive_client").Inc()
			if err := s.cfg.Store.AppendEvent(&types.EventLog{Type: types.EventCannotNotifyOarsub, JID: job.JID, Description: "could not notify client of accepted reservation"}); err != nil {
				return exitCode, err
			}
			if err := s.fragReservation(job); err != nil {
				return exitCode, err
			}
			exitCode = 2
			continue
		}

		if err := s.ackReservation(job, now); err != nil {
			return exitCode, err
		}
		if job.StartTime-1 <= now && exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode, nil
}

func (s *Scheduler) ackReservation(job *types.Job, now int64) error {
	metrics.ReservationsScheduledTotal.Inc()
	if s.cfg.Events != nil {
		s.cfg.Events.Publish(&events.Event{Type: events.EventReservationAcked, Timestamp: time.Unix(now, 0), Message: fmt.Sprintf("job %d reservation acknowledged", job.JID)})
	}
	return s.cfg.Store.SetJobState(job.JID, types.JobWaiting)
}

// fragReservation rejects a reservation whose client could not be
// reached to accept it, the same terminal state as a toError job.
func (s *Scheduler) fragReservation(job *types.Job) error {
	if err := s.cfg.Store.SetJobMessage(job.JID, "Could not notify client; reservation rejected"); err != nil {
		return err
	}
	return s.cfg.Store.SetJobState(job.JID, types.JobError)
}

// processToLaunch sends OARRUNJOB_<jid> for every job still in toLaunch
// that the launch/kill decider has not yet notified successfully, a
// safety net for jobs whose first notification (sent inline by the
// decider) failed. It goes through the decider's notified set, so a job
// is announced at most once per process.
func (s *Scheduler) processToLaunch() error {
	jobs, err := s.cfg.Store.ListJobsInStates(types.JobToLaunch)
	if err != nil {
		return fmt.Errorf("list toLaunch jobs: %w", err)
	}
	for _, job := range jobs {
		if err := s.launchkill.NotifyLaunchOnce(job.JID); err != nil {
			s.logger.Warn().Int("job_id", job.JID).Err(err).Msg("launch re-notification failed")
			metrics.NotifyFailuresTotal.WithLabelValues("exec_agent").Inc()
		}
	}
	return nil
}

func formatSQL(epoch int64) string {
	return time.Unix(epoch, 0).UTC().Format("2006-01-02 15:04:05")
}
