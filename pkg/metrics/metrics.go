package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Iteration metrics
	IterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batchsched_iteration_duration_seconds",
			Help:    "Time taken for one meta-scheduler iteration across all queues",
			Buckets: prometheus.DefBuckets,
		},
	)

	IterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_iterations_total",
			Help: "Total number of meta-scheduler iterations completed",
		},
	)

	QueueSchedulingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batchsched_queue_scheduling_duration_seconds",
			Help:    "Time taken to run one queue's scheduling policy and matching",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	QueuesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batchsched_queues_total",
			Help: "Total number of queues by state",
		},
		[]string{"state"},
	)

	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batchsched_jobs_total",
			Help: "Total number of jobs by state",
		},
		[]string{"state"},
	)

	JobsLaunchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_jobs_launched_total",
			Help: "Total number of jobs transitioned to toLaunch",
		},
	)

	JobsErroredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_jobs_errored_total",
			Help: "Total number of jobs transitioned to Error",
		},
	)

	// Reservation metrics
	ReservationsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_reservations_scheduled_total",
			Help: "Total number of advance reservations accepted",
		},
	)

	ReservationsShrunkTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_reservations_shrunk_total",
			Help: "Total number of advance reservations reduced after a resource wait timeout",
		},
	)

	// Besteffort metrics
	BesteffortCheckpointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_besteffort_checkpoints_total",
			Help: "Total number of checkpoint signals sent to besteffort jobs",
		},
	)

	BesteffortKillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_besteffort_kills_total",
			Help: "Total number of besteffort jobs killed to free resources",
		},
	)

	// Energy-saving metrics
	NodesHaltedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_nodes_halted_total",
			Help: "Total number of node halt dispatches issued",
		},
	)

	NodesWokenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batchsched_nodes_woken_total",
			Help: "Total number of node wakeup dispatches issued",
		},
	)

	// Notification metrics
	NotifyFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchsched_notify_failures_total",
			Help: "Total number of failed notifications by channel",
		},
		[]string{"channel"},
	)

	// Raft leadership metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchsched_raft_is_leader",
			Help: "Whether this replica is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchsched_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batchsched_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchsched_api_requests_total",
			Help: "Total number of admin API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batchsched_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(IterationDuration)
	prometheus.MustRegister(IterationsTotal)
	prometheus.MustRegister(QueueSchedulingDuration)
	prometheus.MustRegister(QueuesTotal)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobsLaunchedTotal)
	prometheus.MustRegister(JobsErroredTotal)
	prometheus.MustRegister(ReservationsScheduledTotal)
	prometheus.MustRegister(ReservationsShrunkTotal)
	prometheus.MustRegister(BesteffortCheckpointsTotal)
	prometheus.MustRegister(BesteffortKillsTotal)
	prometheus.MustRegister(NodesHaltedTotal)
	prometheus.MustRegister(NodesWokenTotal)
	prometheus.MustRegister(NotifyFailuresTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
