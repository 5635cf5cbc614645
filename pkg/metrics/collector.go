package metrics

import (
	"time"

	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/types"
)

// Collector periodically samples platform.Store and updates the gauge
// metrics (QueuesTotal, JobsTotal) that can't be maintained
// incrementally from inside the scheduling loop.
type Collector struct {
	store  platform.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(store platform.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectQueueMetrics()
	c.collectJobMetrics()
}

func (c *Collector) collectQueueMetrics() {
	queues, err := c.store.ListQueues()
	if err != nil {
		return
	}

	counts := make(map[types.QueueState]int)
	for _, q := range queues {
		counts[q.State]++
	}
	for state, count := range counts {
		QueuesTotal.WithLabelValues(string(state)).Set(float64(count))
	}
}

var allJobStates = []types.JobState{
	types.JobWaiting,
	types.JobHold,
	types.JobToAckReservation,
	types.JobToLaunch,
	types.JobLaunching,
	types.JobRunning,
	types.JobFinishing,
	types.JobSuspended,
	types.JobResuming,
	types.JobToError,
	types.JobError,
	types.JobTerminated,
}

func (c *Collector) collectJobMetrics() {
	jobs, err := c.store.ListJobsInStates(allJobStates...)
	if err != nil {
		return
	}

	counts := make(map[types.JobState]int)
	for _, j := range jobs {
		counts[j.State]++
	}
	for _, state := range allJobStates {
		JobsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}
