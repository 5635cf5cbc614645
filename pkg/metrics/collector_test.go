package metrics

import (
	"testing"
	"time"

	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	return testutil.ToFloat64(g)
}

func newCollectorTestStore(t *testing.T) *platform.BoltStore {
	t.Helper()
	s, err := platform.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCollectQueueMetrics(t *testing.T) {
	store := newCollectorTestStore(t)
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "default", State: types.QueueActive}))
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "besteffort", State: types.QueueActive}))
	require.NoError(t, store.SaveQueue(&types.Queue{Name: "maintenance", State: types.QueueNotActive}))

	c := NewCollector(store)
	c.collectQueueMetrics()

	require.Equal(t, float64(2), testGaugeValue(t, QueuesTotal.WithLabelValues(string(types.QueueActive))))
	require.Equal(t, float64(1), testGaugeValue(t, QueuesTotal.WithLabelValues(string(types.QueueNotActive))))
}

func TestCollectJobMetrics(t *testing.T) {
	store := newCollectorTestStore(t)
	require.NoError(t, store.SaveJob(&types.Job{JID: 1, State: types.JobWaiting}))
	require.NoError(t, store.SaveJob(&types.Job{JID: 2, State: types.JobRunning}))
	require.NoError(t, store.SaveJob(&types.Job{JID: 3, State: types.JobRunning}))

	c := NewCollector(store)
	c.collectJobMetrics()

	require.Equal(t, float64(1), testGaugeValue(t, JobsTotal.WithLabelValues(string(types.JobWaiting))))
	require.Equal(t, float64(2), testGaugeValue(t, JobsTotal.WithLabelValues(string(types.JobRunning))))
}

func TestCollectorStartStop(t *testing.T) {
	store := newCollectorTestStore(t)
	c := NewCollector(store)
	c.Start()
	time.Sleep(10 * time.Millisecond)
	c.Stop()
}
