/*
Package metrics exposes Prometheus instrumentation for the
meta-scheduler: iteration timing, queue/job/reservation counts,
besteffort checkpoint/kill counters, energy-saving dispatch counters,
notification failures, and the admin API and Raft leadership gauges.

Handler() returns the promhttp handler the admin API mounts at
/metrics. Timer is a small helper around time.Since for recording
histogram observations around a scheduling step:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IterationDuration)

Metrics here are counters, gauges and histograms only; pkg/platform's event log
and pkg/events' broker carry the corresponding detail (which job,
which queue, why).
*/
package metrics
