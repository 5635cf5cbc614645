/*
Package api implements the meta-scheduler's read-only admin/status HTTP
surface: queue, job, and gantt introspection, health/readiness probes,
and Prometheus metrics, plus a narrow allowlisted set of writes (queue
enable/disable, Raft cluster join) that an operator or the admin CLI
needs.

It is intentionally not the submission path — qsub-style job
submission belongs to whatever front-end speaks OAR's wire protocol to
clients; this package only lets an operator see and steer a running
cluster.
*/
package api
