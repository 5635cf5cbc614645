// Package types defines the core data structures shared across
// batchsched: resources, jobs, queues, and the gantt projection the
// meta-scheduler reads and writes between iterations.
package types
