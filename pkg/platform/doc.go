// Package platform is the single read/write seam between the
// meta-scheduler and persistent state: it loads queues, jobs,
// reservations, and resources, and writes state transitions,
// assignments, and gantt entries (spec §2 component 5, §6 "Inbound —
// persisted state").
package platform
