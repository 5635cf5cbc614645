// Package launchkill implements the launch/kill decider of spec §4.6:
// it computes which gantt-scheduled jobs are due to launch, resolves
// conflicts with running best-effort jobs (timesharing compatibility,
// checkpoint grace period, or a fragging kill), and shrinks advance
// reservations that started late.
package launchkill
