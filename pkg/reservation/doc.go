// Package reservation implements the two-phase reservation manager of
// spec §4.5: reconciling already-accepted advance reservations against
// the live resource set, and validating newly submitted ones against
// the per-queue slot-set calendar.
package reservation
