// Package policy invokes the per-queue scheduling policy as an
// external process and interprets its exit status, per spec §4.4: the
// policy itself is opaque to the core — it reads and writes the
// platform store directly, and the core only cares whether it
// succeeded.
package policy
