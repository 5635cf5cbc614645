/*
Package scheduler implements the meta-scheduler core loop (spec §5):
one pass per tick over every active queue's policy, reservation
handling, the cross-queue launch/kill decision, energy-saving dispatch,
and the notification fan-out that turns state transitions into
OARRUNJOB_/Term/ChState/TCP messages.

Each call to RunIteration corresponds to one run of OAR's
meta_schedule(): single-threaded (no concurrent iterations), and it
returns an exit code mirroring the original's 0 (idle or launched), 1
(a reservation's start time has already passed), or 2 (a best-effort
kill was issued, or a notification failed) so a caller polling it can
distinguish "nothing happened" from "something needs a human."

Only the current Raft leader should call RunIteration; Scheduler
itself does not enforce that beyond the optional IsLeader gate passed
in Config, since pkg/leader already guarantees at most one replica
believes itself leader at a time.
*/
package scheduler
