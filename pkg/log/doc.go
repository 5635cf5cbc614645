/*
Package log provides structured logging for the scheduler using zerolog.

It wraps a single global zerolog.Logger, initialized once via Init, and
offers child-logger helpers for the scheduler's own context fields
(queue, job) instead of the generic node/service/task fields a cluster
orchestrator would use.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("meta-scheduler starting")

	qlog := log.WithQueue("default")
	qlog.Info().Msg("invoking policy")

	jlog := log.WithJob(42)
	jlog.Error().Err(err).Msg("launch notification failed")

# Levels

Debug is for per-slot/per-hierarchy-match tracing during development;
Info is the default production level (one line per queue processed,
per job transitioned); Warn covers recoverable anomalies (a queue
deactivated, a notification timeout); Error is reserved for iteration-
level failures. Fatal exits the process and is used only for
unrecoverable startup errors (e.g. the platform store can't open).
*/
package log
