// Package energy implements the energy-saving decider of spec §4.7:
// it finds nodes idle long enough to halt and nodes the gantt will
// need soon enough to wake, and dispatches both through a pluggable
// Agent (the built-in gRPC control channel or an external command).
package energy
