// Package config loads the meta-scheduler's YAML configuration file,
// applying the SCHEDULER_*/ENERGY_*/FAIRSHARING_* defaults the spec's
// ambient stack calls for (spec.md's parameters, as OAR's config file
// would define them) when the file omits them.
package config
