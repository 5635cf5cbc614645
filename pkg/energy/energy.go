package energy

import (
	"context"
	"fmt"

	"github.com/cuemby/batchsched/pkg/log"
	"github.com/cuemby/batchsched/pkg/metrics"
	"github.com/cuemby/batchsched/pkg/platform"
	"github.com/cuemby/batchsched/pkg/resourceset"
	"github.com/cuemby/batchsched/pkg/types"
)

// Agent dispatches halt/wake decisions to node power control, either
// through the built-in gRPC agent or an external command (spec §4.7).
type Agent interface {
	Halt(ctx context.Context, hostnames []string) error
	WakeUp(ctx context.Context, hostnames []string) error
	// Check pings a built-in agent to keep its control channel warm
	// when an iteration issues no halt/wake traffic; a no-op for an
	// external-command agent, which has no persistent channel.
	Check(ctx context.Context) error
}

// Config carries the SCHEDULER_NODE_MANAGER_* timing knobs.
type Config struct {
	Enabled bool
	// HostLabel names the hierarchy level that identifies a node, e.g.
	// "network_address".
	HostLabel  string
	IdleTime   int64
	SleepTime  int64
	WakeupTime int64
}

// Decider implements spec §4.7.
type Decider struct {
	Store  platform.Store
	Agent  Agent
	Config Config

	// recentlyWoken is process-local: hostname -> instant last woken,
	// so a node just woken isn't immediately re-halted.
	recentlyWoken map[string]int64
}

// New returns a Decider.
func New(store platform.Store, agent Agent, cfg Config) *Decider {
	return &Decider{Store: store, Agent: agent, Config: cfg, recentlyWoken: make(map[string]int64)}
}

// Run executes one energy-saving pass, using all (a ResourceSet built
// from every known resource regardless of state, unlike the
// Alive-only set the scheduler matches jobs against).
func (d *Decider) Run(ctx context.Context, now int64, all *resourceset.ResourceSet) error {
	if !d.Config.Enabled {
		return nil
	}

	assignments, err := d.Store.ListGanttAssignments()
	if err != nil {
		return fmt.Errorf("list gantt assignments: %w", err)
	}

	groups := all.GroupByLabel(d.Config.HostLabel, all.RoidItvs)
	ridToHost := make(map[int]string)
	for _, g := range groups {
		for _, rid := range g.Itvs.ToIDs() {
			ridToHost[rid] = g.Value
		}
	}

	hostNextStart := make(map[string]int64)
	for _, ga := range assignments {
		for _, rid := range ga.ResSet.ToIDs() {
			host, ok := ridToHost[rid]
			if !ok {
				continue
			}
			if cur, exists := hostNextStart[host]; !exists || ga.StartTime < cur {
				hostNextStart[host] = ga.StartTime
			}
		}
	}

	elog := log.WithComponent("energy")

	var haltCandidates, wakeCandidates []string
	for _, g := range groups {
		host := g.Value
		rids := g.Itvs.ToIDs()
		if len(rids) == 0 {
			continue
		}

		allAlive, allAbsent, hostBusy := true, true, false
		var hostIdleSince int64
		for _, rid := range rids {
			r := all.Resource(rid)
			if r == nil {
				allAlive, allAbsent = false, false
				continue
			}
			if r.State != types.ResourceAlive {
				allAlive = false
			} else {
				allAbsent = false
			}
			if r.State != types.ResourceAbsent {
				allAbsent = false
			}
			if r.IdleSince == 0 {
				hostBusy = true
			} else if r.IdleSince > hostIdleSince {
				hostIdleSince = r.IdleSince
			}
		}

		if allAlive && !hostBusy && hostIdleSince > 0 && now-hostIdleSince >= d.Config.IdleTime {
			nextStart, hasJob := hostNextStart[host]
			soonJob := hasJob && nextStart-now <= d.Config.SleepTime
			if !soonJob {
				if woke, ok := d.recentlyWoken[host]; !ok || now-woke >= d.Config.IdleTime {
					haltCandidates = append(haltCandidates, host)
				}
			}
		}

		if allAbsent {
			if nextStart, hasJob := hostNextStart[host]; hasJob && nextStart-now <= d.Config.WakeupTime {
				wakeCandidates = append(wakeCandidates, host)
			}
		}
	}

	traffic := false
	if len(haltCandidates) > 0 {
		traffic = true
		metrics.NodesHaltedTotal.Add(float64(len(haltCandidates)))
		if err := d.Agent.Halt(ctx, haltCandidates); err != nil {
			elog.Warn().Strs("hosts", haltCandidates).Err(err).Msg("halt dispatch failed")
		}
	}
	if len(wakeCandidates) > 0 {
		traffic = true
		metrics.NodesWokenTotal.Add(float64(len(wakeCandidates)))
		if err := d.Agent.WakeUp(ctx, wakeCandidates); err != nil {
			elog.Warn().Strs("hosts", wakeCandidates).Err(err).Msg("wake dispatch failed")
		} else {
			for _, host := range wakeCandidates {
				d.recentlyWoken[host] = now
			}
		}
	}

	if !traffic {
		if err := d.Agent.Check(ctx); err != nil {
			elog.Debug().Err(err).Msg("agent check failed")
		}
	}

	return nil
}
