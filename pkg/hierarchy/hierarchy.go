package hierarchy

import (
	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/resourceset"
	"github.com/cuemby/batchsched/pkg/types"
)

// Find returns a resource set of exactly the shape requested by levels
// (outermost first), drawn from avail, or an empty Set if infeasible.
// It is deterministic: the same (avail, levels, ResourceSet) always
// yields byte-identical output, the property spec §8 requires of
// find_resource_hierarchies_job.
func Find(avail interval.Set, levels []types.HierarchyRequestItem, rs *resourceset.ResourceSet) interval.Set {
	result, ok := find(avail, levels, rs)
	if !ok {
		return interval.Set{}
	}
	return result
}

func find(avail interval.Set, levels []types.HierarchyRequestItem, rs *resourceset.ResourceSet) (interval.Set, bool) {
	if len(levels) == 0 {
		return interval.Set{}, true
	}

	level := levels[0]
	if level.Count <= 0 {
		return interval.Set{}, true
	}

	// Leaf level: take the first Count resource ids available, in
	// ascending rid order (the default "resource_id ASC" tie break; the
	// configured resource_order setting is not consulted).
	if len(levels) == 1 {
		ids := avail.ToIDs()
		if len(ids) < level.Count {
			return interval.Set{}, false
		}
		return interval.FromIDs(ids[:level.Count]), true
	}

	groups := rs.GroupByLabel(level.Label, avail)
	if len(groups) < level.Count {
		return interval.Set{}, false
	}

	var picked interval.Set
	matched := 0
	for _, g := range groups {
		sub, ok := find(g.Itvs, levels[1:], rs)
		if !ok {
			continue
		}
		picked = interval.Union(picked, sub)
		matched++
		if matched == level.Count {
			break
		}
	}
	if matched < level.Count {
		return interval.Set{}, false
	}
	return picked, true
}
