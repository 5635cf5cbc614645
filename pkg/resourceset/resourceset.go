package resourceset

import (
	"sort"

	"github.com/cuemby/batchsched/pkg/interval"
	"github.com/cuemby/batchsched/pkg/types"
)

// ResourceSet is the aggregate view derived from the platform adapter's
// Resource rows for one meta-scheduler iteration: the interval set of
// every rid it was built from, the hierarchy index, and the map of resources that
// become unusable at a future instant.
type ResourceSet struct {
	RoidItvs interval.Set
	Hierarchy []string // configured levels, outermost first, e.g. HIERARCHY_LABEL

	resources     map[int]*types.Resource
	availableUpto map[int64]interval.Set
}

// New builds a ResourceSet from a flat list of Resources and the
// configured hierarchy label order. It does not filter by state: every
// resource passed in is included, and callers wanting only Alive
// resources filter before calling.
func New(resources []*types.Resource, hierarchyLabels []string) *ResourceSet {
	rs := &ResourceSet{
		Hierarchy:     hierarchyLabels,
		resources:     make(map[int]*types.Resource, len(resources)),
		availableUpto: make(map[int64]interval.Set),
	}

	ids := make([]int, 0, len(resources))
	upto := make(map[int64][]int)
	for _, r := range resources {
		rs.resources[r.RID] = r
		ids = append(ids, r.RID)
		if r.AvailableUpto != types.NeverAvailableUpto {
			upto[r.AvailableUpto] = append(upto[r.AvailableUpto], r.RID)
		}
	}
	rs.RoidItvs = interval.FromIDs(ids)
	for t, rids := range upto {
		rs.availableUpto[t] = interval.FromIDs(rids)
	}
	return rs
}

// Resource returns the Resource snapshot for rid, or nil if unknown.
func (rs *ResourceSet) Resource(rid int) *types.Resource {
	return rs.resources[rid]
}

// AvailableUptoTimes returns, in ascending order, every future instant
// at which some resource retires.
func (rs *ResourceSet) AvailableUptoTimes() []int64 {
	times := make([]int64, 0, len(rs.availableUpto))
	for t := range rs.availableUpto {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return times
}

// ResourcesRetiringAt returns the rids (as an interval.Set) that become
// unusable at instant t.
func (rs *ResourceSet) ResourcesRetiringAt(t int64) interval.Set {
	return rs.availableUpto[t]
}

// GroupByLabel partitions the ids in within by their value at the given
// hierarchy label, returning groups in a stable, deterministic order
// (ascending by the group's lowest rid) so the matcher's combination
// search is reproducible across runs.
func (rs *ResourceSet) GroupByLabel(label string, within interval.Set) []Group {
	buckets := make(map[string][]int)
	var order []string
	for _, rid := range within.ToIDs() {
		r := rs.resources[rid]
		if r == nil {
			continue
		}
		val := r.HierarchyPath[label]
		if _, seen := buckets[val]; !seen {
			order = append(order, val)
		}
		buckets[val] = append(buckets[val], rid)
	}

	groups := make([]Group, 0, len(order))
	for _, val := range order {
		groups = append(groups, Group{
			Value: val,
			Itvs:  interval.FromIDs(buckets[val]),
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Itvs[0].Lo < groups[j].Itvs[0].Lo
	})
	return groups
}

// Group is one value of a hierarchy label together with the resource
// ids that carry it, e.g. {Value: "node3", Itvs: cores of node3}.
type Group struct {
	Value string
	Itvs  interval.Set
}
