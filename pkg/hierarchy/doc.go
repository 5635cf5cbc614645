// Package hierarchy implements the resource hierarchy matcher:
// find_resource_hierarchies_job in spec §4.2. It walks a hierarchical
// request (outermost level first) against a ResourceSet's grouping
// index, picking the first stable-order combination of groups that
// fully satisfies every inner level, so identical inputs always
// produce identical assignments.
package hierarchy
