// Package resourceset holds the static, per-iteration snapshot of all
// cluster resources: their interval-set identity, their position along
// the configured hierarchy, and the aggregation queries the matcher and
// slot set need ("which cores belong to this node").
package resourceset
