// Package slotset implements the time-partitioned calendar of resource
// availability described in spec §3/§4.3: a doubly-linked arena of
// Slots, each covering [Begin, End] and carrying the set of resources
// free throughout that window, tiling time from t0 to +∞ without gaps
// or overlaps.
package slotset
