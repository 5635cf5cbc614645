// Package interval implements the disjoint, sorted integer-interval sets
// that every resource identity and availability window in batchsched
// reduces to. All ranges are inclusive [Lo, Hi].
package interval
