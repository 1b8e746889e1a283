// Package rate implements a fixed-window request limiter over shared Redis
// counters, failing open when the store is unreachable.
package rate
