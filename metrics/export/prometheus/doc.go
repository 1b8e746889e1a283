// Package prometheus renders authcore metrics in Prometheus text exposition
// format. [New] takes an [authcore.Authenticator] and exposes an
// http.Handler; nothing is registered in any global registry — callers mount
// the handler where they want it.
package prometheus
