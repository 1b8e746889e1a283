// Package tenant resolves the active tenant for an inbound request from the
// explicit tenant header, the host subdomain, or (as a non-authoritative
// routing hint) the bearer token's unverified tenant claim, in that order.
package tenant
