// Package revoke adapts a shared Redis keyspace into a cluster-wide token
// revocation store keyed by token ID (jti), with TTLs bounded by the
// revoked token's own remaining lifetime.
package revoke
