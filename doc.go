// Package authcore is the authentication and tenant-security subsystem for
// a multi-tenant ERP backend. The central type is [Authenticator], which
// runs the per-request security pipeline (tenant resolution, token
// verification, revocation check, permission check, rate limiting) and owns
// token issuance, password and TOTP verification, audit delivery and
// operational metrics.
//
// Subpackages hold the primitives: token (signed access/refresh/purpose
// tokens), password (argon2id hashing), crypt (secret encryption at rest),
// totp (one-time codes), revoke and rate (Redis-backed revocation and
// rate limiting), tenant (request tenant resolution), audit (event model
// and sinks), middleware (net/http integration) and metrics/export
// (exporters).
//
// Everything is explicitly constructed and injected; the package keeps no
// global state.
package authcore
