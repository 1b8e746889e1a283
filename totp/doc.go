// Package totp implements time-based one-time codes (RFC 6238 over
// HMAC-SHA-256) and independently drawn backup codes for second-factor
// verification.
package totp
