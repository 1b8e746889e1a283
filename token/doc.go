// Package token issues and verifies the signed access, refresh and purpose
// tokens used by the security pipeline. All shapes share one HMAC-SHA-512
// secret but carry a type discriminator, so verifying one shape with
// another's verifier always fails. Each issued token carries a unique ID
// (jti) that serves as the revocation key.
package token
