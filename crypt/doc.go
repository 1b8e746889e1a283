// Package crypt provides authenticated symmetric encryption (AES-256-GCM)
// for sensitive fields persisted by the surrounding application.
package crypt
