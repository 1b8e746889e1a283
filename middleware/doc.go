// Package middleware integrates the security pipeline with net/http.
package middleware
