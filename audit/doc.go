// Package audit provides the security audit event model: a builder for
// immutable events, alerting and category classification, and sinks with an
// async dispatcher for delivery.
package audit
