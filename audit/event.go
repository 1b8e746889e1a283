package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a security-relevant action.
type EventType string

const (
	EventAuthenticationSuccess EventType = "authentication.success"
	EventAuthenticationFailure EventType = "authentication.failure"
	EventAuthorizationGranted  EventType = "authorization.granted"
	EventAuthorizationDenied   EventType = "authorization.denied"
	EventTokenIssued           EventType = "token.issued"
	EventTokenRefreshed        EventType = "token.refreshed"
	EventTokenRevoked          EventType = "token.revoked"
	EventMFAChallenge          EventType = "mfa.challenge"
	EventMFAEnrolled           EventType = "mfa.enrolled"
	EventMFAVerified           EventType = "mfa.verified"

	EventResourceCreated EventType = "resource.created"
	EventResourceRead    EventType = "resource.read"
	EventResourceUpdated EventType = "resource.updated"
	EventResourceDeleted EventType = "resource.deleted"

	EventStoreDegraded EventType = "system.store_degraded"
	EventConfigChanged EventType = "system.config_changed"

	EventSecurityPolicyViolation EventType = "security.policy_violation"
	EventSuspiciousActivity      EventType = "security.suspicious_activity"
	EventRateLimitExceeded       EventType = "security.rate_limited"

	EventRoleAssigned    EventType = "admin.role_assigned"
	EventTenantSuspended EventType = "admin.tenant_suspended"
	EventImpersonation   EventType = "admin.impersonation"

	EventWebhookDelivered EventType = "integration.webhook_delivered"
	EventExportCompleted  EventType = "integration.export_completed"
)

// Severity ranks how serious an event is, independent of its outcome.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity label.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Outcome records whether the audited action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Category groups event types for metrics and dashboards. It carries no
// alerting semantics.
type Category string

const (
	CategoryAuthentication Category = "authentication"
	CategoryResource       Category = "resource"
	CategorySystem         Category = "system"
	CategorySecurity       Category = "security"
	CategoryAdministration Category = "administration"
	CategoryIntegration    Category = "integration"
	CategoryCustom         Category = "custom"
)

// Event is an immutable security audit record. Build one with [Builder];
// never mutate an Event after it has been emitted.
type Event struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"event_type"`
	Severity       Severity          `json:"severity"`
	Timestamp      time.Time         `json:"timestamp"`
	ActorID        string            `json:"actor_id,omitempty"`
	ImpersonatorID string            `json:"impersonator_id,omitempty"`
	TenantID       string            `json:"tenant_id,omitempty"`
	ResourceType   string            `json:"resource_type,omitempty"`
	ResourceID     string            `json:"resource_id,omitempty"`
	Outcome        Outcome           `json:"outcome"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Tags           []string          `json:"tags,omitempty"`
}

// alwaysAlert lists the event types that page regardless of severity or
// outcome.
var alwaysAlert = map[EventType]bool{
	EventSecurityPolicyViolation: true,
	EventSuspiciousActivity:      true,
	EventAuthenticationFailure:   true,
	EventAuthorizationDenied:     true,
}

// ShouldAlert reports whether the event must trigger alerting: critical
// severity, a failure outcome, or one of the always-alerting event types.
func (e Event) ShouldAlert() bool {
	if e.Severity == SeverityCritical {
		return true
	}
	if e.Outcome == OutcomeFailure {
		return true
	}
	return alwaysAlert[e.Type]
}

// Category maps the event type to its reporting group. Total over all event
// types: anything unrecognized is [CategoryCustom].
func (e Event) Category() Category {
	switch e.Type {
	case EventAuthenticationSuccess, EventAuthenticationFailure,
		EventTokenIssued, EventTokenRefreshed, EventTokenRevoked,
		EventMFAChallenge, EventMFAEnrolled, EventMFAVerified:
		return CategoryAuthentication
	case EventResourceCreated, EventResourceRead, EventResourceUpdated, EventResourceDeleted:
		return CategoryResource
	case EventStoreDegraded, EventConfigChanged:
		return CategorySystem
	case EventSecurityPolicyViolation, EventSuspiciousActivity,
		EventRateLimitExceeded, EventAuthorizationGranted, EventAuthorizationDenied:
		return CategorySecurity
	case EventRoleAssigned, EventTenantSuspended, EventImpersonation:
		return CategoryAdministration
	case EventWebhookDelivered, EventExportCompleted:
		return CategoryIntegration
	default:
		return CategoryCustom
	}
}

// Builder accumulates optional event fields and produces an immutable
// [Event]. Zero value is not usable; start with [NewBuilder].
type Builder struct {
	event Event
	now   func() time.Time
}

// NewBuilder starts an event of the given type and severity.
func NewBuilder(eventType EventType, severity Severity) *Builder {
	return &Builder{
		event: Event{
			Type:     eventType,
			Severity: severity,
			Outcome:  OutcomeSuccess,
		},
		now: time.Now,
	}
}

// WithClock overrides the timestamp source. Test hook.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// WithActor sets the acting user.
func (b *Builder) WithActor(actorID string) *Builder {
	b.event.ActorID = actorID
	return b
}

// WithImpersonator records the administrator acting on the actor's behalf.
func (b *Builder) WithImpersonator(impersonatorID string) *Builder {
	b.event.ImpersonatorID = impersonatorID
	return b
}

// WithTenant sets the tenant scope.
func (b *Builder) WithTenant(tenantID string) *Builder {
	b.event.TenantID = tenantID
	return b
}

// WithResource sets the affected resource.
func (b *Builder) WithResource(resourceType, resourceID string) *Builder {
	b.event.ResourceType = resourceType
	b.event.ResourceID = resourceID
	return b
}

// WithOutcome sets the outcome; the default is [OutcomeSuccess].
func (b *Builder) WithOutcome(outcome Outcome) *Builder {
	b.event.Outcome = outcome
	return b
}

// WithMetadata adds one metadata entry.
func (b *Builder) WithMetadata(key, value string) *Builder {
	if b.event.Metadata == nil {
		b.event.Metadata = map[string]string{}
	}
	b.event.Metadata[key] = value
	return b
}

// WithTags appends tags.
func (b *Builder) WithTags(tags ...string) *Builder {
	b.event.Tags = append(b.event.Tags, tags...)
	return b
}

// Build assigns the event ID and timestamp and returns the finished event.
// The returned Event owns copies of the accumulated metadata and tags, so
// reusing the builder cannot mutate it.
func (b *Builder) Build() Event {
	event := b.event
	event.ID = uuid.NewString()
	event.Timestamp = b.now().UTC()

	if len(b.event.Metadata) > 0 {
		event.Metadata = make(map[string]string, len(b.event.Metadata))
		for k, v := range b.event.Metadata {
			event.Metadata[k] = v
		}
	}
	if len(b.event.Tags) > 0 {
		event.Tags = append([]string(nil), b.event.Tags...)
	}

	return event
}
