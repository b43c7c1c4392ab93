package audit

import "time"

// Category classifies audit events for routing and retention.
type Category string

const (
	// CategorySecurity covers rejections and credential lifecycle changes. These feed SIEM.
	CategorySecurity Category = "security"
	// CategoryOperations covers routine activity that can be sampled.
	CategoryOperations Category = "operations"
)

// EventType names an audited action.
type EventType string

const (
	EventAdmissionRejected EventType = "admission_rejected"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventRateLimitDegraded EventType = "rate_limit_degraded"
	EventAPIKeyCreated     EventType = "api_key_created"
	EventAPIKeyRevoked     EventType = "api_key_revoked"
	EventTenantSuspended   EventType = "tenant_suspended"
	EventTenantReactivated EventType = "tenant_reactivated"
	EventTenantCreated     EventType = "tenant_created"
)

var eventCategories = map[EventType]Category{
	EventAdmissionRejected: CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,
	EventRateLimitDegraded: CategorySecurity,
	EventAPIKeyCreated:     CategorySecurity,
	EventAPIKeyRevoked:     CategorySecurity,
	EventTenantSuspended:   CategorySecurity,
	EventTenantReactivated: CategoryOperations,
	EventTenantCreated:     CategoryOperations,
}

// Category returns the routing category. Unknown types are treated as security events.
func (e EventType) Category() Category {
	if c, ok := eventCategories[e]; ok {
		return c
	}
	return CategorySecurity
}

// Event is one audit record. Reason carries the internal failure kind, which may be more
// specific than what the client was told (credential_revoked vs invalid_credential).
type Event struct {
	Type        EventType `json:"type"`
	Category    Category  `json:"category"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
	TenantID    string    `json:"tenant_id,omitempty"`
	PrincipalID string    `json:"principal_id,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	RouteClass  string    `json:"route_class,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ClientIP    string    `json:"client_ip,omitempty"`
}
