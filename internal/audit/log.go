package audit

import (
	"context"
	"log/slog"

	"loyalgate/pkg/requestcontext"
)

// Emitter is the publishing side of the audit trail.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LogAudit writes a structured audit log line and, when an emitter is configured, publishes
// the matching event. Attributes are slog-style key/value pairs; tenant_id, principal_id,
// stage, route_class, reason and client_ip are lifted into the event.
func LogAudit(ctx context.Context, logger *slog.Logger, emitter Emitter, event EventType, attributes ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if logger != nil {
		args := append(attributes, "event", string(event), "log_type", "audit")
		logger.InfoContext(ctx, string(event), args...)
	}
	if emitter == nil {
		return
	}
	fields := stringFields(attributes)
	_ = emitter.Emit(ctx, Event{
		Type:        event,
		RequestID:   requestID,
		TenantID:    fields["tenant_id"],
		PrincipalID: fields["principal_id"],
		Stage:       fields["stage"],
		RouteClass:  fields["route_class"],
		Reason:      fields["reason"],
		ClientIP:    fields["client_ip"],
	})
}

// stringFields collects the string-valued pairs of a slog-style attribute list. Later keys win.
func stringFields(attributes []any) map[string]string {
	fields := make(map[string]string, len(attributes)/2)
	for i := 0; i+1 < len(attributes); i += 2 {
		key, ok := attributes[i].(string)
		if !ok {
			continue
		}
		if value, ok := attributes[i+1].(string); ok {
			fields[key] = value
		}
	}
	return fields
}
