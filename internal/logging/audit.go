package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Authentication events
	AuthSuccess    AuditEventType = "AUTH_SUCCESS"
	AuthFailure    AuditEventType = "AUTH_FAILURE"
	AuthLogout     AuditEventType = "AUTH_LOGOUT"
	SessionExpired AuditEventType = "SESSION_EXPIRED"

	// Local data changes
	EventChange  AuditEventType = "EVENT_CHANGE"
	StatusChange AuditEventType = "STATUS_CHANGE"

	// Configuration events
	ConfigChange AuditEventType = "CONFIG_CHANGE"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	StatusSuccess AuditStatus = "success"
	StatusFailure AuditStatus = "failure"
)

// AuditEvent is one security or data-change record.
type AuditEvent struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	EventType    AuditEventType         `json:"event_type"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Action       string                 `json:"action"`
	Resource     string                 `json:"resource,omitempty"`
	Status       AuditStatus            `json:"status"`
	Details      map[string]interface{} `json:"details,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// NewAuditEvent creates a new audit event with a generated ID and timestamp
func NewAuditEvent(eventType AuditEventType, action string, status AuditStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Action:    action,
		Status:    status,
	}
}

// WithIPAddress sets the IP address for the audit event
func (e *AuditEvent) WithIPAddress(ipAddress string) *AuditEvent {
	e.IPAddress = ipAddress
	return e
}

// WithResource sets the resource for the audit event
func (e *AuditEvent) WithResource(resource string) *AuditEvent {
	e.Resource = resource
	return e
}

// WithDetails sets the details map for the audit event
func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	e.Details = details
	return e
}

// WithError marks the event failed.
func (e *AuditEvent) WithError(errorMessage string) *AuditEvent {
	e.ErrorMessage = errorMessage
	e.Status = StatusFailure
	return e
}

// ToJSON converts the audit event to a JSON string
func (e *AuditEvent) ToJSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal audit event: %v"}`, err)
	}
	return string(data)
}

// ParseAuditEvent parses a JSON string into an AuditEvent
func ParseAuditEvent(data string) (*AuditEvent, error) {
	var event AuditEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to parse audit event: %w", err)
	}
	return &event, nil
}

// Auditor records audit events. Implementations must not block the caller
// for long; they run on the request path.
type Auditor interface {
	Audit(ctx context.Context, event *AuditEvent)
}

// LogAuditor writes audit events as "audit" log lines, failures at warn.
type LogAuditor struct {
	logger *Logger
}

// NewLogAuditor creates an auditor on logger.
func NewLogAuditor(logger *Logger) *LogAuditor {
	if logger == nil {
		logger = Discard()
	}
	return &LogAuditor{logger: logger}
}

func (a *LogAuditor) Audit(ctx context.Context, e *AuditEvent) {
	if e == nil {
		return
	}
	fields := []interface{}{
		"audit_id", e.ID,
		"event_type", string(e.EventType),
		"action", e.Action,
		"status", string(e.Status),
	}
	if e.Resource != "" {
		fields = append(fields, "resource", e.Resource)
	}
	if e.IPAddress != "" {
		fields = append(fields, "ip_address", e.IPAddress)
	}
	if len(e.Details) > 0 {
		fields = append(fields, "details", e.Details)
	}
	if e.Status == StatusFailure {
		if e.ErrorMessage != "" {
			fields = append(fields, "error", e.ErrorMessage)
		}
		a.logger.WarnWithContext(ctx, "audit", fields...)
		return
	}
	a.logger.InfoWithContext(ctx, "audit", fields...)
}
