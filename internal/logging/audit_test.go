package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestAuditEventLifecycle(t *testing.T) {
	event := NewAuditEvent(AuthSuccess, "oauth_callback", StatusSuccess).
		WithIPAddress("127.0.0.1").
		WithResource("/oauth-callback").
		WithDetails(map[string]interface{}{"api_domain": "https://www.zohoapis.eu"})

	if event.IPAddress != "127.0.0.1" || event.Resource != "/oauth-callback" {
		t.Fatalf("expected ip and resource to be set")
	}

	event.WithError("exchange failed")
	if event.Status != StatusFailure || event.ErrorMessage != "exchange failed" {
		t.Fatalf("expected failure with message")
	}

	parsed, err := ParseAuditEvent(event.ToJSON())
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if parsed.Action != "oauth_callback" || parsed.EventType != AuthSuccess {
		t.Fatalf("unexpected parsed event: %+v", parsed)
	}
}

func TestAuditEventJSONErrors(t *testing.T) {
	event := NewAuditEvent(EventChange, "POST /api/event", StatusSuccess)
	event.Details = map[string]interface{}{"bad": func() {}}
	if !strings.Contains(event.ToJSON(), "failed to marshal audit event") {
		t.Fatalf("expected marshal failure message")
	}

	if _, err := ParseAuditEvent("{invalid json"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLogAuditor(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewLogAuditor(NewLogger(WithOutput(&buf), WithLevel(LevelInfo)))
	ctx := WithSessionID(context.Background(), "0123456789abcdef")

	auditor.Audit(ctx, NewAuditEvent(StatusChange, "DELETE /api/status/:id", StatusSuccess).WithResource("/api/status/st-1"))
	entry := decodeLastLog(t, buf.Bytes())
	if entry["message"] != "audit" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["session_id"] != "01234567" {
		t.Fatalf("expected session id from context, got %v", entry["session_id"])
	}
	fields := entry["fields"].(map[string]interface{})
	if fields["event_type"] != "STATUS_CHANGE" || fields["resource"] != "/api/status/st-1" {
		t.Fatalf("unexpected fields: %v", fields)
	}

	auditor.Audit(ctx, NewAuditEvent(AuthFailure, "oauth_callback", StatusSuccess).WithError("state mismatch"))
	entry = decodeLastLog(t, buf.Bytes())
	if entry["level"] != "warn" {
		t.Fatalf("expected failures at warn, got %v", entry["level"])
	}
	if entry["fields"].(map[string]interface{})["error"] != "state mismatch" {
		t.Fatalf("expected error field")
	}

	auditor.Audit(ctx, nil)
}
