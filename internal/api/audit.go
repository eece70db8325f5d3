package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/logging"
)

// auditMutations records every POST, PATCH and DELETE on local resources
// once the handler has run.
func auditMutations(auditor logging.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodPost, http.MethodPatch, http.MethodDelete:
		default:
			return
		}

		route := c.FullPath()
		eventType := logging.EventChange
		if strings.HasPrefix(route, "/api/status") {
			eventType = logging.StatusChange
		}

		status := c.Writer.Status()
		event := logging.NewAuditEvent(eventType, c.Request.Method+" "+route, logging.StatusSuccess).
			WithIPAddress(c.ClientIP()).
			WithResource(c.Request.URL.Path).
			WithDetails(map[string]interface{}{
				"status":        status,
				"authenticated": c.GetString(ctxSessionID) != "",
			})
		if status >= http.StatusBadRequest {
			event.WithError(http.StatusText(status))
		}
		auditor.Audit(c.Request.Context(), event)
	}
}

// auditAuth records an authentication outcome for the current request.
func (s *Server) auditAuth(c *gin.Context, eventType logging.AuditEventType, action, failure string) {
	event := logging.NewAuditEvent(eventType, action, logging.StatusSuccess).
		WithIPAddress(c.ClientIP()).
		WithResource(c.Request.URL.Path)
	if failure != "" {
		event.WithError(failure)
	}
	s.auditor.Audit(c.Request.Context(), event)
}
