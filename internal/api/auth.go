package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/auth"
	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/logging"
)

const (
	ctxCRMSession = "crm_session"
	ctxSessionID  = "session_id"
)

// sessionGuard runs the token guard for the session cookie and stores the
// resulting CRM session on the gin context. When required is false, a
// request without a usable session continues anonymously.
func sessionGuard(guard *auth.Guard, cookieName string, required bool, logger *logging.Logger, auditor logging.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(cookieName)
		if id == "" && !required {
			c.Next()
			return
		}

		ctx := logging.WithSessionID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		creds, err := guard.Ensure(ctx, id)
		if err != nil {
			if !required && errors.IsAuth(err) {
				logger.DebugWithContext(ctx, "continuing without crm session", "error", err)
				c.Next()
				return
			}
			if stderrors.Is(err, errors.ErrSessionExpired) {
				clearCookie(c, cookieName)
				auditor.Audit(ctx, logging.NewAuditEvent(logging.SessionExpired, "token_refresh", logging.StatusFailure).
					WithIPAddress(c.ClientIP()).
					WithResource(c.Request.URL.Path))
			}
			if errors.IsAuth(err) {
				logger.InfoWithContext(ctx, "crm session rejected", "path", c.FullPath(), "error", err)
			} else {
				logger.ErrorWithContext(ctx, "crm session check failed", "error", err)
			}
			failure{fallback: "Failed to verify session."}.render(c, err)
			return
		}

		c.Set(ctxSessionID, id)
		c.Set(ctxCRMSession, crm.Session{AccessToken: creds.AccessToken, APIDomain: creds.APIDomain})
		c.Next()
	}
}

// crmSession returns the session placed by sessionGuard.
func crmSession(c *gin.Context) (crm.Session, bool) {
	v, ok := c.Get(ctxCRMSession)
	if !ok {
		return crm.Session{}, false
	}
	s, ok := v.(crm.Session)
	return s, ok
}

func clearCookie(c *gin.Context, name string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
