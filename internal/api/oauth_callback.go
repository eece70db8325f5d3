package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/session"
)

const (
	stateCookie = "stagecal_oauth_state"
	stateMaxAge = 600
)

// handleLogin returns the consent URL and remembers the OAuth state.
func (s *Server) handleLogin(c *gin.Context) {
	if !s.oauthReady(c) {
		return
	}
	state := session.NewID()
	s.setCookie(c, stateCookie, state, stateMaxAge)
	respond(c, "Zoho authorization URL generated successfully", gin.H{"zohoAuthUrl": s.oauth.AuthURL(state)})
}

// handleOAuthCallback completes the authorization code flow, stores the
// credentials under a new session and sends the browser to the calendar.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()
	if !s.oauthReady(c) {
		return
	}

	if e := c.Query("error"); e != "" {
		s.logger.WarnWithContext(ctx, "oauth consent failed", "error", e)
		s.auditAuth(c, logging.AuthFailure, "oauth_consent", e)
		c.Redirect(http.StatusFound, "/?error="+url.QueryEscape("Zoho authentication failed: "+e))
		return
	}

	code := c.Query("code")
	if code == "" {
		abortError(c, http.StatusBadRequest, "Authorization code not found.", nil)
		return
	}

	if s.crmConfig.VerifyState {
		expected, _ := c.Cookie(stateCookie)
		if expected == "" || expected != c.Query("state") {
			s.logger.WarnWithContext(ctx, "oauth state mismatch", "client_ip", c.ClientIP())
			s.auditAuth(c, logging.AuthFailure, "oauth_callback", "state mismatch")
			abortError(c, http.StatusBadRequest, "Invalid OAuth state.", nil)
			return
		}
	}
	clearCookie(c, stateCookie)

	creds, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.ErrorWithContext(ctx, "oauth code exchange failed", "error", err)
		s.auditAuth(c, logging.AuthFailure, "oauth_callback", err.Error())
		abortError(c, http.StatusInternalServerError, "Authentication failed.", err.Error())
		return
	}

	id := session.NewID()
	if err := s.sessions.PutCredentials(ctx, id, creds); err != nil {
		s.logger.ErrorWithContext(ctx, "failed to store credentials", "error", err)
		abortError(c, http.StatusInternalServerError, "Authentication failed.", err.Error())
		return
	}

	s.setCookie(c, s.apiConfig.Session.CookieName, id, int(s.apiConfig.Session.TTL.Seconds()))
	s.logger.InfoWithContext(ctx, "crm session established", "api_domain", creds.APIDomain)
	s.auditAuth(c, logging.AuthSuccess, "oauth_callback", "")
	c.Redirect(http.StatusFound, s.crmConfig.FrontendRedirect)
}

// handleLogout drops the session's credentials and cookie.
func (s *Server) handleLogout(c *gin.Context) {
	name := s.apiConfig.Session.CookieName
	if id, _ := c.Cookie(name); id != "" {
		if err := s.guard.Forget(c.Request.Context(), id); err != nil {
			s.logger.ErrorWithContext(c.Request.Context(), "logout failed", "error", err)
			abortError(c, http.StatusInternalServerError, "Logout failed.", err.Error())
			return
		}
	}
	clearCookie(c, name)
	s.auditAuth(c, logging.AuthLogout, "logout", "")
	respond(c, "Logged out successfully.", nil)
}

func (s *Server) setCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.apiConfig.Session.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) oauthReady(c *gin.Context) bool {
	if s.oauth == nil {
		abortError(c, http.StatusServiceUnavailable, "Zoho CRM is not configured.", nil)
		return false
	}
	return true
}
