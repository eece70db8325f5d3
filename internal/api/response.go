package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/errors"
)

// Response is the success envelope.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   any    `json:"error,omitempty"`
}

// Messages shared by several handlers.
const (
	msgNotAuthenticated = "Not authenticated with Zoho."
	msgSessionExpired   = "Session expired, please re-authenticate."
	msgReauthenticate   = "Unauthorized. Please re-authenticate."
	msgZohoFetchFailed  = "Failed to fetch events from Zoho CRM."
)

func respond(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Message: message, Data: data})
}

func abortError(c *gin.Context, status int, message string, detail any) {
	c.AbortWithStatusJSON(status, ErrorResponse{Code: status, Message: message, Error: detail})
}

// failure maps err onto a status and message. notFound is used for
// *errors.ErrNotFound, fallback for anything unclassified.
type failure struct {
	notFound string
	fallback string
}

func (f failure) render(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case stderrors.Is(err, errors.ErrSessionExpired):
		abortError(c, http.StatusUnauthorized, msgSessionExpired, err.Error())
		return
	case stderrors.Is(err, errors.ErrUnauthenticated):
		abortError(c, http.StatusUnauthorized, msgNotAuthenticated, err.Error())
		return
	case errors.IsNotFound(err) && f.notFound != "":
		abortError(c, http.StatusNotFound, f.notFound, err.Error())
		return
	case isBodyTooLarge(err):
		abortError(c, http.StatusRequestEntityTooLarge, "Request body exceeds maximum allowed size.", err.Error())
		return
	}

	var up *errors.ErrUpstream
	if stderrors.As(err, &up) {
		if up.StatusCode == http.StatusUnauthorized {
			abortError(c, http.StatusUnauthorized, msgReauthenticate, upstreamDetail(up))
			return
		}
		abortError(c, http.StatusInternalServerError, f.fallback, upstreamDetail(up))
		return
	}

	abortError(c, http.StatusInternalServerError, f.fallback, err.Error())
}

// upstreamDetail forwards the CRM payload when it is JSON-ish text.
func upstreamDetail(up *errors.ErrUpstream) any {
	if up.Body != "" {
		return up.Body
	}
	return up.Error()
}
