package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/calendar"
	"github.com/stagecal/stagecal/internal/crm"
	"github.com/stagecal/stagecal/internal/errors"
	"github.com/stagecal/stagecal/internal/models"
)

func (s *Server) bindEvent(c *gin.Context) (models.EventInput, bool) {
	var in models.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		if isBodyTooLarge(err) {
			failure{}.render(c, err)
			return in, false
		}
		abortError(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return in, false
	}
	return in, true
}

func (s *Server) handleCreateEvent(c *gin.Context) {
	in, ok := s.bindEvent(c)
	if !ok {
		return
	}

	var sess *crm.Session
	if cs, ok := crmSession(c); ok {
		sess = &cs
	}
	ev, err := s.service.CreateEvent(c.Request.Context(), sess, in)
	if err != nil {
		failure{fallback: "Error creating event"}.render(c, err)
		return
	}
	respond(c, "Event created successfully", ev)
}

func (s *Server) handleListEvents(c *gin.Context) {
	events, err := s.service.LocalEvents(c.Request.Context())
	if err != nil {
		failure{fallback: "Error fetching events"}.render(c, err)
		return
	}
	respond(c, "Events fetched successfully", events)
}

func (s *Server) handleGetEvent(c *gin.Context) {
	ev, err := s.service.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		failure{notFound: "Event not found", fallback: "Error fetching event"}.render(c, err)
		return
	}
	respond(c, "Event fetched successfully", ev)
}

// handleUpdateEvent patches a local event, or, for source "external", files
// an update task against the CRM deal without touching local data.
func (s *Server) handleUpdateEvent(c *gin.Context) {
	in, ok := s.bindEvent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")

	if in.IsExternal() {
		sess, ok := crmSession(c)
		if !ok {
			failure{}.render(c, errors.ErrUnauthenticated)
			return
		}
		ev, err := s.service.RequestExternalUpdate(ctx, sess, id, in)
		if err != nil {
			if errors.IsAuth(err) {
				failure{}.render(c, err)
				return
			}
			_ = c.Error(err)
			abortError(c, http.StatusNotFound, "Task to update could not be created in Zoho CRM", err.Error())
			return
		}
		respond(c, "Task to update event created successfully in Zoho CRM", ev)
		return
	}

	ev, err := s.service.UpdateEvent(ctx, id, in)
	if err != nil {
		failure{notFound: "Event not found", fallback: "Error updating event"}.render(c, err)
		return
	}
	respond(c, "Event updated successfully", ev)
}

func (s *Server) handleDeleteEvent(c *gin.Context) {
	ev, err := s.service.DeleteEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		failure{notFound: "Event not found", fallback: "Error deleting event"}.render(c, err)
		return
	}
	respond(c, "Event deleted successfully", ev)
}

func (s *Server) handleAllEvents(c *gin.Context) {
	r, ok := queryRange(c)
	if !ok {
		return
	}
	sess, _ := crmSession(c)
	events, err := s.service.AllEvents(c.Request.Context(), sess, r)
	if err != nil {
		failure{fallback: "Error fetching all events"}.render(c, err)
		return
	}
	respond(c, "All events fetched successfully", events)
}

func (s *Server) handleExportICS(c *gin.Context) {
	r, ok := queryRange(c)
	if !ok {
		return
	}
	sess, _ := crmSession(c)
	events, err := s.service.AllEvents(c.Request.Context(), sess, r)
	if err != nil {
		failure{fallback: "Error exporting events"}.render(c, err)
		return
	}

	var buf bytes.Buffer
	if err := calendar.WriteICS(&buf, events, time.Now()); err != nil {
		failure{fallback: "Error exporting events"}.render(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="stagecal.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}
