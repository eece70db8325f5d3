package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/calendar"
	"github.com/stagecal/stagecal/internal/crm"
)

// queryRange reads the optional start_date/end_date pair and answers 400
// when it is malformed.
func queryRange(c *gin.Context) (*crm.DateRange, bool) {
	r, err := calendar.ParseRange(c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		abortError(c, http.StatusBadRequest, "Invalid date range. Use start_date and end_date as YYYY-MM-DD.", err.Error())
		return nil, false
	}
	return r, true
}

func (s *Server) handleZohoEvents(c *gin.Context) {
	r, ok := queryRange(c)
	if !ok {
		return
	}

	sess, _ := crmSession(c)
	events, err := s.service.ExternalEvents(c.Request.Context(), sess, r)
	if err != nil {
		failure{fallback: msgZohoFetchFailed}.render(c, err)
		return
	}
	respond(c, "Events fetched successfully", events)
}

func (s *Server) handleZohoEvent(c *gin.Context) {
	sess, _ := crmSession(c)
	ev, err := s.service.ExternalEvent(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		failure{notFound: "Event not found in Zoho CRM.", fallback: msgZohoFetchFailed}.render(c, err)
		return
	}
	respond(c, "Events fetched successfully", ev)
}

func (s *Server) handleZohoMaster(c *gin.Context) {
	sess, _ := crmSession(c)
	master, err := s.service.Master(c.Request.Context(), sess)
	if err != nil {
		failure{fallback: "Failed to fetch master events from Zoho CRM."}.render(c, err)
		return
	}
	respond(c, "Master Events fetched successfully", master)
}
