package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stagecal/stagecal/internal/models"
)

func bindStatus(c *gin.Context) (models.StatusInput, bool) {
	var in models.StatusInput
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

func (s *Server) handleCreateStatus(c *gin.Context) {
	in, ok := bindStatus(c)
	if !ok {
		return
	}
	st, err := s.service.CreateStatus(c.Request.Context(), in)
	if err != nil {
		failure{fallback: "Error creating status"}.render(c, err)
		return
	}
	respond(c, "Status created successfully", st)
}

func (s *Server) handleListStatuses(c *gin.Context) {
	statuses, err := s.service.ListStatuses(c.Request.Context())
	if err != nil {
		failure{fallback: "Error fetching statuses"}.render(c, err)
		return
	}
	respond(c, "Statuses fetched successfully", statuses)
}

func (s *Server) handleGetStatus(c *gin.Context) {
	st, err := s.service.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		failure{notFound: "Status not found", fallback: "Error fetching status"}.render(c, err)
		return
	}
	respond(c, "Status fetched successfully", st)
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	in, ok := bindStatus(c)
	if !ok {
		return
	}
	st, err := s.service.UpdateStatus(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		failure{notFound: "Status not found", fallback: "Error updating status"}.render(c, err)
		return
	}
	respond(c, "Status updated successfully", st)
}

func (s *Server) handleDeleteStatus(c *gin.Context) {
	st, err := s.service.DeleteStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		failure{notFound: "Status not found", fallback: "Error deleting status"}.render(c, err)
		return
	}
	respond(c, "Status deleted successfully", st)
}
