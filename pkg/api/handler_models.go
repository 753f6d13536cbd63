package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// listModelsHandler handles GET /api/models.
func (s *Server) listModelsHandler(c *gin.Context) {
	views, err := s.engine.List()
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// getModelHandler handles GET /api/models/:id.
func (s *Server) getModelHandler(c *gin.Context) {
	view, err := s.engine.Get(c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// startModelHandler handles POST /api/models/:id/start?force=bool.
// Returns 202 immediately; the start continues in the background and
// its outcome is observed through state, not through this response.
func (s *Server) startModelHandler(c *gin.Context) {
	force, err := parseForce(c.Query("force"))
	if err != nil {
		writeBadRequest(c, "force must be a boolean")
		return
	}
	if err := s.engine.Start(c.Request.Context(), c.Param("id"), force); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// stopModelHandler handles POST /api/models/:id/stop.
func (s *Server) stopModelHandler(c *gin.Context) {
	if err := s.engine.Stop(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// parseForce interprets the force query parameter. Absent means false.
func parseForce(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
