package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inferlab/modelmgr/pkg/version"
)

// healthHandler handles GET /health.
// Always 200 while the process is up. Model health deliberately does
// not feed into liveness: a crashed model must not get the manager
// restarted by an external supervisor.
func (s *Server) healthHandler(c *gin.Context) {
	warningCount := 0
	if s.warnings != nil {
		warningCount = s.warnings.Count()
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  version.Full(),
		Warnings: warningCount,
	})
}

// systemMemoryHandler handles GET /api/system/memory.
func (s *Server) systemMemoryHandler(c *gin.Context) {
	if s.mem == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "memory_guard_unavailable"})
		return
	}
	snap, err := s.mem.ReadSnapshot(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// systemWarningsHandler handles GET /api/system/warnings.
func (s *Server) systemWarningsHandler(c *gin.Context) {
	response := SystemWarningsResponse{
		Warnings: []SystemWarningItem{},
	}

	if s.warnings != nil {
		for _, w := range s.warnings.GetWarnings() {
			response.Warnings = append(response.Warnings, SystemWarningItem{
				ID:        w.ID,
				Category:  w.Category,
				Message:   w.Message,
				Details:   w.Details,
				ModelID:   w.ModelID,
				CreatedAt: w.CreatedAt.Format(time.RFC3339),
			})
		}
	}

	c.JSON(http.StatusOK, response)
}
