package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inferlab/modelmgr/pkg/lifecycle"
	"github.com/inferlab/modelmgr/pkg/llm"
)

// mapServiceError classifies a service-layer error into the stable
// HTTP contract: NotFound 404, Busy/InsufficientMemory 409,
// UpstreamUnavailable/Timeout 503, everything else 500.
func mapServiceError(err error) (int, ErrorResponse) {
	if memErr, ok := lifecycle.IsInsufficientMemory(err); ok {
		return http.StatusConflict, ErrorResponse{
			Error:       "insufficient_memory",
			Reason:      memErr.Error(),
			AvailableGB: memErr.AvailableGB,
			RequiredGB:  memErr.RequiredGB,
		}
	}
	if errors.Is(err, lifecycle.ErrNotFound) {
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Reason: err.Error()}
	}
	if errors.Is(err, lifecycle.ErrBusy) {
		return http.StatusConflict, ErrorResponse{Error: "busy", Reason: err.Error()}
	}
	if errors.Is(err, lifecycle.ErrModelNotReady) {
		return http.StatusConflict, ErrorResponse{Error: "model_not_ready", Reason: err.Error()}
	}
	if errors.Is(err, lifecycle.ErrNotInitialized) {
		return http.StatusServiceUnavailable, ErrorResponse{Error: "not_initialized", Reason: err.Error()}
	}
	if errors.Is(err, lifecycle.ErrShuttingDown) {
		return http.StatusServiceUnavailable, ErrorResponse{Error: "shutting_down", Reason: err.Error()}
	}
	var upErr *llm.UpstreamError
	if errors.As(err, &upErr) {
		return http.StatusServiceUnavailable, ErrorResponse{Error: "upstream_unavailable", Reason: upErr.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, ErrorResponse{Error: "timeout", Reason: err.Error()}
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return http.StatusInternalServerError, ErrorResponse{Error: "internal"}
}

// writeServiceError renders a classified service error.
func writeServiceError(c *gin.Context, err error) {
	status, body := mapServiceError(err)
	c.JSON(status, body)
}

// writeBadRequest renders a 400 with a human-readable reason.
func writeBadRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Reason: reason})
}
