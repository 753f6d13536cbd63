package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inferlab/modelmgr/pkg/orchestrator"
)

// chatCompletionsHandler handles POST /v1/chat/completions. The body
// is OpenAI-shaped with the manager's extension fields; the response
// is the model's final answer plus any collected tool outputs.
func (s *Server) chatCompletionsHandler(c *gin.Context) {
	if s.chat == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "chat_unavailable"})
		return
	}

	var req orchestrator.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Model == "" {
		writeBadRequest(c, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		writeBadRequest(c, "messages must not be empty")
		return
	}
	if req.Stream {
		writeBadRequest(c, "streaming responses are not supported")
		return
	}

	resp, err := s.chat.Chat(c.Request.Context(), &req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
