package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-chat/internal/repository"
	"persona-chat/internal/service"
)

// ChatHandler expone la conversacion activa y el envio de mensajes.
type ChatHandler struct {
	logger       *zap.Logger
	conversation *service.ConversationController
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, conversation *service.ConversationController) *ChatHandler {
	return &ChatHandler{logger: logger, conversation: conversation}
}

// GetConversation maneja GET /chat.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conversation": h.conversation.View()})
}

// SelectPersona maneja POST /chat/select.
func (h *ChatHandler) SelectPersona(c *gin.Context) {
	var req struct {
		PersonaID string `json:"persona_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid select persona request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	view, err := h.conversation.Select(c.Request.Context(), req.PersonaID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "persona not found"})
		return
	case err != nil:
		h.logger.Error("select persona failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation": view})
}

// SendMessage maneja POST /chat/messages y retransmite el turno como SSE:
// user, progress*, y luego done o error.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid send message request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	turn, err := h.conversation.Send(c.Request.Context(), req.Content)
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is empty"})
		return
	case errors.Is(err, service.ErrNoPersonaSelected), errors.Is(err, service.ErrTurnInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("send message failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.SSEvent("user", turn.UserMessage)
	c.Writer.Flush()

	for partial := range turn.Progress() {
		c.SSEvent("progress", gin.H{"text": partial})
		c.Writer.Flush()
	}

	reply, err := turn.Wait()
	if err != nil {
		c.SSEvent("error", gin.H{"error": service.UserNotice(err)})
		c.Writer.Flush()
		return
	}
	c.SSEvent("done", reply)
	c.Writer.Flush()
}
