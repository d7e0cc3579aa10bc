package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-chat/internal/repository"
	"persona-chat/internal/service"
)

// PersonaHandler expone el alta, listado y baja de personas.
type PersonaHandler struct {
	logger   *zap.Logger
	personas *service.PersonaService
}

func NewPersonaHandler(logger *zap.Logger, personas *service.PersonaService) *PersonaHandler {
	return &PersonaHandler{logger: logger, personas: personas}
}

// ListPersonas maneja GET /personas.
func (h *PersonaHandler) ListPersonas(c *gin.Context) {
	personas, err := h.personas.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list personas failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list personas"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"personas": personas})
}

// CreatePersona maneja POST /personas.
func (h *PersonaHandler) CreatePersona(c *gin.Context) {
	var req service.PersonaInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create persona request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	persona, err := h.personas.Create(c.Request.Context(), req)
	switch {
	case errors.Is(err, service.ErrPersonaInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	case err != nil:
		h.logger.Error("create persona failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create persona"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"persona": persona})
}

// GetPersona maneja GET /personas/:id.
func (h *PersonaHandler) GetPersona(c *gin.Context) {
	persona, err := h.personas.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "persona not found"})
		return
	case err != nil:
		h.logger.Error("get persona failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load persona"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"persona": persona})
}

// DeletePersona maneja DELETE /personas/:id. No borra el historial.
func (h *PersonaHandler) DeletePersona(c *gin.Context) {
	if err := h.personas.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Error("delete persona failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete persona"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearHistory maneja DELETE /personas/:id/messages.
func (h *PersonaHandler) ClearHistory(c *gin.Context) {
	if err := h.personas.ClearHistory(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.Error("clear history failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not clear history"})
		return
	}
	c.Status(http.StatusNoContent)
}
