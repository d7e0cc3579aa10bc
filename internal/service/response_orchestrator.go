package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"persona-chat/internal/domain"
	"persona-chat/internal/llm"
)

var ErrTurnCanceled = errors.New("turn canceled")

// ResponseOrchestrator conduce un turno contra el backend: abre el stream,
// acumula deltas y reporta progreso. Nunca escribe en el store.
type ResponseOrchestrator struct {
	streamer llm.ChatStreamer
	prompts  PersonaPromptBuilder
	logger   *zap.Logger
}

func NewResponseOrchestrator(streamer llm.ChatStreamer, prompts PersonaPromptBuilder, logger *zap.Logger) *ResponseOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseOrchestrator{streamer: streamer, prompts: prompts, logger: logger}
}

// BuildMessages arma instruccion de sistema + historial + turno nuevo.
func (o *ResponseOrchestrator) BuildMessages(persona domain.Persona, prior []domain.ChatMessage, userText string) []llm.ChatMessage {
	messages := make([]llm.ChatMessage, 0, len(prior)+2)
	messages = append(messages, llm.ChatMessage{Role: llm.RoleSystem, Content: o.prompts.Build(persona)})
	for _, m := range prior {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return append(messages, llm.ChatMessage{Role: string(domain.RoleUser), Content: userText})
}

// StreamTurn lanza el turno y devuelve de inmediato. La cancelacion de ctx
// corta la conexion y descarta el acumulado.
func (o *ResponseOrchestrator) StreamTurn(ctx context.Context, persona domain.Persona, prior []domain.ChatMessage, userText string) *Turn {
	turn := newTurn()
	go func() {
		text, err := o.run(ctx, turn, persona, prior, userText)
		turn.finish(text, err)
	}()
	return turn
}

func (o *ResponseOrchestrator) run(ctx context.Context, turn *Turn, persona domain.Persona, prior []domain.ChatMessage, userText string) (string, error) {
	if strings.TrimSpace(userText) == "" {
		return "", ErrEmptyMessage
	}
	if o.streamer == nil {
		return "", &llm.ConfigError{Err: errors.New("llm client not configured")}
	}

	body, err := o.streamer.StreamChat(ctx, o.BuildMessages(persona, prior, userText))
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTurnCanceled, ctx.Err())
		}
		return "", err
	}
	defer body.Close()

	var acc strings.Builder
	err = llm.Decode(ctx, body, func(ev llm.StreamEvent) {
		if ev.Kind != llm.EventDelta {
			return
		}
		acc.WriteString(ev.Text)
		turn.progress.publish(acc.String())
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTurnCanceled, ctx.Err())
		}
		o.logger.Warn("llm stream interrupted", zap.String("persona_id", persona.ID), zap.Error(err))
		return "", &llm.NetworkError{Err: err}
	}
	return acc.String(), nil
}
