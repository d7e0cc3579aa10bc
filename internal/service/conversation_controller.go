package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"persona-chat/internal/domain"
	"persona-chat/internal/llm"
	"persona-chat/internal/repository"
)

// PendingPlaceholder se muestra mientras no llega el primer delta.
const PendingPlaceholder = "Thinking..."

const commitTimeout = 5 * time.Second

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrTurnInFlight      = errors.New("a response is already in progress")
	ErrNoPersonaSelected = errors.New("no persona selected")
)

type ConversationState int

const (
	StateIdle ConversationState = iota
	StateAwaitingResponse
)

func (s ConversationState) String() string {
	if s == StateAwaitingResponse {
		return "awaiting_response"
	}
	return "idle"
}

func (s ConversationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// TurnStreamer es el contrato del orquestador que consume el controlador.
type TurnStreamer interface {
	StreamTurn(ctx context.Context, persona domain.Persona, prior []domain.ChatMessage, userText string) *Turn
}

// Placeholder es la burbuja no persistida del turno en curso.
type Placeholder struct {
	Text    string `json:"text"`
	Pending bool   `json:"pending"`
}

// ConversationView es la proyeccion visible de la conversacion activa.
type ConversationView struct {
	Persona     *domain.Persona      `json:"persona,omitempty"`
	Messages    []domain.ChatMessage `json:"messages"`
	State       ConversationState    `json:"state"`
	Placeholder *Placeholder         `json:"placeholder,omitempty"`
	Notice      string               `json:"notice,omitempty"`
}

var _ PersonaObserver = (*ConversationController)(nil)

// ConversationController mantiene la lista visible de una persona a la vez
// y decide cuando un turno del asistente queda persistido.
type ConversationController struct {
	personas  repository.PersonaRepository
	messages  repository.MessageRepository
	responder TurnStreamer
	guard     TurnGuard
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string

	mu         sync.Mutex
	persona    *domain.Persona
	visible    []domain.ChatMessage
	state      ConversationState
	partial    string
	notice     string
	generation uint64
}

func NewConversationController(
	personas repository.PersonaRepository,
	messages repository.MessageRepository,
	responder TurnStreamer,
	guard TurnGuard,
	logger *zap.Logger,
) *ConversationController {
	if guard == nil {
		guard = NewMemoryTurnGuard()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationController{
		personas:  personas,
		messages:  messages,
		responder: responder,
		guard:     guard,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Select cambia la persona activa: descarta el placeholder, desacopla el
// turno en vuelo de la vista y recarga el historial desde el store.
func (c *ConversationController) Select(ctx context.Context, personaID string) (ConversationView, error) {
	persona, err := c.personas.GetByID(ctx, strings.TrimSpace(personaID))
	if err != nil {
		return ConversationView{}, err
	}
	history, err := c.messages.ListByPersonaID(ctx, persona.ID)
	if err != nil {
		return ConversationView{}, fmt.Errorf("list messages: %w", err)
	}
	domain.SortMessages(history)

	c.mu.Lock()
	c.generation++
	c.persona = &persona
	c.visible = history
	c.state = StateIdle
	c.partial = ""
	c.notice = ""
	view := c.viewLocked()
	c.mu.Unlock()

	c.logger.Info("persona selected", zap.String("persona_id", persona.ID), zap.Int("messages", len(history)))
	return view, nil
}

// View devuelve una copia del estado visible.
func (c *ConversationController) View() ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *ConversationController) viewLocked() ConversationView {
	view := ConversationView{
		Messages: append([]domain.ChatMessage{}, c.visible...),
		State:    c.state,
		Notice:   c.notice,
	}
	if c.persona != nil {
		p := *c.persona
		view.Persona = &p
	}
	if c.state == StateAwaitingResponse {
		if c.partial != "" {
			view.Placeholder = &Placeholder{Text: c.partial}
		} else {
			view.Placeholder = &Placeholder{Text: PendingPlaceholder, Pending: true}
		}
	}
	return view
}

// Send persiste el mensaje del usuario antes de cualquier llamada de red y
// lanza el turno. Solo es valido desde Idle; no hay cola de envios. La
// persona y el historial previo se releen del store: un borrado o limpieza
// hecho por fuera de la vista se respeta.
func (c *ConversationController) Send(ctx context.Context, text string) (*ChatTurn, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.persona == nil {
		c.mu.Unlock()
		return nil, ErrNoPersonaSelected
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	personaID := c.persona.ID
	gen := c.generation
	c.state = StateAwaitingResponse
	c.partial = ""
	c.notice = ""
	c.mu.Unlock()

	persona, err := c.personas.GetByID(ctx, personaID)
	if errors.Is(err, repository.ErrNotFound) {
		c.forget(gen)
		return nil, ErrNoPersonaSelected
	}
	if err != nil {
		c.settle(gen, nil, "")
		return nil, fmt.Errorf("load persona: %w", err)
	}

	if !c.guard.Acquire(ctx, persona.ID) {
		c.settle(gen, nil, "")
		return nil, ErrTurnInFlight
	}

	prior, err := c.messages.ListByPersonaID(ctx, persona.ID)
	if err != nil {
		c.guard.Release(context.WithoutCancel(ctx), persona.ID)
		c.settle(gen, nil, "")
		return nil, fmt.Errorf("list messages: %w", err)
	}
	domain.SortMessages(prior)

	userMsg := domain.ChatMessage{
		ID:        c.newID(),
		PersonaID: persona.ID,
		Role:      domain.RoleUser,
		Content:   content,
		CreatedAt: c.now(),
	}
	if err := c.messages.Create(ctx, userMsg); err != nil {
		c.guard.Release(context.WithoutCancel(ctx), persona.ID)
		c.settle(gen, nil, "")
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	c.mu.Lock()
	if c.generation == gen {
		c.visible = append(append([]domain.ChatMessage{}, prior...), userMsg)
	}
	c.mu.Unlock()

	turn := newChatTurn(userMsg)
	upstream := c.responder.StreamTurn(ctx, persona, prior, content)
	go c.follow(ctx, gen, persona, upstream, turn)
	return turn, nil
}

// PersonaChanged resincroniza la vista cuando la persona activa fue borrada
// o su historial limpiado desde otro punto de entrada.
func (c *ConversationController) PersonaChanged(ctx context.Context, personaID string) {
	c.mu.Lock()
	if c.persona == nil || c.persona.ID != personaID {
		c.mu.Unlock()
		return
	}
	gen := c.generation
	c.mu.Unlock()

	if _, err := c.personas.GetByID(ctx, personaID); errors.Is(err, repository.ErrNotFound) {
		c.forget(gen)
		return
	}
	history, err := c.messages.ListByPersonaID(ctx, personaID)
	if err != nil {
		c.logger.Warn("reload history failed", zap.String("persona_id", personaID), zap.Error(err))
		return
	}
	domain.SortMessages(history)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.visible = history
	}
}

// forget deja la vista sin persona. Un turno en vuelo queda desacoplado.
func (c *ConversationController) forget(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.generation++
	c.persona = nil
	c.visible = nil
	c.state = StateIdle
	c.partial = ""
	c.notice = ""
}

func (c *ConversationController) follow(ctx context.Context, gen uint64, persona domain.Persona, upstream *Turn, turn *ChatTurn) {
	for partial := range upstream.Progress() {
		c.mu.Lock()
		if c.generation == gen {
			c.partial = partial
		}
		c.mu.Unlock()
		turn.progress.publish(partial)
	}

	text, err := upstream.Wait()
	if err != nil {
		c.fail(ctx, gen, persona, turn, err)
		return
	}

	reply := domain.ChatMessage{
		ID:        c.newID(),
		PersonaID: persona.ID,
		Role:      domain.RoleAssistant,
		Content:   text,
		CreatedAt: c.now(),
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.messages.Create(commitCtx, reply); err != nil {
		c.fail(ctx, gen, persona, turn, fmt.Errorf("persist assistant message: %w", err))
		return
	}

	c.guard.Release(context.WithoutCancel(ctx), persona.ID)
	c.settle(gen, &reply, "")
	c.logger.Info("assistant turn committed",
		zap.String("persona_id", persona.ID),
		zap.String("message_id", reply.ID),
		zap.Int("chars", len(reply.Content)),
	)
	turn.finish(reply, nil)
}

func (c *ConversationController) fail(ctx context.Context, gen uint64, persona domain.Persona, turn *ChatTurn, err error) {
	c.logger.Warn("assistant turn failed", zap.String("persona_id", persona.ID), zap.Error(err))
	c.guard.Release(context.WithoutCancel(ctx), persona.ID)
	c.settle(gen, nil, UserNotice(err))
	turn.finish(domain.ChatMessage{}, err)
}

// settle vuelve a Idle si la vista sigue siendo la del turno.
func (c *ConversationController) settle(gen uint64, reply *domain.ChatMessage, notice string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	if reply != nil {
		c.visible = append(c.visible, *reply)
	}
	c.state = StateIdle
	c.partial = ""
	c.notice = notice
}

// UserNotice traduce un error de turno a un mensaje legible.
func UserNotice(err error) string {
	var (
		cfgErr     *llm.ConfigError
		backendErr *llm.BackendError
		netErr     *llm.NetworkError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "The LLM API key is not configured. Set LLM_API_KEY (or GROQ_API_KEY) in your environment or .env file."
	case errors.As(err, &backendErr):
		return backendErr.Message
	case errors.As(err, &netErr):
		return "Network error: could not reach the LLM backend."
	case errors.Is(err, ErrTurnCanceled):
		return "The response was canceled."
	case errors.Is(err, ErrEmptyMessage):
		return "Message is empty."
	case errors.Is(err, ErrTurnInFlight):
		return "Please wait for the current response to finish."
	}
	return "Something went wrong while generating the response."
}
