package repository

import (
	"context"
	"sync"

	"persona-chat/internal/domain"
)

// MemoryPersonaRepository mantiene personas en memoria del proceso.
type MemoryPersonaRepository struct {
	mu       sync.RWMutex
	personas map[string]domain.Persona
}

func NewMemoryPersonaRepository() *MemoryPersonaRepository {
	return &MemoryPersonaRepository{
		personas: make(map[string]domain.Persona),
	}
}

func (r *MemoryPersonaRepository) Create(_ context.Context, persona domain.Persona) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.personas[persona.ID]; ok {
		return ErrDuplicateKey
	}
	r.personas[persona.ID] = persona
	return nil
}

func (r *MemoryPersonaRepository) List(_ context.Context) ([]domain.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	return out, nil
}

func (r *MemoryPersonaRepository) GetByID(_ context.Context, id string) (domain.Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.personas[id]
	if !ok {
		return domain.Persona{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryPersonaRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.personas, id)
	return nil
}

// MemoryMessageRepository indexa mensajes por id y por persona.
type MemoryMessageRepository struct {
	mu        sync.RWMutex
	messages  map[string]domain.ChatMessage
	byPersona map[string][]string
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		messages:  make(map[string]domain.ChatMessage),
		byPersona: make(map[string][]string),
	}
}

func (r *MemoryMessageRepository) Create(_ context.Context, message domain.ChatMessage) error {
	if !message.Role.Valid() {
		return ErrInvalidRole
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[message.ID]; ok {
		return ErrDuplicateKey
	}
	r.messages[message.ID] = message
	r.byPersona[message.PersonaID] = append(r.byPersona[message.PersonaID], message.ID)
	return nil
}

func (r *MemoryMessageRepository) ListByPersonaID(_ context.Context, personaID string) ([]domain.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byPersona[personaID]
	out := make([]domain.ChatMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.messages[id])
	}
	return out, nil
}

func (r *MemoryMessageRepository) DeleteByPersonaID(_ context.Context, personaID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.byPersona[personaID] {
		delete(r.messages, id)
	}
	delete(r.byPersona, personaID)
	return nil
}

var (
	_ PersonaRepository = (*MemoryPersonaRepository)(nil)
	_ MessageRepository = (*MemoryMessageRepository)(nil)
	_ PersonaRepository = (*SQLitePersonaRepository)(nil)
	_ MessageRepository = (*SQLiteMessageRepository)(nil)
	_ PersonaRepository = (*PgPersonaRepository)(nil)
	_ MessageRepository = (*PgMessageRepository)(nil)
)
