package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"persona-chat/internal/domain"
	"persona-chat/internal/repository"
)

var (
	ErrPersonaServiceNotConfigured = errors.New("persona service not configured")
	ErrPersonaInvalidInput         = errors.New("persona invalid input")
)

// PersonaInput son los campos del formulario de creacion.
type PersonaInput struct {
	Name       string `json:"name"`
	Birthdate  string `json:"birthdate"`
	LivedPlace string `json:"lived_place"`
	Details    string `json:"details"`
	Gender     string `json:"gender"`
}

// PersonaObserver recibe aviso cuando una persona se borra o se limpia su
// historial.
type PersonaObserver interface {
	PersonaChanged(ctx context.Context, personaID string)
}

// PersonaService encapsula la logica de alta, listado y baja de personas.
type PersonaService struct {
	personas  repository.PersonaRepository
	messages  repository.MessageRepository
	logger    *zap.Logger
	now       func() time.Time
	observers []PersonaObserver
}

func NewPersonaService(personas repository.PersonaRepository, messages repository.MessageRepository, logger *zap.Logger) *PersonaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonaService{
		personas: personas,
		messages: messages,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PersonaService) Create(ctx context.Context, in PersonaInput) (domain.Persona, error) {
	if s == nil || s.personas == nil {
		return domain.Persona{}, ErrPersonaServiceNotConfigured
	}

	persona := domain.Persona{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(in.Name),
		Birthdate:  strings.TrimSpace(in.Birthdate),
		LivedPlace: strings.TrimSpace(in.LivedPlace),
		Details:    strings.TrimSpace(in.Details),
		Gender:     strings.TrimSpace(in.Gender),
		CreatedAt:  s.now(),
	}
	if persona.Name == "" {
		return domain.Persona{}, ErrPersonaInvalidInput
	}

	if err := s.personas.Create(ctx, persona); err != nil {
		return domain.Persona{}, err
	}
	s.logger.Info("persona created", zap.String("persona_id", persona.ID), zap.String("name", persona.Name))
	return persona, nil
}

// Observe registra un observador. No es seguro llamarlo con el servicio en uso.
func (s *PersonaService) Observe(o PersonaObserver) {
	if s == nil || o == nil {
		return
	}
	s.observers = append(s.observers, o)
}

func (s *PersonaService) notify(ctx context.Context, personaID string) {
	for _, o := range s.observers {
		o.PersonaChanged(ctx, personaID)
	}
}

// List devuelve las personas por fecha de creacion ascendente.
func (s *PersonaService) List(ctx context.Context) ([]domain.Persona, error) {
	if s == nil || s.personas == nil {
		return nil, ErrPersonaServiceNotConfigured
	}
	personas, err := s.personas.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(personas, func(i, j int) bool {
		return personas[i].CreatedAt.Before(personas[j].CreatedAt)
	})
	return personas, nil
}

func (s *PersonaService) Get(ctx context.Context, id string) (domain.Persona, error) {
	if s == nil || s.personas == nil {
		return domain.Persona{}, ErrPersonaServiceNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Persona{}, repository.ErrNotFound
	}
	return s.personas.GetByID(ctx, id)
}

// Delete borra solo la persona; el historial queda intacto. Para borrarlo
// existe ClearHistory.
func (s *PersonaService) Delete(ctx context.Context, id string) error {
	if s == nil || s.personas == nil {
		return ErrPersonaServiceNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if err := s.personas.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("persona deleted", zap.String("persona_id", id))
	s.notify(ctx, id)
	return nil
}

// ClearHistory borra todos los mensajes de la persona en una transaccion.
func (s *PersonaService) ClearHistory(ctx context.Context, id string) error {
	if s == nil || s.messages == nil {
		return ErrPersonaServiceNotConfigured
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if err := s.messages.DeleteByPersonaID(ctx, id); err != nil {
		return err
	}
	s.logger.Info("persona history cleared", zap.String("persona_id", id))
	s.notify(ctx, id)
	return nil
}
