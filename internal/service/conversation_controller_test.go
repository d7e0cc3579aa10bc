package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"persona-chat/internal/domain"
	"persona-chat/internal/llm"
	"persona-chat/internal/repository"
)

type controllerFixture struct {
	personas *repository.MemoryPersonaRepository
	messages *repository.MemoryMessageRepository
	streamer *steppedStreamer
	ctrl     *ConversationController
}

func newControllerFixture(t *testing.T, streamer llm.ChatStreamer) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		personas: repository.NewMemoryPersonaRepository(),
		messages: repository.NewMemoryMessageRepository(),
	}
	if streamer == nil {
		f.streamer = newSteppedStreamer()
		streamer = f.streamer
	}
	orch := NewResponseOrchestrator(streamer, PersonaPromptBuilder{}, zap.NewNop())
	f.ctrl = NewConversationController(f.personas, f.messages, orch, NewMemoryTurnGuard(), zap.NewNop())
	clock := newStepClock()
	f.ctrl.now = clock.Now
	n := 0
	f.ctrl.newID = func() string {
		n++
		return fmt.Sprintf("msg-%d", n)
	}

	for _, p := range []domain.Persona{
		{ID: "aristotle", Name: "Aristotle", CreatedAt: time.Now().UTC()},
		{ID: "hypatia", Name: "Hypatia", CreatedAt: time.Now().UTC()},
	} {
		if err := f.personas.Create(context.Background(), p); err != nil {
			t.Fatalf("seed persona: %v", err)
		}
	}
	return f
}

func (f *controllerFixture) stored(t *testing.T, personaID string) []domain.ChatMessage {
	t.Helper()
	msgs, err := f.messages.ListByPersonaID(context.Background(), personaID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	domain.SortMessages(msgs)
	return msgs
}

func TestConversationController_AristotleScenario(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()

	if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
		t.Fatalf("select: %v", err)
	}

	turn, err := f.ctrl.Send(ctx, "What is virtue?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	stored := f.stored(t, "aristotle")
	if len(stored) != 1 || stored[0].Role != domain.RoleUser || stored[0].Content != "What is virtue?" {
		t.Fatalf("expected user message persisted before streaming, got %+v", stored)
	}

	view := f.ctrl.View()
	if view.State != StateAwaitingResponse {
		t.Fatalf("expected awaiting state, got %v", view.State)
	}
	if view.Placeholder == nil || !view.Placeholder.Pending || view.Placeholder.Text != PendingPlaceholder {
		t.Fatalf("expected pending placeholder, got %+v", view.Placeholder)
	}
	if len(view.Messages) != 1 {
		t.Fatalf("expected optimistic user message, got %d", len(view.Messages))
	}

	f.streamer.next <- `data: {"choices":[{"delta":{"content":"Virtue "}}]}` + "\n"
	if p, ok := recv(turn.Progress()); !ok || p != "Virtue " {
		t.Fatalf("expected first partial, got %q", p)
	}
	if ph := f.ctrl.View().Placeholder; ph == nil || ph.Pending || ph.Text != "Virtue " {
		t.Fatalf("expected live placeholder, got %+v", ph)
	}

	f.streamer.next <- `data: {"choices":[{"delta":{"content":"is..."}}]}` + "\n"
	if p, ok := recv(turn.Progress()); !ok || p != "Virtue is..." {
		t.Fatalf("expected second partial, got %q", p)
	}
	if ph := f.ctrl.View().Placeholder; ph == nil || ph.Text != "Virtue is..." {
		t.Fatalf("expected grown placeholder, got %+v", ph)
	}
	if got := len(f.stored(t, "aristotle")); got != 1 {
		t.Fatalf("partial output must not be persisted, got %d records", got)
	}

	f.streamer.next <- "data: [DONE]\n"
	reply, err := turn.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Role != domain.RoleAssistant || reply.Content != "Virtue is..." || reply.PersonaID != "aristotle" {
		t.Fatalf("unexpected reply %+v", reply)
	}

	stored = f.stored(t, "aristotle")
	if len(stored) != 2 || stored[1].Content != "Virtue is..." {
		t.Fatalf("expected single assistant record, got %+v", stored)
	}

	view = f.ctrl.View()
	if view.State != StateIdle || view.Placeholder != nil {
		t.Fatalf("expected idle without placeholder, got %+v", view)
	}
	if len(view.Messages) != 2 || view.Messages[1].ID != reply.ID {
		t.Fatalf("expected reply appended to visible list, got %+v", view.Messages)
	}

	// La siguiente peticion incluye el historial confirmado.
	turn, err = f.ctrl.Send(ctx, "And happiness?")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	close(f.streamer.next)
	if _, err := turn.Wait(); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	req := f.streamer.lastRequest()
	if len(req) != 4 || req[1].Content != "What is virtue?" || req[2].Role != "assistant" || req[3].Content != "And happiness?" {
		t.Fatalf("unexpected request history %+v", req)
	}
}

func TestConversationController_SendValidation(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()

	if _, err := f.ctrl.Send(ctx, "hola"); !errors.Is(err, ErrNoPersonaSelected) {
		t.Fatalf("expected ErrNoPersonaSelected, got %v", err)
	}
	if _, err := f.ctrl.Select(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
		t.Fatalf("select: %v", err)
	}
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := f.ctrl.Send(ctx, text); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("expected ErrEmptyMessage for %q, got %v", text, err)
		}
	}
	if got := len(f.stored(t, "aristotle")); got != 0 {
		t.Fatalf("expected nothing persisted, got %d", got)
	}
	if f.ctrl.View().State != StateIdle {
		t.Fatalf("expected idle")
	}
}

func TestConversationController_SingleTurnInFlight(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()
	if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
		t.Fatalf("select: %v", err)
	}

	turn, err := f.ctrl.Send(ctx, "primero")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := f.ctrl.Send(ctx, "segundo"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}
	if got := len(f.stored(t, "aristotle")); got != 1 {
		t.Fatalf("ignored submission must not be persisted, got %d", got)
	}

	close(f.streamer.next)
	if _, err := turn.Wait(); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if _, err := f.ctrl.Send(ctx, "tercero"); err != nil {
		t.Fatalf("expected send allowed after completion, got %v", err)
	}
}

func TestConversationController_ErrorReturnsToIdle(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		notice string
	}{
		{"config", &llm.ConfigError{Err: llm.ErrMissingAPIKey}, UserNotice(&llm.ConfigError{})},
		{"backend", &llm.BackendError{StatusCode: 500, Message: "Internal failure"}, "Internal failure"},
		{"red", &llm.NetworkError{Err: errors.New("dial tcp")}, "Network error: could not reach the LLM backend."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newControllerFixture(t, &llm.MockStreamer{Err: tc.err})
			ctx := context.Background()
			if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
				t.Fatalf("select: %v", err)
			}

			turn, err := f.ctrl.Send(ctx, "What is virtue?")
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if _, err := turn.Wait(); !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}

			view := f.ctrl.View()
			if view.State != StateIdle || view.Placeholder != nil {
				t.Fatalf("expected stable idle state, got %+v", view)
			}
			if view.Notice != tc.notice {
				t.Fatalf("expected notice %q, got %q", tc.notice, view.Notice)
			}
			stored := f.stored(t, "aristotle")
			if len(stored) != 1 || stored[0].Role != domain.RoleUser {
				t.Fatalf("expected only the user message persisted, got %+v", stored)
			}
			if _, err := f.ctrl.Send(ctx, "otra vez"); err != nil {
				t.Fatalf("expected resumable state, got %v", err)
			}
		})
	}
}

func TestConversationController_SelectReloadsSortedHistory(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, content := range []string{"tercero", "primero", "segundo"} {
		offset := map[string]int{"primero": 0, "segundo": 1, "tercero": 2}[content]
		msg := domain.ChatMessage{
			ID:        fmt.Sprintf("h%d", i),
			PersonaID: "hypatia",
			Role:      domain.RoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(offset) * time.Minute),
		}
		if err := f.messages.Create(ctx, msg); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	view, err := f.ctrl.Select(ctx, "hypatia")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if view.Persona == nil || view.Persona.Name != "Hypatia" {
		t.Fatalf("unexpected persona %+v", view.Persona)
	}
	got := []string{}
	for _, m := range view.Messages {
		got = append(got, m.Content)
	}
	if fmt.Sprint(got) != "[primero segundo tercero]" {
		t.Fatalf("expected chronological order, got %v", got)
	}
}

func TestConversationController_SwitchPersonaDuringTurn(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()
	if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
		t.Fatalf("select: %v", err)
	}
	turn, err := f.ctrl.Send(ctx, "What is virtue?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	f.streamer.next <- deltaFrame("Virtue ")
	if _, ok := recv(turn.Progress()); !ok {
		t.Fatalf("expected progress")
	}

	view, err := f.ctrl.Select(ctx, "hypatia")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if view.State != StateIdle || view.Placeholder != nil || len(view.Messages) != 0 {
		t.Fatalf("expected fresh view for new persona, got %+v", view)
	}

	f.streamer.next <- deltaFrame("is...")
	f.streamer.next <- "data: [DONE]\n"
	if _, err := turn.Wait(); err != nil {
		t.Fatalf("turn: %v", err)
	}

	view = f.ctrl.View()
	if view.Persona.ID != "hypatia" || len(view.Messages) != 0 || view.State != StateIdle {
		t.Fatalf("detached turn leaked into new view: %+v", view)
	}
	if stored := f.stored(t, "aristotle"); len(stored) != 2 || stored[1].Content != "Virtue is..." {
		t.Fatalf("expected turn committed to original persona, got %+v", stored)
	}
}

func (f *controllerFixture) completeTurn(t *testing.T, text, reply string) {
	t.Helper()
	turn, err := f.ctrl.Send(context.Background(), text)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	f.streamer.next <- deltaFrame(reply)
	f.streamer.next <- "data: [DONE]\n"
	if _, err := turn.Wait(); err != nil {
		t.Fatalf("turn: %v", err)
	}
}

func TestConversationController_ClearHistoryThenSend(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()
	svc := NewPersonaService(f.personas, f.messages, zap.NewNop())
	svc.Observe(f.ctrl)

	if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
		t.Fatalf("select: %v", err)
	}
	f.completeTurn(t, "What is virtue?", "Virtue")

	if err := svc.ClearHistory(ctx, "aristotle"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if view := f.ctrl.View(); len(view.Messages) != 0 || view.Persona == nil {
		t.Fatalf("expected cleared view with persona kept, got %+v", view)
	}

	f.completeTurn(t, "Start over", "Gladly")
	req := f.streamer.lastRequest()
	if len(req) != 2 || req[1].Content != "Start over" {
		t.Fatalf("cleared history sent to backend: %+v", req)
	}
}

func TestConversationController_StoreChangesBehindTheView(t *testing.T) {
	t.Run("historial borrado en el store", func(t *testing.T) {
		f := newControllerFixture(t, nil)
		ctx := context.Background()
		if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
			t.Fatalf("select: %v", err)
		}
		f.completeTurn(t, "What is virtue?", "Virtue")

		if err := f.messages.DeleteByPersonaID(ctx, "aristotle"); err != nil {
			t.Fatalf("delete history: %v", err)
		}
		f.completeTurn(t, "Again", "Sure")
		if req := f.streamer.lastRequest(); len(req) != 2 {
			t.Fatalf("expected prior history re-read from store, got %+v", req)
		}
		if view := f.ctrl.View(); len(view.Messages) != 2 || view.Messages[0].Content != "Again" {
			t.Fatalf("expected view rebuilt from store, got %+v", view.Messages)
		}
	})

	t.Run("persona borrada", func(t *testing.T) {
		f := newControllerFixture(t, nil)
		ctx := context.Background()
		if _, err := f.ctrl.Select(ctx, "aristotle"); err != nil {
			t.Fatalf("select: %v", err)
		}
		f.completeTurn(t, "What is virtue?", "Virtue")

		if err := f.personas.Delete(ctx, "aristotle"); err != nil {
			t.Fatalf("delete persona: %v", err)
		}
		if _, err := f.ctrl.Send(ctx, "after delete"); !errors.Is(err, ErrNoPersonaSelected) {
			t.Fatalf("expected ErrNoPersonaSelected, got %v", err)
		}
		if got := len(f.stored(t, "aristotle")); got != 2 {
			t.Fatalf("expected no orphan messages, got %d records", got)
		}
		view := f.ctrl.View()
		if view.Persona != nil || view.State != StateIdle || len(view.Messages) != 0 {
			t.Fatalf("expected empty idle view, got %+v", view)
		}
	})
}

func TestConversationController_DeletePersonaNotifiesView(t *testing.T) {
	f := newControllerFixture(t, nil)
	ctx := context.Background()
	svc := NewPersonaService(f.personas, f.messages, zap.NewNop())
	svc.Observe(f.ctrl)

	if _, err := f.ctrl.Select(ctx, "hypatia"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := svc.Delete(ctx, "aristotle"); err != nil {
		t.Fatalf("delete other: %v", err)
	}
	if view := f.ctrl.View(); view.Persona == nil || view.Persona.ID != "hypatia" {
		t.Fatalf("deleting another persona must not touch the view, got %+v", view)
	}

	if err := svc.Delete(ctx, "hypatia"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if view := f.ctrl.View(); view.Persona != nil {
		t.Fatalf("expected active persona dropped, got %+v", view.Persona)
	}
	if _, err := f.ctrl.Send(ctx, "hola"); !errors.Is(err, ErrNoPersonaSelected) {
		t.Fatalf("expected ErrNoPersonaSelected, got %v", err)
	}
}

type failingMessageRepo struct {
	repository.MessageRepository
	err error
}

func (r failingMessageRepo) Create(context.Context, domain.ChatMessage) error {
	return r.err
}

func TestConversationController_UserMessagePersistFailure(t *testing.T) {
	personas := repository.NewMemoryPersonaRepository()
	_ = personas.Create(context.Background(), domain.Persona{ID: "p1", Name: "Plato"})
	streamer := &llm.MockStreamer{}
	boom := errors.New("disk full")
	ctrl := NewConversationController(
		personas,
		failingMessageRepo{MessageRepository: repository.NewMemoryMessageRepository(), err: boom},
		NewResponseOrchestrator(streamer, PersonaPromptBuilder{}, nil),
		nil,
		nil,
	)
	if _, err := ctrl.Select(context.Background(), "p1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := ctrl.Send(context.Background(), "hola"); !errors.Is(err, boom) {
		t.Fatalf("expected persist error, got %v", err)
	}
	if len(streamer.Requests) != 0 {
		t.Fatalf("expected no network activity")
	}
	view := ctrl.View()
	if view.State != StateIdle || len(view.Messages) != 0 {
		t.Fatalf("expected idle and empty view, got %+v", view)
	}
}

func TestUserNotice(t *testing.T) {
	if UserNotice(nil) != "" {
		t.Fatalf("expected empty notice")
	}
	if got := UserNotice(fmt.Errorf("wrap: %w", ErrTurnCanceled)); got != "The response was canceled." {
		t.Fatalf("unexpected notice %q", got)
	}
	if got := UserNotice(errors.New("x")); got == "" {
		t.Fatalf("expected generic notice")
	}
}
