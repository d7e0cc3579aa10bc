package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"persona-chat/internal/llm"
	"persona-chat/internal/repository"
	"persona-chat/internal/service"
)

type testApp struct {
	router       *gin.Engine
	personas     *repository.MemoryPersonaRepository
	messages     *repository.MemoryMessageRepository
	personaSvc   *service.PersonaService
	conversation *service.ConversationController
	streamer     *llm.MockStreamer
}

func newTestApp(streamer *llm.MockStreamer) *testApp {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	personas := repository.NewMemoryPersonaRepository()
	messages := repository.NewMemoryMessageRepository()
	personaSvc := service.NewPersonaService(personas, messages, logger)
	orchestrator := service.NewResponseOrchestrator(streamer, service.PersonaPromptBuilder{}, logger)
	conversation := service.NewConversationController(personas, messages, orchestrator, service.NewMemoryTurnGuard(), logger)
	personaSvc.Observe(conversation)

	router := NewRouter(logger, NewPersonaHandler(logger, personaSvc), NewChatHandler(logger, conversation))
	return &testApp{
		router:       router,
		personas:     personas,
		messages:     messages,
		personaSvc:   personaSvc,
		conversation: conversation,
		streamer:     streamer,
	}
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func deltaFrame(text string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]string{"content": text}}},
	})
	return "data: " + string(payload) + "\n\n"
}
