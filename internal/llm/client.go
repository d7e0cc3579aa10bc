package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	RoleSystem = "system"

	defaultBaseURL = "https://api.groq.com/openai/v1"
	maxErrorBody   = 64 * 1024
)

// ChatMessage es el par role/content del protocolo chat completions.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatStreamer abre un stream de chat completions y devuelve el cuerpo crudo.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []ChatMessage) (io.ReadCloser, error)
}

// HTTPClient implementa ChatStreamer contra una API OpenAI-compatible.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente apuntando a la API de chat completions.
// timeout acota la espera de los headers de respuesta; la duracion del
// cuerpo en streaming la controla solo el ctx de cada turno.
func NewHTTPClient(baseURL, apiKey, model string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		model:   model,
		client:  &http.Client{Transport: transport},
		logger:  logger,
	}
}

// StreamChat envia la conversacion con stream=true. El llamador cierra el
// cuerpo devuelto.
func (c *HTTPClient) StreamChat(ctx context.Context, messages []ChatMessage) (io.ReadCloser, error) {
	if c.apiKey == "" {
		return nil, &ConfigError{Err: ErrMissingAPIKey}
	}

	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("llm error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		return nil, &BackendError{
			StatusCode: resp.StatusCode,
			Message:    backendMessage(resp, respBody),
		}
	}

	return resp.Body, nil
}

// backendMessage prefiere el mensaje del proveedor y cae al status HTTP.
func backendMessage(resp *http.Response, body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != nil {
		if msg := strings.TrimSpace(er.Error.Message); msg != "" {
			return msg
		}
	}
	return fmt.Sprintf("llm API error: %s", resp.Status)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}
