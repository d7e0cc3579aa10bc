package llm

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey indica que no hay credencial configurada.
var ErrMissingAPIKey = errors.New("llm api key not configured")

// ConfigError se devuelve antes de cualquier llamada de red.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("llm config error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BackendError representa una respuesta no 2xx del proveedor.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	return e.Message
}

// NetworkError envuelve fallos de transporte, incluso a mitad del stream.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("llm network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
