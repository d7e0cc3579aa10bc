package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"persona-chat.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// La clave no es obligatoria al arrancar: su ausencia se reporta como
	// error de configuración en cada turno. LLMTimeout acota solo la espera
	// de los headers de respuesta, no el stream.
	LLMAPIKey    string        `env:"LLM_API_KEY"`
	GroqAPIKey   string        `env:"GROQ_API_KEY"`
	OpenAIAPIKey string        `env:"OPENAI_API_KEY"`
	LLMBaseURL   string        `env:"LLM_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	LLMModel     string        `env:"LLM_MODEL" envDefault:"llama-3.3-70b-versatile"`
	LLMTimeout   time.Duration `env:"LLM_TIMEOUT" envDefault:"5m"`

	PromptLanguageHint string `env:"PROMPT_LANGUAGE_HINT"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	TurnLockTTL   time.Duration `env:"TURN_LOCK_TTL" envDefault:"5m"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	return &cfg, nil
}

// APIKey devuelve la primera credencial configurada del proveedor LLM.
func (c *Config) APIKey() string {
	for _, key := range []string{c.LLMAPIKey, c.GroqAPIKey, c.OpenAIAPIKey} {
		if k := strings.TrimSpace(key); k != "" {
			return k
		}
	}
	return ""
}
