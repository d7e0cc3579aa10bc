package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TurnGuard garantiza un solo turno en vuelo por persona.
type TurnGuard interface {
	Acquire(ctx context.Context, personaID string) bool
	Release(ctx context.Context, personaID string)
}

type memoryTurnGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryTurnGuard() TurnGuard {
	return &memoryTurnGuard{active: make(map[string]struct{})}
}

func (g *memoryTurnGuard) Acquire(_ context.Context, personaID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[personaID]; ok {
		return false
	}
	g.active[personaID] = struct{}{}
	return true
}

func (g *memoryTurnGuard) Release(_ context.Context, personaID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, personaID)
}

// Borra la llave solo si sigue siendo nuestra.
const redisReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type redisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisTurnGuard comparte el candado entre procesos que usan el mismo store.
// Si Redis falla se permite el turno (fail-open).
type redisTurnGuard struct {
	client redisLocker
	ttl    time.Duration
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisTurnGuard(client *redis.Client, ttl time.Duration, logger *zap.Logger) TurnGuard {
	if client == nil {
		return nil
	}
	return newRedisTurnGuard(client, ttl, logger)
}

func newRedisTurnGuard(client redisLocker, ttl time.Duration, logger *zap.Logger) *redisTurnGuard {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisTurnGuard{
		client: client,
		ttl:    ttl,
		prefix: "persona-chat:turn:",
		logger: logger,
		tokens: make(map[string]string),
	}
}

func (g *redisTurnGuard) Acquire(ctx context.Context, personaID string) bool {
	key := strings.TrimSpace(personaID)
	if key == "" {
		return false
	}
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ok, err := g.client.SetNX(ctx, g.prefix+key, token, g.ttl).Result()
	if err != nil {
		g.logger.Warn("turn lock unavailable", zap.String("persona_id", key), zap.Error(err))
		return true
	}
	if !ok {
		return false
	}
	g.mu.Lock()
	g.tokens[key] = token
	g.mu.Unlock()
	return true
}

func (g *redisTurnGuard) Release(ctx context.Context, personaID string) {
	key := strings.TrimSpace(personaID)
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := g.client.Eval(ctx, redisReleaseScript, []string{g.prefix + key}, token).Err(); err != nil {
		g.logger.Warn("turn lock release failed", zap.String("persona_id", key), zap.Error(err))
	}
}
