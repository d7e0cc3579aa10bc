package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"persona-chat/internal/config"
	"persona-chat/internal/repository"
)

// Stores agrupa los repositorios del backend elegido y su cierre.
type Stores struct {
	Personas repository.PersonaRepository
	Messages repository.MessageRepository
	close    func()
}

// Close libera la conexion subyacente. Es seguro llamarlo mas de una vez.
func (s *Stores) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.close()
	s.close = nil
}

// OpenStores construye los repositorios segun STORE_DRIVER.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverSQLite, "":
		conn, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return &Stores{
			Personas: repository.NewSQLitePersonaRepository(conn),
			Messages: repository.NewSQLiteMessageRepository(conn),
			close:    func() { _ = conn.Close() },
		}, nil

	case config.StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for store driver %q", cfg.StoreDriver)
		}
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := Ping(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		if err := MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("using postgres store")
		return &Stores{
			Personas: repository.NewPgPersonaRepository(pool),
			Messages: repository.NewPgMessageRepository(pool),
			close:    pool.Close,
		}, nil

	case config.StoreDriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return &Stores{
			Personas: repository.NewMemoryPersonaRepository(),
			Messages: repository.NewMemoryMessageRepository(),
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
