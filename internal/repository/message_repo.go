package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"persona-chat/internal/domain"
)

// MessageRepository persiste el historial de chat. ListByPersonaID no
// garantiza orden; el llamador ordena por timestamp.
type MessageRepository interface {
	Create(ctx context.Context, message domain.ChatMessage) error
	ListByPersonaID(ctx context.Context, personaID string) ([]domain.ChatMessage, error)
	DeleteByPersonaID(ctx context.Context, personaID string) error
}

type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

func (r *PgMessageRepository) Create(ctx context.Context, message domain.ChatMessage) error {
	if !message.Role.Valid() {
		return ErrInvalidRole
	}
	const query = `
		INSERT INTO chats (id, persona_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		message.ID,
		message.PersonaID,
		string(message.Role),
		message.Content,
		message.CreatedAt,
	)
	return translateError(err)
}

func (r *PgMessageRepository) ListByPersonaID(ctx context.Context, personaID string) ([]domain.ChatMessage, error) {
	const query = `
		SELECT id, persona_id, role, content, created_at
		FROM chats
		WHERE persona_id = $1
	`

	rows, err := r.pool.Query(ctx, query, personaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var msg domain.ChatMessage
		var role string

		err = rows.Scan(
			&msg.ID,
			&msg.PersonaID,
			&role,
			&msg.Content,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		messages = append(messages, msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *PgMessageRepository) DeleteByPersonaID(ctx context.Context, personaID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM chats WHERE persona_id = $1`, personaID)
	return err
}
