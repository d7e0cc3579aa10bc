package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"persona-chat/internal/domain"
)

// SQLitePersonaRepository guarda personas en el archivo local.
type SQLitePersonaRepository struct {
	db *sql.DB
}

func NewSQLitePersonaRepository(db *sql.DB) *SQLitePersonaRepository {
	return &SQLitePersonaRepository{db: db}
}

func (r *SQLitePersonaRepository) Create(ctx context.Context, persona domain.Persona) error {
	const query = `
		INSERT INTO personas (id, name, birthdate, lived_place, details, gender, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		persona.ID,
		persona.Name,
		persona.Birthdate,
		persona.LivedPlace,
		persona.Details,
		persona.Gender,
		persona.CreatedAt.UnixMilli(),
	)
	return translateError(err)
}

func (r *SQLitePersonaRepository) List(ctx context.Context) ([]domain.Persona, error) {
	const query = `
		SELECT id, name, birthdate, lived_place, details, gender, created_at
		FROM personas
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	personas := []domain.Persona{}
	for rows.Next() {
		p, err := scanSQLitePersona(rows)
		if err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return personas, nil
}

func (r *SQLitePersonaRepository) GetByID(ctx context.Context, id string) (domain.Persona, error) {
	const query = `
		SELECT id, name, birthdate, lived_place, details, gender, created_at
		FROM personas
		WHERE id = ?
	`
	p, err := scanSQLitePersona(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Persona{}, ErrNotFound
	}
	if err != nil {
		return domain.Persona{}, err
	}
	return p, nil
}

func (r *SQLitePersonaRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM personas WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLitePersona(row rowScanner) (domain.Persona, error) {
	var (
		p         domain.Persona
		createdAt int64
	)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Birthdate,
		&p.LivedPlace,
		&p.Details,
		&p.Gender,
		&createdAt,
	); err != nil {
		return domain.Persona{}, err
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	return p, nil
}

// SQLiteMessageRepository guarda el historial de chat en el archivo local.
type SQLiteMessageRepository struct {
	db *sql.DB
}

func NewSQLiteMessageRepository(db *sql.DB) *SQLiteMessageRepository {
	return &SQLiteMessageRepository{db: db}
}

func (r *SQLiteMessageRepository) Create(ctx context.Context, message domain.ChatMessage) error {
	if !message.Role.Valid() {
		return ErrInvalidRole
	}
	const query = `
		INSERT INTO chats (id, persona_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		message.ID,
		message.PersonaID,
		string(message.Role),
		message.Content,
		message.CreatedAt.UnixMilli(),
	)
	return translateError(err)
}

func (r *SQLiteMessageRepository) ListByPersonaID(ctx context.Context, personaID string) ([]domain.ChatMessage, error) {
	const query = `
		SELECT id, persona_id, role, content, created_at
		FROM chats
		WHERE persona_id = ?
	`
	rows, err := r.db.QueryContext(ctx, query, personaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.ChatMessage{}
	for rows.Next() {
		var (
			msg       domain.ChatMessage
			role      string
			createdAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.PersonaID, &role, &msg.Content, &createdAt); err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *SQLiteMessageRepository) DeleteByPersonaID(ctx context.Context, personaID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE persona_id = ?`, personaID)
	return err
}
