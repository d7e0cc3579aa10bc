package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"persona-chat/internal/domain"
)

// PersonaRepository define el contrato de persistencia para personas.
// List no garantiza orden; ordenar es responsabilidad del llamador.
type PersonaRepository interface {
	Create(ctx context.Context, persona domain.Persona) error
	List(ctx context.Context) ([]domain.Persona, error)
	GetByID(ctx context.Context, id string) (domain.Persona, error)
	Delete(ctx context.Context, id string) error
}

type PgPersonaRepository struct {
	pool *pgxpool.Pool
}

func NewPgPersonaRepository(pool *pgxpool.Pool) *PgPersonaRepository {
	return &PgPersonaRepository{pool: pool}
}

func (r *PgPersonaRepository) Create(ctx context.Context, persona domain.Persona) error {
	const query = `
		INSERT INTO personas (id, name, birthdate, lived_place, details, gender, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		persona.ID,
		persona.Name,
		persona.Birthdate,
		persona.LivedPlace,
		persona.Details,
		persona.Gender,
		persona.CreatedAt,
	)
	return translateError(err)
}

func (r *PgPersonaRepository) List(ctx context.Context) ([]domain.Persona, error) {
	const query = `
		SELECT id, name, birthdate, lived_place, details, gender, created_at
		FROM personas
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	personas := []domain.Persona{}
	for rows.Next() {
		var p domain.Persona
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&p.Birthdate,
			&p.LivedPlace,
			&p.Details,
			&p.Gender,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return personas, nil
}

func (r *PgPersonaRepository) GetByID(ctx context.Context, id string) (domain.Persona, error) {
	const query = `
		SELECT id, name, birthdate, lived_place, details, gender, created_at
		FROM personas
		WHERE id = $1
	`
	var p domain.Persona
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Birthdate,
		&p.LivedPlace,
		&p.Details,
		&p.Gender,
		&p.CreatedAt,
	)
	if err != nil {
		return domain.Persona{}, translateError(err)
	}
	return p, nil
}

// Delete borra solo la persona; sus mensajes se conservan.
func (r *PgPersonaRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM personas WHERE id = $1`, id)
	return err
}
