package domain

import "time"

// Persona es el personaje que el asistente interpreta.
type Persona struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Birthdate  string    `json:"birthdate,omitempty"`
	LivedPlace string    `json:"lived_place,omitempty"`
	Details    string    `json:"details,omitempty"`
	Gender     string    `json:"gender,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
