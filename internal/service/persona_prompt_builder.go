package service

import (
	"fmt"
	"strings"

	"persona-chat/internal/domain"
)

const roleplayDirective = "Respond as this persona would, staying true to their character, knowledge, and speaking style."

// PersonaPromptBuilder arma la instruccion de sistema a partir de los
// atributos de la persona. Los atributos ausentes no aportan texto.
type PersonaPromptBuilder struct {
	LanguageHint string
}

type promptField struct {
	format string
	value  string
}

// Build recorre una lista fija y ordenada de atributos y agrega solo los
// presentes, asi el resultado es determinista.
func (b PersonaPromptBuilder) Build(persona domain.Persona) string {
	fields := []promptField{
		{"You are %s.", persona.Name},
		{"Born on %s.", persona.Birthdate},
		{"Lived in %s.", persona.LivedPlace},
		{"Gender: %s.", persona.Gender},
		{"About you: %s", persona.Details},
	}

	parts := make([]string, 0, len(fields)+2)
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			continue
		}
		parts = append(parts, terminate(fmt.Sprintf(f.format, v)))
	}
	parts = append(parts, roleplayDirective)
	if hint := strings.TrimSpace(b.LanguageHint); hint != "" {
		parts = append(parts, terminate(hint))
	}
	return strings.Join(parts, " ")
}

func terminate(sentence string) string {
	switch {
	case strings.HasSuffix(sentence, "."),
		strings.HasSuffix(sentence, "!"),
		strings.HasSuffix(sentence, "?"),
		strings.HasSuffix(sentence, "。"):
		return sentence
	}
	return sentence + "."
}
