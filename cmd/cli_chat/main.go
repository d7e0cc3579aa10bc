package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"persona-chat/internal/config"
	"persona-chat/internal/db"
	"persona-chat/internal/domain"
	"persona-chat/internal/llm"
	"persona-chat/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	stores, err := db.OpenStores(ctx, cfg, logger)
	if err != nil {
		log.Fatal(err)
	}
	defer stores.Close()

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.APIKey(), cfg.LLMModel, cfg.LLMTimeout, logger)
	orchestrator := service.NewResponseOrchestrator(llmClient, service.PersonaPromptBuilder{LanguageHint: cfg.PromptLanguageHint}, logger)
	conversation := service.NewConversationController(stores.Personas, stores.Messages, orchestrator, service.NewMemoryTurnGuard(), logger)
	personaSvc := service.NewPersonaService(stores.Personas, stores.Messages, logger)
	personaSvc.Observe(conversation)

	for {
		fmt.Println("===== Personas =====")
		personas, err := personaSvc.List(ctx)
		if err != nil {
			log.Fatalf("listar personas: %v", err)
		}
		if len(personas) == 0 {
			fmt.Println("No hay personas. Crea una nueva.")
		}
		for i, p := range personas {
			fmt.Printf("[%d] %s (ID: %s)\n", i+1, p.Name, p.ID)
		}
		fmt.Println("[C] Crear nueva persona")
		fmt.Println("[B] Borrar persona")
		fmt.Println("[S] Salir")
		fmt.Print("Selecciona una persona: ")

		choice, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		choice = strings.TrimSpace(choice)

		switch {
		case strings.EqualFold(choice, "S"):
			return
		case strings.EqualFold(choice, "C"):
			persona, err := createPersonaFlow(ctx, reader, personaSvc)
			if err != nil {
				fmt.Printf("Error creando persona: %v\n", err)
				continue
			}
			fmt.Printf("Persona %q creada.\n", persona.Name)
		case strings.EqualFold(choice, "B"):
			if err := deletePersonaFlow(ctx, reader, personaSvc, personas); err != nil {
				fmt.Printf("Error borrando persona: %v\n", err)
			}
		default:
			idx, err := strconv.Atoi(choice)
			if err != nil || idx < 1 || idx > len(personas) {
				fmt.Println("Seleccion invalida.")
				continue
			}
			if err := chatFlow(ctx, reader, conversation, personas[idx-1]); err != nil {
				fmt.Printf("Error en chat: %v\n", err)
			}
		}
	}
}

func createPersonaFlow(ctx context.Context, reader *bufio.Reader, personaSvc *service.PersonaService) (domain.Persona, error) {
	in := service.PersonaInput{
		Name:       readLine(reader, "Nombre: "),
		Birthdate:  readLine(reader, "Fecha de nacimiento (opcional): "),
		LivedPlace: readLine(reader, "Lugar donde vivio (opcional): "),
		Gender:     readLine(reader, "Genero (opcional): "),
		Details:    readLine(reader, "Detalles (opcional): "),
	}
	return personaSvc.Create(ctx, in)
}

func deletePersonaFlow(ctx context.Context, reader *bufio.Reader, personaSvc *service.PersonaService, personas []domain.Persona) error {
	idx, err := strconv.Atoi(readLine(reader, "Numero de persona a borrar: "))
	if err != nil || idx < 1 || idx > len(personas) {
		return errors.New("seleccion invalida")
	}
	target := personas[idx-1]
	if strings.EqualFold(readLine(reader, "Borrar tambien el historial? [s/N]: "), "s") {
		if err := personaSvc.ClearHistory(ctx, target.ID); err != nil {
			return err
		}
	}
	return personaSvc.Delete(ctx, target.ID)
}

func chatFlow(ctx context.Context, reader *bufio.Reader, conversation *service.ConversationController, persona domain.Persona) error {
	view, err := conversation.Select(ctx, persona.ID)
	if err != nil {
		return fmt.Errorf("seleccionar persona: %w", err)
	}

	fmt.Printf("---- Chat con %s (escribe 'salir' para terminar, Ctrl+C cancela la respuesta) ----\n", persona.Name)
	for _, msg := range view.Messages {
		printMessage(persona, msg)
	}

	for {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("leer input: %w", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "salir") || strings.EqualFold(text, "exit") {
			fmt.Println("Saliendo del chat...")
			return nil
		}

		if err := runTurn(ctx, conversation, persona, text); err != nil {
			fmt.Printf("\n%s\n", service.UserNotice(err))
		}
	}
}

// runTurn imprime los deltas a medida que llegan. Ctrl+C cancela solo el turno.
func runTurn(ctx context.Context, conversation *service.ConversationController, persona domain.Persona, text string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	turn, err := conversation.Send(turnCtx, text)
	if err != nil {
		return err
	}

	fmt.Printf("%s > %s", persona.Name, service.PendingPlaceholder)
	printed := ""
	for partial := range turn.Progress() {
		if printed == "" {
			fmt.Printf("\r\033[K%s > ", persona.Name)
		}
		if strings.HasPrefix(partial, printed) {
			fmt.Print(partial[len(printed):])
		} else {
			fmt.Printf("\r\033[K%s > %s", persona.Name, partial)
		}
		printed = partial
	}

	reply, err := turn.Wait()
	if err != nil {
		return err
	}
	if printed == "" {
		fmt.Printf("\r\033[K%s > %s", persona.Name, reply.Content)
	}
	fmt.Println()
	return nil
}

func printMessage(persona domain.Persona, msg domain.ChatMessage) {
	speaker := "Tu"
	if msg.Role == domain.RoleAssistant {
		speaker = persona.Name
	}
	fmt.Printf("%s > %s\n", speaker, msg.Content)
}

func readLine(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
