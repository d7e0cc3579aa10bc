package service

import "persona-chat/internal/domain"

// progressFeed publica el texto parcial acumulado. El productor nunca se
// bloquea: si el consumidor va atrasado solo ve el valor mas reciente.
type progressFeed struct {
	ch chan string
}

func newProgressFeed() progressFeed {
	return progressFeed{ch: make(chan string, 1)}
}

// publish solo debe llamarse desde la goroutine productora.
func (f progressFeed) publish(partial string) {
	select {
	case f.ch <- partial:
		return
	default:
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- partial
}

func (f progressFeed) close() {
	close(f.ch)
}

// Turn es una generacion en curso del orquestador. Progress se cierra antes
// de que Done quede listo.
type Turn struct {
	progress progressFeed
	done     chan struct{}
	text     string
	err      error
}

func newTurn() *Turn {
	return &Turn{progress: newProgressFeed(), done: make(chan struct{})}
}

// Progress emite el texto parcial acumulado a medida que llegan deltas.
func (t *Turn) Progress() <-chan string { return t.progress.ch }

func (t *Turn) Done() <-chan struct{} { return t.done }

// Wait bloquea hasta el evento terminal y devuelve el texto final o el error.
func (t *Turn) Wait() (string, error) {
	<-t.done
	return t.text, t.err
}

func (t *Turn) finish(text string, err error) {
	t.text, t.err = text, err
	t.progress.close()
	close(t.done)
}

// ChatTurn es un turno completo visto desde el controlador: el mensaje del
// usuario ya persistido y la respuesta del asistente cuando se confirma.
type ChatTurn struct {
	UserMessage domain.ChatMessage

	progress progressFeed
	done     chan struct{}
	reply    domain.ChatMessage
	err      error
}

func newChatTurn(user domain.ChatMessage) *ChatTurn {
	return &ChatTurn{UserMessage: user, progress: newProgressFeed(), done: make(chan struct{})}
}

func (t *ChatTurn) Progress() <-chan string { return t.progress.ch }

func (t *ChatTurn) Done() <-chan struct{} { return t.done }

// Wait devuelve el mensaje del asistente persistido o el error del turno.
func (t *ChatTurn) Wait() (domain.ChatMessage, error) {
	<-t.done
	return t.reply, t.err
}

func (t *ChatTurn) finish(reply domain.ChatMessage, err error) {
	t.reply, t.err = reply, err
	t.progress.close()
	close(t.done)
}
