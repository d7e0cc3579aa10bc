package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
)

const (
	framePrefix    = "data: "
	terminalMarker = "[DONE]"
	readChunkSize  = 4 * 1024
)

type EventKind int

const (
	EventDelta EventKind = iota + 1
	EventTerminal
)

// StreamEvent es un evento semantico del stream: un delta de texto o el fin.
type StreamEvent struct {
	Kind EventKind
	Text string
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// StreamDecoder convierte chunks de bytes en eventos, tolerando frames
// partidos entre lecturas. No es seguro para uso concurrente.
type StreamDecoder struct {
	buf  []byte
	done bool
}

func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Done indica si ya se emitio el evento terminal.
func (d *StreamDecoder) Done() bool {
	return d.done
}

// Push agrega un chunk y devuelve los eventos de las lineas completas.
// Se trabaja sobre bytes: un '\n' nunca aparece dentro de una runa UTF-8
// multibyte, asi que las runas partidas entre chunks quedan intactas.
func (d *StreamDecoder) Push(chunk []byte) []StreamEvent {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var events []StreamEvent
	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		if ev, ok := d.frame(line); ok {
			events = append(events, ev)
		}
	}
	if d.done {
		d.buf = nil
	}
	return events
}

// Finish cierra el decoder al terminar el transporte. Una linea sin '\n'
// final no es un frame completo y se descarta. Garantiza exactamente un
// evento terminal.
func (d *StreamDecoder) Finish() []StreamEvent {
	if d.done {
		return nil
	}
	d.buf = nil
	d.done = true
	return []StreamEvent{{Kind: EventTerminal}}
}

func (d *StreamDecoder) frame(line []byte) (StreamEvent, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(framePrefix)) {
		return StreamEvent{}, false
	}
	payload := line[len(framePrefix):]
	if string(payload) == terminalMarker {
		d.done = true
		return StreamEvent{Kind: EventTerminal}, true
	}

	// Un payload mal formado no es un error: se descarta.
	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return StreamEvent{}, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return StreamEvent{}, false
	}
	return StreamEvent{Kind: EventDelta, Text: chunk.Choices[0].Delta.Content}, true
}

// Decode lee r hasta el evento terminal y entrega cada evento en orden de
// llegada. Los errores de transporte se devuelven sin clasificar.
func Decode(ctx context.Context, r io.Reader, emit func(StreamEvent)) error {
	dec := NewStreamDecoder()
	buf := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			for _, ev := range dec.Push(buf[:n]) {
				emit(ev)
			}
			if dec.Done() {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			for _, ev := range dec.Finish() {
				emit(ev)
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
