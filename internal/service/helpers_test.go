package service

import (
	"context"
	"io"
	"sync"
	"time"

	"persona-chat/internal/llm"
)

// steppedStreamer entrega cada chunk solo cuando el test lo envia por next.
// Cerrar next termina el stream con EOF.
type steppedStreamer struct {
	next     chan string
	mu       sync.Mutex
	requests [][]llm.ChatMessage
}

func newSteppedStreamer() *steppedStreamer {
	return &steppedStreamer{next: make(chan string)}
}

func (s *steppedStreamer) StreamChat(ctx context.Context, messages []llm.ChatMessage) (io.ReadCloser, error) {
	s.mu.Lock()
	s.requests = append(s.requests, messages)
	s.mu.Unlock()
	return &steppedReader{ctx: ctx, next: s.next}, nil
}

func (s *steppedStreamer) lastRequest() []llm.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

type steppedReader struct {
	ctx     context.Context
	next    <-chan string
	pending string
}

func (r *steppedReader) Read(p []byte) (int, error) {
	if r.pending == "" {
		select {
		case chunk, ok := <-r.next:
			if !ok {
				return 0, io.EOF
			}
			r.pending = chunk
		case <-r.ctx.Done():
			return 0, r.ctx.Err()
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *steppedReader) Close() error { return nil }

func deltaFrame(text string) string {
	return `data: {"choices":[{"delta":{"content":"` + text + `"}}]}` + "\n"
}

// recv espera un valor del canal con timeout para no colgar los tests.
func recv[T any](ch <-chan T) (T, bool) {
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(2 * time.Second):
		var zero T
		return zero, false
	}
}

// stepClock devuelve instantes crecientes de a un segundo.
type stepClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newStepClock() *stepClock {
	return &stepClock{cur: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}
