package llm

import (
	"context"
	"io"
)

// MockStreamer permite tests sin llamar a un LLM real. Cada elemento de
// Chunks se entrega en una lectura separada.
type MockStreamer struct {
	Chunks   []string
	Err      error
	ReadErr  error
	Requests [][]ChatMessage
}

func (m *MockStreamer) StreamChat(_ context.Context, messages []ChatMessage) (io.ReadCloser, error) {
	m.Requests = append(m.Requests, messages)
	if m.Err != nil {
		return nil, m.Err
	}
	return &chunkReader{chunks: append([]string(nil), m.Chunks...), err: m.ReadErr}, nil
}

type chunkReader struct {
	chunks []string
	err    error
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	return nil
}
