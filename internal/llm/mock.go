package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
// Si Fn esta definido tiene prioridad; si no, consume Responses/Errs en orden
// y al agotarlos repite Response/Err.
type MockClient struct {
	Response  string
	Err       error
	Responses []string
	Errs      []error
	Fn        func(ctx context.Context, req CompletionRequest) (string, error)

	mu       sync.Mutex
	calls    int
	requests []CompletionRequest
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	fn := m.Fn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if idx < len(m.Responses) || idx < len(m.Errs) {
		var (
			resp string
			err  error
		)
		if idx < len(m.Responses) {
			resp = m.Responses[idx]
		}
		if idx < len(m.Errs) {
			err = m.Errs[idx]
		}
		return resp, err
	}
	return m.Response, m.Err
}

// Calls devuelve la cantidad de invocaciones recibidas.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests devuelve una copia de los requests recibidos.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}
