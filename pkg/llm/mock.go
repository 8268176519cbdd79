package llm

import (
	"context"
	"sync"
)

// mockResponse is a minimal valid record so a mock-provider pipeline
// exercises every downstream stage out of the box
const mockResponse = `{
  "organization": {"name": "Mock Community Pantry", "description": "Development fixture"},
  "location": {"address_1": "450 Riverside Ave", "city": "Austin", "state_province": "TX", "postal_code": "78701", "latitude": 30.2672, "longitude": -97.7431},
  "services": [{"name": "Food Pantry", "status": "active"}]
}`

// Mock is the development and test provider. With no script it always
// answers a fixed valid record; tests script responses and errors per
// call.
type Mock struct {
	mu      sync.Mutex
	scripts []mockStep
	prompts []string
}

type mockStep struct {
	response string
	err      error
}

// NewMock returns a mock that always answers the canned record
func NewMock() *Mock {
	return &Mock{}
}

func (p *Mock) Name() string { return "mock" }

// Respond appends a scripted response
func (p *Mock) Respond(response string) *Mock {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, mockStep{response: response})
	return p
}

// Fail appends a scripted failure
func (p *Mock) Fail(err error) *Mock {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts = append(p.scripts, mockStep{err: err})
	return p
}

// Prompts returns every prompt the mock has seen
func (p *Mock) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}

// Complete answers the next scripted step, or the canned record once
// the script is exhausted
func (p *Mock) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewError(ErrTransient, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)

	if len(p.scripts) == 0 {
		return mockResponse, nil
	}
	step := p.scripts[0]
	p.scripts = p.scripts[1:]
	if step.err != nil {
		return "", step.err
	}
	return step.response, nil
}
