package llm

import (
	"context"
	"fmt"

	"github.com/ladleio/ladle/pkg/config"
)

// Provider is one way of turning a prompt into text. Implementations
// classify their failures into *Error kinds at this boundary so the
// rest of the package never inspects provider-specific errors.
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewProvider builds the configured provider
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg)
	case "subprocess":
		return NewSubprocess(cfg.SubprocessCmd)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}
