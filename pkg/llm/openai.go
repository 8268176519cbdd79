package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/ladleio/ladle/pkg/config"
)

// OpenAI aligns records through the OpenAI chat completions API (or
// any compatible endpoint via base_url).
type OpenAI struct {
	model string
	llm   *openai.LLM
}

// NewOpenAI builds the provider from configuration. The API key falls
// back to OPENAI_API_KEY through the client library.
func NewOpenAI(cfg config.LLMConfig) (*OpenAI, error) {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llm: building openai client: %w", err)
	}
	return &OpenAI{model: cfg.Model, llm: client}, nil
}

func (p *OpenAI) Name() string { return "openai" }

// Complete sends the prompt and returns the raw completion text
func (p *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	out, err := p.llm.Call(ctx, prompt, llms.WithTemperature(0))
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	return out, nil
}

// classifyOpenAIError maps client errors onto the adapter taxonomy.
// The client library surfaces HTTP failures as formatted strings, so
// status codes are sniffed from the message.
func classifyOpenAIError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(ErrTimeout, err)
		}
		return NewError(ErrTransient, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "insufficient_quota"):
		return NewError(ErrQuota, err)
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "404"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "model_not_found"):
		return NewError(ErrPermanent, err)
	case strings.Contains(msg, "400"),
		strings.Contains(msg, "context length"),
		strings.Contains(msg, "maximum context"):
		return NewError(ErrPermanent, err)
	default:
		// 5xx, connection resets, unknown states
		return NewError(ErrTransient, err)
	}
}
