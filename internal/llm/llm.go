package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asktennis/asktennis/internal/resilience"
)

// ErrEmptyCompletion is returned when a backend answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Options tunes a single completion.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Completer is a fallible text-completion capability. The output has no
// guaranteed structure.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Provider         string
	Model            string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OllamaURL        string
}

// New returns the backend named by cfg.Provider. An empty provider means
// no language model and yields (nil, nil).
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "":
		return nil, nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("anthropic provider selected but ANTHROPIC_API_KEY is not set")
		}
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.Model, cfg.AnthropicBaseURL), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY is not set")
		}
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.Model, cfg.OpenAIBaseURL), nil
	case "ollama":
		return NewOllama(cfg.OllamaURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Guarded bounds every call with a timeout and a circuit breaker. A timed
// out call fails like any other.
type Guarded struct {
	next    Completer
	breaker *resilience.Breaker
	timeout time.Duration
}

func NewGuarded(next Completer, breaker *resilience.Breaker, timeout time.Duration) *Guarded {
	return &Guarded{next: next, breaker: breaker, timeout: timeout}
}

func (g *Guarded) Complete(ctx context.Context, systemPrompt, userPrompt string, opts Options) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var out string
	call := func() error {
		text, err := g.next.Complete(ctx, systemPrompt, userPrompt, opts)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return ErrEmptyCompletion
		}
		out = text
		return nil
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return "", fmt.Errorf("llm complete: %w", err)
	}
	return out, nil
}
