// Package llm is the text-generation capability the analysis and scope
// stages call. Providers: MCP sampling (the connected client's model) and
// the Gemini API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderSampling = "sampling"
	ProviderGemini   = "gemini"
)

// DefaultMaxTokens bounds a single generation.
const DefaultMaxTokens = 8000

// ErrNoProvider is returned when no generation capability is reachable.
var ErrNoProvider = errors.New("llm: no generation provider available")

// Request is one generation call. Image is optional.
type Request struct {
	Prompt    string
	System    string
	Image     []byte
	ImageMIME string
	// Context is extra material (notes, previous analysis) placed after the
	// prompt.
	Context string
}

// Generator produces text for a request. Implementations own no retry
// logic; a failed call is returned as-is.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Config selects and configures a provider.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
}

// New builds the configured provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderSampling:
		return NewSampling(cfg.MaxTokens), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// userText joins the prompt and its context the way every provider sends
// them.
func userText(req Request) string {
	prompt := strings.TrimSpace(req.Prompt)
	extra := strings.TrimSpace(req.Context)
	if extra == "" {
		return prompt
	}
	if prompt == "" {
		return extra
	}
	return prompt + "\n\n---\n\n" + extra
}

func imageMIME(req Request) string {
	if req.ImageMIME != "" {
		return req.ImageMIME
	}
	return "image/png"
}
