package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Sampling asks the connected MCP client to run the generation with its own
// model. It needs a tool-call context carrying the server.
type Sampling struct {
	maxTokens int
}

// NewSampling creates a sampling generator.
func NewSampling(maxTokens int) *Sampling {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Sampling{maxTokens: maxTokens}
}

// Generate issues a sampling/createMessage request to the client.
func (s *Sampling) Generate(ctx context.Context, req Request) (string, error) {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return "", fmt.Errorf("sampling: %w", ErrNoProvider)
	}

	res, err := srv.RequestSampling(ctx, samplingRequest(req, s.maxTokens))
	if err != nil {
		return "", fmt.Errorf("sampling request: %w", err)
	}
	return samplingText(res.Content), nil
}

func samplingRequest(req Request, maxTokens int) mcp.CreateMessageRequest {
	var messages []mcp.SamplingMessage
	if len(req.Image) > 0 {
		messages = append(messages, mcp.SamplingMessage{
			Role: mcp.RoleUser,
			Content: mcp.ImageContent{
				Type:     "image",
				Data:     base64.StdEncoding.EncodeToString(req.Image),
				MIMEType: imageMIME(req),
			},
		})
	}
	messages = append(messages, mcp.SamplingMessage{
		Role:    mcp.RoleUser,
		Content: mcp.TextContent{Type: "text", Text: userText(req)},
	})

	return mcp.CreateMessageRequest{
		CreateMessageParams: mcp.CreateMessageParams{
			Messages:     messages,
			SystemPrompt: req.System,
			MaxTokens:    maxTokens,
		},
	}
}

// samplingText pulls text out of a sampling result. Clients return the
// content either typed or as decoded JSON.
func samplingText(content any) string {
	switch c := content.(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		if c == nil {
			return ""
		}
		return c.Text
	case map[string]any:
		if text, ok := c["text"].(string); ok {
			return text
		}
	case string:
		return c
	}
	return ""
}
