package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the shellstory-status MCP prompt.
// It asks the assistant to report what the design cache holds.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("shellstory-status",
		mcp.WithPromptDescription(
			"Show which design files are cached, when each was last analyzed "+
				"and how many screens have analyses.",
		),
	)
}

// Handle processes the shellstory-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Design cache status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `design_cache_status` without a file key.\n\n" +
						"Then:\n" +
						"1. List each cached design file with the modification time it was cached for\n" +
						"2. Count analysis, image and notes artifacts per file\n" +
						"3. Flag any entry reported as corrupt; it will be rebuilt on the next run",
				),
			},
		},
	}, nil
}
