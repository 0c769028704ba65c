// Package prompts implements MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the assistant to run a sequence of tool calls. Unlike tools,
// prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// StoriesPrompt handles the write-shell-stories MCP prompt.
type StoriesPrompt struct{}

// NewStoriesPrompt creates a StoriesPrompt.
func NewStoriesPrompt() *StoriesPrompt {
	return &StoriesPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StoriesPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("write-shell-stories",
		mcp.WithPromptDescription(
			"Turn a design file into shell stories on a work item, "+
				"resolving open scope questions along the way.",
		),
		mcp.WithArgument("file_key",
			mcp.ArgumentDescription("Design file key"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("item_id",
			mcp.ArgumentDescription("Work item that receives the stories"),
			mcp.RequiredArgument(),
		),
	)
}

// Handle processes the write-shell-stories prompt request.
func (p *StoriesPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	fileKey := strings.TrimSpace(req.Params.Arguments["file_key"])
	itemID := strings.TrimSpace(req.Params.Arguments["item_id"])
	if fileKey == "" || itemID == "" {
		return nil, fmt.Errorf("file_key and item_id are required")
	}

	text := fmt.Sprintf(
		"I want shell stories for design file `%[1]s` on work item `%[2]s`.\n\n"+
			"1. Call `list_design_screens` with file_key `%[1]s` and show me the screens and their notes. "+
			"Point out notes that were not associated with any screen.\n"+
			"2. Ask me for any feature context worth passing along (goals, constraints, deadlines).\n"+
			"3. Call `write_shell_stories` with file_key `%[1]s`, item_id `%[2]s` and that context.\n"+
			"4. If the run needs clarification, list the open questions and help me answer them. "+
			"Once I have posted the answers as a comment on the work item, call `write_shell_stories` again.\n"+
			"5. When stories are written, summarize them in order and mention any skipped screens or warnings.",
		fileKey, itemID)

	return &mcp.GetPromptResult{
		Description: "Write shell stories",
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}
