package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// WriteStoriesTool handles the write_shell_stories MCP tool.
// It runs the whole pipeline: screen analysis, the scope decision and,
// when scope is clear enough, story generation.
type WriteStoriesTool struct {
	runner StoryRunner
}

// NewWriteStoriesTool creates a WriteStoriesTool.
func NewWriteStoriesTool(runner StoryRunner) *WriteStoriesTool {
	return &WriteStoriesTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *WriteStoriesTool) Definition() mcp.Tool {
	return mcp.NewTool("write_shell_stories",
		mcp.WithDescription(
			"Turn a design file into shell stories on a work item. "+
				"Screens are analyzed (cached until the design changes), a scope analysis "+
				"is generated or reused, and stories are written to a Shell Stories section. "+
				"If the scope analysis has too many open questions the run stops and posts "+
				"them as a comment instead; answer them and call this tool again.",
		),
		withFileKey(true),
		mcp.WithString(paramItemID,
			mcp.Required(),
			mcp.Description("Work item that receives the shell stories"),
		),
		mcp.WithString(paramContext,
			mcp.Description("Optional feature context: goals, constraints, what the epic is about"),
		),
	)
}

// Handle processes the write_shell_stories tool call.
func (t *WriteStoriesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := runRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return runResult(t.runner.WriteShellStories(ctx, r)), nil
}
