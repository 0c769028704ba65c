package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// AnalyzeScopeTool handles the analyze_feature_scope MCP tool.
type AnalyzeScopeTool struct {
	runner StoryRunner
}

// NewAnalyzeScopeTool creates an AnalyzeScopeTool.
func NewAnalyzeScopeTool(runner StoryRunner) *AnalyzeScopeTool {
	return &AnalyzeScopeTool{runner: runner}
}

// Definition returns the MCP tool definition for registration.
func (t *AnalyzeScopeTool) Definition() mcp.Tool {
	return mcp.NewTool("analyze_feature_scope",
		mcp.WithDescription(
			"Analyze every screen of a design file and write a Scope Analysis section "+
				"to the work item: feature areas with in-scope, low-priority, done, "+
				"out-of-scope and open-question items. Re-running replaces the section "+
				"and folds in answers posted as comments. "+
				"Use before write_shell_stories when scope is still unclear.",
		),
		withFileKey(true),
		mcp.WithString(paramItemID,
			mcp.Required(),
			mcp.Description("Work item that receives the scope analysis"),
		),
		mcp.WithString(paramContext,
			mcp.Description("Optional feature context: goals, constraints, what the epic is about"),
		),
	)
}

// Handle processes the analyze_feature_scope tool call.
func (t *AnalyzeScopeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := runRequest(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return runResult(t.runner.AnalyzeScope(ctx, r)), nil
}
