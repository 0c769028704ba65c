// Package tools implements the MCP tool handlers.
//
// Each tool is a struct holding its dependencies, with a Definition for
// registration and a Handle compatible with mcp-go's CallToolRequest
// signature. Bad input and failed runs come back as tool errors so the
// assistant can read them; only broken plumbing is returned as an error.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/shellstory/internal/analysis"
	"github.com/HendryAvila/shellstory/internal/pipeline"
)

// StoryRunner is the part of the pipeline the run tools call.
type StoryRunner interface {
	AnalyzeScope(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	WriteShellStories(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Shared parameter names.
const (
	paramFileKey = "file_key"
	paramItemID  = "item_id"
	paramContext = "context"
)

func withFileKey(required bool) mcp.ToolOption {
	opts := []mcp.PropertyOption{mcp.Description("Design file key")}
	if required {
		opts = append(opts, mcp.Required())
	}
	return mcp.WithString(paramFileKey, opts...)
}

// runRequest reads the parameters shared by the run tools.
func runRequest(req mcp.CallToolRequest) (pipeline.Request, error) {
	r := pipeline.Request{
		FileKey: strings.TrimSpace(req.GetString(paramFileKey, "")),
		ItemID:  strings.TrimSpace(req.GetString(paramItemID, "")),
		Context: strings.TrimSpace(req.GetString(paramContext, "")),
	}
	if r.FileKey == "" {
		return r, fmt.Errorf("'%s' is required", paramFileKey)
	}
	if r.ItemID == "" {
		return r, fmt.Errorf("'%s' is required", paramItemID)
	}
	return r, nil
}

// runResult turns a pipeline outcome into a tool result.
func runResult(res *pipeline.Result, err error) *mcp.CallToolResult {
	if err != nil {
		var sb strings.Builder
		if res != nil {
			fmt.Fprintf(&sb, "Run %s failed at phase %s: %v", res.RunID, res.Phase, err)
		} else {
			fmt.Fprintf(&sb, "Run failed: %v", err)
		}
		var te *analysis.TransientError
		if errors.As(err, &te) {
			sb.WriteString("\n\nThis looks transient. Screens analyzed before the failure are cached, so retrying only redoes the rest.")
		}
		return mcp.NewToolResultError(sb.String())
	}
	return mcp.NewToolResultText(formatResult(res))
}

func formatResult(res *pipeline.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s: %s\n\n", res.RunID, res.Status)
	fmt.Fprintf(&sb, "- **Design file**: %s\n", res.FileKey)
	fmt.Fprintf(&sb, "- **Work item**: %s\n", res.ItemID)
	fmt.Fprintf(&sb, "- **Screens**: %d (analyzed %d, cached %d, skipped %d)\n",
		len(res.Screens), res.Analyzed, res.Cached, len(res.Skipped))
	if res.Decision != nil {
		fmt.Fprintf(&sb, "- **Scope**: %d open questions, %s", res.Questions, res.Decision.Kind)
		if res.Decision.Regenerated {
			sb.WriteString(" (regenerated)")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "- **Document size**: %d bytes\n", res.DocumentSize)
	if res.Overflowed {
		sb.WriteString("- Scope analysis moved to a comment to keep the description under its size limit\n")
	}
	if len(res.UnassociatedNoteIDs) > 0 {
		fmt.Fprintf(&sb, "- **Unassociated notes**: %s\n", strings.Join(res.UnassociatedNoteIDs, ", "))
	}

	if len(res.Warnings) > 0 {
		sb.WriteString("\n## Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&sb, "- %s\n", w)
		}
	}

	if res.Status == pipeline.StatusNeedsClarification {
		sb.WriteString("\n## Needs clarification\n\n")
		sb.WriteString("Too many open questions to write stories. They were posted as a comment on the work item; answer them there and run again.\n")
	}
	if res.ScopeAnalysis != "" {
		fmt.Fprintf(&sb, "\n## Scope Analysis\n\n%s\n", res.ScopeAnalysis)
	}
	if res.Stories != "" {
		fmt.Fprintf(&sb, "\n## Shell Stories\n\n%s\n", res.Stories)
	}
	return sb.String()
}

// jsonResult marshals v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
