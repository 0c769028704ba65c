package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/shellstory/internal/design"
)

// ListScreensTool handles the list_design_screens MCP tool. It previews
// what a run will see: screens in reading order with their notes. No
// generation happens.
type ListScreensTool struct {
	source design.Source
	opts   design.AssociateOptions
}

// NewListScreensTool creates a ListScreensTool.
func NewListScreensTool(source design.Source, opts design.AssociateOptions) *ListScreensTool {
	return &ListScreensTool{source: source, opts: opts}
}

// Definition returns the MCP tool definition for registration.
func (t *ListScreensTool) Definition() mcp.Tool {
	return mcp.NewTool("list_design_screens",
		mcp.WithDescription(
			"List the screens of a design file in reading order, each with the notes "+
				"placed next to it. Notes too far from every screen are listed separately. "+
				"Cheap: no images are fetched and nothing is analyzed.",
		),
		withFileKey(true),
	)
}

// Handle processes the list_design_screens tool call.
func (t *ListScreensTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileKey := strings.TrimSpace(req.GetString(paramFileKey, ""))
	if fileKey == "" {
		return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", paramFileKey)), nil
	}

	file, err := t.source.File(ctx, fileKey)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load design file: %v", err)), nil
	}
	res := design.Associate(file.Frames, file.Notes, t.opts)
	notes := design.NotesByID(file.Notes)

	var sb strings.Builder
	title := file.Name
	if title == "" {
		title = file.Key
	}
	fmt.Fprintf(&sb, "# %s: %d screens\n\n", title, len(res.Screens))
	for i, s := range res.Screens {
		fmt.Fprintf(&sb, "%d. **%s** (`%s`)\n", i+1, s.Name, s.ID)
		for _, id := range s.NoteIDs {
			fmt.Fprintf(&sb, "   - %s\n", noteSummary(notes[id]))
		}
	}
	if len(res.UnassociatedNoteIDs) > 0 {
		sb.WriteString("\n## Unassociated notes\n\n")
		for _, id := range res.UnassociatedNoteIDs {
			fmt.Fprintf(&sb, "- %s\n", noteSummary(notes[id]))
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func noteSummary(n design.Note) string {
	text := strings.Join(strings.Fields(strings.Join(n.TextBlocks, " ")), " ")
	if r := []rune(text); len(r) > 120 {
		text = string(r[:117]) + "..."
	}
	if text == "" {
		return fmt.Sprintf("`%s`", n.ID)
	}
	return fmt.Sprintf("`%s`: %s", n.ID, text)
}
