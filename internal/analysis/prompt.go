package analysis

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/shellstory/internal/design"
)

const screenSystemPrompt = `You are a product analyst documenting one screen of a UI design.
Describe what the user sees and can do, list every interactive element,
and call out states, validation and anything the designer annotated.
Write markdown. Do not invent features that are not visible or noted.`

// NotesText builds the contextual text for a screen from its associated
// notes, nearest first.
func NotesText(screen design.Screen, notes map[string]design.Note) string {
	var b strings.Builder
	for _, id := range screen.NoteIDs {
		n, ok := notes[id]
		if !ok {
			continue
		}
		for _, block := range n.TextBlocks {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			b.WriteString("- ")
			b.WriteString(strings.ReplaceAll(block, "\n", "\n  "))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func screenPrompt(in ScreenInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze screen %d of %d: %q", in.Index+1, in.Total, in.Screen.Name)
	if in.FileName != "" {
		fmt.Fprintf(&b, " from design file %q", in.FileName)
	}
	b.WriteString(".\n")
	return b.String()
}

func screenContext(in ScreenInput) string {
	if strings.TrimSpace(in.Notes) == "" {
		return ""
	}
	return "Designer notes for this screen:\n" + in.Notes
}
