package pipeline

import (
	"fmt"
	"strings"

	"github.com/HendryAvila/shellstory/internal/analysis"
	"github.com/HendryAvila/shellstory/internal/tracker"
)

const scopeSystemPrompt = `You are a product analyst producing a scope analysis for a feature.
Group findings into feature areas, one "### <area>" heading each.
Every finding is a "- " bullet starting with exactly one marker:
☐ in scope, ⏬ low priority, ✅ already done, ❌ out of scope,
❓ open question, 💬 question that has been answered (include the answer).
Only ask questions whose answers would change what gets built.`

const storiesSystemPrompt = `You write shell stories: short, incrementally valuable work items.
Output a markdown list. Each story is one top-level "- " bullet
"stN <title>" followed by nested bullets for SCREENS, DEPENDENCIES,
✅ included behavior, ❌ excluded behavior and ❓ open questions.
Order stories so each one ships value on top of the previous ones.
Only use ☐ and ⏬ items from the scope analysis.`

func screensContext(analyses []analysis.ScreenAnalysis) string {
	var b strings.Builder
	for _, a := range analyses {
		fmt.Fprintf(&b, "## Screen: %s\n\n%s\n\n", a.Screen.Name, strings.TrimSpace(a.Text))
	}
	return b.String()
}

func commentsContext(comments []tracker.Comment) string {
	if len(comments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Comments on the work item, oldest first:\n\n")
	for _, c := range comments {
		fmt.Fprintf(&b, "---\n%s\n", strings.TrimSpace(c.Body))
	}
	return b.String()
}

func scopePrompt(feature string, screens int, previous string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write the scope analysis for this feature from the %d analyzed screens below.", screens)
	if feature != "" {
		fmt.Fprintf(&b, "\n\nFeature context:\n%s", feature)
	}
	if previous != "" {
		b.WriteString("\n\nA previous scope analysis exists. Keep its structure, mark questions that the comments answer with 💬 and the answer, and drop questions that no longer matter.\n\nPrevious scope analysis:\n")
		b.WriteString(previous)
	}
	return b.String()
}

func storiesPrompt(feature, scopeText string) string {
	var b strings.Builder
	b.WriteString("Write shell stories for the feature using the scope analysis and screen analyses below.")
	if feature != "" {
		fmt.Fprintf(&b, "\n\nFeature context:\n%s", feature)
	}
	b.WriteString("\n\nScope analysis:\n")
	b.WriteString(scopeText)
	return b.String()
}

func clarificationComment(questions []string, count, threshold int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scope analysis has %d unanswered questions (at most %d allowed before writing shell stories).\n", count, threshold)
	b.WriteString("Answer them in a comment, then run shell story writing again:\n\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "- ❓ %s\n", q)
	}
	return b.String()
}

func overflowComment(section string) string {
	return "The description is close to its size limit, so the scope analysis moved here.\n\n" + section
}
