package document

import "strings"

// Section headings owned by the pipeline.
const (
	ScopeAnalysisHeading = "Scope Analysis"
	ShellStoriesHeading  = "Shell Stories"
)

// FindSection locates the first top-level heading whose text matches
// heading (case-insensitive, surrounding whitespace ignored). The section
// spans from that heading up to, not including, the next heading of the
// same or a higher level.
func FindSection(d Document, heading string) (start, end int, ok bool) {
	return findSectionFrom(d.Content, heading, 0)
}

func findSectionFrom(nodes []Node, heading string, from int) (int, int, bool) {
	want := normalizeHeading(heading)
	for i := from; i < len(nodes); i++ {
		n := nodes[i]
		if n.Type != TypeHeading || normalizeHeading(InlineText(n)) != want {
			continue
		}
		level := HeadingLevel(n)
		end := len(nodes)
		for j := i + 1; j < len(nodes); j++ {
			if l := HeadingLevel(nodes[j]); l > 0 && l <= level {
				end = j
				break
			}
		}
		return i, end, true
	}
	return 0, 0, false
}

func normalizeHeading(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ExtractSection removes the first matching section from d and returns the
// reduced document and the removed nodes (heading included).
func ExtractSection(d Document, heading string) (Document, []Node, bool) {
	start, end, ok := FindSection(d, heading)
	if !ok {
		return New(d.Content...), nil, false
	}
	section := append([]Node(nil), d.Content[start:end]...)
	rest := make([]Node, 0, len(d.Content)-(end-start))
	rest = append(rest, d.Content[:start]...)
	rest = append(rest, d.Content[end:]...)
	return New(rest...), section, true
}

// RemoveSection removes every matching section.
func RemoveSection(d Document, heading string) Document {
	out := New(d.Content...)
	for {
		next, _, ok := ExtractSection(out, heading)
		if !ok {
			return out
		}
		out = next
	}
}

// ReplaceSection removes every existing matching section and appends
// section at the end, so repeated runs leave exactly one instance.
func ReplaceSection(d Document, heading string, section []Node) Document {
	return RemoveSection(d, heading).Append(section...)
}

// CountSections returns how many top-level sections match heading.
func CountSections(d Document, heading string) int {
	count := 0
	from := 0
	for {
		start, _, ok := findSectionFrom(d.Content, heading, from)
		if !ok {
			return count
		}
		count++
		from = start + 1
	}
}

// SectionText returns the plain-text body of the first matching section,
// without its heading.
func SectionText(d Document, heading string) (string, bool) {
	start, end, ok := FindSection(d, heading)
	if !ok {
		return "", false
	}
	return PlainText(d.Content[start+1 : end]), true
}
