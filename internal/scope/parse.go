// Package scope parses scope-analysis text and decides whether a feature has
// enough answered questions to move on to shell stories.
package scope

import (
	"strings"
	"unicode"
)

// Marker tags one scope-analysis bullet.
type Marker string

// Scope markers, as written at the start of a bullet.
const (
	MarkerInScope     Marker = "☐"
	MarkerLowPriority Marker = "⏬"
	MarkerDone        Marker = "✅"
	MarkerOutOfScope  Marker = "❌"
	MarkerQuestion    Marker = "❓"
	MarkerAnswered    Marker = "💬"
)

// Markers lists every marker in display order.
var Markers = []Marker{
	MarkerInScope,
	MarkerLowPriority,
	MarkerDone,
	MarkerOutOfScope,
	MarkerQuestion,
	MarkerAnswered,
}

// Label is a human-readable name for the marker.
func (m Marker) Label() string {
	switch m {
	case MarkerInScope:
		return "in scope"
	case MarkerLowPriority:
		return "low priority"
	case MarkerDone:
		return "already done"
	case MarkerOutOfScope:
		return "out of scope"
	case MarkerQuestion:
		return "question"
	case MarkerAnswered:
		return "answered"
	}
	return string(m)
}

// Item is one tagged bullet.
type Item struct {
	Marker Marker `json:"marker"`
	Text   string `json:"text"`
}

// FeatureArea groups the bullets under one heading.
type FeatureArea struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Analysis is parsed scope-analysis text.
type Analysis struct {
	Areas []FeatureArea `json:"areas"`
}

// Counts returns how many items carry each marker.
func (a Analysis) Counts() map[Marker]int {
	counts := make(map[Marker]int, len(Markers))
	for _, area := range a.Areas {
		for _, it := range area.Items {
			counts[it.Marker]++
		}
	}
	return counts
}

// Questions returns the unanswered question items, in document order.
func (a Analysis) Questions() []Item {
	var out []Item
	for _, area := range a.Areas {
		for _, it := range area.Items {
			if it.Marker == MarkerQuestion {
				out = append(out, it)
			}
		}
	}
	return out
}

// Parse extracts feature areas and tagged bullets from scope-analysis text.
// Headings open a feature area; bullets without a marker are ignored. A
// heading that repeats the section title does not open an area.
func Parse(text string) Analysis {
	var a Analysis
	current := -1
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if name, ok := headingText(trimmed); ok {
			if strings.EqualFold(name, "Scope Analysis") {
				continue
			}
			a.Areas = append(a.Areas, FeatureArea{Name: name})
			current = len(a.Areas) - 1
			continue
		}
		body, ok := bulletBody(trimmed)
		if !ok {
			continue
		}
		marker, rest, ok := splitMarker(body)
		if !ok {
			continue
		}
		if current < 0 {
			a.Areas = append(a.Areas, FeatureArea{})
			current = 0
		}
		a.Areas[current].Items = append(a.Areas[current].Items, Item{Marker: marker, Text: rest})
	}
	return a
}

// CountUnansweredQuestions counts bullets tagged as unanswered questions.
// Answered questions do not count.
func CountUnansweredQuestions(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		body, ok := bulletBody(strings.TrimSpace(line))
		if !ok {
			continue
		}
		if m, _, ok := splitMarker(body); ok && m == MarkerQuestion {
			n++
		}
	}
	return n
}

func headingText(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	name := strings.TrimLeft(line, "#")
	if name != "" && name[0] != ' ' {
		return "", false
	}
	name = strings.Trim(strings.TrimSpace(name), "*_")
	return strings.TrimSpace(name), name != ""
}

// bulletBody strips a "-", "*", "+" or "N." list prefix.
func bulletBody(line string) (string, bool) {
	if len(line) >= 2 && strings.ContainsRune("-*+", rune(line[0])) && line[1] == ' ' {
		return strings.TrimSpace(line[2:]), true
	}
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return strings.TrimSpace(line[i+2:]), true
	}
	return "", false
}

func splitMarker(body string) (Marker, string, bool) {
	for _, m := range Markers {
		if !strings.HasPrefix(body, string(m)) {
			continue
		}
		rest := strings.TrimPrefix(body, string(m))
		rest = strings.TrimPrefix(rest, "\ufe0f")
		if rest != "" && !unicode.IsSpace([]rune(rest)[0]) {
			return "", "", false
		}
		return m, strings.TrimSpace(rest), true
	}
	return "", "", false
}
