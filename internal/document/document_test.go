package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func scopeSection(items ...string) []Node {
	return []Node{
		Heading(2, ScopeAnalysisHeading),
		Heading(3, "Checkout"),
		BulletList(items...),
	}
}

func bigItems(n int) []string {
	items := make([]string, n)
	for i := range items {
		items[i] = "☐ " + strings.Repeat("scope line ", 20)
	}
	return items
}

// --- Size ---

func TestSize_MatchesJSONEncoding(t *testing.T) {
	d := New(Heading(1, "Title"), Paragraph("body"))
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got := Size(d); got != len(raw) {
		t.Errorf("Size = %d, want %d", got, len(raw))
	}
}

func TestSize_ZeroValueDocument(t *testing.T) {
	if got, want := Size(Document{}), Size(New()); got != want {
		t.Errorf("Size(Document{}) = %d, want %d", got, want)
	}
}

func TestHeadingLevel_AfterJSONRoundTrip(t *testing.T) {
	raw, err := json.Marshal(New(Heading(3, "x")))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := HeadingLevel(d.Content[0]); got != 3 {
		t.Errorf("HeadingLevel = %d, want 3", got)
	}
	if got := HeadingLevel(Paragraph("p")); got != 0 {
		t.Errorf("HeadingLevel(paragraph) = %d, want 0", got)
	}
}

// --- Sections ---

func TestFindSection_StopsAtSameOrHigherLevel(t *testing.T) {
	d := New(
		Heading(1, "Story"),
		Paragraph("intro"),
		Heading(2, "Scope Analysis"),
		Heading(3, "Checkout"),
		BulletList("☐ pay"),
		Heading(2, "Links"),
		Paragraph("tail"),
	)
	start, end, ok := FindSection(d, "  scope analysis ")
	if !ok {
		t.Fatal("FindSection did not find section")
	}
	if start != 2 || end != 5 {
		t.Errorf("FindSection = [%d,%d), want [2,5)", start, end)
	}
}

func TestFindSection_RunsToEnd(t *testing.T) {
	d := New(Paragraph("a"), Heading(2, "Scope Analysis"), Paragraph("b"))
	start, end, ok := FindSection(d, ScopeAnalysisHeading)
	if !ok || start != 1 || end != 3 {
		t.Errorf("FindSection = (%d, %d, %v), want (1, 3, true)", start, end, ok)
	}
}

func TestExtractSection_ReturnsRemovedNodes(t *testing.T) {
	section := scopeSection("☐ pay", "❓ refunds?")
	d := New(Paragraph("before")).Append(section...).Append(Heading(2, "After"))

	rest, got, ok := ExtractSection(d, ScopeAnalysisHeading)
	if !ok {
		t.Fatal("ExtractSection did not find section")
	}
	if diff := cmp.Diff(section, got); diff != "" {
		t.Errorf("section mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(New(Paragraph("before"), Heading(2, "After")), rest); diff != "" {
		t.Errorf("rest mismatch (-want +got):\n%s", diff)
	}
	if len(d.Content) != 5 {
		t.Errorf("input modified: %d nodes, want 5", len(d.Content))
	}
}

func TestExtractSection_Missing(t *testing.T) {
	d := New(Paragraph("only"))
	rest, section, ok := ExtractSection(d, ScopeAnalysisHeading)
	if ok || section != nil {
		t.Errorf("ExtractSection = (%v, %v), want (nil, false)", section, ok)
	}
	if diff := cmp.Diff(d, rest); diff != "" {
		t.Errorf("rest mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaceSection_RepeatedRunsKeepOneInstance(t *testing.T) {
	d := New(Heading(1, "Story"), Paragraph("description"))

	for i := 0; i < 3; i++ {
		d = ReplaceSection(d, ScopeAnalysisHeading, scopeSection("☐ run "+string(rune('a'+i))))
	}

	if got := CountSections(d, ScopeAnalysisHeading); got != 1 {
		t.Fatalf("CountSections = %d, want 1", got)
	}
	text, ok := SectionText(d, ScopeAnalysisHeading)
	if !ok {
		t.Fatal("SectionText did not find section")
	}
	if !strings.Contains(text, "☐ run c") || strings.Contains(text, "☐ run a") {
		t.Errorf("section text = %q, want only latest run", text)
	}
}

func TestReplaceSection_CollapsesDuplicates(t *testing.T) {
	d := New().Append(scopeSection("☐ one")...).Append(Paragraph("x")).Append(scopeSection("☐ two")...)
	if got := CountSections(d, ScopeAnalysisHeading); got != 2 {
		t.Fatalf("setup: CountSections = %d, want 2", got)
	}
	d = ReplaceSection(d, ScopeAnalysisHeading, scopeSection("☐ three"))
	if got := CountSections(d, ScopeAnalysisHeading); got != 1 {
		t.Errorf("CountSections = %d, want 1", got)
	}
}

func TestExtractThenReinsert_SingleInstance(t *testing.T) {
	c := NewComposer()
	composed := c.Compose(New(Paragraph("desc")), scopeSection("❓ open")).Content

	rest, old, ok := ExtractSection(composed, ScopeAnalysisHeading)
	if !ok {
		t.Fatal("composed document has no scope section")
	}
	updated := append([]Node(nil), old...)
	updated[len(updated)-1] = BulletList("💬 answered")
	final := ReplaceSection(rest, ScopeAnalysisHeading, updated)

	if got := CountSections(final, ScopeAnalysisHeading); got != 1 {
		t.Errorf("CountSections = %d, want 1", got)
	}
}

// --- Compose ---

func TestCompose_FitsReturnsConcatenation(t *testing.T) {
	existing := New(Heading(1, "Story"), Paragraph("desc"))
	section := scopeSection("☐ pay")

	res := NewComposer().Compose(existing, section)

	if diff := cmp.Diff(existing.Append(section...), res.Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if res.OverflowedFound || res.Overflowed != "" {
		t.Errorf("unexpected overflow %q", res.Overflowed)
	}
	if res.Warning != nil {
		t.Errorf("unexpected warning: %v", res.Warning)
	}
	if res.Size != Size(res.Content) {
		t.Errorf("Size = %d, want %d", res.Size, Size(res.Content))
	}
}

func TestCompose_ExactlyAtLimitFits(t *testing.T) {
	existing := New(Paragraph("desc"))
	section := []Node{Heading(2, ShellStoriesHeading)}
	c := Composer{Limit: Size(existing.Append(section...)), SafetyMargin: 0, OverflowHeading: ScopeAnalysisHeading}

	res := c.Compose(existing, section)
	if res.Warning != nil || res.OverflowedFound {
		t.Errorf("Compose at limit: warning=%v overflow=%v, want neither", res.Warning, res.OverflowedFound)
	}
}

func TestCompose_OverflowMovesScopeSection(t *testing.T) {
	scope := scopeSection(bigItems(20)...)
	existing := New(Heading(1, "Story"), Paragraph("desc")).Append(scope...).Append(Heading(2, "Links"), Paragraph("url"))
	section := append([]Node{Heading(2, ShellStoriesHeading)}, BulletList("st1 Browse", "st2 Pay"))

	reduced := New(Heading(1, "Story"), Paragraph("desc"), Heading(2, "Links"), Paragraph("url"))
	c := Composer{Limit: Size(reduced.Append(section...)) + 100, SafetyMargin: 50, OverflowHeading: ScopeAnalysisHeading}
	combined := Size(existing.Append(section...))
	if combined <= c.EffectiveLimit() {
		t.Fatalf("setup: combined size %d fits limit %d", combined, c.EffectiveLimit())
	}

	res := c.Compose(existing, section)

	if !res.OverflowedFound {
		t.Fatal("OverflowedFound = false, want true")
	}
	if diff := cmp.Diff(reduced.Append(section...), res.Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if res.Overflowed != PlainText(scope) {
		t.Errorf("Overflowed = %q, want plain text of section", res.Overflowed)
	}
	if CountSections(res.Content, ScopeAnalysisHeading) != 0 {
		t.Error("content still contains scope section")
	}
	if res.Size >= combined {
		t.Errorf("Size = %d, want < %d", res.Size, combined)
	}
	if res.Warning != nil {
		t.Errorf("unexpected warning: %v", res.Warning)
	}
}

func TestCompose_StillOversizedWarns(t *testing.T) {
	existing := New(Paragraph(strings.Repeat("x", 500))).Append(scopeSection(bigItems(5)...)...)
	section := []Node{Heading(2, ShellStoriesHeading)}
	c := Composer{Limit: 100, OverflowHeading: ScopeAnalysisHeading}

	res := c.Compose(existing, section)

	if !res.OverflowedFound {
		t.Error("OverflowedFound = false, want true")
	}
	if res.Warning == nil {
		t.Fatal("Warning = nil, want SizeWarning")
	}
	if !res.Warning.Extracted || res.Warning.Limit != 100 || res.Warning.Size != res.Size {
		t.Errorf("Warning = %+v", res.Warning)
	}
	if CountSections(res.Content, ShellStoriesHeading) != 1 {
		t.Error("new section missing from oversized content")
	}
}

func TestCompose_NoOverflowSectionWarns(t *testing.T) {
	existing := New(Paragraph(strings.Repeat("x", 500)))
	section := []Node{Heading(2, ShellStoriesHeading)}
	c := Composer{Limit: 100, OverflowHeading: ScopeAnalysisHeading}

	res := c.Compose(existing, section)

	if res.OverflowedFound {
		t.Error("OverflowedFound = true, want false")
	}
	if res.Warning == nil || res.Warning.Extracted {
		t.Fatalf("Warning = %+v, want non-extracted warning", res.Warning)
	}
	if diff := cmp.Diff(existing.Append(section...), res.Content); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(res.Warning.Error(), "no overflow section") {
		t.Errorf("Error() = %q", res.Warning.Error())
	}
}

func TestComposer_EffectiveLimitDefaults(t *testing.T) {
	if got := NewComposer().EffectiveLimit(); got != 41838 {
		t.Errorf("EffectiveLimit = %d, want 41838", got)
	}
	if got := (Composer{}).EffectiveLimit(); got != DefaultLimit {
		t.Errorf("zero Composer EffectiveLimit = %d, want %d", got, DefaultLimit)
	}
}

// --- Markdown ---

func TestFromMarkdown_Blocks(t *testing.T) {
	src := "## Scope Analysis\n\n### Checkout\n\n- ☐ Pay by card\n- ❓ Refunds?\n\n1. first\n2. second\n\n```go\nx := 1\n```\n\n---\n"

	want := []Node{
		Heading(2, "Scope Analysis"),
		Heading(3, "Checkout"),
		BulletList("☐ Pay by card", "❓ Refunds?"),
		{Type: TypeOrderedList, Content: []Node{
			{Type: TypeListItem, Content: []Node{Paragraph("first")}},
			{Type: TypeListItem, Content: []Node{Paragraph("second")}},
		}},
		{Type: TypeCodeBlock, Attrs: map[string]any{"language": "go"}, Content: []Node{Text("x := 1")}},
		{Type: TypeRule},
	}
	if diff := cmp.Diff(want, FromMarkdown(src)); diff != "" {
		t.Errorf("FromMarkdown mismatch (-want +got):\n%s", diff)
	}
}

func TestFromMarkdown_InlineMarks(t *testing.T) {
	got := FromMarkdown("Use **bold** and `code` and [docs](https://example.com).")

	want := []Node{{Type: TypeParagraph, Content: []Node{
		Text("Use "),
		Text("bold", Mark{Type: "strong"}),
		Text(" and "),
		Text("code", Mark{Type: "code"}),
		Text(" and "),
		Text("docs", Mark{Type: "link", Attrs: map[string]any{"href": "https://example.com"}}),
		Text("."),
	}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromMarkdown mismatch (-want +got):\n%s", diff)
	}
}

func TestFromMarkdown_Empty(t *testing.T) {
	if got := FromMarkdown(""); len(got) != 0 {
		t.Errorf("FromMarkdown(\"\") = %v, want empty", got)
	}
}

func TestSection_PrependsHeading(t *testing.T) {
	nodes := Section(ShellStoriesHeading, "- st1 Browse")
	if len(nodes) != 2 || InlineText(nodes[0]) != ShellStoriesHeading || HeadingLevel(nodes[0]) != 2 {
		t.Errorf("Section = %+v", nodes)
	}
}

func TestSection_KeepsBodyHeadingsInside(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"level 2 areas", "## Checkout\n\n- ☐ Card payment\n- ❓ Guest checkout?\n"},
		{"level 1 area", "# Checkout\n\n- ☐ Card payment\n- ❓ Guest checkout?\n"},
		{"repeated title", "# Scope Analysis\n\n### Checkout\n\n- ☐ Card payment\n- ❓ Guest checkout?\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(Paragraph("desc"))
			for i := 0; i < 2; i++ {
				d = ReplaceSection(d, ScopeAnalysisHeading, Section(ScopeAnalysisHeading, tt.body))
			}
			if got := CountSections(d, ScopeAnalysisHeading); got != 1 {
				t.Errorf("CountSections = %d, want 1", got)
			}
			text, _ := SectionText(d, ScopeAnalysisHeading)
			if strings.Count(text, "Checkout") != 1 || !strings.Contains(text, "Guest checkout?") {
				t.Errorf("SectionText = %q", text)
			}
			for _, n := range d.Content[1:] {
				if l := HeadingLevel(n); l > 0 && InlineText(n) != ScopeAnalysisHeading && l != 3 {
					t.Errorf("body heading %q at level %d, want 3", InlineText(n), l)
				}
			}
		})
	}
}

// --- PlainText ---

func TestPlainText_RendersMarkdownFlavor(t *testing.T) {
	got := PlainText(scopeSection("☐ Pay", "❓ Refunds?"))
	want := "## Scope Analysis\n\n### Checkout\n\n- ☐ Pay\n- ❓ Refunds?\n"
	if got != want {
		t.Errorf("PlainText =\n%q\nwant\n%q", got, want)
	}
}

func TestPlainText_NestedAndOrdered(t *testing.T) {
	nodes := FromMarkdown("1. top\n   - child\n2. next\n")
	got := PlainText(nodes)
	want := "1. top\n  - child\n2. next\n"
	if got != want {
		t.Errorf("PlainText =\n%q\nwant\n%q", got, want)
	}
}
