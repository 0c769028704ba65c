package document

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// FromMarkdown converts generated markdown into document nodes. Raw HTML
// blocks become paragraphs of their source text.
func FromMarkdown(src string) []Node {
	source := []byte(src)
	root := markdown.Parser().Parse(text.NewReader(source))

	var nodes []Node
	for c := root.FirstChild(); c != nil; c = c.NextSibling() {
		if n, ok := convertBlock(c, source); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// sectionLevel is the heading level of pipeline-owned sections.
const sectionLevel = 2

// Section builds a heading followed by the markdown body converted to nodes.
// A leading body heading repeating the section title is dropped and body
// headings are demoted below the section level, so the whole body stays
// inside the section.
func Section(heading, body string) []Node {
	nodes := FromMarkdown(body)
	if len(nodes) > 0 && nodes[0].Type == TypeHeading &&
		normalizeHeading(InlineText(nodes[0])) == normalizeHeading(heading) {
		nodes = nodes[1:]
	}
	for i, n := range nodes {
		if l := HeadingLevel(n); l > 0 && l <= sectionLevel {
			nodes[i].Attrs = map[string]any{"level": sectionLevel + 1}
		}
	}
	return append([]Node{Heading(sectionLevel, heading)}, nodes...)
}

func convertBlock(n ast.Node, source []byte) (Node, bool) {
	switch b := n.(type) {
	case *ast.Heading:
		return Node{
			Type:    TypeHeading,
			Attrs:   map[string]any{"level": b.Level},
			Content: convertInlines(b, source, nil),
		}, true
	case *ast.Paragraph, *ast.TextBlock:
		content := convertInlines(b, source, nil)
		if len(content) == 0 {
			return Node{}, false
		}
		return Node{Type: TypeParagraph, Content: content}, true
	case *ast.List:
		list := Node{Type: TypeBulletList}
		if b.IsOrdered() {
			list.Type = TypeOrderedList
			if b.Start > 1 {
				list.Attrs = map[string]any{"order": b.Start}
			}
		}
		for item := b.FirstChild(); item != nil; item = item.NextSibling() {
			li := Node{Type: TypeListItem}
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				if child, ok := convertBlock(c, source); ok {
					li.Content = append(li.Content, child)
				}
			}
			if len(li.Content) == 0 {
				li.Content = []Node{{Type: TypeParagraph}}
			}
			list.Content = append(list.Content, li)
		}
		return list, true
	case *ast.FencedCodeBlock:
		node := Node{Type: TypeCodeBlock}
		if lang := b.Language(source); len(lang) > 0 {
			node.Attrs = map[string]any{"language": string(lang)}
		}
		if body := linesText(b.Lines(), source); body != "" {
			node.Content = []Node{Text(body)}
		}
		return node, true
	case *ast.CodeBlock:
		node := Node{Type: TypeCodeBlock}
		if body := linesText(b.Lines(), source); body != "" {
			node.Content = []Node{Text(body)}
		}
		return node, true
	case *ast.Blockquote:
		quote := Node{Type: TypeBlockquote}
		for c := b.FirstChild(); c != nil; c = c.NextSibling() {
			if child, ok := convertBlock(c, source); ok {
				quote.Content = append(quote.Content, child)
			}
		}
		return quote, len(quote.Content) > 0
	case *ast.ThematicBreak:
		return Node{Type: TypeRule}, true
	case *ast.HTMLBlock:
		body := strings.TrimSpace(linesText(b.Lines(), source))
		if body == "" {
			return Node{}, false
		}
		return Paragraph(body), true
	}
	return Node{}, false
}

func linesText(lines *text.Segments, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

func convertInlines(parent ast.Node, source []byte, marks []Mark) []Node {
	var out []Node
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch in := c.(type) {
		case *ast.Text:
			out = appendText(out, string(in.Segment.Value(source)), marks)
			if in.HardLineBreak() {
				out = append(out, Node{Type: TypeHardBreak})
			} else if in.SoftLineBreak() {
				out = appendText(out, " ", marks)
			}
		case *ast.String:
			out = appendText(out, string(in.Value), marks)
		case *ast.CodeSpan:
			out = append(out, convertInlines(in, source, withMark(marks, Mark{Type: "code"}))...)
		case *ast.Emphasis:
			mark := Mark{Type: "em"}
			if in.Level >= 2 {
				mark = Mark{Type: "strong"}
			}
			out = append(out, convertInlines(in, source, withMark(marks, mark))...)
		case *ast.Link:
			link := Mark{Type: "link", Attrs: map[string]any{"href": string(in.Destination)}}
			out = append(out, convertInlines(in, source, withMark(marks, link))...)
		case *ast.AutoLink:
			url := string(in.URL(source))
			out = appendText(out, url, withMark(marks, Mark{Type: "link", Attrs: map[string]any{"href": url}}))
		default:
			out = append(out, convertInlines(c, source, marks)...)
		}
	}
	return out
}

func withMark(marks []Mark, m Mark) []Mark {
	out := make([]Mark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, m)
}

// appendText merges adjacent text runs that share the same marks.
func appendText(out []Node, s string, marks []Mark) []Node {
	if s == "" {
		return out
	}
	if n := len(out); n > 0 && out[n-1].Type == TypeText && sameMarks(out[n-1].Marks, marks) {
		out[n-1].Text += s
		return out
	}
	var m []Mark
	if len(marks) > 0 {
		m = append([]Mark(nil), marks...)
	}
	return append(out, Text(s, m...))
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type {
			return false
		}
		if a[i].Type == "link" && a[i].Attrs["href"] != b[i].Attrs["href"] {
			return false
		}
	}
	return true
}
