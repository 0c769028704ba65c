// Package document models the tracker's structured description content and
// composes new sections into it under a hard serialized-size ceiling.
//
// The node shape follows the Atlassian Document Format (type, attrs,
// content, text, marks) because that is the strictest ceiling the service
// writes against, but nothing here talks to a tracker.
package document

import (
	"encoding/json"
	"strings"
)

// Node types used by the composer and the markdown importer.
const (
	TypeDoc         = "doc"
	TypeHeading     = "heading"
	TypeParagraph   = "paragraph"
	TypeText        = "text"
	TypeBulletList  = "bulletList"
	TypeOrderedList = "orderedList"
	TypeListItem    = "listItem"
	TypeCodeBlock   = "codeBlock"
	TypeBlockquote  = "blockquote"
	TypeRule        = "rule"
	TypeHardBreak   = "hardBreak"
)

// Mark decorates a text node (strong, em, code, link).
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Node is one element of the document tree.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Document is the root of a structured description.
type Document struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Content []Node `json:"content"`
}

// New builds a document from top-level nodes.
func New(nodes ...Node) Document {
	content := make([]Node, 0, len(nodes))
	content = append(content, nodes...)
	return Document{Version: 1, Type: TypeDoc, Content: content}
}

// Append returns a copy of d with nodes appended. d is not modified.
func (d Document) Append(nodes ...Node) Document {
	out := New(d.Content...)
	out.Content = append(out.Content, nodes...)
	return out
}

// IsEmpty reports whether the document has no content.
func (d Document) IsEmpty() bool { return len(d.Content) == 0 }

// Size is the serialized size metric the external ceiling applies to:
// the byte length of the document's JSON encoding.
func Size(d Document) int {
	if d.Type == "" {
		d.Type = TypeDoc
	}
	if d.Content == nil {
		d.Content = []Node{}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return 0
	}
	return len(raw)
}

// Text creates a text node.
func Text(s string, marks ...Mark) Node {
	return Node{Type: TypeText, Text: s, Marks: marks}
}

// Heading creates a heading of the given level with plain text.
func Heading(level int, text string) Node {
	return Node{Type: TypeHeading, Attrs: map[string]any{"level": level}, Content: []Node{Text(text)}}
}

// Paragraph creates a paragraph of plain text.
func Paragraph(text string) Node {
	if text == "" {
		return Node{Type: TypeParagraph}
	}
	return Node{Type: TypeParagraph, Content: []Node{Text(text)}}
}

// BulletList creates a bullet list with one paragraph per item.
func BulletList(items ...string) Node {
	list := Node{Type: TypeBulletList}
	for _, it := range items {
		list.Content = append(list.Content, Node{Type: TypeListItem, Content: []Node{Paragraph(it)}})
	}
	return list
}

// HeadingLevel returns the level of a heading node, or 0 for other nodes.
// Levels decoded from JSON arrive as float64.
func HeadingLevel(n Node) int {
	if n.Type != TypeHeading {
		return 0
	}
	switch v := n.Attrs["level"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		i, _ := v.Int64()
		return int(i)
	}
	return 1
}

// InlineText concatenates all text beneath n.
func InlineText(n Node) string {
	var b strings.Builder
	collectText(&b, n)
	return b.String()
}

func collectText(b *strings.Builder, n Node) {
	switch n.Type {
	case TypeText:
		b.WriteString(n.Text)
		return
	case TypeHardBreak:
		b.WriteByte('\n')
		return
	}
	for _, c := range n.Content {
		collectText(b, c)
	}
}
