package document

import (
	"fmt"
	"strings"
)

// PlainText renders nodes as lightweight markdown-flavored text, suitable
// for a comment body and for re-parsing scope-analysis bullets.
func PlainText(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeBlock(&b, n, "")
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeBlock(b *strings.Builder, n Node, indent string) {
	switch n.Type {
	case TypeHeading:
		level := HeadingLevel(n)
		if level < 1 {
			level = 1
		}
		fmt.Fprintf(b, "%s%s %s\n\n", indent, strings.Repeat("#", level), InlineText(n))
	case TypeParagraph:
		if t := InlineText(n); t != "" {
			fmt.Fprintf(b, "%s%s\n\n", indent, t)
		}
	case TypeBulletList, TypeOrderedList:
		for i, item := range n.Content {
			bullet := "- "
			if n.Type == TypeOrderedList {
				bullet = fmt.Sprintf("%d. ", i+1)
			}
			writeListItem(b, item, indent, bullet)
		}
		if indent == "" {
			b.WriteByte('\n')
		}
	case TypeCodeBlock:
		fmt.Fprintf(b, "%s```\n%s\n%s```\n\n", indent, strings.TrimRight(InlineText(n), "\n"), indent)
	case TypeBlockquote:
		for _, c := range n.Content {
			fmt.Fprintf(b, "%s> %s\n", indent, InlineText(c))
		}
		b.WriteByte('\n')
	case TypeRule:
		fmt.Fprintf(b, "%s---\n\n", indent)
	default:
		if t := InlineText(n); t != "" {
			fmt.Fprintf(b, "%s%s\n\n", indent, t)
		}
	}
}

func writeListItem(b *strings.Builder, item Node, indent, bullet string) {
	first := true
	for _, c := range item.Content {
		switch c.Type {
		case TypeBulletList, TypeOrderedList:
			for i, sub := range c.Content {
				subBullet := "- "
				if c.Type == TypeOrderedList {
					subBullet = fmt.Sprintf("%d. ", i+1)
				}
				writeListItem(b, sub, indent+"  ", subBullet)
			}
		default:
			text := InlineText(c)
			if first {
				fmt.Fprintf(b, "%s%s%s\n", indent, bullet, text)
				first = false
			} else if text != "" {
				fmt.Fprintf(b, "%s  %s\n", indent, text)
			}
		}
	}
	if first {
		fmt.Fprintf(b, "%s%s\n", indent, strings.TrimRight(bullet, " "))
	}
}
