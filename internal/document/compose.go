package document

import "fmt"

// Size ceiling observed on the tracker's description field.
const (
	DefaultLimit        = 43838
	DefaultSafetyMargin = 2000
)

// SizeWarning reports that a composed document is still over the effective
// limit after the overflow section was moved out. The write is expected to
// proceed anyway.
type SizeWarning struct {
	Size      int
	Limit     int
	Extracted bool
}

func (w *SizeWarning) Error() string {
	if w.Extracted {
		return fmt.Sprintf("document size %d exceeds limit %d after moving overflow section", w.Size, w.Limit)
	}
	return fmt.Sprintf("document size %d exceeds limit %d and no overflow section was found", w.Size, w.Limit)
}

// ComposeResult is the outcome of Compose.
type ComposeResult struct {
	Content Document
	// Overflowed is the plain-text rendering of the section moved out of
	// the document, meant for a secondary channel such as a comment.
	Overflowed      string
	OverflowedFound bool
	Size            int
	Warning         *SizeWarning
}

// Composer appends sections to documents while staying under
// Limit - SafetyMargin serialized bytes.
type Composer struct {
	Limit           int
	SafetyMargin    int
	OverflowHeading string
}

// NewComposer returns a Composer with the default ceiling, overflowing the
// Scope Analysis section.
func NewComposer() Composer {
	return Composer{Limit: DefaultLimit, SafetyMargin: DefaultSafetyMargin, OverflowHeading: ScopeAnalysisHeading}
}

// EffectiveLimit is the size a composed document must not exceed.
func (c Composer) EffectiveLimit() int {
	limit := c.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	margin := c.SafetyMargin
	if margin < 0 {
		margin = 0
	}
	return limit - margin
}

// Compose appends newSection to existing. When the result is over the
// effective limit, the overflow section is extracted from existing once and
// returned as plain text. Only one extraction is attempted; if the document
// is still too large the result carries a SizeWarning and the caller writes
// it anyway.
func (c Composer) Compose(existing Document, newSection []Node) ComposeResult {
	limit := c.EffectiveLimit()

	combined := existing.Append(newSection...)
	size := Size(combined)
	if size <= limit {
		return ComposeResult{Content: combined, Size: size}
	}

	heading := c.OverflowHeading
	if heading == "" {
		heading = ScopeAnalysisHeading
	}
	reduced, section, found := ExtractSection(existing, heading)
	if !found {
		return ComposeResult{
			Content: combined,
			Size:    size,
			Warning: &SizeWarning{Size: size, Limit: limit},
		}
	}

	content := reduced.Append(newSection...)
	res := ComposeResult{
		Content:         content,
		Overflowed:      PlainText(section),
		OverflowedFound: true,
		Size:            Size(content),
	}
	if res.Size > limit {
		res.Warning = &SizeWarning{Size: res.Size, Limit: limit, Extracted: true}
	}
	return res
}
