// Package design models the screens and notes extracted from a design file
// and assigns each note to the screen it annotates.
//
// The package has no knowledge of any particular design tool. Raw frames and
// notes come in through the Source interface; Associate turns them into the
// ordered, immutable Screen set every later pipeline phase works from.
package design

import (
	"context"
	"time"
)

// BoundingBox is an axis-aligned rectangle in design-space units.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the right edge.
func (b BoundingBox) Right() float64 { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b BoundingBox) Bottom() float64 { return b.Y + b.Height }

// Frame is raw frame metadata as delivered by a design source.
type Frame struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	Box  BoundingBox `json:"box"`
}

// Note is a positioned annotation object. Read-only input.
type Note struct {
	ID         string      `json:"id"`
	Box        BoundingBox `json:"box"`
	TextBlocks []string    `json:"text_blocks"`
}

// Screen is a frame plus the notes associated with it, ordered by
// ascending distance. Screens are built once per pipeline run and never
// mutated afterwards.
type Screen struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Box     BoundingBox `json:"box"`
	NoteIDs []string    `json:"note_ids"`
}

// Association links one note to its nearest screen.
type Association struct {
	NoteID   string  `json:"note_id"`
	ScreenID string  `json:"screen_id"`
	Distance float64 `json:"distance"`
}

// File is everything a source knows about one design file.
type File struct {
	Key           string    `json:"key"`
	Name          string    `json:"name,omitempty"`
	LastTouchedAt time.Time `json:"last_touched_at"`
	Frames        []Frame   `json:"frames"`
	Notes         []Note    `json:"notes"`
}

// Source is the design-tool collaborator. Implementations own transport,
// authentication and wire formats.
type Source interface {
	// File returns the frames and notes of a design file.
	File(ctx context.Context, fileKey string) (*File, error)

	// LastTouchedAt returns the producer's current modification timestamp.
	LastTouchedAt(ctx context.Context, fileKey string) (time.Time, error)

	// Artifacts retrieves rendered artifacts (images) for many frames in a
	// single round trip. Frames the producer could not render are simply
	// absent from the returned map. An error means the whole batch failed.
	Artifacts(ctx context.Context, fileKey string, frameIDs []string) (map[string][]byte, error)
}

// NotesByID indexes notes for lookup by ID.
func NotesByID(notes []Note) map[string]Note {
	m := make(map[string]Note, len(notes))
	for _, n := range notes {
		m[n.ID] = n
	}
	return m
}
