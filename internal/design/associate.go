package design

import (
	"math"
	"sort"
)

const (
	// DefaultMaxDistance is the largest edge-to-edge gap, in design units,
	// at which a note is still considered to annotate a frame.
	DefaultMaxDistance = 500.0

	// DefaultRowTolerance collapses frames whose top edges are this close
	// into one reading-order row.
	DefaultRowTolerance = 50.0
)

// AssociateOptions tunes Associate. Zero values select the defaults.
type AssociateOptions struct {
	MaxDistance  float64
	RowTolerance float64
}

func (o AssociateOptions) withDefaults() AssociateOptions {
	if o.MaxDistance <= 0 {
		o.MaxDistance = DefaultMaxDistance
	}
	if o.RowTolerance <= 0 {
		o.RowTolerance = DefaultRowTolerance
	}
	return o
}

// AssociationResult is the output of Associate.
type AssociationResult struct {
	Screens             []Screen      `json:"screens"`
	Associations        []Association `json:"associations"`
	UnassociatedNoteIDs []string      `json:"unassociated_note_ids"`
}

// Associate orders frames into reading order and assigns every note to its
// nearest frame by edge-to-edge distance.
//
// Ties go to the frame that comes first in reading order. A note whose
// nearest frame is farther than MaxDistance is reported in
// UnassociatedNoteIDs and in no screen. Notes inside a screen are ordered
// by ascending distance; equal distances keep input order.
func Associate(frames []Frame, notes []Note, opts AssociateOptions) AssociationResult {
	opts = opts.withDefaults()

	ordered := ReadingOrder(frames, opts.RowTolerance)
	screens := make([]Screen, len(ordered))
	for i, f := range ordered {
		screens[i] = Screen{ID: f.ID, Name: f.Name, Box: f.Box, NoteIDs: []string{}}
	}

	result := AssociationResult{
		Screens:             screens,
		Associations:        []Association{},
		UnassociatedNoteIDs: []string{},
	}

	perScreen := make([][]Association, len(screens))
	for _, n := range notes {
		best := -1
		bestDist := math.Inf(1)
		for i, s := range screens {
			d := EdgeDistance(n.Box, s.Box)
			if d < bestDist {
				best, bestDist = i, d
			}
		}
		if best < 0 || bestDist > opts.MaxDistance {
			result.UnassociatedNoteIDs = append(result.UnassociatedNoteIDs, n.ID)
			continue
		}
		a := Association{NoteID: n.ID, ScreenID: screens[best].ID, Distance: bestDist}
		perScreen[best] = append(perScreen[best], a)
		result.Associations = append(result.Associations, a)
	}

	for i, list := range perScreen {
		sort.SliceStable(list, func(a, b int) bool { return list[a].Distance < list[b].Distance })
		for _, a := range list {
			screens[i].NoteIDs = append(screens[i].NoteIDs, a.NoteID)
		}
	}

	return result
}

// ReadingOrder sorts frames top-to-bottom, then left-to-right. Frames whose
// top edges fall within tolerance of a row's first frame share that row.
// The result does not depend on input order.
func ReadingOrder(frames []Frame, tolerance float64) []Frame {
	sorted := make([]Frame, len(frames))
	copy(sorted, frames)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Box.Y != b.Box.Y {
			return a.Box.Y < b.Box.Y
		}
		if a.Box.X != b.Box.X {
			return a.Box.X < b.Box.X
		}
		return a.ID < b.ID
	})

	var rows [][]Frame
	rowTop := 0.0
	for _, f := range sorted {
		if len(rows) == 0 || f.Box.Y-rowTop > tolerance {
			rows = append(rows, []Frame{f})
			rowTop = f.Box.Y
			continue
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], f)
	}

	out := make([]Frame, 0, len(frames))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			if row[i].Box.X != row[j].Box.X {
				return row[i].Box.X < row[j].Box.X
			}
			return row[i].ID < row[j].ID
		})
		out = append(out, row...)
	}
	return out
}

// EdgeDistance is the Euclidean distance between the nearest edges of two
// rectangles, or 0 when they overlap or touch.
func EdgeDistance(a, b BoundingBox) float64 {
	dx := math.Max(0, math.Max(a.X-b.Right(), b.X-a.Right()))
	dy := math.Max(0, math.Max(a.Y-b.Bottom(), b.Y-a.Bottom()))
	return math.Hypot(dx, dy)
}
