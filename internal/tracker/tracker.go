// Package tracker declares the issue-tracker collaborator the pipeline
// reads from and writes to.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/HendryAvila/shellstory/internal/document"
)

// ErrItemNotFound is returned when the tracker has no such work item.
var ErrItemNotFound = errors.New("tracker: item not found")

// Comment is a message on the secondary channel of a work item.
type Comment struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Tracker reads and writes a work item's structured description and posts
// comments to it.
type Tracker interface {
	// Document returns the item's description. An item without a
	// description yields an empty document, not an error.
	Document(ctx context.Context, itemID string) (document.Document, error)

	WriteDocument(ctx context.Context, itemID string, doc document.Document) error

	PostComment(ctx context.Context, itemID, text string) error

	// Comments lists comments oldest first. Answers to scope questions
	// arrive here and are fed back into regeneration.
	Comments(ctx context.Context, itemID string) ([]Comment, error)
}
