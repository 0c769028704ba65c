// Package workspace is a filesystem-backed design source and tracker.
//
// Layout under the root:
//
//	design/<fileKey>/file.json            frames, notes, last_touched_at
//	design/<fileKey>/images/<frame>.png   rendered frame artifacts
//	tracker/<itemID>/document.json        structured description
//	tracker/<itemID>/comments/NNN.md      secondary-channel messages
//
// It lets the pipeline run end to end without network clients, and is what
// the CLI and MCP server use unless another source is wired in.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/HendryAvila/shellstory/internal/design"
	"github.com/HendryAvila/shellstory/internal/document"
	"github.com/HendryAvila/shellstory/internal/fsutil"
	"github.com/HendryAvila/shellstory/internal/tracker"
)

const (
	// DesignDir holds one directory per design file.
	DesignDir = "design"
	// TrackerDir holds one directory per work item.
	TrackerDir = "tracker"
	// FileJSON is the design file description inside a design directory.
	FileJSON = "file.json"
	// ImagesDir holds frame artifacts inside a design directory.
	ImagesDir = "images"
	// DocumentJSON is an item's description.
	DocumentJSON = "document.json"
	// CommentsDir holds an item's comments.
	CommentsDir = "comments"
)

// ErrFileNotFound is returned for an unknown design file key.
var ErrFileNotFound = errors.New("workspace: design file not found")

// Workspace implements design.Source and tracker.Tracker on a directory.
type Workspace struct {
	root string
}

var (
	_ design.Source   = (*Workspace)(nil)
	_ tracker.Tracker = (*Workspace)(nil)
)

// New returns a Workspace rooted at root.
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// DesignPath returns the directory of a design file.
func (w *Workspace) DesignPath(fileKey string) string {
	return filepath.Join(w.root, DesignDir, fileKey)
}

// ItemPath returns the directory of a work item.
func (w *Workspace) ItemPath(itemID string) string {
	return filepath.Join(w.root, TrackerDir, itemID)
}

func checkID(kind, id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid %s %q", kind, id)
	}
	return nil
}

// --- design.Source ---

// File reads design/<fileKey>/file.json. When the file carries no
// last_touched_at, the file's modification time stands in.
func (w *Workspace) File(ctx context.Context, fileKey string) (*design.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkID("file key", fileKey); err != nil {
		return nil, err
	}

	path := filepath.Join(w.DesignPath(fileKey), FileJSON)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileKey)
		}
		return nil, fmt.Errorf("reading %s: %w", FileJSON, err)
	}

	var f design.File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s for %q: %w", FileJSON, fileKey, err)
	}
	f.Key = fileKey
	if f.LastTouchedAt.IsZero() {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", FileJSON, err)
		}
		f.LastTouchedAt = info.ModTime().UTC()
	}
	return &f, nil
}

// LastTouchedAt returns the design file's modification timestamp.
func (w *Workspace) LastTouchedAt(ctx context.Context, fileKey string) (time.Time, error) {
	f, err := w.File(ctx, fileKey)
	if err != nil {
		return time.Time{}, err
	}
	return f.LastTouchedAt, nil
}

// Artifacts reads images/<frame>.png for each frame. Frames without an
// image are absent from the result.
func (w *Workspace) Artifacts(ctx context.Context, fileKey string, frameIDs []string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkID("file key", fileKey); err != nil {
		return nil, err
	}
	dir := w.DesignPath(fileKey)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileKey)
		}
		return nil, fmt.Errorf("stat design directory: %w", err)
	}

	out := make(map[string][]byte, len(frameIDs))
	for _, id := range frameIDs {
		data, err := os.ReadFile(w.ImagePath(fileKey, id))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading image for frame %q: %w", id, err)
		}
		out[id] = data
	}
	return out, nil
}

// ImagePath returns where a frame's image is stored.
func (w *Workspace) ImagePath(fileKey, frameID string) string {
	return filepath.Join(w.DesignPath(fileKey), ImagesDir, url.PathEscape(frameID)+".png")
}

// SaveFile writes design/<fileKey>/file.json.
func (w *Workspace) SaveFile(f *design.File) error {
	if err := checkID("file key", f.Key); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling design file: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(w.DesignPath(f.Key), FileJSON), data)
}

// SaveImage writes a frame's image.
func (w *Workspace) SaveImage(fileKey, frameID string, data []byte) error {
	if err := checkID("file key", fileKey); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(w.ImagePath(fileKey, frameID), data)
}

// Files lists design file keys present in the workspace.
func (w *Workspace) Files(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(w.root, DesignDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading design directory: %w", err)
	}
	keys := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(w.root, DesignDir, e.Name(), FileJSON)); err == nil {
			keys = append(keys, e.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// --- tracker.Tracker ---

// Document reads tracker/<itemID>/document.json, or returns an empty
// document when the item has none yet.
func (w *Workspace) Document(ctx context.Context, itemID string) (document.Document, error) {
	if err := ctx.Err(); err != nil {
		return document.Document{}, err
	}
	if err := checkID("item id", itemID); err != nil {
		return document.Document{}, err
	}
	data, err := os.ReadFile(filepath.Join(w.ItemPath(itemID), DocumentJSON))
	if err != nil {
		if os.IsNotExist(err) {
			return document.New(), nil
		}
		return document.Document{}, fmt.Errorf("reading %s: %w", DocumentJSON, err)
	}
	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document.Document{}, fmt.Errorf("parsing %s for %q: %w", DocumentJSON, itemID, err)
	}
	if doc.Type == "" {
		doc.Type = document.TypeDoc
	}
	return doc, nil
}

// WriteDocument replaces the item's description.
func (w *Workspace) WriteDocument(ctx context.Context, itemID string, doc document.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID("item id", itemID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling document: %w", err)
	}
	return fsutil.WriteFileAtomic(filepath.Join(w.ItemPath(itemID), DocumentJSON), data)
}

// PostComment appends a numbered markdown file under comments/.
func (w *Workspace) PostComment(ctx context.Context, itemID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkID("item id", itemID); err != nil {
		return err
	}
	dir := filepath.Join(w.ItemPath(itemID), CommentsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating comments directory: %w", err)
	}

	names, err := commentFiles(dir)
	if err != nil {
		return err
	}
	next := len(names) + 1
	for {
		path := filepath.Join(dir, fmt.Sprintf("%03d.md", next))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			next++
			continue
		}
		if err != nil {
			return fmt.Errorf("creating comment: %w", err)
		}
		if _, err := f.WriteString(text); err != nil {
			_ = f.Close()
			return fmt.Errorf("writing comment: %w", err)
		}
		return f.Close()
	}
}

// Comments returns the item's comments, oldest first.
func (w *Workspace) Comments(ctx context.Context, itemID string) ([]tracker.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkID("item id", itemID); err != nil {
		return nil, err
	}
	dir := filepath.Join(w.ItemPath(itemID), CommentsDir)
	names, err := commentFiles(dir)
	if err != nil {
		return nil, err
	}

	comments := make([]tracker.Comment, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading comment %s: %w", name, err)
		}
		c := tracker.Comment{ID: strings.TrimSuffix(name, ".md"), Body: string(data)}
		if info, err := os.Stat(path); err == nil {
			c.CreatedAt = info.ModTime().UTC()
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func commentFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading comments directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
