package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HendryAvila/shellstory/internal/fsutil"
)

const (
	// MetadataFile is the per-file-key metadata filename used by FileStore.
	MetadataFile = ".cache-metadata.json"

	staleSuffix = ".stale-"
)

// ErrNotFound is returned by stores for absent metadata or artifacts.
var ErrNotFound = errors.New("not found")

// Kind identifies one type of per-screen artifact.
type Kind string

const (
	KindImage    Kind = "image"
	KindAnalysis Kind = "analysis"
	KindNotes    Kind = "notes"
)

// ArtifactRef names one stored artifact.
type ArtifactRef struct {
	ScreenID string `json:"screen_id"`
	Kind     Kind   `json:"kind"`
	Size     int64  `json:"size"`
}

// Store is the durable key/value backend addressed by
// (fileKey, screenID, kind). Implementations need not lock: Cache
// serializes mutations per file key.
type Store interface {
	ReadMetadata(ctx context.Context, fileKey string) ([]byte, error)
	WriteMetadata(ctx context.Context, fileKey string, data []byte) error
	ReadArtifact(ctx context.Context, fileKey, screenID string, kind Kind) ([]byte, error)
	WriteArtifact(ctx context.Context, fileKey, screenID string, kind Kind, data []byte) error
	ListArtifacts(ctx context.Context, fileKey string) ([]ArtifactRef, error)
	Delete(ctx context.Context, fileKey string) error
	Keys(ctx context.Context) ([]string, error)
}

// FileStore implements Store on the local filesystem: one directory per
// file key holding the metadata file and one file per artifact.
type FileStore struct {
	root string
}

// NewFileStore creates a filesystem-backed store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the store's base directory.
func (fs *FileStore) Root() string { return fs.root }

// EntryPath returns the directory holding one file key's cache.
func (fs *FileStore) EntryPath(fileKey string) string {
	return filepath.Join(fs.root, escapeName(fileKey))
}

func (fs *FileStore) artifactPath(fileKey, screenID string, kind Kind) string {
	return filepath.Join(fs.EntryPath(fileKey), escapeName(screenID)+"."+string(kind))
}

// ReadMetadata returns the raw metadata bytes or ErrNotFound.
func (fs *FileStore) ReadMetadata(_ context.Context, fileKey string) ([]byte, error) {
	return readFile(filepath.Join(fs.EntryPath(fileKey), MetadataFile))
}

// WriteMetadata atomically replaces the metadata file.
func (fs *FileStore) WriteMetadata(_ context.Context, fileKey string, data []byte) error {
	return fsutil.WriteFileAtomic(filepath.Join(fs.EntryPath(fileKey), MetadataFile), data)
}

// ReadArtifact returns one artifact or ErrNotFound.
func (fs *FileStore) ReadArtifact(_ context.Context, fileKey, screenID string, kind Kind) ([]byte, error) {
	return readFile(fs.artifactPath(fileKey, screenID, kind))
}

// WriteArtifact atomically writes one artifact, overwriting any previous one.
func (fs *FileStore) WriteArtifact(_ context.Context, fileKey, screenID string, kind Kind, data []byte) error {
	return fsutil.WriteFileAtomic(fs.artifactPath(fileKey, screenID, kind), data)
}

// ListArtifacts returns every artifact stored for fileKey, sorted by screen
// then kind. An absent entry yields an empty list.
func (fs *FileStore) ListArtifacts(_ context.Context, fileKey string) ([]ArtifactRef, error) {
	entries, err := os.ReadDir(fs.EntryPath(fileKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	var refs []ArtifactRef
	for _, e := range entries {
		if e.IsDir() || e.Name() == MetadataFile || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		dot := strings.LastIndex(e.Name(), ".")
		if dot <= 0 {
			continue
		}
		screenID, err := unescapeName(e.Name()[:dot])
		if err != nil {
			continue // not ours
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		refs = append(refs, ArtifactRef{ScreenID: screenID, Kind: Kind(e.Name()[dot+1:]), Size: info.Size()})
	}
	sortRefs(refs)
	return refs, nil
}

// Delete removes a file key's whole directory. The directory is first
// renamed aside so readers never observe a half-deleted entry.
func (fs *FileStore) Delete(_ context.Context, fileKey string) error {
	dir := fs.EntryPath(fileKey)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	stale := fmt.Sprintf("%s%s%d", dir, staleSuffix, timeNow().UnixNano())
	if err := os.Rename(dir, stale); err != nil {
		return fmt.Errorf("moving cache directory aside: %w", err)
	}
	if err := os.RemoveAll(stale); err != nil {
		return fmt.Errorf("removing cache directory: %w", err)
	}
	return nil
}

// Keys lists every file key with a cache directory.
func (fs *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache root: %w", err)
	}
	var keys []string
	for _, e := range entries {
		if !e.IsDir() || strings.Contains(e.Name(), staleSuffix) {
			continue
		}
		key, err := unescapeName(e.Name())
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// escapeName maps an arbitrary identifier onto a portable filename.
// Bytes outside [A-Za-z0-9.-] become "_xx" (lowercase hex), so
// "12:34" -> "12_3a34". The mapping is reversible.
func escapeName(s string) string {
	const hexDigits = "0123456789abcdef"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-':
			b.WriteByte(c)
		case c == '.' && i > 0:
			b.WriteByte(c)
		default:
			b.WriteByte('_')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}

func unescapeName(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '_' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape in %q", s)
		}
		hi, ok1 := fromHex(s[i+1])
		lo, ok2 := fromHex(s[i+2])
		if !ok1 || !ok2 {
			return "", fmt.Errorf("bad escape in %q", s)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

func sortRefs(refs []ArtifactRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ScreenID != refs[j].ScreenID {
			return refs[i].ScreenID < refs[j].ScreenID
		}
		return refs[i].Kind < refs[j].Kind
	})
}
