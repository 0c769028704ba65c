package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/kaptinlin/jsonschema"
)

// MetadataVersion is bumped whenever the on-disk artifact layout changes.
// Entries written by another version are treated as invalid.
const MetadataVersion = 1

// ErrCorrupt marks cache metadata that exists but cannot be trusted:
// unparseable, schema-invalid, digest mismatch or foreign file key.
var ErrCorrupt = errors.New("cache metadata corrupt")

// Metadata describes one cached design file.
type Metadata struct {
	FileKey       string    `json:"file_key"`
	LastTouchedAt time.Time `json:"last_touched_at"`
	CachedAt      time.Time `json:"cached_at"`
	Version       int       `json:"version"`
	Digest        string    `json:"digest,omitempty"`
}

const metadataSchema = `{
	"type": "object",
	"required": ["file_key", "last_touched_at", "cached_at", "version", "digest"],
	"properties": {
		"file_key":        {"type": "string", "minLength": 1},
		"last_touched_at": {"type": "string", "format": "date-time"},
		"cached_at":       {"type": "string", "format": "date-time"},
		"version":         {"type": "integer", "minimum": 1},
		"digest":          {"type": "string", "pattern": "^[0-9a-f]{64}$"}
	}
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func metadataValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		schema, schemaErr = compiler.Compile([]byte(metadataSchema))
	})
	return schema, schemaErr
}

// digest returns the sha256 of the RFC 8785 canonical form of m with the
// Digest field cleared.
func (m Metadata) digest() (string, error) {
	m.Digest = ""
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing metadata: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// encodeMetadata stamps the digest and serializes m.
func encodeMetadata(m Metadata) ([]byte, error) {
	m.LastTouchedAt = m.LastTouchedAt.UTC()
	m.CachedAt = m.CachedAt.UTC()
	d, err := m.digest()
	if err != nil {
		return nil, err
	}
	m.Digest = d
	return json.MarshalIndent(m, "", "  ")
}

// decodeMetadata parses and verifies raw metadata written for fileKey.
// Every failure wraps ErrCorrupt.
func decodeMetadata(fileKey string, raw []byte) (*Metadata, error) {
	v, err := metadataValidator()
	if err != nil {
		return nil, fmt.Errorf("compiling metadata schema: %w", err)
	}
	if res := v.ValidateJSON(raw); !res.IsValid() {
		return nil, fmt.Errorf("%w: schema validation failed: %v", ErrCorrupt, res.Errors)
	}

	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	want, err := m.digest()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m.Digest != want {
		return nil, fmt.Errorf("%w: digest mismatch for %q", ErrCorrupt, fileKey)
	}
	if m.FileKey != fileKey {
		return nil, fmt.Errorf("%w: metadata belongs to %q, not %q", ErrCorrupt, m.FileKey, fileKey)
	}
	return &m, nil
}
