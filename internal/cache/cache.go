// Package cache stores per-screen analysis artifacts for design files.
//
// An entry is keyed by design-file key and is valid only while the
// producer's last-modified timestamp has not moved past the one recorded in
// its metadata. There is no screen-level invalidation: any edit to the file
// can move any screen, so an invalid entry is deleted whole and rebuilt.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cache is the timestamp-validated artifact cache. Mutations for the same
// file key are serialized within the process; different keys never contend.
type Cache struct {
	store  Store
	logger *zap.Logger
	locks  keyedMutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for recovered corruption and
// invalidation events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// New wraps store in a Cache.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status summarizes one cache entry.
type Status struct {
	FileKey   string        `json:"file_key"`
	Metadata  *Metadata     `json:"metadata,omitempty"`
	Corrupt   string        `json:"corrupt,omitempty"`
	Artifacts []ArtifactRef `json:"artifacts"`
}

// IsValid reports whether the cached entry for fileKey may be used given
// the producer's current last-modified time. Missing or corrupt metadata
// yields false with a nil error. Calling it never changes the cache.
func (c *Cache) IsValid(ctx context.Context, fileKey string, current time.Time) (bool, error) {
	unlock := c.locks.lock(fileKey)
	defer unlock()
	return c.isValidLocked(ctx, fileKey, current)
}

// Validate is IsValid followed, when invalid, by deleting the whole entry.
// The check and the delete happen under one lock.
func (c *Cache) Validate(ctx context.Context, fileKey string, current time.Time) (bool, error) {
	unlock := c.locks.lock(fileKey)
	defer unlock()

	valid, err := c.isValidLocked(ctx, fileKey, current)
	if err != nil {
		return false, err
	}
	if valid {
		return true, nil
	}
	if err := c.store.Delete(ctx, fileKey); err != nil {
		return false, fmt.Errorf("invalidating cache for %q: %w", fileKey, err)
	}
	c.logger.Debug("cache invalidated", zap.String("file_key", fileKey), zap.Time("last_touched_at", current))
	return false, nil
}

func (c *Cache) isValidLocked(ctx context.Context, fileKey string, current time.Time) (bool, error) {
	meta, err := c.loadMetadata(ctx, fileKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return false, nil
		case errors.Is(err, ErrCorrupt):
			c.logger.Warn("cache metadata unusable, rebuilding", zap.String("file_key", fileKey), zap.Error(err))
			return false, nil
		default:
			return false, err
		}
	}
	if meta.Version != MetadataVersion {
		return false, nil
	}
	if meta.LastTouchedAt.Before(current) {
		return false, nil
	}
	return true, nil
}

func (c *Cache) loadMetadata(ctx context.Context, fileKey string) (*Metadata, error) {
	raw, err := c.store.ReadMetadata(ctx, fileKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading cache metadata for %q: %w", fileKey, err)
	}
	return decodeMetadata(fileKey, raw)
}

// Get returns one artifact. A missing artifact is (nil, false, nil).
func (c *Cache) Get(ctx context.Context, fileKey, screenID string, kind Kind) ([]byte, bool, error) {
	data, err := c.store.ReadArtifact(ctx, fileKey, screenID, kind)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading %s artifact for %s/%s: %w", kind, fileKey, screenID, err)
	}
	return data, true, nil
}

// Put stores one artifact, overwriting any previous value.
func (c *Cache) Put(ctx context.Context, fileKey, screenID string, kind Kind, data []byte) error {
	unlock := c.locks.lock(fileKey)
	defer unlock()
	if err := c.store.WriteArtifact(ctx, fileKey, screenID, kind, data); err != nil {
		return fmt.Errorf("writing %s artifact for %s/%s: %w", kind, fileKey, screenID, err)
	}
	return nil
}

// Touch records lastTouchedAt as the timestamp the entry is valid for.
func (c *Cache) Touch(ctx context.Context, fileKey string, lastTouchedAt time.Time) error {
	unlock := c.locks.lock(fileKey)
	defer unlock()

	data, err := encodeMetadata(Metadata{
		FileKey:       fileKey,
		LastTouchedAt: lastTouchedAt,
		CachedAt:      timeNow(),
		Version:       MetadataVersion,
	})
	if err != nil {
		return err
	}
	if err := c.store.WriteMetadata(ctx, fileKey, data); err != nil {
		return fmt.Errorf("writing cache metadata for %q: %w", fileKey, err)
	}
	return nil
}

// Invalidate deletes the whole entry for fileKey.
func (c *Cache) Invalidate(ctx context.Context, fileKey string) error {
	unlock := c.locks.lock(fileKey)
	defer unlock()
	if err := c.store.Delete(ctx, fileKey); err != nil {
		return fmt.Errorf("invalidating cache for %q: %w", fileKey, err)
	}
	return nil
}

// Status reports metadata and artifacts for fileKey.
func (c *Cache) Status(ctx context.Context, fileKey string) (*Status, error) {
	st := &Status{FileKey: fileKey, Artifacts: []ArtifactRef{}}

	meta, err := c.loadMetadata(ctx, fileKey)
	switch {
	case err == nil:
		st.Metadata = meta
	case errors.Is(err, ErrCorrupt):
		st.Corrupt = err.Error()
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	refs, err := c.store.ListArtifacts(ctx, fileKey)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts for %q: %w", fileKey, err)
	}
	if refs != nil {
		st.Artifacts = refs
	}
	return st, nil
}

// Keys lists every cached file key.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	return c.store.Keys(ctx)
}

// keyedMutex hands out one mutex per key and frees it when the last holder
// releases it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
