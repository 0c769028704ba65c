package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func init() {
	timeNow = func() time.Time {
		return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	}
}

type storeFactory struct {
	name string
	new  func(t *testing.T) Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{"file", func(t *testing.T) Store {
			return NewFileStore(t.TempDir())
		}},
		{"sqlite", func(t *testing.T) Store {
			t.Helper()
			s, err := NewSQLiteStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}
}

// forEachStore runs fn once per backend.
func forEachStore(t *testing.T, fn func(t *testing.T, c *Cache, s Store)) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.new(t)
			fn(t, New(s), s)
		})
	}
}

// --- IsValid ---

func TestIsValid_NoEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ok, err := c.IsValid(context.Background(), "file-a", t0)
		if err != nil {
			t.Fatalf("IsValid error: %v", err)
		}
		if ok {
			t.Error("IsValid = true for missing entry, want false")
		}
	})
}

func TestIsValid_ComparesLastTouchedAt(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ctx := context.Background()
		if err := c.Touch(ctx, "file-a", t0); err != nil {
			t.Fatalf("Touch: %v", err)
		}

		tests := []struct {
			name    string
			current time.Time
			want    bool
		}{
			{"same timestamp", t0, true},
			{"producer older", t0.Add(-time.Hour), true},
			{"producer newer", t0.Add(time.Second), false},
		}
		for _, tt := range tests {
			for i := 0; i < 2; i++ { // idempotent
				got, err := c.IsValid(ctx, "file-a", tt.current)
				if err != nil {
					t.Fatalf("%s: IsValid error: %v", tt.name, err)
				}
				if got != tt.want {
					t.Errorf("%s (call %d): IsValid = %v, want %v", tt.name, i+1, got, tt.want)
				}
			}
		}
	})
}

func TestIsValid_DoesNotDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ctx := context.Background()
		mustPut(t, c, "file-a", "1:2", KindAnalysis, "analysis")
		if err := c.Touch(ctx, "file-a", t0); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		if ok, _ := c.IsValid(ctx, "file-a", t0.Add(time.Hour)); ok {
			t.Fatal("expected invalid")
		}
		if _, found, _ := c.Get(ctx, "file-a", "1:2", KindAnalysis); !found {
			t.Error("IsValid must not delete artifacts")
		}
	})
}

func TestIsValid_CorruptMetadataTreatedAsAbsent(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, s Store) {
		ctx := context.Background()
		if err := s.WriteMetadata(ctx, "file-a", []byte("{not json")); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}
		ok, err := c.IsValid(ctx, "file-a", t0)
		if err != nil {
			t.Fatalf("IsValid error: %v", err)
		}
		if ok {
			t.Error("corrupt metadata should be invalid")
		}
	})
}

func TestIsValid_FileKeyMismatch(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, s Store) {
		ctx := context.Background()
		raw, err := encodeMetadata(Metadata{FileKey: "someone-else", LastTouchedAt: t0, CachedAt: t0, Version: MetadataVersion})
		if err != nil {
			t.Fatalf("encodeMetadata: %v", err)
		}
		if err := s.WriteMetadata(ctx, "file-a", raw); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}
		if ok, _ := c.IsValid(ctx, "file-a", t0); ok {
			t.Error("metadata for another file key must be invalid")
		}
	})
}

func TestIsValid_TamperedDigest(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, s Store) {
		ctx := context.Background()
		raw := fmt.Sprintf(`{"file_key":"file-a","last_touched_at":"%s","cached_at":"%s","version":1,"digest":"%064d"}`,
			t0.Format(time.RFC3339), t0.Format(time.RFC3339), 0)
		if err := s.WriteMetadata(ctx, "file-a", []byte(raw)); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}
		if ok, _ := c.IsValid(ctx, "file-a", t0); ok {
			t.Error("metadata with wrong digest must be invalid")
		}
	})
}

func TestIsValid_OldVersion(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, s Store) {
		ctx := context.Background()
		raw, err := encodeMetadata(Metadata{FileKey: "file-a", LastTouchedAt: t0, CachedAt: t0, Version: MetadataVersion + 1})
		if err != nil {
			t.Fatalf("encodeMetadata: %v", err)
		}
		if err := s.WriteMetadata(ctx, "file-a", raw); err != nil {
			t.Fatalf("WriteMetadata: %v", err)
		}
		if ok, _ := c.IsValid(ctx, "file-a", t0); ok {
			t.Error("metadata from another layout version must be invalid")
		}
	})
}

// --- Validate / Invalidate ---

func TestValidate_InvalidDeletesWholeEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ctx := context.Background()
		mustPut(t, c, "file-a", "s1", KindAnalysis, "one")
		mustPut(t, c, "file-a", "s2", KindAnalysis, "two")
		mustPut(t, c, "file-b", "s1", KindAnalysis, "other file")
		if err := c.Touch(ctx, "file-a", t0); err != nil {
			t.Fatalf("Touch: %v", err)
		}

		ok, err := c.Validate(ctx, "file-a", t0.Add(time.Minute))
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if ok {
			t.Fatal("Validate = true, want false")
		}
		for _, id := range []string{"s1", "s2"} {
			if _, found, _ := c.Get(ctx, "file-a", id, KindAnalysis); found {
				t.Errorf("artifact %s survived invalidation", id)
			}
		}
		if _, found, _ := c.Get(ctx, "file-b", "s1", KindAnalysis); !found {
			t.Error("invalidating file-a removed file-b's artifact")
		}
	})
}

func TestValidate_ValidKeepsEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ctx := context.Background()
		mustPut(t, c, "file-a", "s1", KindAnalysis, "one")
		if err := c.Touch(ctx, "file-a", t0); err != nil {
			t.Fatalf("Touch: %v", err)
		}
		ok, err := c.Validate(ctx, "file-a", t0)
		if err != nil || !ok {
			t.Fatalf("Validate = %v, %v; want true, nil", ok, err)
		}
		if _, found, _ := c.Get(ctx, "file-a", "s1", KindAnalysis); !found {
			t.Error("valid entry lost its artifact")
		}
	})
}

func TestInvalidate_MissingEntryIsNoop(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		if err := c.Invalidate(context.Background(), "never-cached"); err != nil {
			t.Errorf("Invalidate missing entry: %v", err)
		}
	})
}

// --- Get / Put ---

func TestGet_Missing(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		data, found, err := c.Get(context.Background(), "file-a", "s1", KindImage)
		if err != nil || found || data != nil {
			t.Errorf("Get missing = (%v, %v, %v), want (nil, false, nil)", data, found, err)
		}
	})
}

func TestPut_OverwritesIdempotently(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ctx := context.Background()
		mustPut(t, c, "file-a", "12:34", KindAnalysis, "first")
		mustPut(t, c, "file-a", "12:34", KindAnalysis, "second")
		mustPut(t, c, "file-a", "12:34", KindAnalysis, "second")

		data, found, err := c.Get(ctx, "file-a", "12:34", KindAnalysis)
		if err != nil || !found {
			t.Fatalf("Get = found %v, err %v", found, err)
		}
		if string(data) != "second" {
			t.Errorf("Get = %q, want %q", data, "second")
		}

		st, err := c.Status(ctx, "file-a")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if len(st.Artifacts) != 1 {
			t.Errorf("artifacts = %d, want 1", len(st.Artifacts))
		}
	})
}

func TestPut_ConcurrentSameKey(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("screen-%d", i%4)
				if err := c.Put(ctx, "file-a", id, KindAnalysis, []byte("analysis")); err != nil {
					t.Errorf("Put: %v", err)
				}
			}(i)
		}
		wg.Wait()

		st, err := c.Status(ctx, "file-a")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if len(st.Artifacts) != 4 {
			t.Errorf("artifacts = %d, want 4", len(st.Artifacts))
		}
	})
}

// --- Status / Keys ---

func TestStatus_And_Keys(t *testing.T) {
	forEachStore(t, func(t *testing.T, c *Cache, _ Store) {
		ctx := context.Background()
		mustPut(t, c, "file-b", "s2", KindAnalysis, "b")
		mustPut(t, c, "file-a", "s1", KindImage, "png")
		mustPut(t, c, "file-a", "s1", KindAnalysis, "text")
		if err := c.Touch(ctx, "file-a", t0); err != nil {
			t.Fatalf("Touch: %v", err)
		}

		keys, err := c.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if diff := cmp.Diff([]string{"file-a", "file-b"}, keys); diff != "" {
			t.Errorf("Keys (-want +got):\n%s", diff)
		}

		st, err := c.Status(ctx, "file-a")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.Metadata == nil {
			t.Fatal("Status.Metadata is nil after Touch")
		}
		if !st.Metadata.LastTouchedAt.Equal(t0) {
			t.Errorf("LastTouchedAt = %v, want %v", st.Metadata.LastTouchedAt, t0)
		}
		if !st.Metadata.CachedAt.Equal(timeNow()) {
			t.Errorf("CachedAt = %v, want %v", st.Metadata.CachedAt, timeNow())
		}
		want := []ArtifactRef{
			{ScreenID: "s1", Kind: KindAnalysis, Size: 4},
			{ScreenID: "s1", Kind: KindImage, Size: 3},
		}
		if diff := cmp.Diff(want, st.Artifacts); diff != "" {
			t.Errorf("Artifacts (-want +got):\n%s", diff)
		}

		other, err := c.Status(ctx, "file-b")
		if err != nil {
			t.Fatalf("Status file-b: %v", err)
		}
		if other.Metadata != nil {
			t.Error("file-b was never touched, Metadata should be nil")
		}
	})
}

// --- FileStore specifics ---

func TestFileStore_EscapedNamesRoundTrip(t *testing.T) {
	for _, in := range []string{"12:34", "a/b", "plain", "with space", "_under", ".dot", "I:1;2"} {
		out, err := unescapeName(escapeName(in))
		if err != nil {
			t.Fatalf("unescapeName(%q): %v", escapeName(in), err)
		}
		if out != in {
			t.Errorf("round trip %q -> %q -> %q", in, escapeName(in), out)
		}
	}
}

func TestFileStore_DeleteLeavesNoStaleDirectories(t *testing.T) {
	root := t.TempDir()
	c := New(NewFileStore(root))
	ctx := context.Background()
	mustPut(t, c, "file-a", "s1", KindAnalysis, "x")
	if err := c.Invalidate(ctx, "file-a"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cache root has %d entries after invalidate, want 0", len(entries))
	}
}

func TestFileStore_MetadataFileLayout(t *testing.T) {
	root := t.TempDir()
	fs := NewFileStore(root)
	c := New(fs)
	if err := c.Touch(context.Background(), "file-a", t0); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(fs.EntryPath("file-a"), MetadataFile))
	if err != nil {
		t.Fatalf("metadata file missing: %v", err)
	}
	if _, err := decodeMetadata("file-a", raw); err != nil {
		t.Errorf("decodeMetadata on written file: %v", err)
	}
	if _, err := decodeMetadata("file-b", raw); !errors.Is(err, ErrCorrupt) {
		t.Errorf("decodeMetadata for wrong key err = %v, want ErrCorrupt", err)
	}
}

func mustPut(t *testing.T, c *Cache, fileKey, screenID string, kind Kind, data string) {
	t.Helper()
	if err := c.Put(context.Background(), fileKey, screenID, kind, []byte(data)); err != nil {
		t.Fatalf("Put(%s, %s, %s): %v", fileKey, screenID, kind, err)
	}
}
