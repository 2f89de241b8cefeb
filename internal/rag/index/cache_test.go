package index

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testCachePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "rag_index.bin")
}

func Test_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	path := testCachePath(t)

	ix := newTestIndex(t, [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.5, 0.5, 0.5},
	}, []int32{0, 1, 2})
	ix.Meta.SourcePath = "/data/recipes.csv"
	ix.Meta.GeneratedAt = "2026-08-31T00:00:00Z"

	if err := Save(ix, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := Load(path, slog.Default())
	if got == nil {
		t.Fatal("load returned nil for a freshly saved cache")
	}
	if got.Rows() != ix.Rows() || got.Dim != ix.Dim {
		t.Fatalf("shape: got %dx%d, want %dx%d", got.Rows(), got.Dim, ix.Rows(), ix.Dim)
	}
	for i := range ix.Vectors {
		if got.Vectors[i] != ix.Vectors[i] {
			t.Fatalf("vector element %d: got %v, want %v", i, got.Vectors[i], ix.Vectors[i])
		}
	}
	for i := range ix.Norms {
		if got.Norms[i] != ix.Norms[i] {
			t.Fatalf("norm %d: got %v, want %v", i, got.Norms[i], ix.Norms[i])
		}
	}
	for i := range ix.RowIDs {
		if got.RowIDs[i] != ix.RowIDs[i] {
			t.Fatalf("row id %d: got %v, want %v", i, got.RowIDs[i], ix.RowIDs[i])
		}
	}
	if got.Meta != ix.Meta {
		t.Errorf("metadata: got %+v, want %+v", got.Meta, ix.Meta)
	}
}

func Test_SaveLoad_SearchResultsIdentical(t *testing.T) {
	t.Parallel()
	path := testCachePath(t)

	ix := newTestIndex(t, [][]float32{
		{0.9, 0.1},
		{0.1, 0.9},
		{0.7, 0.7},
	}, []int32{0, 1, 2})
	if err := Save(ix, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got := Load(path, slog.Default())
	if got == nil {
		t.Fatal("load returned nil")
	}

	query, _ := NormalizeL2([]float32{1, 0.2})
	fresh := ix.Search(query, 3)
	cached := got.Search(query, 3)
	if len(fresh) != len(cached) {
		t.Fatalf("hit counts differ: %d vs %d", len(fresh), len(cached))
	}
	for i := range fresh {
		if fresh[i] != cached[i] {
			t.Errorf("hit %d differs: fresh %+v, cached %+v", i, fresh[i], cached[i])
		}
	}
}

func Test_Load_MissingFile(t *testing.T) {
	t.Parallel()
	if got := Load(filepath.Join(t.TempDir(), "absent.bin"), slog.Default()); got != nil {
		t.Errorf("want nil for missing cache, got %+v", got)
	}
}

func Test_Load_GarbageFile(t *testing.T) {
	t.Parallel()
	path := testCachePath(t)
	if err := os.WriteFile(path, []byte("not a cache"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Load(path, slog.Default()); got != nil {
		t.Errorf("want nil for garbage cache, got %+v", got)
	}
}

func Test_Load_TruncatedArrays(t *testing.T) {
	t.Parallel()
	path := testCachePath(t)

	ix := newTestIndex(t, [][]float32{{1, 0}, {0, 1}}, []int32{0, 1})
	if err := Save(ix, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b[:len(b)-8], 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Load(path, slog.Default()); got != nil {
		t.Errorf("want nil for truncated cache, got %+v", got)
	}
}

func Test_Load_MissingMetaSidecar(t *testing.T) {
	t.Parallel()
	path := testCachePath(t)

	ix := newTestIndex(t, [][]float32{{1, 0}}, []int32{0})
	if err := Save(ix, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := os.Remove(MetaPath(path)); err != nil {
		t.Fatal(err)
	}
	if got := Load(path, slog.Default()); got != nil {
		t.Errorf("want nil when sidecar is missing, got %+v", got)
	}
}

func Test_Load_MetaDisagreesWithArrays(t *testing.T) {
	t.Parallel()
	path := testCachePath(t)

	ix := newTestIndex(t, [][]float32{{1, 0}, {0, 1}}, []int32{0, 1})
	if err := Save(ix, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta := `{"recipe_count": 99, "embedding_dim": 2, "model": "m"}`
	if err := os.WriteFile(MetaPath(path), []byte(meta), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := Load(path, slog.Default()); got != nil {
		t.Errorf("want nil when metadata disagrees with arrays, got %+v", got)
	}
}

func Test_Invalidate_RemovesBothFiles(t *testing.T) {
	t.Parallel()
	path := testCachePath(t)

	ix := newTestIndex(t, [][]float32{{1, 0}}, []int32{0})
	if err := Save(ix, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := Invalidate(path); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("cache file still present after invalidate")
	}
	if _, err := os.Stat(MetaPath(path)); !os.IsNotExist(err) {
		t.Error("metadata sidecar still present after invalidate")
	}

	// Invalidating an already-clean path is not an error.
	if err := Invalidate(path); err != nil {
		t.Errorf("second invalidate: %v", err)
	}
}

func Test_MetaPath(t *testing.T) {
	t.Parallel()
	if got := MetaPath("/var/cache/rag_index.bin"); got != "/var/cache/rag_index.meta.json" {
		t.Errorf("meta path: got %q", got)
	}
}
