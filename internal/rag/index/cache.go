package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// cacheMagic identifies the binary cache format. Bumping cacheVersion
// invalidates every existing cache file, forcing a rebuild.
const (
	cacheMagic   uint32 = 0x4d4c5952 // "MLYR"
	cacheVersion uint32 = 1
)

// MetaPath returns the JSON sidecar path for a given binary cache path:
// the same base name with a ".meta.json" suffix.
func MetaPath(cachePath string) string {
	ext := filepath.Ext(cachePath)
	return strings.TrimSuffix(cachePath, ext) + ".meta.json"
}

// Save persists the index to cachePath (binary arrays) and its metadata
// sidecar. The binary file is written to a temp file and renamed so a crash
// mid-write never leaves a truncated cache behind.
func Save(ix *Index, cachePath string) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return fmt.Errorf("index: cannot create cache dir: %w", err)
	}

	tmp := cachePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("index: cannot create cache file: %w", err)
	}

	write := func(v any) {
		if err == nil {
			err = binary.Write(f, binary.LittleEndian, v)
		}
	}
	write(cacheMagic)
	write(cacheVersion)
	write(uint32(ix.Rows()))
	write(uint32(ix.Dim))
	write(ix.Vectors)
	write(ix.Norms)
	write(ix.RowIDs)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("index: cannot write cache: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("index: cannot close cache file: %w", err)
	}
	if err := os.Rename(tmp, cachePath); err != nil {
		return fmt.Errorf("index: cannot finalise cache file: %w", err)
	}

	mb, err := json.MarshalIndent(ix.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("index: cannot marshal metadata: %w", err)
	}
	if err := os.WriteFile(MetaPath(cachePath), mb, 0o644); err != nil {
		return fmt.Errorf("index: cannot write metadata sidecar: %w", err)
	}

	return nil
}

// Load reads a cached index from cachePath. It returns nil — never an error —
// when the cache is absent, unreadable, or self-inconsistent (metadata counts
// disagreeing with the binary arrays); callers fall back to Build. The reason
// is logged so operators can tell "no cache" from "corrupt cache".
func Load(cachePath string, log *slog.Logger) *Index {
	f, err := os.Open(cachePath)
	if err != nil {
		log.Debug("index: no cache file", slog.String("path", cachePath))
		return nil
	}
	defer f.Close()

	var magic, version, rows, dim uint32
	read := func(v any) {
		if err == nil {
			err = binary.Read(f, binary.LittleEndian, v)
		}
	}
	read(&magic)
	read(&version)
	read(&rows)
	read(&dim)
	if err != nil || magic != cacheMagic || version != cacheVersion {
		log.Warn("index: cache header invalid, ignoring cache",
			slog.String("path", cachePath),
			slog.Any("error", err),
		)
		return nil
	}
	if dim == 0 || rows == 0 {
		log.Warn("index: cache is empty, ignoring cache", slog.String("path", cachePath))
		return nil
	}

	vectors := make([]float32, int(rows)*int(dim))
	norms := make([]float32, rows)
	rowIDs := make([]int32, rows)
	read(vectors)
	read(norms)
	read(rowIDs)
	if err != nil {
		log.Warn("index: cache arrays truncated, ignoring cache",
			slog.String("path", cachePath),
			slog.Any("error", err),
		)
		return nil
	}

	meta, ok := loadMeta(MetaPath(cachePath), log)
	if !ok {
		return nil
	}
	if meta.RecipeCount != int(rows) || meta.EmbeddingDim != int(dim) {
		log.Warn("index: cache metadata disagrees with arrays, ignoring cache",
			slog.Int("meta_count", meta.RecipeCount),
			slog.Int("rows", int(rows)),
			slog.Int("meta_dim", meta.EmbeddingDim),
			slog.Int("dim", int(dim)),
		)
		return nil
	}

	log.Info("index: loaded embedding index from cache",
		slog.String("path", cachePath),
		slog.Int("rows", int(rows)),
		slog.Int("dim", int(dim)),
	)
	return New(vectors, norms, rowIDs, int(dim), meta)
}

// loadMeta reads and parses the metadata sidecar.
func loadMeta(path string, log *slog.Logger) (Metadata, bool) {
	var meta Metadata
	b, err := os.ReadFile(path)
	if err != nil {
		log.Warn("index: cache metadata sidecar missing, ignoring cache",
			slog.String("path", path),
		)
		return meta, false
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		log.Warn("index: cache metadata unparseable, ignoring cache",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return meta, false
	}
	return meta, true
}

// Invalidate deletes the cache file and its metadata sidecar. Missing files
// are not an error.
func Invalidate(cachePath string) error {
	if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("index: cannot remove cache: %w", err)
	}
	if err := os.Remove(MetaPath(cachePath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("index: cannot remove metadata sidecar: %w", err)
	}
	return nil
}
