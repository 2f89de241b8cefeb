// Package corpus loads the static recipe corpus from a CSV file into an
// immutable in-memory table. The corpus is read-only for the lifetime of the
// process; every retrieval strategy reads from it and none may mutate it.
//
// Loading fails soft: a missing or malformed CSV yields an empty corpus, not
// an error. Dependent components must treat "empty corpus" as a valid state
// in which every retrieval strategy returns no results.
package corpus

import (
	"encoding/csv"
	"log/slog"
	"math/rand"
	"os"
	"strings"
)

// Record is a single recipe row from the corpus CSV.
// RowID is the 0-based position of the row in the source file and is stable
// across loads — the embedding index cache refers to recipes by RowID.
type Record struct {
	// RowID is the stable 0-based row position in the source CSV.
	RowID int
	// Title is the recipe title.
	Title string
	// Ingredients is the free-text ingredient list.
	Ingredients string
	// Instructions is the free-text preparation instructions.
	Instructions string
}

// Store holds the loaded corpus. It is immutable after construction and safe
// for concurrent readers without locking.
type Store struct {
	records []Record
	path    string
}

// requiredColumns are the header names the CSV must provide, matched
// case-insensitively. Additional columns are ignored.
var requiredColumns = []string{"Title", "Ingredients", "Instructions"}

// NewStore loads the corpus from path. A missing or unreadable file results
// in an empty store — callers degrade to lexical-free retrieval rather than
// failing startup.
func NewStore(path string, log *slog.Logger) *Store {
	s := &Store{path: path}

	f, err := os.Open(path)
	if err != nil {
		log.Warn("corpus: recipe CSV not found, corpus is empty",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return s
	}
	defer f.Close()

	r := csv.NewReader(f)
	// Recipe instructions routinely contain quoted newlines; keep per-record
	// field count lax so one short row does not abort the whole load.
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		log.Error("corpus: failed to read CSV header, corpus is empty",
			slog.String("path", path),
			slog.Any("error", err),
		)
		return s
	}

	cols, ok := resolveColumns(header)
	if !ok {
		log.Error("corpus: CSV is missing required columns, corpus is empty",
			slog.String("path", path),
			slog.String("required", strings.Join(requiredColumns, ", ")),
		)
		return s
	}

	rowID := 0
	for {
		row, err := r.Read()
		if err != nil {
			// io.EOF ends the loop; any other parse error ends the load with
			// whatever rows were already accepted.
			break
		}
		s.records = append(s.records, Record{
			RowID:        rowID,
			Title:        field(row, cols.title),
			Ingredients:  field(row, cols.ingredients),
			Instructions: field(row, cols.instructions),
		})
		rowID++
	}

	log.Info("corpus: loaded recipes",
		slog.String("path", path),
		slog.Int("count", len(s.records)),
	)
	return s
}

// columnIndices holds the resolved positions of the required columns.
type columnIndices struct {
	title        int
	ingredients  int
	instructions int
}

// resolveColumns maps the required column names to their header positions.
// Matching is case-insensitive so "title" and "Title" both work.
func resolveColumns(header []string) (columnIndices, bool) {
	idx := columnIndices{title: -1, ingredients: -1, instructions: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "title":
			idx.title = i
		case "ingredients":
			idx.ingredients = i
		case "instructions":
			idx.instructions = i
		}
	}
	ok := idx.title >= 0 && idx.ingredients >= 0 && idx.instructions >= 0
	return idx, ok
}

// field returns row[i] or "" when the row is too short.
func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Len returns the number of loaded recipes.
func (s *Store) Len() int { return len(s.records) }

// Empty reports whether the corpus holds no recipes.
func (s *Store) Empty() bool { return len(s.records) == 0 }

// Path returns the source file path the store was constructed with.
func (s *Store) Path() string { return s.path }

// All returns the full record slice. Callers must not modify it.
func (s *Store) All() []Record { return s.records }

// ByRowID resolves a stable row id back to its record.
func (s *Store) ByRowID(id int) (Record, bool) {
	if id < 0 || id >= len(s.records) {
		return Record{}, false
	}
	return s.records[id], true
}

// Sample returns up to n randomly chosen records, used for inspiration picks
// when a caller supplies no constraints at all.
func (s *Store) Sample(n int) []Record {
	if n <= 0 || len(s.records) == 0 {
		return nil
	}
	if n > len(s.records) {
		n = len(s.records)
	}
	perm := rand.Perm(len(s.records))
	out := make([]Record, 0, n)
	for _, i := range perm[:n] {
		out = append(out, s.records[i])
	}
	return out
}

// EmbeddingText renders a record as the canonical text fed to the embedding
// model. Index build and query-time similarity both depend on this format
// staying stable.
func (r Record) EmbeddingText() string {
	var b strings.Builder
	b.WriteString("Title: ")
	b.WriteString(strings.TrimSpace(r.Title))
	b.WriteString("\nIngredients: ")
	b.WriteString(strings.TrimSpace(r.Ingredients))
	b.WriteString("\nInstructions: ")
	b.WriteString(strings.TrimSpace(r.Instructions))
	return b.String()
}
