package corpus

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// writeCSV writes content to a temp file and returns its path.
func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recipes.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func Test_Store_LoadsRecords(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "Title,Ingredients,Instructions\n"+
		"Grilled Chicken Salad,\"chicken, lettuce, tomato\",Grill the chicken.\n"+
		"Vegan Lentil Curry,\"lentils, coconut milk\",Simmer the lentils.\n")

	s := NewStore(path, slog.Default())
	if s.Len() != 2 {
		t.Fatalf("want 2 records, got %d", s.Len())
	}

	rec, ok := s.ByRowID(0)
	if !ok {
		t.Fatal("row 0 not found")
	}
	if rec.Title != "Grilled Chicken Salad" {
		t.Errorf("row 0 title: got %q", rec.Title)
	}
	if rec.RowID != 0 {
		t.Errorf("row 0 id: got %d", rec.RowID)
	}
}

func Test_Store_RowIDsStableAcrossLoads(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "Title,Ingredients,Instructions\na,b,c\nd,e,f\ng,h,i\n")

	first := NewStore(path, slog.Default())
	second := NewStore(path, slog.Default())

	for i := range first.All() {
		if first.All()[i] != second.All()[i] {
			t.Errorf("row %d differs across loads: %+v vs %+v", i, first.All()[i], second.All()[i])
		}
	}
}

func Test_Store_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	s := NewStore("/nonexistent/recipes.csv", slog.Default())
	if !s.Empty() {
		t.Errorf("want empty store for missing file, got %d records", s.Len())
	}
	if got := s.Sample(3); got != nil {
		t.Errorf("sample of empty store: want nil, got %v", got)
	}
}

func Test_Store_MissingColumnsIsEmpty(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "Name,Stuff\nfoo,bar\n")
	s := NewStore(path, slog.Default())
	if !s.Empty() {
		t.Errorf("want empty store for missing columns, got %d records", s.Len())
	}
}

func Test_Store_ExtraColumnsIgnored(t *testing.T) {
	t.Parallel()
	// The source dataset carries a leading unnamed index column.
	path := writeCSV(t, ",Title,Ingredients,Instructions,Image_Name\n"+
		"0,Keto Beef Stir Fry,\"beef, broccoli\",Fry the beef.,img.jpg\n")
	s := NewStore(path, slog.Default())
	if s.Len() != 1 {
		t.Fatalf("want 1 record, got %d", s.Len())
	}
	rec, _ := s.ByRowID(0)
	if rec.Ingredients != "beef, broccoli" {
		t.Errorf("ingredients: got %q", rec.Ingredients)
	}
}

func Test_Store_Sample(t *testing.T) {
	t.Parallel()
	path := writeCSV(t, "Title,Ingredients,Instructions\na,b,c\nd,e,f\ng,h,i\n")
	s := NewStore(path, slog.Default())

	if got := len(s.Sample(2)); got != 2 {
		t.Errorf("sample(2): want 2, got %d", got)
	}
	// Requests larger than the corpus are clamped.
	if got := len(s.Sample(10)); got != 3 {
		t.Errorf("sample(10): want 3, got %d", got)
	}
}

func Test_Record_EmbeddingText(t *testing.T) {
	t.Parallel()
	r := Record{Title: " Pasta ", Ingredients: "flour", Instructions: "boil"}
	want := "Title: Pasta\nIngredients: flour\nInstructions: boil"
	if got := r.EmbeddingText(); got != want {
		t.Errorf("embedding text:\n got %q\nwant %q", got, want)
	}
}
