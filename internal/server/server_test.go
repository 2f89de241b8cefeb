package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mealy/mealy-go/internal/corpus"
	"github.com/mealy/mealy-go/internal/rag"
	"github.com/mealy/mealy-go/internal/recipegen"
	"github.com/mealy/mealy-go/internal/store"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeRetriever is a test double for the retriever interface.
type fakeRetriever struct {
	// results and strategy are returned by every Retrieve call.
	results  []rag.Result
	strategy rag.Strategy
	// random is returned by Random.
	random []rag.Result
	// gotQuery and gotTopK record the last call's arguments.
	gotQuery string
	gotTopK  int
	gotCount int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, _ rag.Requirements, topK int) ([]rag.Result, rag.Strategy) {
	f.gotQuery = query
	f.gotTopK = topK
	if f.strategy == "" {
		return nil, rag.StrategyNone
	}
	return f.results, f.strategy
}

func (f *fakeRetriever) Random(n int) []rag.Result {
	f.gotCount = n
	return f.random
}

// fakeGenerator is a test double for the recipeGenerator interface.
type fakeGenerator struct {
	recipe *recipegen.Recipe
	err    error
	// gotPrompt and gotBasedOn record the last call's arguments.
	gotPrompt  string
	gotBasedOn []string
}

func (f *fakeGenerator) Generate(_ context.Context, contextPrompt string, basedOn []string) (*recipegen.Recipe, error) {
	f.gotPrompt = contextPrompt
	f.gotBasedOn = basedOn
	return f.recipe, f.err
}

// savedRecipe records one fakeHistory.Save call.
type savedRecipe struct {
	userID   string
	title    string
	strategy string
}

// fakeHistory is an in-memory test double for store.HistoryStore.
type fakeHistory struct {
	entries []store.Entry
	saveErr error
	saved   []savedRecipe
}

func (f *fakeHistory) Save(_ context.Context, userID string, recipe *recipegen.Recipe, strategy string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, savedRecipe{userID: userID, title: recipe.Title, strategy: strategy})
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, userID string, n int) ([]store.Entry, error) {
	var out []store.Entry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
		if len(out) == n {
			break
		}
	}
	return out, nil
}

func (f *fakeHistory) Close() error { return nil }

// newTestServer builds a minimal Server with a fresh metrics registry.
// Individual tests swap in their own fakes as needed.
func newTestServer() *Server {
	return &Server{
		retriever: &fakeRetriever{},
		cfg:       &Config{},
		log:       slog.Default(),
		metrics:   newServerMetrics(prometheus.NewRegistry()),
	}
}

func grilledChickenResults() []rag.Result {
	return []rag.Result{
		{Title: "Grilled Chicken Salad", Ingredients: "chicken, lettuce", Instructions: "Grill and toss.", Score: 0.91, Rank: 1, Strategy: rag.StrategySemantic},
		{Title: "Chicken Stir Fry", Ingredients: "chicken, soy sauce", Instructions: "Fry quickly.", Score: 0.85, Rank: 2, Strategy: rag.StrategySemantic},
	}
}

// ---------------------------------------------------------------------------
// POST /api/recipes/generate
// ---------------------------------------------------------------------------

func TestHandleGenerate_Success(t *testing.T) {
	t.Parallel()

	rt := &fakeRetriever{results: grilledChickenResults(), strategy: rag.StrategySemantic}
	gen := &fakeGenerator{recipe: &recipegen.Recipe{Title: "Zesty Grilled Chicken"}}
	hist := &fakeHistory{}

	s := newTestServer()
	s.retriever = rt
	s.generator = gen
	s.history = hist

	body := `{"query": "something with chicken", "userId": "u-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp generateResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Recipe == nil || resp.Recipe.Title != "Zesty Grilled Chicken" {
		t.Errorf("recipe: %+v", resp.Recipe)
	}
	if resp.Strategy != rag.StrategySemantic {
		t.Errorf("strategy: got %q", resp.Strategy)
	}
	if len(resp.References) != 2 {
		t.Errorf("references: got %d, want 2", len(resp.References))
	}

	// The context prompt handed to the model must carry the user query and
	// the retrieved recipe titles.
	if !strings.Contains(gen.gotPrompt, "something with chicken") {
		t.Error("context prompt missing user query")
	}
	if !strings.Contains(gen.gotPrompt, "Grilled Chicken Salad") {
		t.Error("context prompt missing retrieved recipe")
	}
	if len(gen.gotBasedOn) != 2 || gen.gotBasedOn[0] != "Grilled Chicken Salad" {
		t.Errorf("basedOn: %v", gen.gotBasedOn)
	}

	if len(hist.saved) != 1 {
		t.Fatalf("history: got %d saves, want 1", len(hist.saved))
	}
	if hist.saved[0].userID != "u-1" || hist.saved[0].strategy != "semantic" {
		t.Errorf("history save: %+v", hist.saved[0])
	}
}

func TestHandleGenerate_DefaultTopK(t *testing.T) {
	t.Parallel()

	rt := &fakeRetriever{strategy: rag.StrategyNone}
	s := newTestServer()
	s.retriever = rt
	s.generator = &fakeGenerator{recipe: &recipegen.Recipe{Title: "Anything"}}

	body := `{"query": "dinner"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(body))
	s.handleGenerate(httptest.NewRecorder(), req)

	if rt.gotTopK != rag.DefaultTopK {
		t.Errorf("topK: got %d, want %d", rt.gotTopK, rag.DefaultTopK)
	}
}

func TestHandleGenerate_NoHistorySaveWithoutUser(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{}
	s := newTestServer()
	s.generator = &fakeGenerator{recipe: &recipegen.Recipe{Title: "Anon Dish"}}
	s.history = hist

	body := `{"query": "dinner"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(hist.saved) != 0 {
		t.Errorf("history: got %d saves, want 0 without userId", len(hist.saved))
	}
}

func TestHandleGenerate_HistorySaveFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.generator = &fakeGenerator{recipe: &recipegen.Recipe{Title: "Resilient Dish"}}
	s.history = &fakeHistory{saveErr: errors.New("disk full")}

	body := `{"query": "dinner", "userId": "u-2"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 despite history failure, got %d", w.Code)
	}
}

func TestHandleGenerate_EmptyRequest(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.generator = &fakeGenerator{recipe: &recipegen.Recipe{Title: "x"}}

	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty query and requirements, got %d", w.Code)
	}
}

func TestHandleGenerate_RequirementsOnly(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.generator = &fakeGenerator{recipe: &recipegen.Recipe{Title: "Vegan Bowl"}}

	body := `{"requirements": {"dietary_preferences": ["vegan"]}}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with requirements only, got %d — body: %s", w.Code, w.Body.String())
	}
}

func TestHandleGenerate_InvalidBody(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.generator = &fakeGenerator{}

	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader("not json"))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleGenerate_NoGenerator(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	body := `{"query": "dinner"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when generation is not configured, got %d", w.Code)
	}
}

func TestHandleGenerate_ModelFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.generator = &fakeGenerator{err: errors.New("quota exceeded")}

	body := `{"query": "dinner"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/generate", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleGenerate(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when the model fails, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// POST /api/recipes/retrieve
// ---------------------------------------------------------------------------

func TestHandleRetrieve_Success(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.retriever = &fakeRetriever{results: grilledChickenResults(), strategy: rag.StrategyIngredient}

	body := `{"query": "chicken", "topK": 2}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/retrieve", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp retrieveResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Strategy != rag.StrategyIngredient {
		t.Errorf("strategy: got %q", resp.Strategy)
	}
	if len(resp.Results) != 2 || resp.Results[0].Title != "Grilled Chicken Salad" {
		t.Errorf("results: %+v", resp.Results)
	}
}

func TestHandleRetrieve_NoMatchesRendersEmptyArray(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.retriever = &fakeRetriever{strategy: rag.StrategyNone}

	body := `{"query": "xylophone stew"}`
	req := httptest.NewRequest(http.MethodPost, "/api/recipes/retrieve", strings.NewReader(body))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("expected empty results array, got %s", w.Body.String())
	}
}

func TestHandleRetrieve_EmptyRequest(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/api/recipes/retrieve", strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.handleRetrieve(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty query and requirements, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/recipes/random
// ---------------------------------------------------------------------------

func TestHandleRandom_Success(t *testing.T) {
	t.Parallel()

	rt := &fakeRetriever{random: []rag.Result{
		{Title: "Surprise Soup", Rank: 1, Strategy: rag.StrategyRandom},
	}}
	s := newTestServer()
	s.retriever = rt

	req := httptest.NewRequest(http.MethodGet, "/api/recipes/random?count=3", nil)
	w := httptest.NewRecorder()

	s.handleRandom(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if rt.gotCount != 3 {
		t.Errorf("count: got %d, want 3", rt.gotCount)
	}

	var resp retrieveResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Strategy != rag.StrategyRandom {
		t.Errorf("strategy: got %q", resp.Strategy)
	}
	if len(resp.Results) != 1 || resp.Results[0].Title != "Surprise Soup" {
		t.Errorf("results: %+v", resp.Results)
	}
}

func TestHandleRandom_CountDefaultsAndCaps(t *testing.T) {
	t.Parallel()

	rt := &fakeRetriever{}
	s := newTestServer()
	s.retriever = rt

	s.handleRandom(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/recipes/random", nil))
	if rt.gotCount != rag.DefaultTopK {
		t.Errorf("default count: got %d, want %d", rt.gotCount, rag.DefaultTopK)
	}

	s.handleRandom(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/recipes/random?count=999", nil))
	if rt.gotCount != maxRandomCount {
		t.Errorf("capped count: got %d, want %d", rt.gotCount, maxRandomCount)
	}
}

func TestHandleRandom_InvalidCount(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/recipes/random?count=-1", nil)
	w := httptest.NewRecorder()

	s.handleRandom(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative count, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GET /api/recipes/history
// ---------------------------------------------------------------------------

func TestHandleHistory_Success(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.history = &fakeHistory{entries: []store.Entry{
		{ID: 2, UserID: "u-1", Title: "Second", Strategy: "keyword", CreatedAt: time.Unix(200, 0)},
		{ID: 1, UserID: "u-1", Title: "First", Strategy: "semantic", CreatedAt: time.Unix(100, 0)},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/recipes/history?user=u-1", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(resp.Entries))
	}
	if resp.Entries[0].Title != "Second" || resp.Entries[0].Strategy != "keyword" {
		t.Errorf("entries[0]: %+v", resp.Entries[0])
	}
}

func TestHandleHistory_LimitRespected(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.history = &fakeHistory{entries: []store.Entry{
		{ID: 3, UserID: "u-1", Title: "C"},
		{ID: 2, UserID: "u-1", Title: "B"},
		{ID: 1, UserID: "u-1", Title: "A"},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/recipes/history?user=u-1&limit=2", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Errorf("entries: got %d, want 2", len(resp.Entries))
	}
}

func TestHandleHistory_MissingUser(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.history = &fakeHistory{}

	req := httptest.NewRequest(http.MethodGet, "/api/recipes/history", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without user param, got %d", w.Code)
	}
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.history = &fakeHistory{}

	req := httptest.NewRequest(http.MethodGet, "/api/recipes/history?user=u-1&limit=banana", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric limit, got %d", w.Code)
	}
}

func TestHandleHistory_Disabled(t *testing.T) {
	t.Parallel()

	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/recipes/history?user=u-1", nil)
	w := httptest.NewRecorder()

	s.handleHistory(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when history is disabled, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_RequiresEngine(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, nil, &Config{}); err == nil {
		t.Fatal("expected error for nil engine, got nil")
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	t.Parallel()

	// An engine over a missing corpus is valid: the store is just empty.
	engine := rag.NewEngine(
		corpus.NewStore("no-such-corpus.csv", slog.Default()),
		nil, rag.Config{}, slog.Default(), prometheus.NewRegistry(),
	)

	s, err := New(engine, nil, nil, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.stopRL()

	if s.httpServer.Addr != "127.0.0.1:8080" {
		t.Errorf("addr: got %q", s.httpServer.Addr)
	}
	if s.cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout: got %v", s.cfg.ShutdownTimeout)
	}
}
