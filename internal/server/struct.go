package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mealy/mealy-go/internal/rag"
	"github.com/mealy/mealy-go/internal/recipegen"
	"github.com/mealy/mealy-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/recipes/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives all server metric registrations.
	// If nil, a fresh private registry is created.
	MetricsRegistry *prometheus.Registry
}

// retriever is the interface the recipe handlers call to retrieve grounding
// recipes. *rag.Engine satisfies it; tests inject a fake.
type retriever interface {
	// Retrieve returns up to topK recipes for the query and requirements,
	// along with the strategy that produced them.
	Retrieve(ctx context.Context, query string, req rag.Requirements, topK int) ([]rag.Result, rag.Strategy)

	// Random returns up to n recipes sampled uniformly from the corpus.
	Random(n int) []rag.Result
}

// recipeGenerator is the interface handleGenerate calls to produce a recipe.
// *recipegen.Generator satisfies it; tests inject a fake.
type recipeGenerator interface {
	// Generate produces a structured recipe from the composed context prompt.
	Generate(ctx context.Context, contextPrompt string, basedOn []string) (*recipegen.Recipe, error)
}

// Server is the HTTP server exposing the recipe retrieval and generation API.
type Server struct {
	// retriever produces grounding recipes for generation and retrieval requests.
	retriever retriever
	// generator turns a composed context prompt into a structured recipe.
	// Nil when no model provider is configured; generation returns 503.
	generator recipeGenerator
	// history persists generated recipes per user. Nil disables history.
	history store.HistoryStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// generateRequest is the JSON body for POST /api/recipes/generate.
type generateRequest struct {
	// Query is the user's natural language recipe request.
	Query string `json:"query"`
	// Requirements are optional structured constraints on the recipe.
	Requirements rag.Requirements `json:"requirements"`
	// UserID identifies the requesting user for history persistence.
	UserID string `json:"userId,omitempty"`
	// TopK overrides the number of grounding recipes retrieved (0 = default).
	TopK int `json:"topK,omitempty"`
}

// generateResponse is the JSON response for POST /api/recipes/generate.
type generateResponse struct {
	// Recipe is the generated structured recipe.
	Recipe *recipegen.Recipe `json:"recipe"`
	// Strategy identifies which retrieval strategy grounded the generation.
	Strategy rag.Strategy `json:"strategy"`
	// References are the retrieved recipes the generation was grounded on.
	References []rag.Result `json:"references"`
}

// retrieveRequest is the JSON body for POST /api/recipes/retrieve.
type retrieveRequest struct {
	// Query is the user's natural language recipe request.
	Query string `json:"query"`
	// Requirements are optional structured constraints on the search.
	Requirements rag.Requirements `json:"requirements"`
	// TopK overrides the number of results returned (0 = default).
	TopK int `json:"topK,omitempty"`
}

// retrieveResponse is the JSON response for POST /api/recipes/retrieve.
type retrieveResponse struct {
	// Results are the retrieved recipes in descending relevance order.
	Results []rag.Result `json:"results"`
	// Strategy identifies which retrieval strategy produced the results.
	Strategy rag.Strategy `json:"strategy"`
}

// historyEntry is one generated recipe in the GET /api/recipes/history response.
type historyEntry struct {
	// ID is the persistent entry id.
	ID int64 `json:"id"`
	// Title is the generated recipe's title.
	Title string `json:"title"`
	// Recipe is the full structured recipe.
	Recipe recipegen.Recipe `json:"recipe"`
	// Strategy is the retrieval strategy that grounded the generation.
	Strategy string `json:"strategy"`
	// CreatedAt is when the recipe was generated.
	CreatedAt time.Time `json:"createdAt"`
}

// historyResponse is the JSON response for GET /api/recipes/history.
type historyResponse struct {
	// Entries are the user's most recent generated recipes, newest first.
	Entries []historyEntry `json:"entries"`
}
