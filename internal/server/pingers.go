package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mealy/mealy-go/internal/rag"
)

// EnginePinger probes the retrieval engine: the corpus must be loaded and,
// when an embedder is configured, the embedding index must be buildable.
// It satisfies the Pinger interface and is used by GET /api/ready.
type EnginePinger struct {
	// engine is the retrieval engine to probe.
	engine *rag.Engine
}

// NewEnginePinger constructs an EnginePinger for the given engine.
func NewEnginePinger(e *rag.Engine) *EnginePinger {
	return &EnginePinger{engine: e}
}

// Name returns the dependency label used in readiness responses.
func (p *EnginePinger) Name() string { return "retrieval" }

// Ping reports whether the retrieval engine can serve queries.
func (p *EnginePinger) Ping(ctx context.Context) error {
	if err := p.engine.Ping(ctx); err != nil {
		return fmt.Errorf("engine not ready: %w", err)
	}
	return nil
}

// ModelPinger probes the generation model backend by sending a minimal
// single-token generate request. It satisfies the Pinger interface and is
// used by GET /api/ready.
type ModelPinger struct {
	// model is the chat model to probe.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewModelPinger constructs a ModelPinger for the given model and backend name.
func NewModelPinger(m model.ToolCallingChatModel, name string) *ModelPinger {
	return &ModelPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return p.name }

// Ping sends a one-word generate request to the model backend.
// Returns nil if the backend responds, or a descriptive error otherwise.
func (p *ModelPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// QdrantPinger probes a remote Qdrant vector store.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// store is the Qdrant-backed vector store to probe.
	store *rag.QdrantStore
}

// NewQdrantPinger constructs a QdrantPinger for the given store.
func NewQdrantPinger(store *rag.QdrantStore) *QdrantPinger {
	return &QdrantPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant health check RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
