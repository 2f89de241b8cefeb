package recipegen

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/mealy/mealy-go/internal/budget"
)

// jsonFormatInstructions is appended to every context prompt so the model
// replies with the exact recipe schema instead of prose.
const jsonFormatInstructions = `
Return the recipe in this EXACT JSON format (valid JSON only, no markdown):
{
    "title": "Creative Recipe Name",
    "description": "Brief appetizing description (1-2 sentences)",
    "ingredients": [
        {
            "name": "ingredient name",
            "quantity": "amount",
            "unit": "measurement unit"
        }
    ],
    "instructions": [
        "Step 1: Detailed instruction",
        "Step 2: Detailed instruction",
        "..."
    ],
    "prepTimeMinutes": 15,
    "cookTimeMinutes": 30,
    "servingSize": 4,
    "difficulty": "easy",
    "cuisine": "cuisine type",
    "dietaryPreferences": ["tag1", "tag2"],
    "nutrition": {
        "calories": 400,
        "protein": 25,
        "carbs": 45,
        "fat": 15,
        "fiber": 6
    }
}

Generate ONLY valid JSON, no additional text or markdown formatting.`

// maxBasedOn caps how many reference titles are recorded on a generated
// recipe for provenance.
const maxBasedOn = 3

// Generator calls the configured chat model with a composed context prompt
// and parses the structured recipe it returns. Safe for concurrent use.
type Generator struct {
	model model.ToolCallingChatModel
	log   *slog.Logger
}

// New constructs a Generator around an initialized chat model.
func New(m model.ToolCallingChatModel, log *slog.Logger) *Generator {
	return &Generator{model: m, log: log}
}

// Generate sends the context prompt to the model and parses the reply.
// basedOn records which retrieved recipe titles grounded the generation;
// only the first three are kept.
func (g *Generator) Generate(ctx context.Context, contextPrompt string, basedOn []string) (*Recipe, error) {
	msgs := []*schema.Message{
		schema.UserMessage(contextPrompt + "\n" + jsonFormatInstructions),
	}

	g.log.Info("recipegen: generating recipe",
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
	)

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return nil, fmt.Errorf("recipegen: generation request failed: %w", err)
	}

	recipe, err := ParseRecipe(resp.Content)
	if err != nil {
		return nil, err
	}

	if len(basedOn) > maxBasedOn {
		basedOn = basedOn[:maxBasedOn]
	}
	recipe.BasedOn = basedOn

	g.log.Info("recipegen: generated recipe", slog.String("title", recipe.Title))
	return recipe, nil
}
