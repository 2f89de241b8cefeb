package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mealy/mealy-go/internal/budget"
	"github.com/mealy/mealy-go/internal/logging"
	"github.com/mealy/mealy-go/internal/provider"
	"github.com/mealy/mealy-go/internal/rag"
	"github.com/mealy/mealy-go/internal/recipegen"
)

// NewGenerateCmd constructs the `mealy generate` command, which retrieves
// grounding recipes for a query, invokes the generation model, and prints the
// generated recipe as JSON.
func NewGenerateCmd() *cobra.Command {
	var ingredients []string
	var dietary []string
	var difficulty string
	var servings int
	var maxTime int

	cmd := &cobra.Command{
		Use:   "generate [description]",
		Short: "Generate a recipe grounded in the corpus",
		Long: `Generate a structured recipe from a natural language description.

Relevant recipes are retrieved from the corpus first and handed to the model
as grounding context, so generations stay anchored in real dishes.

Examples:
  mealy generate "comforting soup for a cold evening"
  mealy generate --ingredients tofu,broccoli --dietary vegan "stir fry"
  mealy generate --servings 4 --max-time 30 "weeknight pasta"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("generate: failed to initialise model provider: %w", err)
			}

			engine, _ := buildEngine(ctx, log, prometheus.NewRegistry())

			req := rag.Requirements{
				Ingredients:        ingredients,
				DietaryPreferences: dietary,
				Difficulty:         difficulty,
				Servings:           servings,
				MaxCookingTime:     maxTime,
			}

			query := args[0]
			results, strategy := engine.Retrieve(ctx, query, req, rag.DefaultTopK)
			log.Info("retrieval complete",
				slog.String("strategy", string(strategy)),
				slog.Int("results", len(results)),
			)

			prompt := rag.BuildContextPrompt(query, results, req, budget.DefaultMaxPromptTokens)

			basedOn := make([]string, 0, len(results))
			for _, r := range results {
				basedOn = append(basedOn, r.Title)
			}

			recipe, err := recipegen.New(chatModel, log).Generate(ctx, prompt, basedOn)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(recipe)
		},
	}

	cmd.Flags().StringSliceVarP(&ingredients, "ingredients", "i", nil, "Ingredients the recipe must include (comma separated)")
	cmd.Flags().StringSliceVarP(&dietary, "dietary", "d", nil, "Dietary preferences, e.g. vegan, low-carb (comma separated)")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "Target difficulty (easy, medium, hard)")
	cmd.Flags().IntVar(&servings, "servings", 0, "Desired number of servings")
	cmd.Flags().IntVar(&maxTime, "max-time", 0, "Maximum total cooking time in minutes")

	return cmd
}
