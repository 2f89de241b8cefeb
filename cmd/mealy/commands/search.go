package commands

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mealy/mealy-go/internal/logging"
	"github.com/mealy/mealy-go/internal/rag"
)

// NewSearchCmd constructs the `mealy search` command, which runs the
// retrieval fallback chain for a query and prints the matching recipes.
func NewSearchCmd() *cobra.Command {
	var ingredients []string
	var dietary []string
	var difficulty string
	var topK int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the recipe corpus",
		Long: `Search the recipe corpus for a natural language query.

Retrieval is semantic when an embedding credential is configured, and falls
back to ingredient and keyword matching otherwise. The strategy that produced
the results is printed alongside them.

Examples:
  mealy search "spicy noodle soup"
  mealy search --ingredients chicken,rice "quick dinner"
  mealy search --dietary vegan --difficulty easy "curry"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			engine, store := buildEngine(ctx, log, prometheus.NewRegistry())
			if store.Empty() {
				return fmt.Errorf("search: corpus %s is missing or empty", store.Path())
			}

			req := rag.Requirements{
				Ingredients:        ingredients,
				DietaryPreferences: dietary,
				Difficulty:         difficulty,
			}

			results, strategy := engine.Retrieve(ctx, args[0], req, topK)
			if len(results) == 0 {
				fmt.Println("No matching recipes found.")
				return nil
			}

			fmt.Printf("Found %d recipes (strategy: %s)\n\n", len(results), strategy)
			for _, r := range results {
				fmt.Printf("%d. %s (score: %g)\n", r.Rank, r.Title, r.Score)
			}

			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&ingredients, "ingredients", "i", nil, "Ingredients the recipe must include (comma separated)")
	cmd.Flags().StringSliceVarP(&dietary, "dietary", "d", nil, "Dietary preferences, e.g. vegan, low-carb (comma separated)")
	cmd.Flags().StringVar(&difficulty, "difficulty", "", "Target difficulty (easy, medium, hard)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", rag.DefaultTopK, "Number of results to return")

	return cmd
}
