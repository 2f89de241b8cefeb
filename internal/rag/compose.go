package rag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mealy/mealy-go/internal/budget"
)

const (
	// maxReferenceRecipes caps how many retrieved recipes the prompt cites.
	maxReferenceRecipes = 5
	// maxIngredientExcerpt and maxInstructionExcerpt bound per-reference text
	// so one verbose recipe cannot crowd out the rest of the prompt.
	maxIngredientExcerpt  = 300
	maxInstructionExcerpt = 400
)

// BuildContextPrompt assembles the prompt handed to the generation model:
// a role-setting preamble, the user query (or a default instruction), up to
// five retrieved reference recipes, the structured requirements as bullets,
// and closing generation guidelines. An empty result set produces an explicit
// no-references line so the generator never sees an ambiguous empty block.
//
// maxTokens bounds the estimated size of the whole prompt (0 = default
// budget); trailing reference recipes are dropped, least relevant first,
// until the prompt fits.
func BuildContextPrompt(query string, results []Result, req Requirements, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = budget.DefaultMaxPromptTokens
	}

	refs := len(results)
	if refs > maxReferenceRecipes {
		refs = maxReferenceRecipes
	}

	prompt := renderPrompt(query, results[:refs], req)
	for budget.Estimate(prompt) > maxTokens && refs > 0 {
		refs--
		prompt = renderPrompt(query, results[:refs], req)
	}
	return prompt
}

// renderPrompt produces the prompt text for a fixed reference count.
func renderPrompt(query string, results []Result, req Requirements) string {
	var parts []string

	parts = append(parts, "You are an inventive yet reliable culinary AI assistant.")

	if q := strings.TrimSpace(query); q != "" {
		parts = append(parts, "\nUser query:", q)
	} else {
		parts = append(parts, "\nUser query: Create a recipe that satisfies the provided requirements.")
	}

	parts = append(parts, "\nRetrieved reference recipes (most relevant first). Use them as inspiration only:")

	if len(results) > 0 {
		for _, r := range results {
			title := r.Title
			if title == "" {
				title = "Unknown recipe"
			}
			parts = append(parts, "\n- "+title)
			parts = append(parts, "  "+scoreLine(r))
			parts = append(parts, "  Key ingredients: "+truncate(r.Ingredients, maxIngredientExcerpt))
			parts = append(parts, "  Instructions excerpt: "+truncate(r.Instructions, maxInstructionExcerpt))
		}
	} else {
		parts = append(parts, "\n(No relevant recipes were retrieved. Lean on general culinary knowledge.)")
	}

	parts = append(parts, "\nUser requirements and constraints:")
	if req.Empty() {
		parts = append(parts, "- No additional constraints provided.")
	} else {
		if len(req.Ingredients) > 0 {
			parts = append(parts, "- Required ingredients: "+strings.Join(req.Ingredients, ", "))
		}
		if len(req.DietaryPreferences) > 0 {
			parts = append(parts, "- Dietary preferences: "+strings.Join(req.DietaryPreferences, ", "))
		}
		if req.MaxCookingTime > 0 {
			parts = append(parts, fmt.Sprintf("- Maximum cooking time: %d minutes", req.MaxCookingTime))
		}
		if req.Difficulty != "" {
			parts = append(parts, "- Target difficulty: "+req.Difficulty)
		}
		if req.Servings > 0 {
			parts = append(parts, fmt.Sprintf("- Servings: %d", req.Servings))
		}
	}

	parts = append(parts,
		"\nWhen crafting the final recipe:",
		"- Produce an original creation inspired by the references without copying them.",
		"- Highlight the required ingredients and respect dietary needs.",
		"- Ensure instructions are sequential, clear, and practical.",
		"- Estimate nutrition facts (calories, protein, carbs, fat, fiber) per serving.",
		"- Keep the tone helpful and encouraging.",
	)

	return strings.Join(parts, "\n")
}

// scoreLine renders the relevance line for one reference: cosine similarity
// for semantic results, the integer term-overlap count for lexical ones.
func scoreLine(r Result) string {
	if r.Strategy == StrategySemantic {
		return "Similarity: " + strconv.FormatFloat(r.Score, 'g', -1, 64)
	}
	return "Match score: " + strconv.Itoa(int(r.Score))
}

// truncate cuts s to at most n bytes, backing up to a rune boundary so a
// multibyte character is never split mid-sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
