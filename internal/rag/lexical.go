package rag

import (
	"sort"
	"strings"

	"github.com/mealy/mealy-go/internal/corpus"
)

// rowScore is local per-query scratch state. Scores are never written back to
// the shared corpus, so concurrent queries cannot clobber each other.
type rowScore struct {
	row   int
	score int
}

// MatchByIngredients scores each recipe by how many of the given ingredient
// names appear as literal substrings of its ingredient text (case-insensitive).
// Recipes scoring zero are excluded; results are ordered by descending score
// with ties broken by original row order, truncated to limit.
//
// Pure function of its inputs: repeated calls over an unchanged corpus return
// identical results, including tie order.
func MatchByIngredients(records []corpus.Record, ingredients []string, limit int) []Result {
	terms := lowerTerms(ingredients)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	scores := make([]rowScore, 0, len(records))
	for i, rec := range records {
		text := strings.ToLower(rec.Ingredients)
		n := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				n++
			}
		}
		if n > 0 {
			scores = append(scores, rowScore{row: i, score: n})
		}
	}

	return rank(records, scores, limit, StrategyIngredient)
}

// MatchByKeywords scores each recipe by how many of the given keywords appear
// anywhere in the concatenation of its title, ingredients, and instructions
// (case-insensitive). Same ordering and truncation rules as MatchByIngredients.
func MatchByKeywords(records []corpus.Record, keywords []string, limit int) []Result {
	terms := lowerTerms(keywords)
	if len(terms) == 0 || limit <= 0 {
		return nil
	}

	scores := make([]rowScore, 0, len(records))
	for i, rec := range records {
		text := strings.ToLower(rec.Title + " " + rec.Ingredients + " " + rec.Instructions)
		n := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				n++
			}
		}
		if n > 0 {
			scores = append(scores, rowScore{row: i, score: n})
		}
	}

	return rank(records, scores, limit, StrategyKeyword)
}

// maxKeywords caps the keyword list so a pathological query cannot turn the
// lexical scan quadratic.
const maxKeywords = 20

// ExtractKeywords builds the search-term list for the keyword fallback: query
// tokens longer than two characters, the required ingredients, the dietary
// preferences, and the difficulty, deduplicated case-insensitively in
// first-seen order and capped to maxKeywords.
func ExtractKeywords(query string, req Requirements) []string {
	var keywords []string
	seen := make(map[string]bool)

	add := func(token string) {
		token = strings.ToLower(strings.TrimSpace(token))
		if token != "" && !seen[token] {
			seen[token] = true
			keywords = append(keywords, token)
		}
	}

	for _, token := range strings.Fields(strings.ReplaceAll(query, ",", " ")) {
		// Tokens of one or two characters are noise ("a", "of", "to").
		if len(strings.TrimSpace(token)) > 2 {
			add(token)
		}
	}
	for _, ing := range req.Ingredients {
		add(ing)
	}
	for _, pref := range req.DietaryPreferences {
		add(pref)
	}
	if req.Difficulty != "" {
		add(req.Difficulty)
	}

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	return keywords
}

// lowerTerms lower-cases and trims terms, dropping empties.
func lowerTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// rank orders scores by descending score (stable, so ties keep corpus row
// order), truncates to limit, and materializes Results with 1-based ranks.
func rank(records []corpus.Record, scores []rowScore, limit int, strategy Strategy) []Result {
	if len(scores) == 0 {
		return nil
	}

	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].score > scores[b].score
	})
	if limit < len(scores) {
		scores = scores[:limit]
	}

	results := make([]Result, 0, len(scores))
	for i, s := range scores {
		rec := records[s.row]
		results = append(results, Result{
			Title:        rec.Title,
			Ingredients:  rec.Ingredients,
			Instructions: rec.Instructions,
			Score:        float64(s.score),
			Rank:         i + 1,
			Strategy:     strategy,
		})
	}
	return results
}
