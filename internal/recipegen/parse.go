package recipegen

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripMarkdownFences removes a surrounding ```json ... ``` (or bare ```)
// block. Models routinely wrap JSON replies in a fence despite being told
// not to.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the opening fence line ("```json" or "```").
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}

	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseRecipe parses the model's reply into a Recipe, tolerating markdown
// fences around the JSON body.
func ParseRecipe(reply string) (*Recipe, error) {
	body := stripMarkdownFences(reply)
	if body == "" {
		return nil, fmt.Errorf("recipegen: model returned an empty reply")
	}

	var recipe Recipe
	if err := json.Unmarshal([]byte(body), &recipe); err != nil {
		return nil, fmt.Errorf("recipegen: model returned invalid JSON: %w", err)
	}
	if recipe.Title == "" {
		return nil, fmt.Errorf("recipegen: generated recipe has no title")
	}
	return &recipe, nil
}
