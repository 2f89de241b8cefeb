package recipegen

import (
	"strings"
	"testing"
)

const validRecipeJSON = `{
  "title": "Lemon Herb Chicken",
  "description": "Bright, quick weeknight chicken.",
  "ingredients": [
    {"name": "chicken breast", "quantity": "2", "unit": "pieces"},
    {"name": "lemon", "quantity": "1", "unit": "whole"}
  ],
  "instructions": ["Step 1: Season the chicken.", "Step 2: Sear and finish with lemon."],
  "prepTimeMinutes": 10,
  "cookTimeMinutes": 20,
  "servingSize": 2,
  "difficulty": "easy",
  "cuisine": "mediterranean",
  "dietaryPreferences": ["low-carb"],
  "nutrition": {"calories": 320, "protein": 38, "carbs": 4, "fat": 16, "fiber": 1}
}`

func TestParseRecipe_PlainJSON(t *testing.T) {
	t.Parallel()
	r, err := ParseRecipe(validRecipeJSON)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Title != "Lemon Herb Chicken" {
		t.Errorf("title: got %q", r.Title)
	}
	if len(r.Ingredients) != 2 || r.Ingredients[0].Name != "chicken breast" {
		t.Errorf("ingredients: %+v", r.Ingredients)
	}
	if len(r.Instructions) != 2 {
		t.Errorf("instructions: %+v", r.Instructions)
	}
	if r.Nutrition.Calories != 320 {
		t.Errorf("calories: got %v", r.Nutrition.Calories)
	}
}

func TestParseRecipe_FencedJSON(t *testing.T) {
	t.Parallel()
	fenced := "```json\n" + validRecipeJSON + "\n```"
	r, err := ParseRecipe(fenced)
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if r.Title != "Lemon Herb Chicken" {
		t.Errorf("title: got %q", r.Title)
	}
}

func TestParseRecipe_BareFence(t *testing.T) {
	t.Parallel()
	fenced := "```\n" + validRecipeJSON + "\n```"
	if _, err := ParseRecipe(fenced); err != nil {
		t.Fatalf("parse bare fence: %v", err)
	}
}

func TestParseRecipe_InvalidJSON(t *testing.T) {
	t.Parallel()
	_, err := ParseRecipe("Sure! Here's a great recipe for you:")
	if err == nil {
		t.Fatal("want error for prose reply, got nil")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("error: %v", err)
	}
}

func TestParseRecipe_MissingTitle(t *testing.T) {
	t.Parallel()
	if _, err := ParseRecipe(`{"description": "no title"}`); err == nil {
		t.Fatal("want error for untitled recipe, got nil")
	}
}

func TestParseRecipe_EmptyReply(t *testing.T) {
	t.Parallel()
	if _, err := ParseRecipe("   "); err == nil {
		t.Fatal("want error for empty reply, got nil")
	}
}

func Test_stripMarkdownFences(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"fence no newline", "```{\"a\":1}", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripMarkdownFences(tc.in); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}
