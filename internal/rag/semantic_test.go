package rag

import (
	"testing"
)

func Test_ComposeSearchText_AllFields(t *testing.T) {
	t.Parallel()
	got := ComposeSearchText("a cozy winter dinner", Requirements{
		Ingredients:        []string{"chicken", "rice"},
		DietaryPreferences: []string{"gluten-free"},
		MaxCookingTime:     45,
		Difficulty:         "medium",
		Servings:           4,
	})

	want := "a cozy winter dinner\n" +
		"Ingredients: chicken, rice\n" +
		"Dietary preferences: gluten-free\n" +
		"Max cooking time: 45 minutes\n" +
		"Difficulty: medium\n" +
		"Servings: 4"
	if got != want {
		t.Errorf("search text:\n got %q\nwant %q", got, want)
	}
}

func Test_ComposeSearchText_QueryOnly(t *testing.T) {
	t.Parallel()
	if got := ComposeSearchText("  pasta night  ", Requirements{}); got != "pasta night" {
		t.Errorf("got %q, want %q", got, "pasta night")
	}
}

func Test_ComposeSearchText_RequirementsOnly(t *testing.T) {
	t.Parallel()
	got := ComposeSearchText("", Requirements{Ingredients: []string{"tofu"}})
	if got != "Ingredients: tofu" {
		t.Errorf("got %q", got)
	}
}

func Test_ComposeSearchText_Empty(t *testing.T) {
	t.Parallel()
	if got := ComposeSearchText("", Requirements{}); got != "" {
		t.Errorf("want empty composition, got %q", got)
	}
}

func Test_roundScore(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   float64
		want float64
	}{
		{0.70710678118, 0.707107},
		{1.0, 1.0},
		{0.1234564, 0.123456},
		{0.1234565, 0.123457},
		{-0.9999996, -1.0},
	}
	for _, tc := range cases {
		if got := roundScore(tc.in); got != tc.want {
			t.Errorf("roundScore(%v): got %v, want %v", tc.in, got, tc.want)
		}
	}
}
