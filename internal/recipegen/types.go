// Package recipegen turns a composed context prompt into a structured recipe
// by calling the configured generation model and parsing its JSON reply.
package recipegen

// Ingredient is one recipe ingredient with its measurement.
type Ingredient struct {
	// Name is the ingredient name.
	Name string `json:"name"`
	// Quantity is the amount, kept as free text ("1", "1/2", "a pinch").
	Quantity string `json:"quantity"`
	// Unit is the measurement unit ("cup", "g", "tbsp").
	Unit string `json:"unit"`
}

// Nutrition holds estimated nutrition facts per serving.
type Nutrition struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Fiber    float64 `json:"fiber"`
}

// Recipe is the structured recipe the generation model returns. Field names
// match the JSON schema embedded in the generation prompt.
type Recipe struct {
	// Title is the recipe name.
	Title string `json:"title"`
	// Description is a short appetizing summary.
	Description string `json:"description"`
	// Ingredients lists the ingredients with measurements.
	Ingredients []Ingredient `json:"ingredients"`
	// Instructions are the sequential preparation steps.
	Instructions []string `json:"instructions"`
	// PrepTimeMinutes is the estimated preparation time.
	PrepTimeMinutes int `json:"prepTimeMinutes"`
	// CookTimeMinutes is the estimated cooking time.
	CookTimeMinutes int `json:"cookTimeMinutes"`
	// ServingSize is the number of servings the recipe yields.
	ServingSize int `json:"servingSize"`
	// Difficulty is the model's difficulty estimate ("easy", "medium", "hard").
	Difficulty string `json:"difficulty"`
	// Cuisine is the cuisine type, when the model names one.
	Cuisine string `json:"cuisine,omitempty"`
	// DietaryPreferences are the dietary tags the recipe satisfies.
	DietaryPreferences []string `json:"dietaryPreferences,omitempty"`
	// Nutrition holds the estimated nutrition facts per serving.
	Nutrition Nutrition `json:"nutrition"`
	// BasedOn lists the titles of the retrieved recipes that grounded the
	// generation (at most three), for provenance in API responses.
	BasedOn []string `json:"basedOn,omitempty"`
}
