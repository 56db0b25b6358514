package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/awehrman/peas/internal/engine"
)

type CategorizeInput struct {
	ImportID string `json:"importId" validate:"required"`
	NoteID   string `json:"noteId" validate:"required"`
	Title    string `json:"title"`
}

// category evidence: keyword hits in the title and ingredient names vote
// for a category; two votes win it.
var categoryKeywords = map[string][]string{
	"Baking":    {"flour", "yeast", "baking powder", "baking soda", "dough", "bread", "cake", "cookie", "muffin"},
	"Dessert":   {"sugar", "chocolate", "vanilla", "caramel", "custard", "ice cream", "dessert", "frosting"},
	"Soup":      {"broth", "stock", "soup", "chowder", "bisque"},
	"Salad":     {"lettuce", "arugula", "salad", "vinaigrette", "greens"},
	"Pasta":     {"pasta", "spaghetti", "penne", "linguine", "noodle", "lasagna", "macaroni"},
	"Breakfast": {"egg", "pancake", "waffle", "oatmeal", "granola", "bacon", "toast"},
	"Seafood":   {"shrimp", "salmon", "tuna", "cod", "fish", "scallop", "crab", "lobster", "anchovy"},
	"Poultry":   {"chicken", "turkey", "duck"},
	"Beef":      {"beef", "steak", "brisket", "ground beef"},
	"Pork":      {"pork", "ham", "prosciutto", "sausage"},
	"Drinks":    {"cocktail", "smoothie", "lemonade", "juice", "punch"},
}

var meatKeywords = []string{
	"chicken", "turkey", "duck", "beef", "steak", "pork", "ham", "bacon",
	"sausage", "lamb", "veal", "prosciutto", "anchovy", "fish", "shrimp",
	"salmon", "tuna", "crab", "lobster",
}

// NewCategorizeAction scores the note against the keyword evidence and
// persists the winning categories plus derived tags.
func NewCategorizeAction() engine.Action {
	return &engine.TypedAction[CategorizeInput]{
		ActionName: "categorize",
		Run: func(ctx context.Context, in CategorizeInput, d *engine.Deps, actx *engine.ActionContext) (engine.JobData, error) {
			svc, err := servicesFrom(d)
			if err != nil {
				return nil, err
			}

			n, err := svc.Notes.GetByID(ctx, in.NoteID)
			if err != nil {
				return nil, fmt.Errorf("load note: %w", err)
			}

			var ingredientNames []string
			for _, line := range n.Ingredients {
				if line.Name != "" {
					ingredientNames = append(ingredientNames, line.Name)
				}
			}

			categories, tags := Categorize(in.Title, ingredientNames)

			if err := svc.Notes.SetCategories(ctx, in.NoteID, categories, tags); err != nil {
				return nil, fmt.Errorf("set categories: %w", err)
			}

			return engine.JobData{
				"categories": categories,
				"tags":       tags,
			}, nil
		},
	}
}

// Categorize is the pure scoring core, split out for tests.
func Categorize(title string, ingredientNames []string) (categories, tags []string) {
	haystack := strings.ToLower(title)
	for _, name := range ingredientNames {
		haystack += "\n" + strings.ToLower(name)
	}

	scores := make(map[string]int)

	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				scores[category]++
			}
		}
	}

	// title hits count double: "Chicken Soup" is a soup even with no
	// broth in the ingredient list
	lowerTitle := strings.ToLower(title)
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			if strings.Contains(lowerTitle, kw) {
				scores[category]++
			}
		}
	}

	for category, score := range scores {
		if score >= 2 {
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)

	if isVegetarian(haystack) {
		tags = append(tags, "vegetarian")
	}
	if len(ingredientNames) > 0 && len(ingredientNames) <= 5 {
		tags = append(tags, "simple")
	}

	return categories, tags
}

func isVegetarian(haystack string) bool {
	for _, kw := range meatKeywords {
		if strings.Contains(haystack, kw) {
			return false
		}
	}
	return true
}
