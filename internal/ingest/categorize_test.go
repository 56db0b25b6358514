package ingest

import (
	"slices"
	"testing"
)

func TestCategorize_SoupFromTitleAndStock(t *testing.T) {
	categories, _ := Categorize("Weeknight Chicken Soup", []string{
		"olive oil", "onion", "garlic", "chicken stock", "salt",
	})

	if !slices.Contains(categories, "Soup") {
		t.Fatalf("expected Soup, got %v", categories)
	}
	if !slices.Contains(categories, "Poultry") {
		t.Fatalf("expected Poultry from chicken evidence, got %v", categories)
	}
}

func TestCategorize_DessertAndBaking(t *testing.T) {
	categories, tags := Categorize("Chocolate Chip Cookies", []string{
		"flour", "butter", "sugar", "chocolate chips", "vanilla extract", "baking soda",
	})

	if !slices.Contains(categories, "Dessert") {
		t.Fatalf("expected Dessert, got %v", categories)
	}
	if !slices.Contains(categories, "Baking") {
		t.Fatalf("expected Baking, got %v", categories)
	}
	if !slices.Contains(tags, "vegetarian") {
		t.Fatalf("cookies have no meat; expected vegetarian tag, got %v", tags)
	}
}

func TestCategorize_NoWeakEvidence(t *testing.T) {
	// one keyword hit is not enough to claim a category
	categories, _ := Categorize("Simple Rice", []string{"rice", "water", "salt"})

	if len(categories) != 0 {
		t.Fatalf("expected no categories from weak evidence, got %v", categories)
	}
}

func TestCategorize_SimpleTag(t *testing.T) {
	_, tags := Categorize("Boiled Eggs", []string{"eggs", "water"})

	if !slices.Contains(tags, "simple") {
		t.Fatalf("expected simple tag for short ingredient lists, got %v", tags)
	}
}
